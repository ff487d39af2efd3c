package pbfstream

import (
	"github.com/cockroachdb/errors"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/proto"

	"github.com/val3rkq/amenityscan/pkg/amenity"
)

// DecodeHeaderBlock deserializes the block carried by an OSMHeader blob.
func DecodeHeaderBlock(data []byte) (*OSMPBF.HeaderBlock, error) {
	hb := &OSMPBF.HeaderBlock{}
	if err := proto.Unmarshal(data, hb); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding header block"), ErrSchemaDecode)
	}
	return hb, nil
}

// DecodePrimitiveBlock deserializes the block carried by an OSMData blob. The
// result does not alias data.
func DecodePrimitiveBlock(data []byte) (*Block, error) {
	pb := &OSMPBF.PrimitiveBlock{}
	if err := proto.Unmarshal(data, pb); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding primitive block"), ErrSchemaDecode)
	}
	return NewBlock(pb), nil
}

// Block adapts a PrimitiveBlock to amenity.Block.
type Block struct {
	pb   *OSMPBF.PrimitiveBlock
	pool stringPool
}

var _ amenity.Block = (*Block)(nil)

// NewBlock wraps pb.
func NewBlock(pb *OSMPBF.PrimitiveBlock) *Block {
	return &Block{pb: pb, pool: stringPool(pb.GetStringtable().GetS())}
}

// Primitive returns the underlying message.
func (b *Block) Primitive() *OSMPBF.PrimitiveBlock { return b.pb }

func (b *Block) Strings() amenity.StringPool { return b.pool }

func (b *Block) NumGroups() int { return len(b.pb.GetPrimitivegroup()) }

func (b *Block) Group(i int) amenity.Group { return group{b.pb.GetPrimitivegroup()[i]} }

type group struct {
	pg *OSMPBF.PrimitiveGroup
}

func (g group) Count(k amenity.Kind) int {
	switch k {
	case amenity.KindWay:
		return len(g.pg.GetWays())
	case amenity.KindNode:
		return len(g.pg.GetNodes())
	case amenity.KindRelation:
		return len(g.pg.GetRelations())
	default:
		return 0
	}
}

func (g group) Entity(k amenity.Kind, i int) amenity.Entity {
	switch k {
	case amenity.KindWay:
		return g.pg.GetWays()[i]
	case amenity.KindNode:
		return g.pg.GetNodes()[i]
	case amenity.KindRelation:
		return g.pg.GetRelations()[i]
	default:
		panic(errors.AssertionFailedf("no explicit entities of kind %s", k))
	}
}

func (g group) Dense() amenity.DenseSection {
	if d := g.pg.GetDense(); d != nil {
		return d
	}
	return nil
}

// stringPool is the string table of one block.
type stringPool []string

func (p stringPool) At(i uint32) (string, error) {
	if uint64(i) >= uint64(len(p)) {
		return "", errors.Wrapf(amenity.ErrStringIndexOutOfRange, "index %d, table size %d", i, len(p))
	}
	return p[i], nil
}
