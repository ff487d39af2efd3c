// Package amenity finds pubs, bars and restaurants with a name in decoded
// OSM primitive blocks. It works against small capability interfaces so that
// any schema deserializer can feed it.
package amenity

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// Tag keys and values the predicate looks at.
const (
	KeyAmenity = "amenity"
	KeyName    = "name"
)

var targetAmenities = map[string]struct{}{
	"pub":        {},
	"restaurant": {},
	"bar":        {},
}

// IsTargetAmenity reports whether the value of an amenity tag is one we report.
func IsTargetAmenity(v string) bool {
	_, ok := targetAmenities[v]
	return ok
}

var (
	// ErrStringIndexOutOfRange is returned when a key or value index does not
	// resolve in the block's string table.
	ErrStringIndexOutOfRange = errors.New("amenity: string index out of range")
	// ErrTruncatedPair is returned when a key has no paired value.
	ErrTruncatedPair = errors.New("amenity: key without value")
	// ErrDenseMisaligned is returned when a dense section carries more tag
	// segments than identifiers.
	ErrDenseMisaligned = errors.New("amenity: dense tag segments exceed ids")
)

// Reason maps a tag-level error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrStringIndexOutOfRange):
		return "string_index"
	case errors.Is(err, ErrTruncatedPair):
		return "truncated_pair"
	case errors.Is(err, ErrDenseMisaligned):
		return "dense_misaligned"
	default:
		return "other"
	}
}

// Kind identifies which entity list a match came from.
type Kind int

const (
	KindNode Kind = iota
	KindWay
	KindRelation
	KindDense
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	case KindDense:
		return "dense"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Match is one reported entity.
type Match struct {
	Kind Kind
	ID   int64
	Name string
}

// StringPool resolves string table indices for one block.
type StringPool interface {
	At(i uint32) (string, error)
}

// Entity is an explicit-list entity: a way, node or relation. The generated
// OSMPBF message types satisfy it directly.
type Entity interface {
	GetId() int64
	GetKeys() []uint32
	GetVals() []uint32
}

// DenseSection is the columnar node encoding. Ids are delta coded and
// keys_vals is a flat stream of key,value indices where 0 ends a node.
type DenseSection interface {
	GetId() []int64
	GetKeysVals() []int32
}

// Group is one primitive group of a block.
type Group interface {
	// Count returns the number of explicit entities of kind k. KindDense is
	// always zero; use Dense.
	Count(k Kind) int
	Entity(k Kind, i int) Entity
	// Dense returns nil when the group has no dense section.
	Dense() DenseSection
}

// Block is a decoded primitive block.
type Block interface {
	Strings() StringPool
	NumGroups() int
	Group(i int) Group
}

// candidate is the per-entity scan state.
type candidate struct {
	name    string
	hasName bool
	amenity bool
}

func (c *candidate) reset() { *c = candidate{} }

// observe applies one resolved key/value pair. A later name overrides an
// earlier one.
func (c *candidate) observe(key, val string) {
	switch key {
	case KeyAmenity:
		if IsTargetAmenity(val) {
			c.amenity = true
		}
	case KeyName:
		c.name = val
		c.hasName = true
	}
}

func (c *candidate) matched() bool { return c.amenity && c.hasName }
