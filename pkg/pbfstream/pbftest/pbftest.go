// Package pbftest builds OSM PBF streams for tests.
package pbftest

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Default required features, all understood by common decoders.
var DefaultFeatures = []string{"OsmSchema-V0.6", "DenseNodes"}

// Table interns strings for one primitive block. Index 0 is the empty string.
type Table struct {
	idx map[string]uint32
	s   []string
}

// NewTable returns a table holding only the empty string.
func NewTable() *Table {
	return &Table{idx: map[string]uint32{"": 0}, s: []string{""}}
}

// ID interns s.
func (t *Table) ID(s string) uint32 {
	if i, ok := t.idx[s]; ok {
		return i
	}
	i := uint32(len(t.s))
	t.idx[s] = i
	t.s = append(t.s, s)
	return i
}

// Tags interns alternating key,value strings and returns parallel index lists.
func (t *Table) Tags(kv ...string) (keys, vals []uint32) {
	for i := 0; i+1 < len(kv); i += 2 {
		keys = append(keys, t.ID(kv[i]))
		vals = append(vals, t.ID(kv[i+1]))
	}
	return keys, vals
}

// StringTable returns the message form of the table.
func (t *Table) StringTable() *OSMPBF.StringTable {
	return &OSMPBF.StringTable{S: t.s}
}

// Node returns an explicit node.
func (t *Table) Node(id int64, kv ...string) *OSMPBF.Node {
	keys, vals := t.Tags(kv...)
	return &OSMPBF.Node{Id: proto.Int64(id), Keys: keys, Vals: vals, Lat: proto.Int64(0), Lon: proto.Int64(0)}
}

// Way returns a way with no refs.
func (t *Table) Way(id int64, kv ...string) *OSMPBF.Way {
	keys, vals := t.Tags(kv...)
	return &OSMPBF.Way{Id: proto.Int64(id), Keys: keys, Vals: vals}
}

// Relation returns a relation with no members.
func (t *Table) Relation(id int64, kv ...string) *OSMPBF.Relation {
	keys, vals := t.Tags(kv...)
	return &OSMPBF.Relation{Id: proto.Int64(id), Keys: keys, Vals: vals}
}

// DenseNode is one node of a dense section before encoding.
type DenseNode struct {
	ID   int64
	Tags []string
}

// Dense delta-codes nodes into a dense section. keys_vals is only written
// when at least one node is tagged.
func (t *Table) Dense(nodes ...DenseNode) *OSMPBF.DenseNodes {
	n := len(nodes)
	d := &OSMPBF.DenseNodes{
		Id:  make([]int64, n),
		Lat: make([]int64, n),
		Lon: make([]int64, n),
		Denseinfo: &OSMPBF.DenseInfo{
			Version:   make([]int32, n),
			Timestamp: make([]int64, n),
			Changeset: make([]int64, n),
			Uid:       make([]int32, n),
			UserSid:   make([]int32, n),
			Visible:   make([]bool, n),
		},
	}
	var prev int64
	tagged := false
	var kv []int32
	for i, dn := range nodes {
		d.Id[i] = dn.ID - prev
		prev = dn.ID
		d.Denseinfo.Visible[i] = true
		keys, vals := t.Tags(dn.Tags...)
		for j := range keys {
			kv = append(kv, int32(keys[j]), int32(vals[j]))
			tagged = true
		}
		kv = append(kv, 0)
	}
	if tagged {
		d.KeysVals = kv
	}
	return d
}

// Writer accumulates a framed stream.
type Writer struct {
	buf bytes.Buffer
	// Raw stores blocks uncompressed instead of zlib compressed.
	Raw bool
}

// Bytes returns the stream written so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Header writes an OSMHeader blob. With no features, DefaultFeatures is used.
func (w *Writer) Header(features ...string) *Writer {
	if len(features) == 0 {
		features = DefaultFeatures
	}
	w.Block(TypeHeader, &OSMPBF.HeaderBlock{RequiredFeatures: features})
	return w
}

// Primitive writes an OSMData blob holding one block built from t and groups.
func (w *Writer) Primitive(t *Table, groups ...*OSMPBF.PrimitiveGroup) *Writer {
	w.Block(TypeData, &OSMPBF.PrimitiveBlock{Stringtable: t.StringTable(), Primitivegroup: groups})
	return w
}

// Block serializes m and writes it as a blob of the given type.
func (w *Writer) Block(typ string, m proto.Message) *Writer {
	data, err := proto.Marshal(m)
	if err != nil {
		panic(err)
	}
	if w.Raw {
		return w.Frame(typ, RawBlob(data))
	}
	return w.Frame(typ, ZlibBlob(data, len(data)))
}

// Frame writes one length-prefixed BlobHeader followed by payload.
func (w *Writer) Frame(typ string, payload []byte) *Writer {
	header, err := proto.Marshal(&OSMPBF.BlobHeader{
		Type:     proto.String(typ),
		Datasize: proto.Int32(int32(len(payload))),
	})
	if err != nil {
		panic(err)
	}
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(header)))
	w.buf.Write(n[:])
	w.buf.Write(header)
	w.buf.Write(payload)
	return w
}

// Blob types.
const (
	TypeHeader = "OSMHeader"
	TypeData   = "OSMData"
)

// Blob field numbers in fileformat.proto.
const (
	fieldRaw      = 1
	fieldRawSize  = 2
	fieldZlibData = 3
	fieldLzmaData = 4
)

// RawBlob encodes a Blob carrying data uncompressed.
func RawBlob(data []byte) []byte {
	b := protowire.AppendTag(nil, fieldRaw, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

// ZlibBlob encodes a Blob carrying data zlib compressed with the given
// declared raw size.
func ZlibBlob(data []byte, rawSize int) []byte {
	return ZlibBlobBytes(Compress(data), rawSize)
}

// ZlibBlobBytes encodes a Blob around already compressed bytes.
func ZlibBlobBytes(compressed []byte, rawSize int) []byte {
	b := protowire.AppendTag(nil, fieldRawSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rawSize))
	b = protowire.AppendTag(b, fieldZlibData, protowire.BytesType)
	return protowire.AppendBytes(b, compressed)
}

// LzmaBlob encodes a Blob carrying lzma data, which readers do not support.
func LzmaBlob(data []byte) []byte {
	b := protowire.AppendTag(nil, fieldRawSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(data)))
	b = protowire.AppendTag(b, fieldLzmaData, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

// Compress zlib-compresses data.
func Compress(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
