package pbfstream

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/qedus/osmpbf/OSMPBF"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/val3rkq/amenityscan/pkg/amenity"
	"github.com/val3rkq/amenityscan/pkg/pbfstream/pbftest"
)

func readAll(t *testing.T, data []byte) ([]*RawBlob, error) {
	t.Helper()
	f := NewFramer(bytes.NewReader(data))
	var blobs []*RawBlob
	for {
		b, err := f.Next()
		if err == io.EOF {
			return blobs, nil
		}
		if err != nil {
			return blobs, err
		}
		blobs = append(blobs, b)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, raw := range []bool{false, true} {
		tbl := pbftest.NewTable()
		group := &OSMPBF.PrimitiveGroup{
			Ways:  []*OSMPBF.Way{tbl.Way(10, "amenity", "bar", "name", "The Crown")},
			Dense: tbl.Dense(pbftest.DenseNode{ID: 100}, pbftest.DenseNode{ID: 105, Tags: []string{"name", "x"}}),
		}
		w := &pbftest.Writer{Raw: raw}
		w.Header("OsmSchema-V0.6", "DenseNodes").Primitive(tbl, group)

		blobs, err := readAll(t, w.Bytes())
		require.NoError(t, err)
		require.Len(t, blobs, 2)
		require.Equal(t, TypeHeader, blobs[0].Type())
		require.Equal(t, TypeData, blobs[1].Type())
		require.Equal(t, 1, blobs[1].Seq)
		require.Greater(t, blobs[1].Offset, int64(0))

		var in Inflater
		blob, err := DecodeBlob(blobs[0].Payload)
		require.NoError(t, err)
		data, err := in.Inflate(blob)
		require.NoError(t, err)
		hb, err := DecodeHeaderBlock(data)
		require.NoError(t, err)
		require.Equal(t, []string{"OsmSchema-V0.6", "DenseNodes"}, hb.GetRequiredFeatures())

		blob, err = DecodeBlob(blobs[1].Payload)
		require.NoError(t, err)
		data, err = in.Inflate(blob)
		require.NoError(t, err)
		b, err := DecodePrimitiveBlock(data)
		require.NoError(t, err)

		want := &OSMPBF.PrimitiveBlock{Stringtable: tbl.StringTable(), Primitivegroup: []*OSMPBF.PrimitiveGroup{group}}
		require.True(t, proto.Equal(want, b.Primitive()), "raw=%t", raw)
		require.Equal(t, 1, b.NumGroups())
		require.Equal(t, 1, b.Group(0).Count(amenity.KindWay))
		require.Equal(t, 0, b.Group(0).Count(amenity.KindNode))
		require.NotNil(t, b.Group(0).Dense())
		require.Equal(t, []int64{100, 5}, b.Group(0).Dense().GetId())
	}
}

func TestGroupWithoutDense(t *testing.T) {
	b := NewBlock(&OSMPBF.PrimitiveBlock{
		Stringtable:    &OSMPBF.StringTable{},
		Primitivegroup: []*OSMPBF.PrimitiveGroup{{}},
	})
	// Must be an untyped nil so callers can compare against nil.
	require.Nil(t, b.Group(0).Dense())
	require.Equal(t, 0, b.Group(0).Count(amenity.KindDense))
}

func TestStringPool(t *testing.T) {
	p := stringPool{"", "amenity"}
	s, err := p.At(1)
	require.NoError(t, err)
	require.Equal(t, "amenity", s)
	_, err = p.At(2)
	require.True(t, errors.Is(err, amenity.ErrStringIndexOutOfRange))
}

func TestFramerErrors(t *testing.T) {
	valid := (&pbftest.Writer{}).Header().Bytes()

	lenPrefix := func(n uint32) []byte {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], n)
		return b[:]
	}

	tests := []struct {
		name    string
		data    []byte
		blobs   int
		wantErr error
	}{
		{name: "empty stream", data: nil},
		{name: "one blob", data: valid, blobs: 1},
		{name: "truncated length prefix", data: append(append([]byte{}, valid...), 0, 0), blobs: 1, wantErr: ErrFraming},
		{name: "truncated header", data: valid[:6], wantErr: ErrFraming},
		{name: "truncated payload", data: valid[:len(valid)-1], wantErr: ErrFraming},
		{name: "oversized header", data: lenPrefix(MaxHeaderSize + 1), wantErr: ErrFraming},
		{name: "garbage header", data: append(lenPrefix(3), 0xff, 0xff, 0xff), wantErr: ErrHeaderDecode},
		{name: "header missing required fields", data: lenPrefix(0), wantErr: ErrHeaderDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs, err := readAll(t, tt.data)
			require.Len(t, blobs, tt.blobs)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestFramerOversizedPayload(t *testing.T) {
	header, err := proto.Marshal(&OSMPBF.BlobHeader{
		Type:     proto.String(TypeData),
		Datasize: proto.Int32(MaxBlobSize + 1),
	})
	require.NoError(t, err)
	var data []byte
	data = binary.BigEndian.AppendUint32(data, uint32(len(header)))
	data = append(data, header...)

	_, err = NewFramer(bytes.NewReader(data)).Next()
	require.True(t, errors.Is(err, ErrFraming), "got %v", err)
}

func TestFramerErrorIsSticky(t *testing.T) {
	valid := (&pbftest.Writer{}).Header().Bytes()
	f := NewFramer(bytes.NewReader(valid[:len(valid)-1]))
	_, err1 := f.Next()
	require.True(t, errors.Is(err1, ErrFraming), "got %v", err1)
	_, err2 := f.Next()
	require.Equal(t, err1, err2)
}

func TestInflate(t *testing.T) {
	payload := bytes.Repeat([]byte("amenity=pub;"), 64)

	decode := func(t *testing.T, blob []byte) *OSMPBF.Blob {
		b, err := DecodeBlob(blob)
		require.NoError(t, err)
		return b
	}

	t.Run("zlib", func(t *testing.T) {
		out, err := Inflate(decode(t, pbftest.ZlibBlob(payload, len(payload))))
		require.NoError(t, err)
		require.Equal(t, payload, out)
	})

	t.Run("raw", func(t *testing.T) {
		out, err := Inflate(decode(t, pbftest.RawBlob(payload)))
		require.NoError(t, err)
		require.Equal(t, payload, out)
	})

	t.Run("short output is an error", func(t *testing.T) {
		_, err := Inflate(decode(t, pbftest.ZlibBlob(payload, len(payload)+10)))
		require.True(t, errors.Is(err, ErrShortOutput), "got %v", err)
		require.True(t, errors.Is(err, ErrDecompression))
		require.Equal(t, "short_output", Reason(err))
	})

	t.Run("output past declared size", func(t *testing.T) {
		_, err := Inflate(decode(t, pbftest.ZlibBlob(payload, len(payload)-1)))
		require.True(t, errors.Is(err, ErrDecompression), "got %v", err)
		require.False(t, errors.Is(err, ErrShortOutput))
	})

	t.Run("corrupt stream", func(t *testing.T) {
		_, err := Inflate(decode(t, pbftest.ZlibBlobBytes([]byte("definitely not zlib"), 10)))
		require.True(t, errors.Is(err, ErrDecompression), "got %v", err)
	})

	t.Run("bad checksum", func(t *testing.T) {
		c := pbftest.Compress(payload)
		c[len(c)-1] ^= 0xff
		_, err := Inflate(decode(t, pbftest.ZlibBlobBytes(c, len(payload))))
		require.True(t, errors.Is(err, ErrDecompression), "got %v", err)
	})

	t.Run("unsupported compression", func(t *testing.T) {
		_, err := Inflate(decode(t, pbftest.LzmaBlob(payload)))
		require.True(t, errors.Is(err, ErrUnsupportedCompression), "got %v", err)
		require.True(t, errors.Is(err, ErrDecompression))
	})

	t.Run("not a blob", func(t *testing.T) {
		_, err := DecodeBlob([]byte{0xff, 0xff, 0xff})
		require.True(t, errors.Is(err, ErrSchemaDecode), "got %v", err)
	})
}

func TestInflaterReuse(t *testing.T) {
	a := bytes.Repeat([]byte("a"), 1000)
	b := bytes.Repeat([]byte("b"), 10)

	var in Inflater
	for i := 0; i < 3; i++ {
		blob, err := DecodeBlob(pbftest.ZlibBlob(a, len(a)))
		require.NoError(t, err)
		out, err := in.Inflate(blob)
		require.NoError(t, err)
		require.Equal(t, a, out)

		// A failed inflate must not poison the next one.
		blob, err = DecodeBlob(pbftest.ZlibBlobBytes([]byte("junk"), 4))
		require.NoError(t, err)
		_, err = in.Inflate(blob)
		require.Error(t, err)

		blob, err = DecodeBlob(pbftest.ZlibBlob(b, len(b)))
		require.NoError(t, err)
		out, err = in.Inflate(blob)
		require.NoError(t, err)
		require.Equal(t, b, out)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodePrimitiveBlock([]byte{0xff, 0xff})
	require.True(t, errors.Is(err, ErrSchemaDecode), "got %v", err)
	_, err = DecodeHeaderBlock([]byte{0xff, 0xff})
	require.True(t, errors.Is(err, ErrSchemaDecode), "got %v", err)
	require.Equal(t, "schema_decode", Reason(err))
}
