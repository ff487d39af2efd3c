package pbfstream

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/proto"
)

const (
	// MaxHeaderSize bounds the serialized BlobHeader.
	MaxHeaderSize = 64 * 1024
	// MaxBlobSize bounds the serialized Blob and its uncompressed block.
	MaxBlobSize = 32 * 1024 * 1024
)

// Blob types defined by the file format.
const (
	TypeHeader = "OSMHeader"
	TypeData   = "OSMData"
)

// RawBlob is one framed unit, still compressed.
type RawBlob struct {
	// Seq is the zero-based position of the blob in the stream.
	Seq int
	// Offset is the byte offset of the blob's length prefix.
	Offset int64
	Header *OSMPBF.BlobHeader
	// Payload is the serialized Blob message, Header.GetDatasize() bytes.
	Payload []byte
}

// Type returns the header's blob type.
func (b *RawBlob) Type() string { return b.Header.GetType() }

// Framer reads successive blobs from a stream positioned at a blob boundary.
// It never seeks and holds one payload at a time.
type Framer struct {
	r      io.Reader
	offset int64
	seq    int
	err    error
	lenBuf [4]byte
}

// NewFramer returns a Framer reading from r.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: r}
}

// Offset returns the number of bytes consumed so far.
func (f *Framer) Offset() int64 { return f.offset }

// Next reads the next blob. It returns io.EOF when the stream ends exactly at
// a blob boundary. Any other error is sticky: the stream position is lost and
// every later call returns the same error.
func (f *Framer) Next() (*RawBlob, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, err := f.next()
	if err != nil {
		f.err = err
		return nil, err
	}
	return b, nil
}

func (f *Framer) next() (*RawBlob, error) {
	start := f.offset

	n, err := io.ReadFull(f.r, f.lenBuf[:])
	f.offset += int64(n)
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		return nil, errors.Mark(errors.Newf(
			"blob at offset %d: length prefix truncated after %d bytes", start, n), ErrFraming)
	case err != nil:
		return nil, errors.Wrapf(err, "blob at offset %d: reading length prefix", start)
	}

	headerSize := binary.BigEndian.Uint32(f.lenBuf[:])
	if headerSize > MaxHeaderSize {
		return nil, errors.Mark(errors.Newf(
			"blob at offset %d: header size %d exceeds %d", start, headerSize, MaxHeaderSize), ErrFraming)
	}
	headerBuf, err := f.readExact(int(headerSize))
	if err != nil {
		return nil, errors.Wrapf(err, "blob at offset %d: reading %d byte header", start, headerSize)
	}

	header := &OSMPBF.BlobHeader{}
	if err := proto.Unmarshal(headerBuf, header); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "blob at offset %d", start), ErrHeaderDecode)
	}

	size := header.GetDatasize()
	if size < 0 || size > MaxBlobSize {
		return nil, errors.Mark(errors.Newf(
			"blob at offset %d: data size %d out of bounds", start, size), ErrFraming)
	}
	payload, err := f.readExact(int(size))
	if err != nil {
		return nil, errors.Wrapf(err, "blob at offset %d: reading %d byte payload", start, size)
	}

	b := &RawBlob{Seq: f.seq, Offset: start, Header: header, Payload: payload}
	f.seq++
	return b, nil
}

// readExact reads exactly n bytes. A stream that ends early is a framing error.
func (f *Framer) readExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(f.r, buf)
	f.offset += int64(got)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, errors.Mark(errors.Newf("stream ended after %d of %d bytes", got, n), ErrFraming)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}
