package pbfstream

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zlib"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/proto"
)

// DecodeBlob deserializes a framed payload into a Blob message.
func DecodeBlob(payload []byte) (*OSMPBF.Blob, error) {
	blob := &OSMPBF.Blob{}
	if err := proto.Unmarshal(payload, blob); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding blob"), ErrSchemaDecode)
	}
	return blob, nil
}

// Inflater decompresses blob payloads into a buffer it owns. The slice
// returned by Inflate is only valid until the next call on the same
// Inflater. The zero value is ready to use; an Inflater must not be shared
// between goroutines.
type Inflater struct {
	buf []byte
	src bytes.Reader
	zr  io.ReadCloser
}

// Inflate returns the uncompressed block bytes of blob. Raw blobs are
// returned unchanged. Zlib blobs must inflate to exactly raw_size bytes.
func (in *Inflater) Inflate(blob *OSMPBF.Blob) ([]byte, error) {
	if raw := blob.GetRaw(); raw != nil {
		return raw, nil
	}
	data := blob.GetZlibData()
	if data == nil {
		return nil, errors.Mark(errors.Mark(
			errors.New("blob has no raw or zlib data"), ErrUnsupportedCompression), ErrDecompression)
	}

	size := blob.GetRawSize()
	if size < 0 || size > MaxBlobSize {
		return nil, errors.Mark(errors.Newf("declared raw size %d out of bounds", size), ErrDecompression)
	}

	if err := in.reset(data); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "opening zlib stream"), ErrDecompression)
	}
	defer in.zr.Close()

	if cap(in.buf) < int(size) {
		in.buf = make([]byte, size)
	}
	out := in.buf[:size]

	n, err := io.ReadFull(in.zr, out)
	switch {
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		return nil, errors.Mark(errors.Mark(
			errors.Newf("inflated %d of %d declared bytes", n, size), ErrShortOutput), ErrDecompression)
	case err != nil:
		return nil, errors.Mark(errors.Wrap(err, "inflating zlib data"), ErrDecompression)
	}

	// Drain to the end of the stream so the checksum is verified and any
	// output past the declared size is caught.
	var extra [1]byte
	switch m, err := io.ReadFull(in.zr, extra[:]); {
	case m > 0:
		return nil, errors.Mark(errors.Newf("zlib data inflates past declared %d bytes", size), ErrDecompression)
	case err != io.EOF:
		return nil, errors.Mark(errors.Wrap(err, "inflating zlib data"), ErrDecompression)
	}
	return out, nil
}

func (in *Inflater) reset(data []byte) error {
	in.src.Reset(data)
	if in.zr == nil {
		zr, err := zlib.NewReader(&in.src)
		if err != nil {
			return err
		}
		in.zr = zr
		return nil
	}
	return in.zr.(zlib.Resetter).Reset(&in.src, nil)
}

// Inflate decompresses blob into a freshly allocated buffer.
func Inflate(blob *OSMPBF.Blob) ([]byte, error) {
	var in Inflater
	return in.Inflate(blob)
}
