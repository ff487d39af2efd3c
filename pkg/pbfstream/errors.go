package pbfstream

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Returned errors wrap or are marked with one of these; test
// with errors.Is.
var (
	// ErrFraming means the stream ended inside a length prefix, header or
	// payload, or a declared size is out of bounds. The stream cannot be
	// resynchronised.
	ErrFraming = errors.New("pbfstream: framing error")
	// ErrHeaderDecode means the blob header bytes are not a BlobHeader.
	ErrHeaderDecode = errors.New("pbfstream: blob header decode error")
	// ErrSchemaDecode means a blob or block does not deserialize.
	ErrSchemaDecode = errors.New("pbfstream: schema decode error")
	// ErrDecompression means the compressed payload is corrupt or does not
	// inflate to its declared size.
	ErrDecompression = errors.New("pbfstream: decompression error")
	// ErrShortOutput means the payload inflated to fewer bytes than declared.
	// It is also marked ErrDecompression.
	ErrShortOutput = errors.New("pbfstream: short decompressed output")
	// ErrUnsupportedCompression means the blob carries neither raw nor zlib
	// data. It is also marked ErrDecompression.
	ErrUnsupportedCompression = errors.New("pbfstream: unsupported compression")
)

// Reason maps a stream-level error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrFraming):
		return "framing"
	case errors.Is(err, ErrHeaderDecode):
		return "header_decode"
	case errors.Is(err, ErrSchemaDecode):
		return "schema_decode"
	case errors.Is(err, ErrShortOutput):
		return "short_output"
	case errors.Is(err, ErrUnsupportedCompression):
		return "unsupported_compression"
	case errors.Is(err, ErrDecompression):
		return "decompression"
	default:
		return "other"
	}
}
