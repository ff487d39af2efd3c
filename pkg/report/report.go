// Package report writes scan results.
package report

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/val3rkq/amenityscan/pkg/amenity"
)

// Format selects the output layout.
type Format string

const (
	// FormatText writes "<id> <name>" lines preceded by the required
	// features of the file.
	FormatText Format = "text"
	// FormatCSV writes an "id,name" header and one record per match.
	FormatCSV Format = "csv"
)

// Options configures a Reporter.
type Options struct {
	Format Format
	// Encoding is a WHATWG encoding label such as "windows-1251". Empty
	// means UTF-8. Characters the encoding cannot represent are replaced.
	Encoding string
}

// Validate checks the options.
func (o Options) Validate() error {
	switch o.Format {
	case FormatText, FormatCSV, "":
	default:
		return errors.Newf("unknown output format %q", o.Format)
	}
	if o.Encoding != "" {
		if _, err := htmlindex.Get(o.Encoding); err != nil {
			return errors.Wrapf(err, "output encoding %q", o.Encoding)
		}
	}
	return nil
}

// Reporter writes matches to a stream. It is not safe for concurrent use.
type Reporter struct {
	format Format
	closer io.Closer
	bw     *bufio.Writer
	cw     *csv.Writer
	count  int
}

// New returns a Reporter writing to w.
func New(w io.Writer, opts Options) (*Reporter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r := &Reporter{format: opts.Format}
	if r.format == "" {
		r.format = FormatText
	}

	if opts.Encoding != "" {
		enc, _ := htmlindex.Get(opts.Encoding)
		if name, _ := htmlindex.Name(enc); name != "utf-8" {
			tw := transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder()))
			r.closer = tw
			w = tw
		}
	}
	r.bw = bufio.NewWriter(w)
	if r.format == FormatCSV {
		r.cw = csv.NewWriter(r.bw)
		if err := r.cw.Write([]string{"id", "name"}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Count returns the number of matches reported.
func (r *Reporter) Count() int { return r.count }

// Features writes the header block's required features in declared order.
// CSV output carries no features.
func (r *Reporter) Features(features []string) error {
	if r.format != FormatText {
		return nil
	}
	if _, err := r.bw.WriteString("Required features:\n"); err != nil {
		return err
	}
	for _, f := range features {
		if _, err := r.bw.WriteString("\t" + f + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Report writes one match.
func (r *Reporter) Report(m amenity.Match) error {
	r.count++
	id := strconv.FormatInt(m.ID, 10)
	if r.cw != nil {
		return r.cw.Write([]string{id, m.Name})
	}
	_, err := r.bw.WriteString(id + " " + m.Name + "\n")
	return err
}

// Flush writes out anything buffered. The Reporter must not be used after
// Flush when an output encoding is configured.
func (r *Reporter) Flush() error {
	if r.cw != nil {
		r.cw.Flush()
		if err := r.cw.Error(); err != nil {
			return err
		}
	}
	if err := r.bw.Flush(); err != nil {
		return err
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
