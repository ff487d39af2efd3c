// Package pipeline drives a single pass over an OSM PBF stream: the header
// blob first, then every data blob, reporting matching amenities in stream
// order.
package pipeline

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/val3rkq/amenityscan/pkg/amenity"
	"github.com/val3rkq/amenityscan/pkg/pbfstream"
)

var (
	// ErrBadHeaderBlock marks a failure to read the mandatory first blob.
	// Nothing has been reported when it is returned.
	ErrBadHeaderBlock = errors.New("unable to read header block")
	// ErrIncomplete is returned in strict mode when the pass finished but
	// skipped some data.
	ErrIncomplete = errors.New("scan incomplete")
)

// Sink receives the results of a scan. *report.Reporter implements it.
type Sink interface {
	Features(features []string) error
	Report(m amenity.Match) error
}

// Summary describes a finished pass.
type Summary struct {
	// Blobs counts framed blobs including the header blob.
	Blobs        int
	SkippedBlobs int
	Groups       int
	Matches      int
	EntityErrors int
	// Truncated is set when a framing error ended the pass early.
	Truncated bool
}

func (s Summary) complete() bool {
	return s.SkippedBlobs == 0 && s.EntityErrors == 0 && !s.Truncated
}

// Run scans r to the end. Errors below the blob level are logged and
// counted; only a bad header block, a sink failure or ctx cancellation stop
// the pass with an error.
func Run(ctx context.Context, r io.Reader, sink Sink, cfg Config) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	s := &scan{
		cfg:    cfg.withDefaults(),
		sink:   sink,
		framer: pbfstream.NewFramer(r),
	}
	s.logger = s.cfg.Logger

	if err := s.readHeader(); err != nil {
		return s.sum, errors.Mark(err, ErrBadHeaderBlock)
	}

	var err error
	if s.cfg.Workers <= 1 {
		err = s.runSequential(ctx)
	} else {
		err = s.runParallel(ctx)
	}
	s.cfg.Metrics.BytesRead.Add(float64(s.framer.Offset()))
	if err != nil {
		return s.sum, err
	}

	level.Info(s.logger).Log(
		"msg", "scan finished",
		"blobs", s.sum.Blobs,
		"skipped_blobs", s.sum.SkippedBlobs,
		"matches", s.sum.Matches,
		"entity_errors", s.sum.EntityErrors,
		"bytes", s.framer.Offset(),
	)
	if s.cfg.Strict && !s.sum.complete() {
		return s.sum, errors.Mark(errors.Newf(
			"skipped %d blobs and %d entities, truncated=%t",
			s.sum.SkippedBlobs, s.sum.EntityErrors, s.sum.Truncated), ErrIncomplete)
	}
	return s.sum, nil
}

type scan struct {
	cfg    Config
	logger log.Logger
	sink   Sink
	framer *pbfstream.Framer
	sum    Summary
}

func (s *scan) readHeader() error {
	b, err := s.framer.Next()
	if err == io.EOF {
		return errors.New("stream is empty")
	}
	if err != nil {
		return err
	}
	s.sum.Blobs++
	s.cfg.Metrics.Blobs.WithLabelValues(b.Type()).Inc()

	if b.Type() != pbfstream.TypeHeader {
		return errors.Newf("first blob has type %q, want %q", b.Type(), pbfstream.TypeHeader)
	}
	blob, err := pbfstream.DecodeBlob(b.Payload)
	if err != nil {
		return err
	}
	data, err := pbfstream.Inflate(blob)
	if err != nil {
		return err
	}
	hb, err := pbfstream.DecodeHeaderBlock(data)
	if err != nil {
		return err
	}

	// Features are informational; none is rejected.
	level.Info(s.logger).Log(
		"msg", "read header block",
		"required_features", len(hb.GetRequiredFeatures()),
		"writingprogram", hb.GetWritingprogram(),
	)
	return s.sink.Features(hb.GetRequiredFeatures())
}

// blockResult is the outcome of one data blob, produced by processBlob and
// consumed in stream order by emit.
type blockResult struct {
	blob *pbfstream.RawBlob
	// frameErr ends the stream; blob is nil.
	frameErr   error
	skipped    bool
	err        error
	groups     int
	matches    []amenity.Match
	entityErrs []error
}

// processBlob inflates, decodes and scans one blob. It touches no shared
// state and may run on any goroutine with its own Inflater.
func processBlob(in *pbfstream.Inflater, b *pbfstream.RawBlob) blockResult {
	res := blockResult{blob: b}
	if b.Type() != pbfstream.TypeData {
		res.skipped = true
		return res
	}

	blob, err := pbfstream.DecodeBlob(b.Payload)
	if err != nil {
		res.err = err
		return res
	}
	data, err := in.Inflate(blob)
	if err != nil {
		res.err = err
		return res
	}
	block, err := pbfstream.DecodePrimitiveBlock(data)
	if err != nil {
		res.err = err
		return res
	}

	res.groups = block.NumGroups()
	sc := amenity.Scanner{
		OnMatch: func(m amenity.Match) { res.matches = append(res.matches, m) },
		OnError: func(err error) { res.entityErrs = append(res.entityErrs, err) },
	}
	sc.ScanBlock(block)
	return res
}

// emit applies one result: logging, metrics and the sink. Only sink errors
// are returned.
func (s *scan) emit(res blockResult) error {
	m := s.cfg.Metrics
	if res.frameErr != nil {
		reason := pbfstream.Reason(res.frameErr)
		m.BlobErrors.WithLabelValues(reason).Inc()
		s.sum.Truncated = true
		level.Error(s.logger).Log("msg", "stream ended early", "reason", reason, "err", res.frameErr)
		return nil
	}

	b := res.blob
	s.sum.Blobs++
	m.Blobs.WithLabelValues(b.Type()).Inc()

	switch {
	case res.skipped:
		s.sum.SkippedBlobs++
		level.Warn(s.logger).Log("msg", "skipping non-data blob", "blob", b.Seq, "offset", b.Offset, "type", b.Type())
		return nil
	case res.err != nil:
		reason := pbfstream.Reason(res.err)
		s.sum.SkippedBlobs++
		m.BlobErrors.WithLabelValues(reason).Inc()
		level.Warn(s.logger).Log("msg", "skipping blob", "blob", b.Seq, "offset", b.Offset, "reason", reason, "err", res.err)
		return nil
	}

	s.sum.Groups += res.groups
	m.Groups.Add(float64(res.groups))
	for _, err := range res.entityErrs {
		reason := amenity.Reason(err)
		s.sum.EntityErrors++
		m.EntityErrors.WithLabelValues(reason).Inc()
		level.Warn(s.logger).Log("msg", "skipping malformed entity", "blob", b.Seq, "offset", b.Offset, "reason", reason, "err", err)
	}
	for _, match := range res.matches {
		if err := s.sink.Report(match); err != nil {
			return errors.Wrap(err, "writing report")
		}
		s.sum.Matches++
		m.Matches.WithLabelValues(match.Kind.String()).Inc()
	}
	return nil
}

func (s *scan) runSequential(ctx context.Context) error {
	var in pbfstream.Inflater
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := s.framer.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return s.emit(blockResult{frameErr: err})
		}
		if err := s.emit(processBlob(&in, b)); err != nil {
			return err
		}
	}
}
