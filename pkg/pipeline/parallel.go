package pipeline

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/val3rkq/amenityscan/pkg/pbfstream"
)

type job struct {
	blob *pbfstream.RawBlob
	res  chan<- blockResult
}

// runParallel frames blobs on one goroutine, processes them on cfg.Workers
// goroutines and emits results in framing order. ordered carries one result
// channel per blob in the order the blobs were framed.
func (s *scan) runParallel(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job, s.cfg.Workers)
	ordered := make(chan chan blockResult, 2*s.cfg.Workers)

	g.Go(func() error {
		defer close(jobs)
		defer close(ordered)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := s.framer.Next()
			if err == io.EOF {
				return nil
			}
			res := make(chan blockResult, 1)
			select {
			case ordered <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
			if err != nil {
				res <- blockResult{frameErr: err}
				return nil
			}
			select {
			case jobs <- job{blob: b, res: res}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			var in pbfstream.Inflater
			for j := range jobs {
				j.res <- processBlob(&in, j.blob)
			}
			return nil
		})
	}

	g.Go(func() error {
		for res := range ordered {
			select {
			case r := <-res:
				if err := s.emit(r); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}
