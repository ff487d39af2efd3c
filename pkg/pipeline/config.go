package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/val3rkq/amenityscan/pkg/metrics"
)

// Config controls a scan.
type Config struct {
	// Workers is the number of goroutines inflating and scanning blocks.
	// 0 or 1 scans sequentially. Output order never depends on Workers.
	Workers int
	// Strict makes Run fail with ErrIncomplete when any blob, entity or
	// dense section had to be skipped.
	Strict bool

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.Newf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return c
}
