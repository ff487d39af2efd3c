// Command amenityscan lists the named pubs, bars and restaurants of an OSM
// PBF file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/val3rkq/amenityscan/pkg/metrics"
	"github.com/val3rkq/amenityscan/pkg/pbfstats"
	"github.com/val3rkq/amenityscan/pkg/pipeline"
	"github.com/val3rkq/amenityscan/pkg/report"
)

type options struct {
	workers     int
	format      string
	encoding    string
	metricsFile string
	logLevel    string
	strict      bool
}

func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	var allow level.Option
	switch lvl {
	case "debug":
		allow = level.AllowDebug()
	case "info":
		allow = level.AllowInfo()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		return nil, errors.Newf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, allow)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	// caller goes last so its depth points at the call site, not the filter.
	logger = log.With(logger, "caller", log.DefaultCaller)
	return logger, nil
}

func pbfArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("please specify pbf file")
	}
	return nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		opts       options
		statsProcs int
	)

	rootCmd := &cobra.Command{
		Use:           "amenityscan <file.osm.pbf>",
		Short:         "list named pubs, bars and restaurants in an OSM PBF file",
		Args:          pbfArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scan(cmd.Context(), args[0], opts, stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.Flags().IntVarP(
		&opts.workers, "workers", "w", 1, "number of goroutines decoding blocks")
	rootCmd.Flags().StringVar(
		&opts.format, "format", string(report.FormatText), "output format: text or csv")
	rootCmd.Flags().StringVar(
		&opts.encoding, "encoding", "", "output character encoding, e.g. windows-1251 (default utf-8)")
	rootCmd.Flags().StringVar(
		&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	rootCmd.Flags().StringVar(
		&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.Flags().BoolVar(
		&opts.strict, "strict", false, "fail when any blob or entity had to be skipped")

	statsCmd := &cobra.Command{
		Use:           "stats <file.osm.pbf>",
		Short:         "print entity counts of an OSM PBF file",
		Args:          pbfArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stats(args[0], statsProcs, stdout)
		},
	}
	statsCmd.Flags().IntVarP(
		&statsProcs, "workers", "w", 4, "number of goroutines decoding blocks")
	rootCmd.AddCommand(statsCmd)

	return rootCmd
}

func scan(ctx context.Context, path string, opts options, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, opts.logLevel)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "Can't open %s", path)
	}
	defer f.Close()

	rep, err := report.New(stdout, report.Options{
		Format:   report.Format(opts.format),
		Encoding: opts.encoding,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cfg := pipeline.Config{
		Workers: opts.workers,
		Strict:  opts.strict,
		Logger:  log.With(logger, "file", path),
		Metrics: metrics.New(reg),
	}
	_, runErr := pipeline.Run(ctx, f, rep, cfg)
	if err := rep.Flush(); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "writing report")
	}
	level.Info(logger).Log("msg", "report written", "file", path, "format", opts.format, "reported", rep.Count())
	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			level.Error(logger).Log("msg", "failed to write metrics", "path", opts.metricsFile, "err", err)
		}
	}
	if errors.Is(runErr, pipeline.ErrBadHeaderBlock) {
		return errors.Wrap(runErr, "Unable to read header block")
	}
	return runErr
}

func stats(path string, procs int, stdout io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "Can't open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	s, err := pbfstats.Count(f, procs)
	if err != nil {
		return err
	}
	return pbfstats.Write(stdout, info.Name(), info.Size(), s)
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	if args == nil {
		// cobra falls back to os.Args on nil.
		args = []string{}
	}
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
