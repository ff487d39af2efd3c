package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/qedus/osmpbf/OSMPBF"
	"github.com/stretchr/testify/require"

	"github.com/val3rkq/amenityscan/pkg/pbfstream/pbftest"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.osm.pbf")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func sampleFile(t *testing.T) string {
	w := &pbftest.Writer{}
	w.Header()
	tbl := pbftest.NewTable()
	w.Primitive(tbl, &OSMPBF.PrimitiveGroup{
		Dense: tbl.Dense(
			pbftest.DenseNode{ID: 100, Tags: []string{"amenity", "pub", "name", "Joe's"}},
			pbftest.DenseNode{ID: 105},
		),
		Ways: []*OSMPBF.Way{tbl.Way(7, "amenity", "bar", "name", "The Crown")},
	})
	return writeFile(t, w.Bytes())
}

func TestScanCommand(t *testing.T) {
	path := sampleFile(t)
	metricsPath := filepath.Join(t.TempDir(), "scan.prom")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-level", "error", "--metrics-file", metricsPath, path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, "Required features:\n\tOsmSchema-V0.6\n\tDenseNodes\n7 The Crown\n100 Joe's\n", stdout.String())
	require.Empty(t, stderr.String())

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(prom), `amenityscan_matches_total{kind="dense"} 1`)
}

func TestScanCommandCSV(t *testing.T) {
	path := sampleFile(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"--format", "csv", "--workers", "2", "--log-level", "warn", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, "id,name\n7,The Crown\n100,Joe's\n", stdout.String())
}

func TestScanCommandErrors(t *testing.T) {
	notHeader := func() string {
		w := &pbftest.Writer{}
		tbl := pbftest.NewTable()
		w.Primitive(tbl, &OSMPBF.PrimitiveGroup{Ways: []*OSMPBF.Way{tbl.Way(1, "amenity", "pub", "name", "x")}})
		return writeFile(t, w.Bytes())
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no args", args: nil, want: "please specify pbf file"},
		{name: "two args", args: []string{"a", "b"}, want: "please specify pbf file"},
		{name: "missing file", args: []string{filepath.Join(t.TempDir(), "nope.pbf")}, want: "Can't open"},
		{name: "bad header", args: []string{"--log-level", "error", notHeader()}, want: "Unable to read header block"},
		{name: "bad log level", args: []string{"--log-level", "loud", "x"}, want: "unknown log level"},
		{name: "bad format", args: []string{"--format", "xml", sampleFile(t)}, want: "unknown output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			require.Equal(t, 1, code)
			require.Contains(t, stderr.String(), tt.want)
			require.Empty(t, stdout.String())
		})
	}
}

func TestStatsCommand(t *testing.T) {
	path := sampleFile(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"stats", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	require.True(t, strings.HasPrefix(out, "=== test.osm.pbf ===\n"), out)
	require.Contains(t, out, "Nodes: 2\n")
	require.Contains(t, out, "Ways: 1\n")
	require.Contains(t, out, "Amenities: 2\n")
}

func TestLoggerCallerIsCallSite(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	require.NoError(t, err)

	level.Warn(logger).Log("msg", "x")
	level.Info(logger).Log("msg", "filtered")

	out := buf.String()
	require.Contains(t, out, "caller=main_test.go:")
	require.NotContains(t, out, "level.go")
	require.Contains(t, out, "level=warn")
	require.NotContains(t, out, "filtered")
}

func TestScanCommandLogsReportCount(t *testing.T) {
	path := sampleFile(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stderr.String(), `msg="report written"`)
	require.Contains(t, stderr.String(), "reported=2")
}
