// Package pbfstats counts the entities of an OSM PBF file with the
// github.com/qedus/osmpbf decoder.
package pbfstats

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/qedus/osmpbf"

	"github.com/val3rkq/amenityscan/pkg/amenity"
)

// Stats holds entity counts of one file.
type Stats struct {
	Nodes     int
	Ways      int
	Relations int
	// Amenities counts entities that would be reported by a scan.
	Amenities int
}

// Total returns the number of entities.
func (s Stats) Total() int { return s.Nodes + s.Ways + s.Relations }

// Count decodes r to the end using procs decoding goroutines.
func Count(r io.Reader, procs int) (Stats, error) {
	decoder := osmpbf.NewDecoder(r)
	decoder.SetBufferSize(osmpbf.MaxBlobSize)
	if err := decoder.Start(procs); err != nil {
		return Stats{}, errors.Wrap(err, "starting decoder")
	}

	var s Stats
	for {
		v, err := decoder.Decode()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return s, errors.Wrap(err, "decoding")
		}

		var tags map[string]string
		switch v := v.(type) {
		case *osmpbf.Node:
			s.Nodes++
			tags = v.Tags
		case *osmpbf.Way:
			s.Ways++
			tags = v.Tags
		case *osmpbf.Relation:
			s.Relations++
			tags = v.Tags
		default:
			return s, errors.AssertionFailedf("unknown type %T", v)
		}
		if isAmenity(tags) {
			s.Amenities++
		}
	}
}

func isAmenity(tags map[string]string) bool {
	if !amenity.IsTargetAmenity(tags[amenity.KeyAmenity]) {
		return false
	}
	_, ok := tags[amenity.KeyName]
	return ok
}

// Write prints s the way the stats command shows it.
func Write(w io.Writer, name string, size int64, s Stats) error {
	_, err := fmt.Fprintf(w,
		"=== %s ===\n"+
			"File size: %.2f MB\n"+
			"Nodes: %d\n"+
			"Ways: %d\n"+
			"Relations: %d\n"+
			"Total: %d\n"+
			"Amenities: %d\n",
		name, float64(size)/(1024*1024), s.Nodes, s.Ways, s.Relations, s.Total(), s.Amenities)
	return err
}
