package amenity

import (
	"github.com/cockroachdb/errors"
)

// ScanEntity tests one explicit-list entity. It returns ok=false when the
// entity does not match. An error means the entity was abandoned.
func ScanEntity(pool StringPool, kind Kind, e Entity) (m Match, ok bool, err error) {
	keys, vals := e.GetKeys(), e.GetVals()
	var c candidate
	for i, k := range keys {
		if i >= len(vals) {
			return Match{}, false, errors.Wrapf(ErrTruncatedPair,
				"%s %d: %d keys, %d vals", kind, e.GetId(), len(keys), len(vals))
		}
		key, err := pool.At(k)
		if err != nil {
			return Match{}, false, errors.Wrapf(err, "%s %d key #%d", kind, e.GetId(), i)
		}
		val, err := pool.At(vals[i])
		if err != nil {
			return Match{}, false, errors.Wrapf(err, "%s %d value #%d", kind, e.GetId(), i)
		}
		c.observe(key, val)
	}
	if !c.matched() {
		return Match{}, false, nil
	}
	return Match{Kind: kind, ID: e.GetId(), Name: c.name}, true, nil
}

// DenseIDs reconstructs absolute identifiers from a delta-coded id column.
func DenseIDs(deltas []int64) []int64 {
	ids := make([]int64, len(deltas))
	var sum int64
	for i, d := range deltas {
		sum += d
		ids[i] = sum
	}
	return ids
}

type walkState int

const (
	awaitPair walkState = iota
	sawKey
)

// WalkDense tests every node of a dense section. Matches go to onMatch in id
// order. Errors confined to one node go to onNodeErr and the walk continues
// with the next node; the returned error means the rest of the section was
// abandoned.
//
// A node whose key or value fails to resolve is still consumed pair by pair
// so that an empty-string value index is never mistaken for the sentinel.
func WalkDense(
	pool StringPool, d DenseSection, onMatch func(Match), onNodeErr func(error),
) error {
	deltas, kv := d.GetId(), d.GetKeysVals()
	if len(kv) == 0 {
		// No node in the section has tags.
		return nil
	}
	if len(deltas) == 0 {
		return errors.Wrap(ErrDenseMisaligned, "dense section has tags but no ids")
	}

	ids := DenseIDs(deltas)
	var (
		state  = awaitPair
		node   = 0
		id     = ids[0]
		bad    bool
		key    string
		keyIdx int32
		pairs  int
		c      candidate
	)

	closeNode := func() {
		if !bad && c.matched() {
			onMatch(Match{Kind: KindDense, ID: id, Name: c.name})
		}
		c.reset()
		bad = false
		pairs = 0
		node++
		if node < len(ids) {
			id = ids[node]
		}
	}

	for pos, v := range kv {
		if node >= len(ids) {
			return errors.Wrapf(ErrDenseMisaligned,
				"dense section: tags continue at position %d after %d ids", pos, len(ids))
		}
		switch state {
		case awaitPair:
			if v == 0 {
				closeNode()
				continue
			}
			keyIdx = v
			state = sawKey
			if bad {
				continue
			}
			s, err := resolve(pool, v)
			if err != nil {
				onNodeErr(errors.Wrapf(err, "dense node %d key at position %d", id, pos))
				bad = true
				continue
			}
			key = s
		case sawKey:
			state = awaitPair
			pairs++
			if bad {
				continue
			}
			s, err := resolve(pool, v)
			if err != nil {
				onNodeErr(errors.Wrapf(err, "dense node %d value for key %d at position %d", id, keyIdx, pos))
				bad = true
				continue
			}
			c.observe(key, s)
		}
	}

	if state == sawKey {
		return errors.Wrapf(ErrTruncatedPair, "dense node %d: key %d at end of section", id, keyIdx)
	}
	if pairs > 0 {
		// Last node has pairs but no closing sentinel.
		closeNode()
	}
	return nil
}

func resolve(pool StringPool, v int32) (string, error) {
	if v < 0 {
		return "", errors.Wrapf(ErrStringIndexOutOfRange, "negative index %d", v)
	}
	return pool.At(uint32(v))
}
