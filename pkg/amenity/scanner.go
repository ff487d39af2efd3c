package amenity

// Scanner fans a block out to the explicit-list scanner and the dense walker.
type Scanner struct {
	// OnMatch receives matches in block order.
	OnMatch func(Match)
	// OnError receives errors that abandoned one entity, one dense node or
	// the rest of one dense section. May be nil.
	OnError func(error)
}

// explicitKinds is the order entity lists are visited within a group.
var explicitKinds = [...]Kind{KindWay, KindNode}

// ScanBlock visits the groups of b in order. Within a group, ways come first,
// then explicit nodes, then the dense section, then relations.
func (s *Scanner) ScanBlock(b Block) {
	pool := b.Strings()
	for g := 0; g < b.NumGroups(); g++ {
		s.ScanGroup(pool, b.Group(g))
	}
}

// ScanGroup visits one group using pool to resolve strings.
func (s *Scanner) ScanGroup(pool StringPool, g Group) {
	for _, k := range explicitKinds {
		s.scanList(pool, g, k)
	}
	if d := g.Dense(); d != nil {
		if err := WalkDense(pool, d, s.OnMatch, s.onError); err != nil {
			s.onError(err)
		}
	}
	s.scanList(pool, g, KindRelation)
}

func (s *Scanner) scanList(pool StringPool, g Group, k Kind) {
	n := g.Count(k)
	for i := 0; i < n; i++ {
		m, ok, err := ScanEntity(pool, k, g.Entity(k, i))
		if err != nil {
			s.onError(err)
			continue
		}
		if ok {
			s.OnMatch(m)
		}
	}
}

func (s *Scanner) onError(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}
