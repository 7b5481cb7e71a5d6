package flight

// RoutePair is the undirected crawl key over two airports. Origin and
// Destination keep the direction of the first route that produced the
// pair; the timetable request covers both directions regardless.
type RoutePair struct {
	Origin      string
	Destination string
}

// Key returns the canonical (low, high) ordering of the pair's codes.
func (p RoutePair) Key() (string, string) {
	if p.Destination < p.Origin {
		return p.Destination, p.Origin
	}
	return p.Origin, p.Destination
}

// PairRoutes collapses a directed route set into deduplicated undirected
// pairs. A→B and B→A fold into one pair, halving the timetable calls
// needed to cover the set; each directed route maps to exactly one pair.
func PairRoutes(routes []Route) []RoutePair {
	seen := make(map[[2]string]struct{}, len(routes))
	pairs := make([]RoutePair, 0, (len(routes)+1)/2)
	for _, r := range routes {
		p := RoutePair{Origin: r.Origin, Destination: r.Destination}
		lo, hi := p.Key()
		k := [2]string{lo, hi}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		pairs = append(pairs, p)
	}
	return pairs
}
