// Package disjointset implements union-find over dense integer ids with path
// compression and union by rank.
//
// Ids are allocated by Add in insertion order, so callers that key the set
// by an arbitrary comparable type keep their own key→id map and get a
// deterministic component order for free.
package disjointset

// Set is a disjoint-set forest. The zero value is an empty set ready to use.
type Set struct {
	parent []int
	rank   []uint8
	size   []int
}

// New returns a set pre-sized for n elements, each in its own component.
func New(n int) *Set {
	s := &Set{
		parent: make([]int, 0, n),
		rank:   make([]uint8, 0, n),
		size:   make([]int, 0, n),
	}
	for i := 0; i < n; i++ {
		s.Add()
	}
	return s
}

// Add appends a new singleton element and returns its id.
func (s *Set) Add() int {
	id := len(s.parent)
	s.parent = append(s.parent, id)
	s.rank = append(s.rank, 0)
	s.size = append(s.size, 1)
	return id
}

// Len returns the number of elements.
func (s *Set) Len() int { return len(s.parent) }

// Find returns the representative of x's component.
func (s *Set) Find(x int) int {
	root := x
	for s.parent[root] != root {
		root = s.parent[root]
	}
	// Path compression: point every node on the walk straight at the root.
	for s.parent[x] != root {
		next := s.parent[x]
		s.parent[x] = root
		x = next
	}
	return root
}

// Union merges the components of a and b. It reports whether a merge
// happened (false when they were already connected).
func (s *Set) Union(a, b int) bool {
	ra, rb := s.Find(a), s.Find(b)
	if ra == rb {
		return false
	}
	if s.rank[ra] < s.rank[rb] {
		ra, rb = rb, ra
	}
	s.parent[rb] = ra
	s.size[ra] += s.size[rb]
	if s.rank[ra] == s.rank[rb] {
		s.rank[ra]++
	}
	return true
}

// Connected reports whether a and b are in the same component.
func (s *Set) Connected(a, b int) bool {
	return s.Find(a) == s.Find(b)
}

// ComponentSize returns the number of elements in x's component.
func (s *Set) ComponentSize(x int) int {
	return s.size[s.Find(x)]
}

// Components groups element ids by component. Components are ordered by
// their smallest member id and members are listed in ascending order.
func (s *Set) Components() [][]int {
	index := make(map[int]int)
	var out [][]int
	for id := range s.parent {
		root := s.Find(id)
		ci, ok := index[root]
		if !ok {
			ci = len(out)
			index[root] = ci
			out = append(out, nil)
		}
		out[ci] = append(out[ci], id)
	}
	return out
}
