// Package viewgraph stores pairwise two-view geometry between views as an
// undirected graph. Edges are keyed by the canonical (low, high) view id
// pair and always describe the transform from the lower id to the higher.
package viewgraph

import (
	"cmp"
	"maps"
	"slices"

	"github.com/banshee-data/sfm/internal/disjointset"
	"github.com/banshee-data/sfm/internal/sfm"
)

// ViewGraph is an undirected graph of views. It is not safe for concurrent
// use.
type ViewGraph struct {
	edges     map[sfm.ViewIDPair]sfm.TwoViewInfo
	neighbors map[sfm.ViewID]map[sfm.ViewID]struct{}
}

// New returns an empty view graph.
func New() *ViewGraph {
	return &ViewGraph{
		edges:     make(map[sfm.ViewIDPair]sfm.TwoViewInfo),
		neighbors: make(map[sfm.ViewID]map[sfm.ViewID]struct{}),
	}
}

// AddEdge inserts or replaces the edge between a and b. When a > b the info
// is swapped so the stored edge describes b→a relative to the lower id.
// Self-loops are ignored and reported as false.
func (g *ViewGraph) AddEdge(a, b sfm.ViewID, info sfm.TwoViewInfo) bool {
	if a == b {
		return false
	}
	if a > b {
		a, b = b, a
		info = info.Swap()
	}
	g.edges[sfm.ViewIDPair{First: a, Second: b}] = info
	g.link(a, b)
	g.link(b, a)
	return true
}

func (g *ViewGraph) link(from, to sfm.ViewID) {
	n, ok := g.neighbors[from]
	if !ok {
		n = make(map[sfm.ViewID]struct{})
		g.neighbors[from] = n
	}
	n[to] = struct{}{}
}

// RemoveEdge deletes the edge between a and b. Both views stay in the
// graph even when left without edges.
func (g *ViewGraph) RemoveEdge(a, b sfm.ViewID) bool {
	key := sfm.NewViewIDPair(a, b)
	if _, ok := g.edges[key]; !ok {
		return false
	}
	delete(g.edges, key)
	g.unlink(a, b)
	g.unlink(b, a)
	return true
}

func (g *ViewGraph) unlink(from, to sfm.ViewID) {
	delete(g.neighbors[from], to)
}

// RemoveView drops id and every edge touching it. Its neighbours remain,
// possibly isolated.
func (g *ViewGraph) RemoveView(id sfm.ViewID) bool {
	n, ok := g.neighbors[id]
	if !ok {
		return false
	}
	for other := range n {
		delete(g.edges, sfm.NewViewIDPair(id, other))
		g.unlink(other, id)
	}
	delete(g.neighbors, id)
	return true
}

// HasView reports whether id is a vertex of the graph.
func (g *ViewGraph) HasView(id sfm.ViewID) bool {
	_, ok := g.neighbors[id]
	return ok
}

// HasEdge reports whether a and b are connected.
func (g *ViewGraph) HasEdge(a, b sfm.ViewID) bool {
	_, ok := g.edges[sfm.NewViewIDPair(a, b)]
	return ok
}

// Edge returns the info stored for the pair, oriented from the lower id to
// the higher id regardless of argument order.
func (g *ViewGraph) Edge(a, b sfm.ViewID) (sfm.TwoViewInfo, bool) {
	info, ok := g.edges[sfm.NewViewIDPair(a, b)]
	return info, ok
}

// OrientedEdge returns the info oriented from a to b.
func (g *ViewGraph) OrientedEdge(a, b sfm.ViewID) (sfm.TwoViewInfo, bool) {
	info, ok := g.Edge(a, b)
	if ok && a > b {
		info = info.Swap()
	}
	return info, ok
}

// Neighbors returns the views sharing an edge with id, ascending.
func (g *ViewGraph) Neighbors(id sfm.ViewID) []sfm.ViewID {
	return slices.Sorted(maps.Keys(g.neighbors[id]))
}

// ViewIDs returns all views, ascending.
func (g *ViewGraph) ViewIDs() []sfm.ViewID {
	return slices.Sorted(maps.Keys(g.neighbors))
}

// EdgePairs returns all edge keys in ascending order.
func (g *ViewGraph) EdgePairs() []sfm.ViewIDPair {
	pairs := slices.Collect(maps.Keys(g.edges))
	slices.SortFunc(pairs, comparePairs)
	return pairs
}

func comparePairs(a, b sfm.ViewIDPair) int {
	if c := cmp.Compare(a.First, b.First); c != 0 {
		return c
	}
	return cmp.Compare(a.Second, b.Second)
}

// NumViews returns the number of views, including isolated ones.
func (g *ViewGraph) NumViews() int { return len(g.neighbors) }

// NumEdges returns the number of edges.
func (g *ViewGraph) NumEdges() int { return len(g.edges) }

// ConnectedComponents returns the view sets of each connected component,
// each sorted ascending and ordered by their smallest view id.
func (g *ViewGraph) ConnectedComponents() [][]sfm.ViewID {
	ids := g.ViewIDs()
	index := make(map[sfm.ViewID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	ds := disjointset.New(len(ids))
	for key := range g.edges {
		ds.Union(index[key.First], index[key.Second])
	}
	comps := ds.Components()
	out := make([][]sfm.ViewID, len(comps))
	for i, c := range comps {
		out[i] = make([]sfm.ViewID, len(c))
		for j, idx := range c {
			out[i][j] = ids[idx]
		}
	}
	return out
}

// LargestConnectedComponent returns the views of the largest component.
// Ties go to the component with the smallest view id.
func (g *ViewGraph) LargestConnectedComponent() []sfm.ViewID {
	var best []sfm.ViewID
	for _, c := range g.ConnectedComponents() {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}
