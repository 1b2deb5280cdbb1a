package environment

import (
	"encoding/json"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Graph is the navigation graph of a single scan. Edges are weighted
// by the euclidean distance between viewpoint positions.
type Graph struct {
	scan string
	ids  []string
	node map[string]int64
	pos  map[string][3]float64
	adj  map[string][]string
	g    *simple.WeightedUndirectedGraph

	once     sync.Once
	shortest path.AllShortest
}

// NewGraph returns an empty navigation graph for a scan
func NewGraph(scan string) *Graph {
	return &Graph{
		scan: scan,
		node: make(map[string]int64),
		pos:  make(map[string][3]float64),
		adj:  make(map[string][]string),
		g:    simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
	}
}

// Scan returns the scan id of the graph
func (g *Graph) Scan() string {
	return g.scan
}

// AddViewpoint adds a viewpoint at position (x, y, z)
func (g *Graph) AddViewpoint(id string, x, y, z float64) {
	if _, ok := g.node[id]; ok {
		g.pos[id] = [3]float64{x, y, z}
		return
	}
	n := int64(len(g.ids))
	g.ids = append(g.ids, id)
	g.node[id] = n
	g.pos[id] = [3]float64{x, y, z}
	g.g.AddNode(simple.Node(n))
}

// Connect adds an undirected edge between two viewpoints
func (g *Graph) Connect(a, b string) error {
	u, ok := g.node[a]
	if !ok {
		return errors.Wrapf(ErrUnknownViewpoint, "connect: %v", a)
	}
	v, ok := g.node[b]
	if !ok {
		return errors.Wrapf(ErrUnknownViewpoint, "connect: %v", b)
	}
	if u == v || g.g.HasEdgeBetween(u, v) {
		return nil
	}

	w := g.Euclidean(a, b)
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(u), simple.Node(v),
		w))
	g.adj[a] = insertSorted(g.adj[a], b)
	g.adj[b] = insertSorted(g.adj[b], a)
	return nil
}

func insertSorted(s []string, id string) []string {
	i := sort.SearchStrings(s, id)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}

// Has returns whether the graph contains a viewpoint
func (g *Graph) Has(id string) bool {
	_, ok := g.node[id]
	return ok
}

// Viewpoints returns the ids of all viewpoints in insertion order
func (g *Graph) Viewpoints() []string {
	return append([]string(nil), g.ids...)
}

// Position returns the position of a viewpoint
func (g *Graph) Position(id string) ([3]float64, bool) {
	p, ok := g.pos[id]
	return p, ok
}

// Neighbours returns the viewpoints adjacent to id, sorted by id
func (g *Graph) Neighbours(id string) []string {
	return append([]string(nil), g.adj[id]...)
}

// Adjacent returns whether two viewpoints share an edge
func (g *Graph) Adjacent(a, b string) bool {
	for _, n := range g.adj[a] {
		if n == b {
			return true
		}
	}
	return false
}

// Euclidean returns the straight-line distance between two viewpoints
func (g *Graph) Euclidean(a, b string) float64 {
	p, q := g.pos[a], g.pos[b]
	return math.Sqrt((p[0]-q[0])*(p[0]-q[0]) + (p[1]-q[1])*(p[1]-q[1]) +
		(p[2]-q[2])*(p[2]-q[2]))
}

func (g *Graph) paths() path.AllShortest {
	g.once.Do(func() {
		g.shortest = path.DijkstraAllPaths(g.g)
	})
	return g.shortest
}

// Distance returns the shortest-path distance between two viewpoints,
// which is +Inf if they are not connected
func (g *Graph) Distance(a, b string) (float64, error) {
	u, ok := g.node[a]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownViewpoint, "distance: %v", a)
	}
	v, ok := g.node[b]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownViewpoint, "distance: %v", b)
	}
	if u == v {
		return 0, nil
	}
	return g.paths().Weight(u, v), nil
}

// ShortestPath returns a shortest path from a to b, inclusive of both
// endpoints. Ties between equally short paths are broken towards the
// neighbour with the smallest id.
func (g *Graph) ShortestPath(a, b string) ([]string, error) {
	dist, err := g.Distance(a, b)
	if err != nil {
		return nil, err
	}
	if math.IsInf(dist, 1) {
		return nil, errors.Errorf("shortestPath: %v unreachable from %v", b,
			a)
	}

	p := []string{a}
	for cur := a; cur != b; {
		next, err := g.NextHop(cur, b)
		if err != nil {
			return nil, err
		}
		p = append(p, next)
		cur = next
	}
	return p, nil
}

// NextHop returns the neighbour of from that lies on a shortest path to
// goal, or from itself if from is the goal
func (g *Graph) NextHop(from, goal string) (string, error) {
	if from == goal {
		return from, nil
	}
	best, bestDist := "", math.Inf(1)
	for _, n := range g.adj[from] {
		d, err := g.Distance(n, goal)
		if err != nil {
			return "", err
		}
		d += g.Euclidean(from, n)
		if d < bestDist-1e-9 {
			best, bestDist = n, d
		}
	}
	if best == "" {
		return "", errors.Errorf("nextHop: %v unreachable from %v", goal,
			from)
	}
	return best, nil
}

// PathLength returns the summed edge length of a path
func (g *Graph) PathLength(p []string) float64 {
	l := 0.0
	for i := 1; i < len(p); i++ {
		l += g.Euclidean(p[i-1], p[i])
	}
	return l
}

// connectivity is a single entry of a Matterport3D connectivity file
type connectivity struct {
	ImageID      string    `json:"image_id"`
	Pose         []float64 `json:"pose"`
	Included     bool      `json:"included"`
	Unobstructed []bool    `json:"unobstructed"`
	Height       float64   `json:"height"`
}

// LoadConnectivity reads a navigation graph from a Matterport3D
// connectivity file. Viewpoints that are not included are skipped.
func LoadConnectivity(scan string, r io.Reader) (*Graph, error) {
	var entries []connectivity
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrapf(err, "loadConnectivity: scan %v", scan)
	}

	g := NewGraph(scan)
	for _, e := range entries {
		if !e.Included {
			continue
		}
		if len(e.Pose) != 16 {
			return nil, errors.Errorf("loadConnectivity: viewpoint %v has "+
				"pose of length %v", e.ImageID, len(e.Pose))
		}
		g.AddViewpoint(e.ImageID, e.Pose[3], e.Pose[7], e.Pose[11])
	}
	for _, e := range entries {
		if !e.Included {
			continue
		}
		for j, open := range e.Unobstructed {
			if !open || j >= len(entries) || !entries[j].Included {
				continue
			}
			if err := g.Connect(e.ImageID, entries[j].ImageID); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
