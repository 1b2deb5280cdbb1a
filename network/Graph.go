package network

import (
	"fmt"

	"github.com/samuelfneumann/vlnav/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Graph is an expression graph for a single forward (and optionally
// backward) computation. Graphs are cheap to construct and are built
// anew for every step or batch, since the length of instructions and
// trajectories changes between episodes.
type Graph struct {
	*G.ExprGraph
}

// NewGraph returns a new, empty Graph
func NewGraph() *Graph {
	return &Graph{G.NewGraph()}
}

// Vector adds a constant vector input to the graph. The data is copied.
func (g *Graph) Vector(name string, data []float64) *G.Node {
	if len(data) == 0 {
		panic(fmt.Sprintf("vector: %v has no elements", name))
	}
	backing := append([]float64(nil), data...)
	return G.NewVector(g.ExprGraph, tensor.Float64,
		G.WithShape(len(backing)),
		G.WithName(op.Name(name)),
		G.WithValue(tensor.New(tensor.WithShape(len(backing)),
			tensor.WithBacking(backing))),
	)
}

// Matrix adds a constant rows x cols input matrix with row-major
// backing data to the graph. The data is copied.
func (g *Graph) Matrix(name string, rows, cols int, data []float64) *G.Node {
	if rows*cols != len(data) || len(data) == 0 {
		panic(fmt.Sprintf("matrix: %v cannot hold %v values in shape "+
			"(%v, %v)", name, len(data), rows, cols))
	}
	backing := append([]float64(nil), data...)
	return G.NewMatrix(g.ExprGraph, tensor.Float64,
		G.WithShape(rows, cols),
		G.WithName(op.Name(name)),
		G.WithValue(tensor.New(tensor.WithShape(rows, cols),
			tensor.WithBacking(backing))),
	)
}

// Zeros adds a constant vector of zeros to the graph
func (g *Graph) Zeros(name string, n int) *G.Node {
	return g.Vector(name, make([]float64, n))
}

// Scalar adds a constant scalar to the graph
func (g *Graph) Scalar(name string, v float64) *G.Node {
	return op.Scalar(g.ExprGraph, name, v)
}

// Read registers a read of the value of n once the graph is run
func (g *Graph) Read(n *G.Node) *G.Value {
	v := new(G.Value)
	G.Read(n, v)
	return v
}

// Run runs the forward pass of the graph
func (g *Graph) Run() error {
	vm := G.NewTapeMachine(g.ExprGraph)
	defer vm.Close()
	return vm.RunAll()
}

// Bound is a set of Params bound into a single Graph. Nodes are
// created lazily, so that a graph only holds the parameters it uses.
type Bound struct {
	g      *Graph
	params *Params
	nodes  map[string]*G.Node
}

// Bind binds a set of Params into the graph
func (g *Graph) Bind(p *Params) *Bound {
	return &Bound{g: g, params: p, nodes: make(map[string]*G.Node)}
}

// Graph returns the graph the Params are bound into
func (b *Bound) Graph() *Graph {
	return b.g
}

// Node returns the node of the named parameter. The node holds the
// parameter's tensor by reference.
func (b *Bound) Node(name string) *G.Node {
	if n, ok := b.nodes[name]; ok {
		return n
	}

	t := b.params.Get(name)
	if t == nil {
		panic(fmt.Sprintf("node: no parameter %v", name))
	}
	var n *G.Node
	if t.Dims() == 1 {
		n = G.NewVector(b.g.ExprGraph, tensor.Float64,
			G.WithShape(t.Shape()...),
			G.WithName(op.Name(name)),
			G.WithValue(t),
		)
	} else {
		n = G.NewMatrix(b.g.ExprGraph, tensor.Float64,
			G.WithShape(t.Shape()...),
			G.WithName(op.Name(name)),
			G.WithValue(t),
		)
	}
	b.nodes[name] = n
	return n
}

// Learnables returns the nodes of all bound parameters, in parameter
// order
func (b *Bound) Learnables() G.Nodes {
	names := b.params.Names()
	out := make(G.Nodes, len(names))
	for i, name := range names {
		out[i] = b.Node(name)
	}
	return out
}

// Model returns the learnables as values with gradients, for use with
// a G.Solver
func (b *Bound) Model() []G.ValueGrad {
	return G.NodesToValueGrads(b.Learnables())
}

// Floats returns the data of a graph value as a slice of float64
func Floats(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return append([]float64(nil), data...)
	case float64:
		return []float64{data}
	default:
		panic(fmt.Sprintf("floats: unexpected value type %T", data))
	}
}
