// Package op provides extended Gorgonia graph operations on the vector
// valued nodes of sequence models.
package op

import (
	"fmt"
	"sync/atomic"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MaskValue is the value added to masked logits. It is large enough
// that masked entries receive exactly zero probability.
const MaskValue = -1e9

var inputs uint64

// Name returns a unique node name with the given prefix. Gorgonia
// merges input nodes of equal name, type, and shape within a graph, so
// every input node must be uniquely named.
func Name(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, atomic.AddUint64(&inputs, 1))
}

// LogSumExp calculates the log of the summation of exponentials of all
// elements of a vector, returning a scalar.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node) *G.Node {
	max := G.Must(G.Max(logits))

	exponent := G.Must(G.Sub(logits, max))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// LogSoftmax returns the log of the softmax of a vector of logits
func LogSoftmax(logits *G.Node) *G.Node {
	return G.Must(G.Sub(logits, LogSumExp(logits)))
}

// Softmax returns the softmax of a vector of logits
func Softmax(logits *G.Node) *G.Node {
	return G.Must(G.Exp(LogSoftmax(logits)))
}

// Entropy returns the entropy of the categorical distribution with log
// probabilities logProbs
func Entropy(logProbs *G.Node) *G.Node {
	probs := G.Must(G.Exp(logProbs))
	plogp := G.Must(G.HadamardProd(probs, logProbs))
	return G.Must(G.Neg(G.Must(G.Sum(plogp))))
}

// At returns element i of a vector as a scalar
func At(v *G.Node, i int) *G.Node {
	return G.Must(G.Slice(v, G.S(i)))
}

// Scalar adds a constant scalar to the graph
func Scalar(g *G.ExprGraph, name string, v float64) *G.Node {
	return G.NewScalar(g, tensor.Float64, G.WithName(Name(name)), G.WithValue(v))
}

// Sum returns the sum of a list of scalar nodes. The empty sum is the
// constant zero, added to g.
func Sum(g *G.ExprGraph, name string, scalars ...*G.Node) *G.Node {
	if len(scalars) == 0 {
		return Scalar(g, name, 0)
	}
	sum := scalars[0]
	for _, s := range scalars[1:] {
		sum = G.Must(G.Add(sum, s))
	}
	return sum
}

// Scale multiplies a node by a constant
func Scale(n *G.Node, name string, c float64) *G.Node {
	return G.Must(G.Mul(Scalar(n.Graph(), name, c), n))
}

// Pack packs scalar nodes into a single vector node, so that multiple
// scalars can be read with one read of the graph.
func Pack(g *G.ExprGraph, name string, scalars ...*G.Node) (*G.Node, error) {
	if len(scalars) == 0 {
		return nil, fmt.Errorf("pack: no scalars to pack")
	}

	var out *G.Node
	for i, s := range scalars {
		if !s.IsScalar() {
			return nil, fmt.Errorf("pack: node %v is not a scalar", s.Name())
		}
		basis := make([]float64, len(scalars))
		basis[i] = 1.0
		e := G.NewVector(g, tensor.Float64, G.WithShape(len(scalars)),
			G.WithName(Name(fmt.Sprintf("%s_e%d", name, i))),
			G.WithValue(tensor.New(tensor.WithShape(len(scalars)),
				tensor.WithBacking(basis))))

		term := G.Must(G.Mul(s, e))
		if out == nil {
			out = term
		} else {
			out = G.Must(G.Add(out, term))
		}
	}
	return out, nil
}
