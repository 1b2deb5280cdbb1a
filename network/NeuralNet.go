// Package network implements the neural network building blocks of
// the navigation models: learnable parameter sets, their binding into
// Gorgonia expression graphs, and the layers computed on those graphs.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network whose learnable parameters are held in
// a single Params set
type NeuralNet interface {
	Params() *Params
}

// Layer is a layer mapping a single input node to an output node
type Layer interface {
	Fwd(b *Bound, x *G.Node) (*G.Node, error)
}
