// Package floatutils provides utilities for working with slices of
// floats holding scores and log-probabilities
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MaxSlice gets the maximum value and indices of the maximum values in
// a slice of float64.
func MaxSlice(values []float64) (max float64, indices []int) {
	max, indices = values[0], []int{0}

	for i, value := range values[1:] {
		if value > max {
			max = value
			indices = []int{i + 1}
		} else if value == max {
			indices = append(indices, i+1)
		}
	}
	return max, indices
}

// Argmax returns the lowest index of the maximum value in values
func Argmax(values []float64) int {
	_, indices := MaxSlice(values)
	return indices[0]
}

// LogSoftmax returns the log-probabilities of the categorical
// distribution with logits values. Logits of -Inf have probability 0.
func LogSoftmax(values []float64) []float64 {
	lse := floats.LogSumExp(values)
	out := make([]float64, len(values))
	for i, x := range values {
		out[i] = x - lse
	}
	return out
}

// Softmax returns the probabilities of the categorical distribution
// with logits values scaled by 1/temperature
func Softmax(values []float64, temperature float64) []float64 {
	scaled := make([]float64, len(values))
	for i, x := range values {
		scaled[i] = x / temperature
	}
	p := LogSoftmax(scaled)
	for i := range p {
		p[i] = math.Exp(p[i])
	}
	return p
}
