// Package gae implements functionality for computing generalized
// advantage estimates of recorded episodes
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Buffer implements a forward view generalized advantage estimate -
// GAE(λ) - buffer following https://arxiv.org/abs/1506.02438. This
// implementation is adapted from:
//
// https://github.com/openai/spinningup/tree/master/spinup/algos/tf1/vpg
//
// With λ = 1, advantages are the discounted returns minus the value
// estimates, R_t - V(s_t).
type Buffer struct {
	pathStartIdx int // Position in the buffer where current episode starts

	lambda    float64 // λ for GAE(λ) calculation
	gamma     float64 // Discount factor ℽ
	normalize bool    // Whether to standardize advantages in Get

	advBuffer []float64
	rewBuffer []float64
	retBuffer []float64
	valBuffer []float64
}

// New creates and returns a new GAE(λ) buffer
func New(lambda, gamma float64, normalize bool) (*Buffer, error) {
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("new: λ must be in [0, 1], have(%v)", lambda)
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("new: ℽ must be in [0, 1], have(%v)", gamma)
	}
	return &Buffer{lambda: lambda, gamma: gamma, normalize: normalize}, nil
}

// Len returns the number of stored steps
func (v *Buffer) Len() int {
	return len(v.rewBuffer)
}

// Store stores the reward and value estimate of a single step of the
// current episode
func (v *Buffer) Store(rew, val float64) {
	v.rewBuffer = append(v.rewBuffer, rew)
	v.valBuffer = append(v.valBuffer, val)
}

// FinishPath computes advantage estimates using GAE(λ) and
// rewards-to-go estimates for each step of the current episode.
// This should be called at the end of every episode.
//
// The lastVal argument should be 0 if the episode ended because the
// agent stopped, and otherwise it should be the value estimate of the
// state at which the episode was cut off, so that returns are
// bootstrapped beyond the step budget.
func (v *Buffer) FinishPath(lastVal float64) {
	start := v.pathStartIdx
	stop := len(v.rewBuffer)
	if start == stop {
		return
	}
	rews := append(append([]float64(nil), v.rewBuffer[start:stop]...),
		lastVal)
	vals := append(append([]float64(nil), v.valBuffer[start:stop]...),
		lastVal)

	// GAE-lambda advantage calculation
	stateVals := mat.NewVecDense(len(vals)-1, vals[:len(vals)-1])
	nextStateVals := mat.NewVecDense(len(vals)-1, vals[1:])
	rewards := mat.NewVecDense(len(rews)-1, rews[:len(rews)-1])

	deltas := mat.NewVecDense(stateVals.Len(), nil)
	deltas.AddScaledVec(rewards, v.gamma, nextStateVals)
	deltas.SubVec(deltas, stateVals)
	v.advBuffer = append(v.advBuffer, discountCumSum(deltas,
		v.gamma*v.lambda)...)

	// Rewards-to-go
	rewards = mat.NewVecDense(len(rews), rews)
	rewsToGo := discountCumSum(rewards, v.gamma)
	v.retBuffer = append(v.retBuffer, rewsToGo[:len(rewsToGo)-1]...)

	v.pathStartIdx = stop
}

// Get returns the advantages and returns of all finished episodes in
// the order they were stored, and empties the buffer. If the buffer
// normalizes, advantages are first standardized to mean 0 and standard
// deviation 1.
func (v *Buffer) Get() (adv, ret []float64, err error) {
	if v.pathStartIdx != len(v.rewBuffer) {
		return nil, nil, fmt.Errorf("get: current episode must be " +
			"finished before getting advantages")
	}

	adv, ret = v.advBuffer, v.retBuffer
	v.advBuffer, v.retBuffer = nil, nil
	v.rewBuffer, v.valBuffer = nil, nil
	v.pathStartIdx = 0

	// Advantage normalization
	if v.normalize && len(adv) > 1 {
		mean := stat.Mean(adv, nil)
		std := stat.StdDev(adv, nil) + 1e-8
		floats.AddConst(-mean, adv)
		floats.Scale(1/std, adv)
	}
	return adv, ret, nil
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
// [
//	x0 + ℽ x1 + ℽ^2 x2 + ℽ^3 x3 + ... + ℽ^(N-1) x(N-1) + ℽ^N xN
//	x1 + ℽ^1 x2 + ℽ^2 x3 + ... + ℽ^(N-2) x(N-1) + ℽ^(N-1) xN
//	x2 + ℽ^1 x3 + ... + ℽ^(N-3) x(N-1) + ℽ^(N-2) xN
// ...
// xN
// ]
func discountCumSum(x *mat.VecDense, discount float64) []float64 {
	cumSums := make([]float64, x.Len())
	next := 0.0
	for i := x.Len() - 1; i >= 0; i-- {
		next = x.AtVec(i) + discount*next
		cumSums[i] = next
	}
	return cumSums
}
