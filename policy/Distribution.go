package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/vlnav/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mode determines how actions are selected from a Distribution
type Mode int

const (
	// Greedy selects the most probable action, breaking ties randomly
	Greedy Mode = iota

	// Sample samples actions from the temperature-scaled distribution
	Sample
)

func (m Mode) String() string {
	if m == Sample {
		return "Sample"
	}
	return "Greedy"
}

// Distribution is a categorical distribution over the candidates of a
// viewpoint followed by the stop action
type Distribution struct {
	LogProbs []float64
}

// Len returns the number of actions, including stop
func (d Distribution) Len() int {
	return len(d.LogProbs)
}

// StopIndex returns the index of the stop action
func (d Distribution) StopIndex() int {
	return len(d.LogProbs) - 1
}

// Probs returns the action probabilities
func (d Distribution) Probs() []float64 {
	p := make([]float64, len(d.LogProbs))
	for i, lp := range d.LogProbs {
		p[i] = math.Exp(lp)
	}
	return p
}

// Prob returns the probability of action a
func (d Distribution) Prob(a int) float64 {
	return math.Exp(d.LogProbs[a])
}

// Entropy returns the entropy of the distribution
func (d Distribution) Entropy() float64 {
	h := 0.0
	for _, lp := range d.LogProbs {
		if p := math.Exp(lp); p > 0 {
			h -= p * lp
		}
	}
	return h
}

// Tempered returns the probabilities of the distribution with its
// logits divided by temperature
func (d Distribution) Tempered(temperature float64) ([]float64, error) {
	if temperature <= 0 {
		return nil, fmt.Errorf("tempered: temperature must be positive, "+
			"have(%v)", temperature)
	}
	p := floatutils.Softmax(d.LogProbs, temperature)
	return p, nil
}

// Greedy returns the most probable action. Ties are broken uniformly
// at random with rng, or towards the lowest index if rng is nil.
func (d Distribution) Greedy(rng *rand.Rand) int {
	_, actions := floatutils.MaxSlice(d.LogProbs)
	if rng == nil || len(actions) == 1 {
		return actions[0]
	}
	return actions[rng.Intn(len(actions))]
}

// Sample samples an action from the distribution at the given
// temperature using the randomness source src
func (d Distribution) Sample(temperature float64, src rand.Source) (int,
	error) {
	p, err := d.Tempered(temperature)
	if err != nil {
		return 0, err
	}
	return int(distuv.NewCategorical(p, src).Rand()), nil
}

// Select selects an action according to mode
func (d Distribution) Select(mode Mode, temperature float64,
	src rand.Source) (int, error) {
	switch mode {
	case Greedy:
		var rng *rand.Rand
		if src != nil {
			rng = rand.New(src)
		}
		return d.Greedy(rng), nil
	case Sample:
		return d.Sample(temperature, src)
	default:
		return 0, fmt.Errorf("select: unknown mode %v", mode)
	}
}
