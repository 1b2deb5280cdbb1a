package policy_test

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/initwfn"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/timestep"
	"github.com/samuelfneumann/vlnav/utils/navtest"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

const vocab = 10

func config(t *testing.T) policy.Config {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	return policy.Config{
		Schema:          navtest.Schema(),
		Vocab:           vocab,
		WordEmbedding:   4,
		Hidden:          6,
		ActionEmbedding: 3,
		CriticHidden:    5,
		MaxSteps:        4,
		Init:            init,
		Seed:            7,
	}
}

func listener(t *testing.T) *policy.Listener {
	l, err := policy.New(config(t))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func instr(t *testing.T, words ...int) instruction.Instruction {
	i, err := instruction.FromWords(words, vocab)
	if err != nil {
		t.Fatal(err)
	}
	return i
}

func observe(t *testing.T, sim *environment.Simulator,
	vp string) timestep.Viewpoint {
	obs, err := sim.Observe(navtest.Scan, vp, 0)
	if err != nil {
		t.Fatal(err)
	}
	return obs
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func TestDistributionNormalized(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	ctx, err := l.Encode(instr(t, 4, 5, 6))
	if err != nil {
		t.Fatal(err)
	}

	for _, vp := range []string{"A", "B", "C", "D", "E"} {
		obs := observe(t, sim, vp)
		dist, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if dist.Len() != len(obs.Candidates)+1 {
			t.Errorf("%v: want(%v) actions have(%v)", vp,
				len(obs.Candidates)+1, dist.Len())
		}
		if s := sum(dist.Probs()); math.Abs(s-1) > 1e-9 {
			t.Errorf("%v: probabilities sum to %v", vp, s)
		}
		if dist.Prob(dist.StopIndex()) <= 0 {
			t.Errorf("%v: stop has zero probability", vp)
		}
	}
}

func TestEmptyCandidatesStops(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	ctx, err := l.Encode(instr(t, 4))
	if err != nil {
		t.Fatal(err)
	}

	obs := observe(t, sim, "A")
	obs.Candidates = nil
	dist, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dist.Len() != 1 || math.Abs(dist.Prob(0)-1) > 1e-12 {
		t.Errorf("want([1]) have(%v)", dist.Probs())
	}
	if a := dist.Greedy(nil); a != obs.StopIndex() {
		t.Errorf("want(stop) have(%v)", a)
	}
}

func TestLandmarkScores(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	ctx, err := l.Encode(instr(t, 4, 5, 6))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"decoder.landmark",
		"decoder.landmark.stop", "decoder.fuse.W", "decoder.fuse.b"} {
		if l.Params().Get(name) == nil {
			t.Fatalf("listener has no parameter %v", name)
		}
	}

	obs := observe(t, sim, "A")
	with, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Silence the landmark similarity, leaving only the candidate
	// attention logits to be fused
	for _, name := range []string{"decoder.landmark",
		"decoder.landmark.stop"} {
		data := l.Params().Get(name).Data().([]float64)
		for i := range data {
			data[i] = 0
		}
	}
	without, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	same := true
	for i := range with.LogProbs {
		same = same && math.Abs(with.LogProbs[i]-without.LogProbs[i]) < 1e-12
	}
	if same {
		t.Error("landmark similarity did not change the distribution")
	}
	if s := sum(without.Probs()); math.Abs(s-1) > 1e-9 {
		t.Errorf("probabilities sum to %v", s)
	}

	// Blocking still removes all mass from blocked candidates
	blocked := make([]bool, obs.NumActions())
	blocked[0] = true
	dist, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil, blocked)
	if err != nil {
		t.Fatal(err)
	}
	if p := dist.Prob(0); p > 1e-12 {
		t.Errorf("blocked candidate has probability %v", p)
	}
}

func TestBlockedActions(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	ctx, err := l.Encode(instr(t, 4, 5))
	if err != nil {
		t.Fatal(err)
	}

	// A has candidates B and D
	obs := observe(t, sim, "A")
	blocked := []bool{true, false, false}
	dist, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil, blocked)
	if err != nil {
		t.Fatal(err)
	}
	if p := dist.Prob(0); p != 0 {
		t.Errorf("blocked action has probability %v", p)
	}
	if s := sum(dist.Probs()); math.Abs(s-1) > 1e-9 {
		t.Errorf("probabilities sum to %v", s)
	}

	blocked = []bool{false, false, true}
	if _, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil,
		blocked); err == nil {
		t.Error("expected error when blocking stop")
	}
}

func TestStepDoesNotMutateState(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	ctx, err := l.Encode(instr(t, 4, 5, 6, 7))
	if err != nil {
		t.Fatal(err)
	}

	s := l.InitialState(ctx)
	h := append([]float64(nil), s.H...)
	c := append([]float64(nil), s.C...)
	_, next, err := l.Step(ctx, s, observe(t, sim, "B"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range h {
		if h[i] != s.H[i] || c[i] != s.C[i] {
			t.Fatal("step modified its input state")
		}
	}
	if len(next.H) != len(h) || len(next.C) != len(c) {
		t.Errorf("next state has lengths %v, %v", len(next.H), len(next.C))
	}
}

func TestPaddingInvariance(t *testing.T) {
	l := listener(t)
	env := navtest.Simulator(10).NewSession()
	spec := environment.EpisodeSpec{ID: "ep", Scan: navtest.Scan,
		Start: "A", Goal: "E"}
	short := instr(t, 4, 5)

	ep, err := l.Rollout(env, spec, short, policy.RolloutOptions{
		Mode:     policy.Greedy,
		MaxSteps: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	replay := func(padTo int) []float64 {
		g := network.NewGraph()
		r, err := l.Replay(g.Bind(l.Params()), short, ep.Trajectory, nil,
			padTo)
		if err != nil {
			t.Fatal(err)
		}
		v := g.Read(r.LogProbs[len(r.LogProbs)-1])
		if err := g.Run(); err != nil {
			t.Fatal(err)
		}
		return network.Floats(*v)
	}

	// Padding the context to the length of a longer instruction in the
	// batch leaves the decisions unchanged
	want, have := replay(0), replay(short.Len()+4)
	for i := range want {
		if math.Abs(want[i]-have[i]) > 1e-9 {
			t.Errorf("action %v: want(%v) have(%v)", i, want[i], have[i])
		}
	}
}

func TestInvalidInstruction(t *testing.T) {
	l := listener(t)
	if _, err := l.Encode(instruction.Instruction{}); err == nil {
		t.Error("expected error for empty instruction")
	}
}

func TestDropMaskChangesDistribution(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	ctx, err := l.Encode(instr(t, 4, 5))
	if err != nil {
		t.Fatal(err)
	}

	obs := observe(t, sim, "A")
	mask := make(feature.DropMask, navtest.Schema().Visual)
	plain, _, err := l.Step(ctx, l.InitialState(ctx), obs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	dropped, _, err := l.Step(ctx, l.InitialState(ctx), obs, mask, nil)
	if err != nil {
		t.Fatal(err)
	}

	same := true
	for i := range plain.LogProbs {
		if plain.LogProbs[i] != dropped.LogProbs[i] {
			same = false
		}
	}
	if same {
		t.Error("dropping all visual features did not change the " +
			"distribution")
	}
}

func TestRolloutBudget(t *testing.T) {
	l := listener(t)
	env := navtest.Simulator(3).NewSession()
	spec := environment.EpisodeSpec{ID: "ep", Scan: navtest.Scan,
		Start: "A", Goal: "C"}

	for seed := uint64(0); seed < 10; seed++ {
		ep, err := l.Rollout(env, spec, instr(t, 4, 5),
			policy.RolloutOptions{
				Mode:     policy.Sample,
				MaxSteps: 2,
				Src:      rand.NewSource(seed),
			})
		if err != nil {
			t.Fatal(err)
		}

		traj := ep.Trajectory
		last := traj.Steps[traj.Len()-1]
		if !last.Stopped() {
			t.Fatalf("trajectory does not end with stop: %v", traj.Path())
		}
		if traj.Len() > 3 {
			t.Errorf("trajectory has %v steps with a budget of 2",
				traj.Len())
		}
		if traj.BudgetExceeded != last.Forced {
			t.Errorf("budget exceeded: %v, last step forced: %v",
				traj.BudgetExceeded, last.Forced)
		}
		if last.Forced && traj.Len() != 3 {
			t.Errorf("forced stop after %v steps", traj.Len()-1)
		}
		if len(ep.Distributions) != traj.Len() {
			t.Errorf("%v distributions for %v steps",
				len(ep.Distributions), traj.Len())
		}
	}
}

func TestAvoidRevisit(t *testing.T) {
	l := listener(t)
	env := navtest.Simulator(10).NewSession()
	spec := environment.EpisodeSpec{ID: "ep", Scan: navtest.Scan,
		Start: "A", Goal: "C"}

	ep, err := l.Rollout(env, spec, instr(t, 4, 5), policy.RolloutOptions{
		Mode:         policy.Sample,
		MaxSteps:     8,
		AvoidRevisit: true,
		Src:          rand.NewSource(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, vp := range ep.Trajectory.Path() {
		if seen[vp] {
			t.Fatalf("viewpoint %v revisited: %v", vp, ep.Trajectory.Path())
		}
		seen[vp] = true
	}
}

func TestSampleRequiresSource(t *testing.T) {
	l := listener(t)
	env := navtest.Simulator(10).NewSession()
	spec := environment.EpisodeSpec{ID: "ep", Scan: navtest.Scan,
		Start: "A", Goal: "C"}

	_, err := l.Rollout(env, spec, instr(t, 4, 5),
		policy.RolloutOptions{Mode: policy.Sample})
	if err == nil {
		t.Error("sampled rollout without a randomness source")
	}

	// Greedy rollouts break ties towards the lowest index without one
	if _, err := l.Rollout(env, spec, instr(t, 4, 5),
		policy.RolloutOptions{Mode: policy.Greedy}); err != nil {
		t.Error(err)
	}
}

func TestSearchWidthOneIsGreedy(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	words := instr(t, 4, 8, 9)

	for _, goal := range []string{"C", "E"} {
		for _, avoid := range []bool{false, true} {
			spec := environment.EpisodeSpec{ID: "ep", Scan: navtest.Scan,
				Start: "A", Goal: goal}
			greedy, err := l.Rollout(sim.NewSession(), spec, words,
				policy.RolloutOptions{
					Mode:         policy.Greedy,
					MaxSteps:     3,
					AvoidRevisit: avoid,
				})
			if err != nil {
				t.Fatal(err)
			}

			paths, err := l.Search(sim.NewSession(), spec, words,
				policy.SearchOptions{
					BeamWidth:    1,
					MaxSteps:     3,
					AvoidRevisit: avoid,
				})
			if err != nil {
				t.Fatal(err)
			}
			if len(paths) != 1 {
				t.Fatalf("width 1 found %v paths", len(paths))
			}

			want, have := greedy.Trajectory, paths[0].Episode.Trajectory
			if want.Len() != have.Len() {
				t.Fatalf("goal %v avoid %v: want path %v have %v", goal,
					avoid, want.Path(), have.Path())
			}
			for i := range want.Steps {
				if want.Steps[i].Action != have.Steps[i].Action ||
					want.Steps[i].Forced != have.Steps[i].Forced {
					t.Errorf("goal %v avoid %v step %v: want(%v) have(%v)",
						goal, avoid, i, want.Steps[i], have.Steps[i])
				}
			}
			if want.BudgetExceeded != have.BudgetExceeded {
				t.Errorf("budget exceeded: want(%v) have(%v)",
					want.BudgetExceeded, have.BudgetExceeded)
			}
		}
	}
}

func TestSearchPaths(t *testing.T) {
	l := listener(t)
	sim := navtest.Simulator(10)
	spec := environment.EpisodeSpec{ID: "ep", Scan: navtest.Scan,
		Start: "A", Goal: "E"}
	env := sim.NewSession()

	paths, err := l.Search(env, spec, instr(t, 4, 8, 9),
		policy.SearchOptions{BeamWidth: 3, MaxSteps: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) < 3 {
		t.Fatalf("width 3 found %v paths", len(paths))
	}

	for i, p := range paths {
		if i > 0 && p.LogProb > paths[i-1].LogProb {
			t.Errorf("paths not sorted: %v after %v", p.LogProb,
				paths[i-1].LogProb)
		}

		traj := p.Episode.Trajectory
		if !traj.Steps[traj.Len()-1].Stopped() {
			t.Errorf("path %v does not end with stop", traj.Path())
		}
		if traj.Len() > 4 {
			t.Errorf("path %v exceeds a budget of 3", traj.Path())
		}
		if len(p.Episode.Distributions) != traj.Len() {
			t.Errorf("%v distributions for %v steps",
				len(p.Episode.Distributions), traj.Len())
		}

		lp := 0.0
		for j, s := range traj.Steps {
			if !s.Forced {
				lp += p.Episode.Distributions[j].LogProbs[s.Action]
			}
		}
		if math.Abs(lp-p.LogProb) > 1e-9 {
			t.Errorf("log-probability: want(%v) have(%v)", lp, p.LogProb)
		}
	}

	// The session passed in stays at the start
	if path := env.Path(); len(path) != 1 || path[0] != "A" {
		t.Errorf("search moved the initial session: %v", path)
	}
}

func TestReplayMatchesStep(t *testing.T) {
	l := listener(t)
	env := navtest.Simulator(10).NewSession()
	spec := environment.EpisodeSpec{ID: "ep", Scan: navtest.Scan,
		Start: "A", Goal: "E"}
	words := instr(t, 4, 8, 9)

	ep, err := l.Rollout(env, spec, words, policy.RolloutOptions{
		Mode:     policy.Sample,
		MaxSteps: 3,
		Src:      rand.NewSource(11),
	})
	if err != nil {
		t.Fatal(err)
	}

	g := network.NewGraph()
	b := g.Bind(l.Params())
	r, err := l.Replay(b, words, ep.Trajectory, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	packed := r.LogProbs[0]
	if len(r.LogProbs) > 1 {
		packed, err = G.Concat(0, r.LogProbs...)
		if err != nil {
			t.Fatal(err)
		}
	}
	v := g.Read(packed)
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	have := network.Floats(*v)
	var want []float64
	for _, d := range ep.Distributions {
		want = append(want, d.LogProbs...)
	}
	if len(have) != len(want) {
		t.Fatalf("want(%v) log-probabilities have(%v)", len(want), len(have))
	}
	for i := range want {
		if math.Abs(want[i]-have[i]) > 1e-9 {
			t.Errorf("entry %v: want(%v) have(%v)", i, want[i], have[i])
		}
	}
}

func TestListenerGob(t *testing.T) {
	l := listener(t)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(l); err != nil {
		t.Fatal(err)
	}
	var restored policy.Listener
	if err := gob.NewDecoder(&buf).Decode(&restored); err != nil {
		t.Fatal(err)
	}
	if !l.Params().Equal(restored.Params()) {
		t.Fatal("restored parameters differ")
	}

	sim := navtest.Simulator(10)
	obs := observe(t, sim, "B")
	words := instr(t, 5, 6)
	dists := make([]policy.Distribution, 2)
	for i, m := range []*policy.Listener{l, &restored} {
		ctx, err := m.Encode(words)
		if err != nil {
			t.Fatal(err)
		}
		dists[i], _, err = m.Step(ctx, m.InitialState(ctx), obs, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	for i := range dists[0].LogProbs {
		if dists[0].LogProbs[i] != dists[1].LogProbs[i] {
			t.Errorf("action %v: want(%v) have(%v)", i, dists[0].LogProbs[i],
				dists[1].LogProbs[i])
		}
	}
}

func TestCritic(t *testing.T) {
	c, err := policy.NewCritic(config(t))
	if err != nil {
		t.Fatal(err)
	}
	hidden := [][]float64{
		{0, 0, 0, 0, 0, 0},
		{1, -1, 0.5, 0, 0.25, 2},
	}
	values, err := c.Values(hidden)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 {
		t.Fatalf("want(2) values have(%v)", len(values))
	}

	// The hidden layer bias is zero, so the zero state has the value
	// of the output bias, which is zero
	if values[0] != 0 {
		t.Errorf("value of zero state: want(0) have(%v)", values[0])
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		t.Fatal(err)
	}
	var restored policy.Critic
	if err := gob.NewDecoder(&buf).Decode(&restored); err != nil {
		t.Fatal(err)
	}
	again, err := restored.Values(hidden)
	if err != nil {
		t.Fatal(err)
	}
	for i := range values {
		if values[i] != again[i] {
			t.Errorf("value %v: want(%v) have(%v)", i, values[i], again[i])
		}
	}

	if _, err := c.Values([][]float64{{1}}); err == nil {
		t.Error("expected error for wrongly sized hidden state")
	}
}

func TestDistributionSelect(t *testing.T) {
	d := policy.Distribution{LogProbs: []float64{math.Log(0.2),
		math.Log(0.5), math.Log(0.3)}}
	a, err := d.Select(policy.Greedy, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != 1 {
		t.Errorf("greedy: want(1) have(%v)", a)
	}

	counts := make([]int, 3)
	src := rand.NewSource(1)
	for i := 0; i < 3000; i++ {
		a, err := d.Select(policy.Sample, 1, src)
		if err != nil {
			t.Fatal(err)
		}
		counts[a]++
	}
	if counts[1] < counts[2] || counts[2] < counts[0] {
		t.Errorf("sample counts out of order: %v", counts)
	}

	if _, err := d.Tempered(0); err == nil {
		t.Error("expected error for zero temperature")
	}
	cold, err := d.Tempered(0.01)
	if err != nil {
		t.Fatal(err)
	}
	if cold[1] < 0.99 {
		t.Errorf("low temperature should concentrate on the mode: %v", cold)
	}
}
