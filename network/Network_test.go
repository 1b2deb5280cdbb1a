package network

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/samuelfneumann/vlnav/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// constant returns an initializer filling tensors with value c
func constant(c float64) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := 1
		for _, v := range s {
			size *= v
		}
		out := make([]float64, size)
		for i := range out {
			out[i] = c
		}
		return out
	}
}

func TestParamsGob(t *testing.T) {
	p := NewParams()
	if _, err := NewLinear(p, "fc", 3, 2, true, TanH(),
		G.GlorotU(1.0)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Add("fc.W", constant(1), 2, 3); err == nil {
		t.Error("expected error adding duplicate parameter")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		t.Fatal(err)
	}
	out := NewParams()
	if err := gob.NewDecoder(&buf).Decode(out); err != nil {
		t.Fatal(err)
	}
	if !out.Equal(p) {
		t.Error("parameters changed by gob round trip")
	}
	if out.Size() != 8 {
		t.Errorf("size: want(8) have(%v)", out.Size())
	}

	clone := p.Clone()
	clone.Get("fc.b").Data().([]float64)[0] = 5
	if p.Equal(clone) {
		t.Error("clone shares memory with original")
	}
	if err := p.Set(clone); err != nil {
		t.Fatal(err)
	}
	if !p.Equal(clone) {
		t.Error("set did not copy values")
	}
}

func TestLinearFwd(t *testing.T) {
	p := NewParams()
	l, err := NewLinear(p, "fc", 3, 2, true, Identity(), constant(0.5))
	if err != nil {
		t.Fatal(err)
	}
	copy(p.Get("fc.b").Data().([]float64), []float64{1, -1})

	g := NewGraph()
	b := g.Bind(p)
	out, err := l.Fwd(b, g.Vector("x", []float64{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	v := g.Read(out)
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	have := Floats(*v)
	want := []float64{4, 2}
	for i := range want {
		if math.Abs(have[i]-want[i]) > 1e-12 {
			t.Fatalf("linear: want(%v) have(%v)", want, have)
		}
	}

	// Row-wise application to a matrix
	g = NewGraph()
	b = g.Bind(p)
	out, err = l.Fwd(b, g.Matrix("x", 2, 3, []float64{1, 2, 3, 0, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	v = g.Read(out)
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}
	have = Floats(*v)
	want = []float64{4, 2, 1, -1}
	for i := range want {
		if math.Abs(have[i]-want[i]) > 1e-12 {
			t.Fatalf("linear on rows: want(%v) have(%v)", want, have)
		}
	}
}

func TestAttentionMask(t *testing.T) {
	p := NewParams()
	a, err := NewAttention(p, "attn", 2, 2, 0, constant(1))
	if err != nil {
		t.Fatal(err)
	}

	g := NewGraph()
	b := g.Bind(p)
	ctx := g.Matrix("ctx", 3, 2, []float64{1, 0, 0, 1, 5, 5})
	mask := g.Vector("mask", []float64{0, 0, op.MaskValue})
	out, err := a.Fwd(b, g.Vector("h", []float64{0.5, 0.5}), ctx, mask)
	if err != nil {
		t.Fatal(err)
	}
	both := G.Must(G.Concat(0, out.Weights, out.Output))
	v := g.Read(both)
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	have := Floats(*v)
	weights, weighted := have[:3], have[3:]
	if weights[2] != 0 {
		t.Errorf("masked row received weight %v", weights[2])
	}
	if math.Abs(weights[0]-0.5) > 1e-12 || math.Abs(weights[1]-0.5) > 1e-12 {
		t.Errorf("weights: want([0.5 0.5 0]) have(%v)", weights)
	}
	if math.Abs(weighted[0]-0.5) > 1e-12 || math.Abs(weighted[1]-0.5) > 1e-12 {
		t.Errorf("weighted context: want([0.5 0.5]) have(%v)", weighted)
	}
}

func TestLSTMCellShapes(t *testing.T) {
	p := NewParams()
	cell, err := NewLSTMCell(p, "lstm", 3, 4, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewLSTMCell(p, "small", 3, 1, G.GlorotU(1.0)); err == nil {
		t.Error("expected error for hidden size 1")
	}

	g := NewGraph()
	b := g.Bind(p)
	h, c, err := cell.Fwd(b, g.Vector("x", []float64{1, 2, 3}),
		g.Zeros("h", 4), g.Zeros("c", 4))
	if err != nil {
		t.Fatal(err)
	}
	v := g.Read(G.Must(G.Concat(0, h, c)))
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}
	out := Floats(*v)
	if len(out) != 8 {
		t.Fatalf("state size: want(8) have(%v)", len(out))
	}
	for i, x := range out[:4] {
		if math.Abs(x) >= 1 {
			t.Errorf("hidden state %v outside (-1, 1): %v", i, x)
		}
	}
}

func TestEmbeddingLookup(t *testing.T) {
	p := NewParams()
	e, err := NewEmbedding(p, "emb", 3, 2, constant(0))
	if err != nil {
		t.Fatal(err)
	}
	copy(p.Get("emb.E").Data().([]float64), []float64{0, 1, 2, 3, 4, 5})

	g := NewGraph()
	x, err := e.Fwd(g.Bind(p), 2)
	if err != nil {
		t.Fatal(err)
	}
	v := g.Read(x)
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}
	if out := Floats(*v); out[0] != 4 || out[1] != 5 {
		t.Errorf("embedding: want([4 5]) have(%v)", out)
	}

	if _, err := e.Fwd(g.Bind(p), 3); err == nil {
		t.Error("expected error for out of range token")
	}
}

func TestMLP(t *testing.T) {
	p := NewParams()
	m, err := NewMLP(p, "mlp", 2, 1, []int{3}, []bool{true},
		[]*Activation{ReLU()}, constant(1))
	if err != nil {
		t.Fatal(err)
	}

	g := NewGraph()
	out, err := m.Fwd(g.Bind(p), g.Vector("x", []float64{1, -3}))
	if err != nil {
		t.Fatal(err)
	}
	v := g.Read(out)
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}
	// The hidden layer is rectified to zero
	if out := Floats(*v); out[0] != 0 {
		t.Errorf("mlp: want(0) have(%v)", out)
	}
}
