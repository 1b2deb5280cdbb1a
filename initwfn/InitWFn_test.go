package initwfn

import (
	"encoding/json"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

func TestSeededInit(t *testing.T) {
	init, err := NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}

	draw := func(seed uint64) []float64 {
		return init.InitWFn(rand.NewSource(seed))(tensor.Float64, 4,
			6).([]float64)
	}
	a, b, c := draw(1), draw(1), draw(2)
	limit := math.Sqrt(6.0 / 10.0)
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("equally seeded initializers differ at %v", i)
		}
		if math.Abs(a[i]) > limit {
			t.Errorf("weight %v outside glorot limit %v", a[i], limit)
		}
		same = same && a[i] == c[i]
	}
	if same {
		t.Error("differently seeded initializers are equal")
	}
}

func TestUnmarshalJSON(t *testing.T) {
	data := []byte(`{"Type": "Constant", "Config": {"Value": 0.25}}`)
	var init InitWFn
	if err := json.Unmarshal(data, &init); err != nil {
		t.Fatal(err)
	}
	if init.Type != Constant {
		t.Errorf("type: want(%v) have(%v)", Constant, init.Type)
	}

	values := init.InitWFn(nil)(tensor.Float64, 3).([]float64)
	for _, v := range values {
		if v != 0.25 {
			t.Errorf("constant init: want(0.25) have(%v)", v)
		}
	}

	if err := json.Unmarshal([]byte(`{"Type": "Nope"}`), &init); err == nil {
		t.Error("expected error for unknown type")
	}
}
