package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Params is an ordered set of named learnable tensors.
//
// Params own the values of a model's weights. Every expression graph
// built from a model binds these tensors by reference, so that an
// update by a solver on any graph is seen by all later graphs.
type Params struct {
	names  []string
	values map[string]*tensor.Dense
}

// NewParams returns an empty set of Params
func NewParams() *Params {
	return &Params{values: make(map[string]*tensor.Dense)}
}

// Add adds a new learnable tensor of the given shape, initialized with
// init, and returns it
func (p *Params) Add(name string, init G.InitWFn, shape ...int) (*tensor.Dense,
	error) {
	if _, ok := p.values[name]; ok {
		return nil, fmt.Errorf("add: parameter %v already exists", name)
	}
	if len(shape) < 1 || len(shape) > 2 {
		return nil, fmt.Errorf("add: parameter %v must be a vector or "+
			"matrix, have shape %v", name, shape)
	}
	for _, s := range shape {
		if s < 1 {
			return nil, fmt.Errorf("add: parameter %v has illegal shape %v",
				name, shape)
		}
	}

	backing, ok := init(tensor.Float64, shape...).([]float64)
	if !ok {
		return nil, fmt.Errorf("add: initializer for %v did not produce "+
			"float64 values", name)
	}
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))

	p.names = append(p.names, name)
	p.values[name] = t
	return t, nil
}

// Get returns the tensor with the given name, or nil if no such tensor
// exists
func (p *Params) Get(name string) *tensor.Dense {
	return p.values[name]
}

// Names returns the names of all tensors in insertion order
func (p *Params) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of tensors
func (p *Params) Len() int {
	return len(p.names)
}

// Size returns the total number of learnable scalars
func (p *Params) Size() int {
	n := 0
	for _, name := range p.names {
		n += p.values[name].Shape().TotalSize()
	}
	return n
}

// Clone returns a deep copy of the Params
func (p *Params) Clone() *Params {
	out := NewParams()
	for _, name := range p.names {
		out.names = append(out.names, name)
		out.values[name] = p.values[name].Clone().(*tensor.Dense)
	}
	return out
}

// Set copies the values of src into p. Both Params must hold tensors
// of the same names and shapes.
func (p *Params) Set(src *Params) error {
	if src.Len() != p.Len() {
		return fmt.Errorf("set: cannot set %v parameters from %v", p.Len(),
			src.Len())
	}
	for _, name := range p.names {
		from := src.Get(name)
		if from == nil {
			return fmt.Errorf("set: missing parameter %v", name)
		}
		to := p.values[name]
		if !to.Shape().Eq(from.Shape()) {
			return fmt.Errorf("set: shape mismatch for %v: want(%v) "+
				"have(%v)", name, to.Shape(), from.Shape())
		}
		copy(to.Data().([]float64), from.Data().([]float64))
	}
	return nil
}

// Equal returns whether two Params hold exactly the same values
func (p *Params) Equal(other *Params) bool {
	if p.Len() != other.Len() {
		return false
	}
	for _, name := range p.names {
		o := other.Get(name)
		if o == nil || !o.Shape().Eq(p.values[name].Shape()) {
			return false
		}
		a, b := p.values[name].Data().([]float64), o.Data().([]float64)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// gobParam is the serialized form of a single tensor
type gobParam struct {
	Name  string
	Shape []int
	Data  []float64
}

// GobEncode implements the gob.GobEncoder interface
func (p *Params) GobEncode() ([]byte, error) {
	out := make([]gobParam, 0, len(p.names))
	for _, name := range p.names {
		t := p.values[name]
		out = append(out, gobParam{
			Name:  name,
			Shape: append([]int(nil), t.Shape()...),
			Data:  append([]float64(nil), t.Data().([]float64)...),
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(out); err != nil {
		return nil, fmt.Errorf("gobEncode: could not encode parameters: %v",
			err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (p *Params) GobDecode(in []byte) error {
	var params []gobParam
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&params); err != nil {
		return fmt.Errorf("gobDecode: could not decode parameters: %v", err)
	}

	p.names = make([]string, 0, len(params))
	p.values = make(map[string]*tensor.Dense, len(params))
	for _, param := range params {
		size := 1
		for _, s := range param.Shape {
			size *= s
		}
		if size != len(param.Data) {
			return fmt.Errorf("gobDecode: parameter %v of shape %v has %v "+
				"values", param.Name, param.Shape, len(param.Data))
		}
		p.names = append(p.names, param.Name)
		p.values[param.Name] = tensor.New(tensor.WithShape(param.Shape...),
			tensor.WithBacking(param.Data))
	}
	return nil
}
