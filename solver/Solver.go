// Package solver implements gradient descent solvers for Gorgonia
// models, wrapped so that they can be JSON serialized into
// configuration files and gob encoded, together with their internal
// state, into checkpoints.
package solver

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
	RMSProp Type = "RMSProp"
)

// Solver wraps a Gorgonia Solver so that it can be JSON marshalled and
// unmarshalled, and checkpointed with its state.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Clone returns a new Solver of the same configuration with fresh state
func (s *Solver) Clone() (*Solver, error) {
	return newSolver(s.Type, s.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(Adam):    reflect.TypeOf(AdamConfig{}),
			string(RMSProp): reflect.TypeOf(RMSPropConfig{}),
		})
	if err != nil {
		return err
	}
	if !config.ValidType(typeName) {
		return fmt.Errorf("unmarshalJSON: invalid solver type %v for "+
			"configuration %T", typeName, config)
	}

	s.Type = typeName
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// gobSolver is the serialized form of a Solver
type gobSolver struct {
	Config []byte
	State  []byte
}

// GobEncode implements the gob.GobEncoder interface. The encoding
// holds the configuration and the full internal state of the solver.
func (s *Solver) GobEncode() ([]byte, error) {
	config, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("gobEncode: could not encode config: %v", err)
	}

	var state bytes.Buffer
	if err := gob.NewEncoder(&state).Encode(s.Solver); err != nil {
		return nil, fmt.Errorf("gobEncode: could not encode state: %v", err)
	}

	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(gobSolver{config, state.Bytes()})
	return buf.Bytes(), err
}

// GobDecode implements the gob.GobDecoder interface
func (s *Solver) GobDecode(in []byte) error {
	var enc gobSolver
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&enc); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if err := s.UnmarshalJSON(enc.Config); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	dec := gob.NewDecoder(bytes.NewReader(enc.State))
	switch solver := s.Solver.(type) {
	case *AdamSolver:
		return dec.Decode(solver)
	case *RMSPropSolver:
		return dec.Decode(solver)
	case *VanillaSolver:
		return dec.Decode(solver)
	default:
		return fmt.Errorf("gobDecode: cannot restore solver of type %T",
			solver)
	}
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: missing field %v",
			typeJsonField)
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: unknown solver %v",
			typeName)
	}
	value := reflect.New(ty).Interface()

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a solver configuration and can be used to create
// the Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// gradients extracts the values and scaled gradients of a model. If
// clip is positive, gradients are rescaled so that their global L2
// norm is at most clip.
func gradients(model []G.ValueGrad, batch int, clip float64) ([][]float64,
	[][]float64, error) {
	if batch < 1 {
		batch = 1
	}
	weights := make([][]float64, len(model))
	grads := make([][]float64, len(model))

	norm := 0.0
	for i, vg := range model {
		w, ok := vg.Value().Data().([]float64)
		if !ok {
			return nil, nil, fmt.Errorf("gradients: learnable %v does not "+
				"hold float64 values", i)
		}
		gv, err := vg.Grad()
		if err != nil {
			return nil, nil, fmt.Errorf("gradients: learnable %v: %v", i,
				err)
		}
		g, ok := gv.Data().([]float64)
		if !ok || len(g) != len(w) {
			return nil, nil, fmt.Errorf("gradients: learnable %v has an "+
				"invalid gradient", i)
		}

		scaled := make([]float64, len(g))
		for j := range g {
			scaled[j] = g[j] / float64(batch)
			norm += scaled[j] * scaled[j]
		}
		weights[i] = w
		grads[i] = scaled
	}

	norm = math.Sqrt(norm)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, nil, fmt.Errorf("gradients: gradient norm is %v", norm)
	}
	if clip > 0 && norm > clip {
		scale := clip / norm
		for _, g := range grads {
			for j := range g {
				g[j] *= scale
			}
		}
	}
	return weights, grads, nil
}

// moments returns a slot of zeroed moment estimates matching the shape
// of the model, or reuses slot if it already matches
func moments(slot [][]float64, weights [][]float64) ([][]float64, error) {
	if slot == nil {
		slot = make([][]float64, len(weights))
		for i, w := range weights {
			slot[i] = make([]float64, len(w))
		}
		return slot, nil
	}
	if len(slot) != len(weights) {
		return nil, fmt.Errorf("moments: solver state holds %v learnables, "+
			"model has %v", len(slot), len(weights))
	}
	for i, w := range weights {
		if len(slot[i]) != len(w) {
			return nil, fmt.Errorf("moments: learnable %v changed size", i)
		}
	}
	return slot, nil
}
