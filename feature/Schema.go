// Package feature implements the typed feature bundles consumed by the
// navigation policy and the speaker, the environmental dropout masks
// applied to them, and read-only stores of precomputed features.
package feature

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ErrSchema is returned when a Bundle does not match the Schema it is
// validated against.
var ErrSchema = errors.New("feature vector does not match schema")

// Schema describes the fixed layout of a feature Bundle. Every Bundle
// flowing through a model must have exactly these dimensions.
type Schema struct {
	Visual   int // Image features from the external extractor
	Angle    int // Heading/elevation encoding, a multiple of 4
	Spatial  int // Spatial-configuration features
	Motion   int // Motion-indicator features
	Landmark int // Landmark features
}

// DefaultSchema returns the layout used by precomputed ResNet features:
// 2048 visual dimensions and a 128 dimensional angle encoding.
func DefaultSchema() Schema {
	return Schema{
		Visual:   2048,
		Angle:    128,
		Spatial:  16,
		Motion:   16,
		Landmark: 300,
	}
}

// Dim returns the total length of a flattened Bundle.
func (s Schema) Dim() int {
	return s.Visual + s.Angle + s.Spatial + s.Motion + s.Landmark
}

// Validate returns an error if the Schema itself is not usable.
func (s Schema) Validate() error {
	if s.Visual <= 0 {
		return fmt.Errorf("validate: visual dimension must be positive, "+
			"have(%v)", s.Visual)
	}
	if s.Angle <= 0 || s.Angle%4 != 0 {
		return fmt.Errorf("validate: angle dimension must be a positive "+
			"multiple of 4, have(%v)", s.Angle)
	}
	if s.Spatial < 0 || s.Motion < 0 || s.Landmark < 0 {
		return fmt.Errorf("validate: negative feature dimension in %+v", s)
	}
	return nil
}

// Check returns an error wrapping ErrSchema if b does not follow s.
func (s Schema) Check(b Bundle) error {
	switch {
	case len(b.Visual) != s.Visual:
		return errors.Wrapf(ErrSchema, "visual: want(%v) have(%v)",
			s.Visual, len(b.Visual))
	case len(b.Angle) != s.Angle:
		return errors.Wrapf(ErrSchema, "angle: want(%v) have(%v)",
			s.Angle, len(b.Angle))
	case len(b.Spatial) != s.Spatial:
		return errors.Wrapf(ErrSchema, "spatial: want(%v) have(%v)",
			s.Spatial, len(b.Spatial))
	case len(b.Motion) != s.Motion:
		return errors.Wrapf(ErrSchema, "motion: want(%v) have(%v)",
			s.Motion, len(b.Motion))
	case len(b.Landmark) != s.Landmark:
		return errors.Wrapf(ErrSchema, "landmark: want(%v) have(%v)",
			s.Landmark, len(b.Landmark))
	}
	return nil
}

// AngleFeature encodes a heading and elevation as
// [sin h, cos h, sin e, cos e] repeated to fill dim values.
func AngleFeature(heading, elevation float64, dim int) []float64 {
	enc := [4]float64{
		math.Sin(heading), math.Cos(heading),
		math.Sin(elevation), math.Cos(elevation),
	}
	out := make([]float64, dim)
	for i := range out {
		out[i] = enc[i%4]
	}
	return out
}
