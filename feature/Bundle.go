package feature

// Bundle is a typed, fixed-schema collection of the feature vectors
// describing one view direction at one viewpoint.
//
// Bundles are produced by a Store and are treated as immutable: models
// never write into the slices of a Bundle.
type Bundle struct {
	Visual   []float64
	Angle    []float64
	Spatial  []float64
	Motion   []float64
	Landmark []float64
}

// NewBundle constructs a Bundle and validates it against the schema.
// Optional feature types of the schema (dimension 0) may be nil.
func NewBundle(s Schema, visual, spatial, motion, landmark []float64,
	heading, elevation float64) (Bundle, error) {
	b := Bundle{
		Visual:   visual,
		Angle:    AngleFeature(heading, elevation, s.Angle),
		Spatial:  orEmpty(spatial),
		Motion:   orEmpty(motion),
		Landmark: orEmpty(landmark),
	}
	if err := s.Check(b); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Zero returns a Bundle of all zeros for the schema. The zero Bundle
// describes the stop action and the initial previous action.
func Zero(s Schema) Bundle {
	return Bundle{
		Visual:   make([]float64, s.Visual),
		Angle:    make([]float64, s.Angle),
		Spatial:  make([]float64, s.Spatial),
		Motion:   make([]float64, s.Motion),
		Landmark: make([]float64, s.Landmark),
	}
}

// WithAngle returns a copy of b whose angle encoding is recomputed for
// the given heading and elevation. Other vectors are shared.
func (b Bundle) WithAngle(heading, elevation float64) Bundle {
	b.Angle = AngleFeature(heading, elevation, len(b.Angle))
	return b
}

// Len returns the length of the flattened Bundle.
func (b Bundle) Len() int {
	return len(b.Visual) + len(b.Angle) + len(b.Spatial) + len(b.Motion) +
		len(b.Landmark)
}

// Vector flattens the Bundle in schema order (visual, angle, spatial,
// motion, landmark). If mask is non-nil it is multiplied into the
// visual features only.
func (b Bundle) Vector(mask DropMask) []float64 {
	out := make([]float64, 0, b.Len())
	return b.AppendTo(out, mask)
}

// AppendTo appends the flattened Bundle to dst and returns the result.
func (b Bundle) AppendTo(dst []float64, mask DropMask) []float64 {
	start := len(dst)
	dst = append(dst, b.Visual...)
	if mask != nil {
		mask.apply(dst[start : start+len(b.Visual)])
	}
	dst = append(dst, b.Angle...)
	dst = append(dst, b.Spatial...)
	dst = append(dst, b.Motion...)
	return append(dst, b.Landmark...)
}

// Rows flattens a list of Bundles into a row-major matrix backing.
func Rows(bundles []Bundle, mask DropMask) []float64 {
	if len(bundles) == 0 {
		return nil
	}
	out := make([]float64, 0, len(bundles)*bundles[0].Len())
	for _, b := range bundles {
		out = b.AppendTo(out, mask)
	}
	return out
}

func orEmpty(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
