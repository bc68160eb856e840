// Package space converts cursor positions between the physical coordinate
// systems of a viewing session: the common display grid, the template
// (MNI-like) space, the subject's native space and the label atlas space.
//
// Conversions that need a transform which was never configured return the
// zero value rather than an error. Callers display that as "unavailable".
package space

import (
	"fmt"
	"log/slog"
	"sync"

	"orthoview/internal/models"
	"orthoview/pkg/grid"
	"orthoview/pkg/volerr"
)

// NoLabel is returned for intensities outside the labelled range.
const NoLabel = "no_label"

// TransformKind selects one of the externally supplied transforms.
type TransformKind int

const (
	// NativeToTemplate maps native world coordinates to template space.
	NativeToTemplate TransformKind = iota
	// LabelToTemplate maps label space coordinates to template space.
	LabelToTemplate
)

func (k TransformKind) String() string {
	switch k {
	case NativeToTemplate:
		return "native->template"
	case LabelToTemplate:
		return "label->template"
	default:
		return fmt.Sprintf("transform(%d)", int(k))
	}
}

// transform holds a forward matrix and its inverse. inverse is nil when
// the forward matrix is singular.
type transform struct {
	forward Matrix12
	inverse *Matrix12
}

// Registry holds the grids, transforms and label table of one session.
// It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	grids      map[models.Space]*grid.Grid
	transforms map[TransformKind]*transform
	labels     LabelTable

	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for inversion warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		grids:      make(map[models.Space]*grid.Grid),
		transforms: make(map[TransformKind]*transform),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetGrids stores the common grid and, when configured, the template and
// native grids. nil template or native grids are allowed.
func (r *Registry) SetGrids(common, template, native *grid.Grid) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.grids = map[models.Space]*grid.Grid{models.Common: common}
	if template != nil {
		r.grids[models.Template] = template
	}
	if native != nil {
		r.grids[models.Native] = native
	}
}

// Grid returns the grid registered for s, or nil.
func (r *Registry) Grid(s models.Space) *grid.Grid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grids[s]
}

// SetTransform stores m for kind and precomputes its inverse. If m is
// singular the forward direction is kept, the reverse direction stays
// unavailable and the SingularMatrixError is returned.
func (r *Registry) SetTransform(kind TransformKind, m Matrix12) error {
	inv, err := r.Invert12(m)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[kind] = &transform{forward: m, inverse: inv}
	return err
}

// Transform returns the forward matrix stored for kind.
func (r *Registry) Transform(kind TransformKind) (Matrix12, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[kind]
	if !ok {
		return Matrix12{}, false
	}
	return t.forward, true
}

// ComposeDirectionCosines replaces the transform stored for kind with
// ComposeDirectionCosines(t, pre, post) and recomputes its inverse.
func (r *Registry) ComposeDirectionCosines(kind TransformKind, pre, post []float64) error {
	t, ok := r.Transform(kind)
	if !ok {
		return volerr.MissingTransform(kind, models.Template)
	}
	return r.SetTransform(kind, ComposeDirectionCosines(t, pre, post))
}

// Invert12 inverts m. A near-zero determinant is logged and returned as a
// SingularMatrixError. A reconstructed bottom row other than [0 0 0 1] is
// logged but the computed inverse is still returned.
func (r *Registry) Invert12(m Matrix12) (*Matrix12, error) {
	res, err := invert12(m)
	if err != nil {
		r.logger.Warn("space: transform is not invertible", "determinant", res.det, "matrix", m.String())
		return nil, err
	}
	if !res.bottomOK {
		r.logger.Warn("space: problem calculating the inverse transform", "bottom_row", res.bottom)
	}
	inv := res.inverse
	return &inv, nil
}

// matrix returns the forward or inverse matrix of kind, or nil.
func (r *Registry) matrix(kind TransformKind, inverse bool) *Matrix12 {
	t, ok := r.transforms[kind]
	if !ok {
		return nil
	}
	if inverse {
		return t.inverse
	}
	m := t.forward
	return &m
}

// chain returns the matrices to apply, in order, to go from one space to
// another. ok is false when a needed transform is absent.
func (r *Registry) chain(from, to models.Space) (steps []*Matrix12, ok bool) {
	from, to = worldOf(from), worldOf(to)
	if from == to {
		return nil, true
	}

	// everything goes through template space
	if from != models.Template {
		m := r.matrix(toTemplate(from), false)
		if m == nil {
			return nil, false
		}
		steps = append(steps, m)
	}
	if to != models.Template {
		m := r.matrix(toTemplate(to), true)
		if m == nil {
			return nil, false
		}
		steps = append(steps, m)
	}
	return steps, true
}

// worldOf maps the common display space onto the template world it shares.
func worldOf(s models.Space) models.Space {
	if s == models.Common {
		return models.Template
	}
	return s
}

func toTemplate(s models.Space) TransformKind {
	if s == models.Label {
		return LabelToTemplate
	}
	return NativeToTemplate
}

// ConvertPoint maps p from one space's world coordinates to another's. It
// returns the zero point when a required transform is absent or singular.
func (r *Registry) ConvertPoint(from, to models.Space, p models.Point3D) models.Point3D {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps, ok := r.chain(from, to)
	if !ok {
		return models.Point3D{}
	}
	for _, m := range steps {
		p = m.Apply(p)
	}
	return p
}

// Available reports whether ConvertPoint(from, to, ...) has the transforms
// it needs.
func (r *Registry) Available(from, to models.Space) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chain(from, to)
	return ok
}

// RequireConversion returns a MissingTransformError when from and to are
// not linked by configured transforms.
func (r *Registry) RequireConversion(from, to models.Space) error {
	if !r.Available(from, to) {
		return volerr.MissingTransform(from, to)
	}
	return nil
}

// VoxelToWorld converts a voxel of space s's grid to world coordinates.
// Returns the zero point when s has no grid.
func (r *Registry) VoxelToWorld(s models.Space, v models.Voxel) models.Point3D {
	g := r.Grid(s)
	if g == nil {
		return models.Point3D{}
	}
	return g.VoxelPoint(v)
}

// WorldToVoxel converts world coordinates to a voxel of space s's grid.
// Returns the zero voxel when s has no grid.
func (r *Registry) WorldToVoxel(s models.Space, p models.Point3D) models.Voxel {
	g := r.Grid(s)
	if g == nil {
		return models.Voxel{}
	}
	return g.PointVoxel(p)
}

// SetLabels replaces the intensity to label table.
func (r *Registry) SetLabels(t LabelTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = t
}

// IntensityToLabel names the atlas label of an intensity. Intensities <= 0
// or >= 254 have no label.
func (r *Registry) IntensityToLabel(intensity int) string {
	if intensity <= 0 || intensity >= 254 {
		return NoLabel
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if label, ok := r.labels[intensity]; ok {
		return label
	}
	return fmt.Sprintf("unknown intensity: %d", intensity)
}
