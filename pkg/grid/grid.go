// Package grid describes the sampling grid of a 3D image volume and
// converts positions between voxel-index space and world (physical) space.
//
// A Grid is immutable after construction. The voxel-to-world matrix is
// built from the start, step and direction cosines of each canonical axis;
// the world-to-voxel matrix is its inverse, computed once with gonum.
package grid

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"orthoview/internal/models"
	"orthoview/pkg/volerr"
)

// InverseEpsilon is the tolerance used when checking that an inverted
// affine matrix still has an implicit bottom row of [0 0 0 1].
const InverseEpsilon = 1e-8

// CanonicalOrder is the "transverse" file ordering: z slowest, x fastest.
var CanonicalOrder = [3]models.Axis{models.AxisZ, models.AxisY, models.AxisX}

// Identity is the identity direction-cosine matrix.
var Identity = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// Spec holds the raw parameters of a grid. Zero-valued Order and Cosines
// select the defaults (z,y,x order, identity cosines). ImageRange is used
// only when HasImageRange is set, otherwise the range is 0..1.
type Spec struct {
	// Start is the world coordinate of voxel 0 along each canonical axis.
	Start [3]float64

	// Step is the signed voxel spacing along each canonical axis.
	Step [3]float64

	// Size is the voxel count along each canonical axis.
	Size [3]int

	// Order lists which canonical axis occupies each file position,
	// slowest varying first.
	Order [3]models.Axis

	// Cosines holds one direction-cosine vector per canonical axis.
	Cosines [3][3]float64

	// ImageRange is the real-world intensity mapped onto voxel values 0 and 255.
	ImageRange    [2]float64
	HasImageRange bool
}

// Grid is one sampling grid plus its derived affine matrices.
type Grid struct {
	start   [3]float64
	step    [3]float64
	size    [3]int
	order   [3]models.Axis
	perm    [3]int
	cosines [3][3]float64

	imageLow  float64
	imageHigh float64

	voxelToWorld [3][4]float64
	worldToVoxel [3][4]float64
}

// NewDefault returns the standard 181x217x181, 1mm isotropic sampling with
// identity orientation, used when a volume has no explicit header.
func NewDefault() *Grid {
	g, err := New(Spec{
		Start: [3]float64{-90, -126, -72},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{181, 217, 181},
	})
	if err != nil {
		panic(fmt.Sprintf("grid: default sampling is invalid: %v", err))
	}
	return g
}

// New validates spec and derives the voxel/world matrices.
func New(spec Spec) (*Grid, error) {
	g := &Grid{
		start:     spec.Start,
		step:      spec.Step,
		size:      spec.Size,
		order:     spec.Order,
		cosines:   spec.Cosines,
		imageLow:  spec.ImageRange[0],
		imageHigh: spec.ImageRange[1],
	}
	if g.order == [3]models.Axis{} {
		g.order = CanonicalOrder
	}
	if g.cosines == [3][3]float64{} {
		g.cosines = Identity
	}
	if spec.HasImageRange {
		if err := validImageRange(g.imageLow, g.imageHigh); err != nil {
			return nil, err
		}
	} else {
		g.imageLow, g.imageHigh = 0, 1
	}

	for i := 0; i < 3; i++ {
		if g.size[i] <= 0 {
			return nil, volerr.Format("size: %s extent must be positive, got %d", models.Axis(i), g.size[i])
		}
		if g.step[i] == 0 || math.IsNaN(g.step[i]) || math.IsInf(g.step[i], 0) {
			return nil, volerr.Format("step: %s spacing must be finite and non-zero, got %g", models.Axis(i), g.step[i])
		}
	}

	seen := [3]bool{}
	for pos, a := range g.order {
		if !a.Valid() {
			return nil, volerr.Format("order: invalid axis at position %d", pos)
		}
		if seen[a] {
			return nil, volerr.Format("order: duplicate of axis %s", a)
		}
		seen[a] = true
		g.perm[a] = pos
	}

	if err := g.computeMatrices(); err != nil {
		return nil, err
	}
	return g, nil
}

func validImageRange(low, high float64) error {
	for _, v := range [2]float64{low, high} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return volerr.Format("invalid imagerange: %g %g must be finite", low, high)
		}
	}
	if low > high {
		return volerr.Format("invalid imagerange: %g > %g", low, high)
	}
	return nil
}

// computeMatrices fills voxelToWorld from start/step/cosines and inverts it.
func (g *Grid) computeMatrices() error {
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			g.voxelToWorld[row][col] = g.cosines[col][row] * g.step[col]
		}
		g.voxelToWorld[row][3] = g.cosines[0][row]*g.start[0] +
			g.cosines[1][row]*g.start[1] +
			g.cosines[2][row]*g.start[2]
	}

	inv, err := invertAffine(g.voxelToWorld)
	if err != nil {
		return err
	}
	g.worldToVoxel = inv
	return nil
}

// invertAffine inverts a 3x4 matrix with implicit bottom row [0 0 0 1].
func invertAffine(m [3][4]float64) ([3][4]float64, error) {
	var out [3][4]float64

	full := mat.NewDense(4, 4, []float64{
		m[0][0], m[0][1], m[0][2], m[0][3],
		m[1][0], m[1][1], m[1][2], m[1][3],
		m[2][0], m[2][1], m[2][2], m[2][3],
		0, 0, 0, 1,
	})

	var inv mat.Dense
	if err := inv.Inverse(full); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return out, volerr.WrapFormat(err, "voxel-to-world matrix is not invertible")
		}
	}

	bottom := []float64{inv.At(3, 0), inv.At(3, 1), inv.At(3, 2), inv.At(3, 3)}
	if !floats.EqualApprox(bottom, []float64{0, 0, 0, 1}, InverseEpsilon) {
		return out, volerr.Format("inverted voxel-to-world matrix has bottom row %v", bottom)
	}

	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[row][col] = inv.At(row, col)
		}
	}
	return out, nil
}

// VoxelToWorld maps a (possibly fractional) voxel position to world space.
func (g *Grid) VoxelToWorld(vx, vy, vz float64) (wx, wy, wz float64) {
	m := &g.voxelToWorld
	wx = m[0][0]*vx + m[0][1]*vy + m[0][2]*vz + m[0][3]
	wy = m[1][0]*vx + m[1][1]*vy + m[1][2]*vz + m[1][3]
	wz = m[2][0]*vx + m[2][1]*vy + m[2][2]*vz + m[2][3]
	return wx, wy, wz
}

// WorldToVoxel maps a world position to the nearest voxel index. Ties
// round toward +Inf.
func (g *Grid) WorldToVoxel(wx, wy, wz float64) (vx, vy, vz int) {
	m := &g.worldToVoxel
	vx = roundHalfUp(m[0][0]*wx + m[0][1]*wy + m[0][2]*wz + m[0][3])
	vy = roundHalfUp(m[1][0]*wx + m[1][1]*wy + m[1][2]*wz + m[1][3])
	vz = roundHalfUp(m[2][0]*wx + m[2][1]*wy + m[2][2]*wz + m[2][3])
	return vx, vy, vz
}

// VoxelPoint is VoxelToWorld over model types.
func (g *Grid) VoxelPoint(v models.Voxel) models.Point3D {
	x, y, z := g.VoxelToWorld(float64(v.X), float64(v.Y), float64(v.Z))
	return models.Point3D{X: x, Y: y, Z: z}
}

// PointVoxel is WorldToVoxel over model types.
func (g *Grid) PointVoxel(p models.Point3D) models.Voxel {
	x, y, z := g.WorldToVoxel(p.X, p.Y, p.Z)
	return models.Voxel{X: x, Y: y, Z: z}
}

// Contains reports whether v lies inside the grid.
func (g *Grid) Contains(v models.Voxel) bool {
	return v.X >= 0 && v.X < g.size[0] &&
		v.Y >= 0 && v.Y < g.size[1] &&
		v.Z >= 0 && v.Z < g.size[2]
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Start returns the world origin in canonical x,y,z order.
func (g *Grid) Start() [3]float64 { return g.start }

// Step returns the signed spacing in canonical x,y,z order.
func (g *Grid) Step() [3]float64 { return g.step }

// Size returns the voxel counts in canonical x,y,z order.
func (g *Grid) Size() [3]int { return g.size }

// SizeOf returns the voxel count along axis a.
func (g *Grid) SizeOf(a models.Axis) int { return g.size[a] }

// Cosines returns the direction-cosine vectors, one per canonical axis.
func (g *Grid) Cosines() [3][3]float64 { return g.cosines }

// CosinesFlat returns the direction cosines as a row-major 3x3 slice
// (x vector first), the layout used when folding them into transforms.
func (g *Grid) CosinesFlat() []float64 {
	c := g.cosines
	return []float64{
		c[0][0], c[0][1], c[0][2],
		c[1][0], c[1][1], c[1][2],
		c[2][0], c[2][1], c[2][2],
	}
}

// FileOrder returns, for each file position (slowest first), the canonical
// axis stored there.
func (g *Grid) FileOrder() [3]models.Axis { return g.order }

// FilePermutation returns, for each canonical axis, its position in the
// file. It is the inverse mapping of FileOrder.
func (g *Grid) FilePermutation() [3]int { return g.perm }

// IsCanonicalOrder reports whether the file stores z,y,x (x fastest).
func (g *Grid) IsCanonicalOrder() bool { return g.order == CanonicalOrder }

// ImageRange returns the real-world intensities mapped to voxel values 0
// and 255. Both are NaN for derived common samplings.
func (g *Grid) ImageRange() (low, high float64) { return g.imageLow, g.imageHigh }

// VoxelToImage maps a 0..255 voxel value to its real-world intensity.
func (g *Grid) VoxelToImage(v byte) float64 {
	return float64(v)/255*(g.imageHigh-g.imageLow) + g.imageLow
}

// FOVCenter returns the world position of the center of the field of view.
func (g *Grid) FOVCenter() models.Point3D {
	return g.VoxelPoint(models.Voxel{X: g.size[0] / 2, Y: g.size[1] / 2, Z: g.size[2] / 2})
}

// SameSampling reports whether g and o have identical step, start and
// orientation within tol.
func (g *Grid) SameSampling(o *Grid, tol float64) bool {
	return floats.EqualApprox(g.step[:], o.step[:], tol) &&
		floats.EqualApprox(g.start[:], o.start[:], tol) &&
		floats.EqualApprox(g.CosinesFlat(), o.CosinesFlat(), tol)
}

func (g *Grid) String() string {
	var b strings.Builder
	b.WriteString("Grid:\n")
	fmt.Fprintf(&b, "\tstart: %g %g %g\n", g.start[0], g.start[1], g.start[2])
	fmt.Fprintf(&b, "\tstep: %g %g %g\n", g.step[0], g.step[1], g.step[2])
	fmt.Fprintf(&b, "\tsize: %d %d %d\n", g.size[0], g.size[1], g.size[2])
	fmt.Fprintf(&b, "\torder: %s %s %s\n", g.order[0], g.order[1], g.order[2])
	fmt.Fprintf(&b, "\timagerange: %g %g\n", g.imageLow, g.imageHigh)
	fmt.Fprintf(&b, "\tcosines: %v\n", g.cosines)
	fmt.Fprintf(&b, "\tvoxel_to_world: %v\n", g.voxelToWorld)
	fmt.Fprintf(&b, "\tworld_to_voxel: %v", g.worldToVoxel)
	return b.String()
}
