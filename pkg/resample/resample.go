// Package resample maps the voxels of a source grid onto the shared common
// display grid.
//
// For every canonical axis an Index holds, per source voxel index i, the
// inclusive range start[i]..end[i] of common-grid indices that source voxel
// is copied into. Source indices no common voxel maps onto carry an empty
// range (start > end) and are never written.
package resample

import (
	"gonum.org/v1/gonum/floats"

	"orthoview/internal/models"
	"orthoview/pkg/grid"
)

// Tolerance is used when comparing steps, starts and direction cosines of
// two grids.
const Tolerance = 1e-6

const (
	droppedStart = -1
	droppedEnd   = -2
)

// Index is the per-axis source-to-common index table of one volume.
type Index struct {
	start [3][]int
	end   [3][]int

	// offset[a] is start[a][i]-i for every mapped i. Only meaningful on the
	// fast path.
	offset [3]int

	// first/last mapped source index per axis, -1 when none.
	first [3]int
	last  [3]int

	fastPath bool
	identity bool

	boundsMin models.Voxel
	boundsMax models.Voxel
	empty     bool
}

// Build computes the table mapping source onto common.
//
// Common voxel c along axis a is mapped through world space back to a
// source index using the common grid corner at 0 on the other two axes.
// Every source index hit by at least one c receives the first and last
// such c. Indices outside the source extent are ignored.
func Build(source, common *grid.Grid) *Index {
	ix := &Index{}
	ix.fastPath = isFastPath(source, common)

	ix.identity = ix.fastPath && source.SameSampling(common, Tolerance)

	srcSize := source.Size()
	comSize := common.Size()

	for _, a := range models.Axes {
		n := srcSize[a]
		ix.start[a] = make([]int, n)
		ix.end[a] = make([]int, n)
		for i := 0; i < n; i++ {
			ix.start[a][i] = droppedStart
			ix.end[a][i] = droppedEnd
		}

		if ix.identity {
			for i := 0; i < n && i < comSize[a]; i++ {
				ix.start[a][i] = i
				ix.end[a][i] = i
			}
			continue
		}

		last := -1
		for c := 0; c < comSize[a]; c++ {
			var corner [3]float64
			corner[a] = float64(c)
			wx, wy, wz := common.VoxelToWorld(corner[0], corner[1], corner[2])
			v := source.PointVoxel(models.Point3D{X: wx, Y: wy, Z: wz})

			i := v.At(a)
			if i < 0 || i >= n {
				continue
			}
			if i != last {
				ix.start[a][i] = c
				ix.end[a][i] = c
				last = i
			} else {
				ix.end[a][i] = c
			}
		}
	}

	ix.computeOffsets()
	ix.computeBounds()
	return ix
}

// isFastPath reports whether every source step equals the isotropic common
// step, the orientations match and both grids store z,y,x.
func isFastPath(source, common *grid.Grid) bool {
	if !source.IsCanonicalOrder() || !common.IsCanonicalOrder() {
		return false
	}
	cs := common.Step()
	if !floats.EqualApprox(cs[:], []float64{cs[0], cs[0], cs[0]}, Tolerance) {
		return false
	}
	ss := source.Step()
	if !floats.EqualApprox(ss[:], cs[:], Tolerance) {
		return false
	}
	return floats.EqualApprox(source.CosinesFlat(), common.CosinesFlat(), Tolerance)
}

func (ix *Index) computeOffsets() {
	for _, a := range models.Axes {
		ix.first[a], ix.last[a] = -1, -1
		for i, s := range ix.start[a] {
			if s > ix.end[a][i] {
				continue
			}
			if ix.first[a] < 0 {
				ix.first[a] = i
				ix.offset[a] = s - i
			}
			ix.last[a] = i
		}
	}
}

func (ix *Index) computeBounds() {
	var lo, hi [3]int
	for _, a := range models.Axes {
		lo[a], hi[a] = -1, -1
		for i, s := range ix.start[a] {
			e := ix.end[a][i]
			if s > e {
				continue
			}
			if lo[a] < 0 || s < lo[a] {
				lo[a] = s
			}
			if e > hi[a] {
				hi[a] = e
			}
		}
		if lo[a] < 0 {
			ix.empty = true
		}
	}
	ix.boundsMin = models.Voxel{X: lo[0], Y: lo[1], Z: lo[2]}
	ix.boundsMax = models.Voxel{X: hi[0], Y: hi[1], Z: hi[2]}
}

// Range returns the inclusive common-grid range source index i maps onto
// along axis a. The range is empty (start > end) when i is dropped or out
// of the source extent.
func (ix *Index) Range(a models.Axis, i int) (start, end int) {
	if i < 0 || i >= len(ix.start[a]) {
		return droppedStart, droppedEnd
	}
	return ix.start[a][i], ix.end[a][i]
}

// Len returns the number of source indices along axis a.
func (ix *Index) Len(a models.Axis) int { return len(ix.start[a]) }

// FastPath reports whether every source voxel maps onto exactly one common
// voxel at a constant per-axis offset, so rows can be copied in bulk.
func (ix *Index) FastPath() bool { return ix.fastPath }

// Offset returns start[a][i]-i for mapped indices. Only meaningful when
// FastPath is true.
func (ix *Index) Offset(a models.Axis) int { return ix.offset[a] }

// Mapped returns the first and last source index along axis a that maps
// into the common grid. ok is false when none does.
func (ix *Index) Mapped(a models.Axis) (first, last int, ok bool) {
	return ix.first[a], ix.last[a], ix.first[a] >= 0
}

// Bounds returns the inclusive common-grid bounding box covered by the
// source volume. ok is false when the source does not overlap the common
// grid at all.
func (ix *Index) Bounds() (min, max models.Voxel, ok bool) {
	return ix.boundsMin, ix.boundsMax, !ix.empty
}
