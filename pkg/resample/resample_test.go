package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orthoview/internal/models"
	"orthoview/pkg/grid"
)

func newGrid(t *testing.T, spec grid.Spec) *grid.Grid {
	t.Helper()
	g, err := grid.New(spec)
	require.NoError(t, err)
	return g
}

// TestBuildIdentity verifies equal grids take the fast path with start=end=i.
func TestBuildIdentity(t *testing.T) {
	common := grid.NewDefault()
	ix := Build(grid.NewDefault(), common)

	require.True(t, ix.FastPath())
	for _, a := range models.Axes {
		require.Equal(t, common.SizeOf(a), ix.Len(a))
		for i := 0; i < ix.Len(a); i++ {
			start, end := ix.Range(a, i)
			assert.Equal(t, i, start, "axis %s index %d", a, i)
			assert.Equal(t, i, end, "axis %s index %d", a, i)
		}
		assert.Equal(t, 0, ix.Offset(a))
	}

	lo, hi, ok := ix.Bounds()
	require.True(t, ok)
	assert.Equal(t, models.Voxel{}, lo)
	assert.Equal(t, models.Voxel{X: 180, Y: 216, Z: 180}, hi)
}

// TestBuildFastPathWithOffset verifies a same-step grid with another origin
// maps at a constant offset.
func TestBuildFastPathWithOffset(t *testing.T) {
	common := grid.NewDefault()
	source := newGrid(t, grid.Spec{
		Start: [3]float64{-80, -100, -60},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{10, 10, 10},
	})

	ix := Build(source, common)
	require.True(t, ix.FastPath())

	want := [3]int{10, 26, 12}
	for _, a := range models.Axes {
		assert.Equal(t, want[a], ix.Offset(a), "axis %s", a)
		for i := 0; i < ix.Len(a); i++ {
			start, end := ix.Range(a, i)
			assert.Equal(t, i+want[a], start)
			assert.Equal(t, start, end)
		}
	}
}

// TestBuildDropsOutsideIndices verifies source voxels outside the common
// grid get an empty range.
func TestBuildDropsOutsideIndices(t *testing.T) {
	common := grid.NewDefault()
	source := newGrid(t, grid.Spec{
		Start: [3]float64{-100, -126, -72},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{300, 217, 181},
	})

	ix := Build(source, common)
	require.True(t, ix.FastPath())

	for i := 0; i < 10; i++ {
		start, end := ix.Range(models.AxisX, i)
		assert.Greater(t, start, end, "index %d should be dropped", i)
	}
	start, end := ix.Range(models.AxisX, 10)
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)

	for i := 191; i < 300; i++ {
		start, end := ix.Range(models.AxisX, i)
		assert.Greater(t, start, end, "index %d should be dropped", i)
	}

	first, last, ok := ix.Mapped(models.AxisX)
	require.True(t, ok)
	assert.Equal(t, 10, first)
	assert.Equal(t, 190, last)

	start, end = ix.Range(models.AxisX, -1)
	assert.Greater(t, start, end)
	start, end = ix.Range(models.AxisX, 300)
	assert.Greater(t, start, end)
}

// TestBuildCoarseSource verifies a 2mm source in a 1mm common grid.
func TestBuildCoarseSource(t *testing.T) {
	common := grid.NewDefault()
	source := newGrid(t, grid.Spec{
		Start: [3]float64{-70, -100, -60},
		Step:  [3]float64{2, 2, 2},
		Size:  [3]int{70, 100, 60},
	})

	ix := Build(source, common)
	assert.False(t, ix.FastPath())

	start, end := ix.Range(models.AxisX, 0)
	assert.Equal(t, 19, start)
	assert.Equal(t, 20, end)

	start, end = ix.Range(models.AxisX, 69)
	assert.Equal(t, 157, start)
	assert.Equal(t, 158, end)

	lo, hi, ok := ix.Bounds()
	require.True(t, ok)
	assert.Equal(t, models.Voxel{X: 19, Y: 25, Z: 11}, lo)
	// y runs past the top of the common grid
	assert.Equal(t, models.Voxel{X: 158, Y: 216, Z: 130}, hi)
}

// TestBuildMonotonic verifies ranges never overlap and tile the covered
// common extent: increasing with the source index for positive steps and
// decreasing for negative ones.
func TestBuildMonotonic(t *testing.T) {
	common := grid.NewDefault()
	sources := map[string]*grid.Grid{
		"coarse": newGrid(t, grid.Spec{
			Start: [3]float64{-70, -100, -60},
			Step:  [3]float64{2, 2, 2},
			Size:  [3]int{70, 100, 60},
		}),
		"anisotropic": newGrid(t, grid.Spec{
			Start: [3]float64{-95.3, -130, -70.25},
			Step:  [3]float64{1.5, 3, 0.8},
			Size:  [3]int{120, 80, 200},
			Order: [3]models.Axis{models.AxisX, models.AxisZ, models.AxisY},
		}),
		"negative": newGrid(t, grid.Spec{
			Start: [3]float64{70, 100, 60},
			Step:  [3]float64{-2, -2, -2},
			Size:  [3]int{70, 100, 60},
		}),
		"mixed": newGrid(t, grid.Spec{
			Start: [3]float64{60, -100, 50},
			Step:  [3]float64{-2, 1, -1.5},
			Size:  [3]int{60, 150, 70},
		}),
	}

	for name, source := range sources {
		ix := Build(source, common)
		step := source.Step()
		for _, a := range models.Axes {
			prevStart, prevEnd := -1, -1
			mapped := 0
			for i := 0; i < ix.Len(a); i++ {
				start, end := ix.Range(a, i)
				if start > end {
					continue
				}
				mapped++
				assert.GreaterOrEqual(t, start, 0, "%s axis %s", name, a)
				assert.Less(t, end, common.SizeOf(a), "%s axis %s", name, a)
				if prevEnd >= 0 {
					if step[a] > 0 {
						assert.Equal(t, prevEnd+1, start, "%s axis %s index %d", name, a, i)
					} else {
						assert.Equal(t, prevStart-1, end, "%s axis %s index %d", name, a, i)
					}
				}
				prevStart, prevEnd = start, end
			}
			assert.Positive(t, mapped, "%s axis %s", name, a)
		}
	}
}

// TestBuildNegativeStep verifies a flipped 1mm axis maps each source voxel
// onto one common voxel counting down.
func TestBuildNegativeStep(t *testing.T) {
	common := grid.NewDefault()
	source := newGrid(t, grid.Spec{
		Start: [3]float64{10, -126, -72},
		Step:  [3]float64{-1, 1, 1},
		Size:  [3]int{5, 217, 181},
	})

	ix := Build(source, common)
	assert.False(t, ix.FastPath())

	for i := 0; i < 5; i++ {
		start, end := ix.Range(models.AxisX, i)
		assert.Equal(t, 100-i, start, "index %d", i)
		assert.Equal(t, 100-i, end, "index %d", i)
	}

	first, last, ok := ix.Mapped(models.AxisX)
	require.True(t, ok)
	assert.Equal(t, 0, first)
	assert.Equal(t, 4, last)

	lo, hi, ok := ix.Bounds()
	require.True(t, ok)
	assert.Equal(t, 96, lo.X)
	assert.Equal(t, 100, hi.X)
}

// TestBuildNonCanonicalOrderIsNotFast verifies axis order disables the fast path.
func TestBuildNonCanonicalOrderIsNotFast(t *testing.T) {
	source := newGrid(t, grid.Spec{
		Start: [3]float64{-90, -126, -72},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{181, 217, 181},
		Order: [3]models.Axis{models.AxisX, models.AxisY, models.AxisZ},
	})

	ix := Build(source, grid.NewDefault())
	assert.False(t, ix.FastPath())

	// the table itself is still the identity
	for i := 0; i < ix.Len(models.AxisY); i++ {
		start, end := ix.Range(models.AxisY, i)
		assert.Equal(t, i, start)
		assert.Equal(t, i, end)
	}
}

// TestBuildNoOverlap verifies a source entirely outside the common grid.
func TestBuildNoOverlap(t *testing.T) {
	source := newGrid(t, grid.Spec{
		Start: [3]float64{500, 500, 500},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{5, 5, 5},
	})

	ix := Build(source, grid.NewDefault())
	_, _, ok := ix.Bounds()
	assert.False(t, ok)
	_, _, ok = ix.Mapped(models.AxisZ)
	assert.False(t, ok)
}
