package grid

import (
	"errors"
	"math"
)

// CommonSampling returns the display grid shared by all the given grids.
// It has an isotropic, positive step equal to the smallest |step| of any
// axis of any grid, and a start/size covering the union of their fields of
// view. Orientation is identity, order is z,y,x and the image range is NaN.
func CommonSampling(grids ...*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, errors.New("grid: common sampling of an empty list")
	}

	step := math.Inf(1)
	for _, g := range grids {
		for _, s := range g.step {
			step = math.Min(step, math.Abs(s))
		}
	}

	spec := Spec{Step: [3]float64{step, step, step}}
	for axis := 0; axis < 3; axis++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, g := range grids {
			// voxel edges, steps may be negative
			first := g.start[axis] - g.step[axis]/2
			last := g.start[axis] + g.step[axis]*float64(g.size[axis]-1) + g.step[axis]/2
			lo = math.Min(lo, math.Min(first, last))
			hi = math.Max(hi, math.Max(first, last))
		}
		// voxel centers sit half a step inside the field of view
		lo += step / 2
		hi -= step / 2

		spec.Start[axis] = lo
		spec.Size[axis] = 1 + int(math.Ceil((hi-lo)/step))
	}

	g, err := New(spec)
	if err != nil {
		return nil, err
	}
	g.imageLow, g.imageHigh = math.NaN(), math.NaN()
	return g, nil
}
