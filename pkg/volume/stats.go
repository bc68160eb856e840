package volume

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the intensities inside the volume's footprint on the
// common grid. Voxels still showing the placeholder are included.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Stats computes intensity statistics over the common-grid bounding box of
// the volume. The result is zero when the volume does not overlap the
// common grid.
func (c *Cache) Stats() Stats {
	lo, hi, ok := c.index.Bounds()
	if !ok {
		return Stats{}
	}

	values := make([]float64, 0, (hi.X-lo.X+1)*(hi.Y-lo.Y+1)*(hi.Z-lo.Z+1))
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for _, v := range c.voxels[c.offset(lo.X, y, z) : c.offset(hi.X, y, z)+1] {
				values = append(values, float64(v))
			}
		}
	}

	mean, std := stat.MeanStdDev(values, nil)
	return Stats{
		Count:  len(values),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}
}
