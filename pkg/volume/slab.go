package volume

import (
	"orthoview/internal/models"
)

// slab is a box of source voxels in file order: start and size are indexed
// by file position (0 slowest) and data is laid out with position 2
// varying fastest.
type slab struct {
	data  []byte
	start [3]int
	size  [3]int
}

// saveSlab copies every mapped voxel of s into the cache. Writing the same
// slab twice leaves the cache unchanged.
func (c *Cache) saveSlab(s slab) {
	if c.index.FastPath() {
		c.saveSlabFast(s)
		return
	}
	c.saveSlabGeneral(s)
}

// saveSlabGeneral replicates each source voxel over its full common-grid
// range on all three axes.
func (c *Cache) saveSlabGeneral(s slab) {
	order := c.vol.Grid.FileOrder()
	var lo, hi [3]int
	var at [3]int

	for p0 := 0; p0 < s.size[0]; p0++ {
		lo[0], hi[0] = c.index.Range(order[0], s.start[0]+p0)
		if lo[0] > hi[0] {
			continue
		}
		for p1 := 0; p1 < s.size[1]; p1++ {
			lo[1], hi[1] = c.index.Range(order[1], s.start[1]+p1)
			if lo[1] > hi[1] {
				continue
			}
			row := s.data[(p0*s.size[1]+p1)*s.size[2]:]
			for p2 := 0; p2 < s.size[2]; p2++ {
				lo[2], hi[2] = c.index.Range(order[2], s.start[2]+p2)
				if lo[2] > hi[2] {
					continue
				}
				value := row[p2]
				for at[0] = lo[0]; at[0] <= hi[0]; at[0]++ {
					for at[1] = lo[1]; at[1] <= hi[1]; at[1]++ {
						for at[2] = lo[2]; at[2] <= hi[2]; at[2]++ {
							var v [3]int
							v[order[0]] = at[0]
							v[order[1]] = at[1]
							v[order[2]] = at[2]
							c.voxels[c.offset(v[models.AxisX], v[models.AxisY], v[models.AxisZ])] = value
						}
					}
				}
			}
		}
	}
}

// saveSlabFast handles the one-to-one case: the file is stored z,y,x and
// every mapped source voxel lands on exactly one common voxel at a fixed
// offset, so x runs are copied directly.
func (c *Cache) saveSlabFast(s slab) {
	firstX, lastX, ok := c.index.Mapped(models.AxisX)
	if !ok {
		return
	}
	x0 := max(s.start[2], firstX)
	x1 := min(s.start[2]+s.size[2]-1, lastX)
	if x0 > x1 {
		return
	}
	offX := c.index.Offset(models.AxisX)

	for p0 := 0; p0 < s.size[0]; p0++ {
		z, zEnd := c.index.Range(models.AxisZ, s.start[0]+p0)
		if z > zEnd {
			continue
		}
		for p1 := 0; p1 < s.size[1]; p1++ {
			y, yEnd := c.index.Range(models.AxisY, s.start[1]+p1)
			if y > yEnd {
				continue
			}
			src := (p0*s.size[1]+p1)*s.size[2] + (x0 - s.start[2])
			dst := c.offset(x0+offX, y, z)
			copy(c.voxels[dst:dst+x1-x0+1], s.data[src:src+x1-x0+1])
		}
	}
}
