package volume

import (
	"context"
	"fmt"
	"time"

	"orthoview/pkg/source"
)

// fetchSlice downloads source slice srcIndex orthogonal to o.Ortho,
// integrates it and notifies n. A failure is logged and leaves the slice
// marked as missing so the next request retries it.
func (c *Cache) fetchSlice(o Orientation, srcIndex, commonIndex int, n Notifier) {
	started := time.Now()
	if err := c.loadSlice(context.Background(), o, srcIndex); err != nil {
		c.logger.Warn("volume: slice fetch failed",
			"volume", c.vol.ID,
			"orientation", o.Name,
			"index", srcIndex,
			"error", err)
		return
	}
	c.logger.Debug("volume: slice fetched",
		"volume", c.vol.ID,
		"orientation", o.Name,
		"index", srcIndex,
		"elapsed", time.Since(started))

	if n != nil {
		n.OnSliceReady(SliceReady{
			Volume:      c.vol.ID,
			Axis:        o.Ortho,
			Index:       commonIndex,
			SourceIndex: srcIndex,
		})
	}
}

func (c *Cache) loadSlice(ctx context.Context, o Orientation, srcIndex int) error {
	perm := c.vol.Grid.FilePermutation()
	pair, err := source.PairOf(perm[o.Vertical], perm[o.Horizontal])
	if err != nil {
		return err
	}
	sizeV := c.vol.Grid.SizeOf(o.Vertical)
	sizeH := c.vol.Grid.SizeOf(o.Horizontal)

	rc, err := c.vol.Source.OpenSlice(ctx, c.vol.ID, pair, srcIndex)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, sizeV*sizeH)
	if err := source.ReadFull(rc, buf, source.SliceKey(c.vol.ID, pair, srcIndex)); err != nil {
		return err
	}

	s := slab{data: buf}
	s.start[perm[o.Ortho]] = srcIndex
	s.size[perm[o.Ortho]] = 1
	s.size[perm[o.Vertical]] = sizeV
	s.size[perm[o.Horizontal]] = sizeH
	c.saveSlab(s)

	c.downloaded[o.Ortho][srcIndex].Store(true)
	return nil
}

// fetchWhole streams the whole volume file one slowest-axis slab at a time.
// Each completed slab marks its source slice as downloaded; the remaining
// axes are marked once the last slab lands.
func (c *Cache) fetchWhole(ctx context.Context) error {
	order := c.vol.Grid.FileOrder()
	size := c.vol.Grid.Size()
	n0, n1, n2 := size[order[0]], size[order[1]], size[order[2]]

	rc, err := c.vol.Source.OpenWhole(ctx, c.vol.ID)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, n1*n2)
	for d0 := 0; d0 < n0; d0++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := source.ReadFull(rc, buf, c.vol.ID); err != nil {
			return fmt.Errorf("slab %d of %d: %w", d0, n0, err)
		}
		c.saveSlab(slab{
			data:  buf,
			start: [3]int{d0, 0, 0},
			size:  [3]int{1, n1, n2},
		})
		c.downloaded[order[0]][d0].Store(true)
	}

	for _, a := range order[1:] {
		for i := range c.downloaded[a] {
			c.downloaded[a][i].Store(true)
		}
	}
	c.fullyPopulated.Store(true)
	c.logger.Debug("volume: whole volume fetched", "volume", c.vol.ID, "slabs", n0)
	return nil
}
