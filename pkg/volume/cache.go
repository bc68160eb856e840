// Package volume holds one input volume resampled onto the common display
// grid and serves orthogonal slices of it.
//
// Slice requests never block on I/O. They return whatever is cached and,
// when the requested source slice has not been integrated yet, start a
// background fetch that writes into the shared voxel array and then
// notifies the caller. Concurrent fetches of the same slice write the same
// bytes, so the array is not locked.
package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"orthoview/internal/models"
	"orthoview/pkg/grid"
	"orthoview/pkg/resample"
	"orthoview/pkg/source"
	"orthoview/pkg/space"
)

// Placeholder is the intensity shown inside a volume's footprint until its
// data arrives (20% grey).
const Placeholder byte = 51

// ErrOutOfBounds is returned for slice requests outside the common grid.
var ErrOutOfBounds = errors.New("volume: position outside the common grid")

// Volume identifies the data of one input volume.
type Volume struct {
	// ID is the object name of the whole volume in Source.
	ID string

	// Grid is the sampling of the volume file.
	Grid *grid.Grid

	// Source provides the raw bytes.
	Source source.Source
}

// Cache is the common-grid voxel array of one volume.
type Cache struct {
	vol    Volume
	common *grid.Grid
	index  *resample.Index
	policy Policy

	// voxels is z-major: z*ny*nx + y*nx + x
	voxels     []byte
	nx, ny, nz int

	downloaded     [3][]atomic.Bool
	fullyPopulated atomic.Bool

	registry *space.Registry
	logger   *slog.Logger

	cancel context.CancelFunc

	// mu guards closed and the in-flight fetch count
	mu       sync.Mutex
	idle     *sync.Cond
	closed   bool
	inflight int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRegistry attaches the session registry, used by Label.
func WithRegistry(r *space.Registry) Option {
	return func(c *Cache) {
		c.registry = r
	}
}

// New allocates the cache of vol on the common grid and starts populating
// it according to policy. ctx bounds the whole-volume fetch.
//
// With Eager, New reads the whole volume before returning. A failed read
// is logged and leaves the cache in the on-demand state.
func New(ctx context.Context, vol Volume, common *grid.Grid, policy Policy, opts ...Option) (*Cache, error) {
	if vol.Grid == nil || common == nil {
		return nil, fmt.Errorf("volume %q: source and common grids are required", vol.ID)
	}
	if vol.Source == nil {
		return nil, fmt.Errorf("volume %q: no source", vol.ID)
	}
	switch policy {
	case Eager, OnDemand, Hybrid:
	default:
		return nil, fmt.Errorf("volume %q: unknown policy %s", vol.ID, policy)
	}

	size := common.Size()
	c := &Cache{
		vol:    vol,
		common: common,
		index:  resample.Build(vol.Grid, common),
		policy: policy,
		nx:     size[0],
		ny:     size[1],
		nz:     size[2],
		logger: slog.Default(),
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}

	c.voxels = make([]byte, c.nx*c.ny*c.nz)
	c.fillPlaceholder()

	srcSize := vol.Grid.Size()
	for _, a := range models.Axes {
		c.downloaded[a] = make([]atomic.Bool, srcSize[a])
	}

	ctx, c.cancel = context.WithCancel(ctx)

	switch policy {
	case Eager:
		if err := c.fetchWhole(ctx); err != nil {
			c.logger.Warn("volume: whole volume fetch failed", "volume", vol.ID, "error", err)
		}
	case Hybrid:
		c.begin()
		go func() {
			defer c.done()
			if err := c.fetchWhole(ctx); err != nil {
				c.logger.Warn("volume: background volume fetch failed", "volume", vol.ID, "error", err)
			}
		}()
	}

	return c, nil
}

// fillPlaceholder paints the mapped footprint of the volume grey and
// leaves the padding black.
func (c *Cache) fillPlaceholder() {
	lo, hi, ok := c.index.Bounds()
	if !ok {
		return
	}
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			row := c.voxels[c.offset(lo.X, y, z) : c.offset(hi.X, y, z)+1]
			for i := range row {
				row[i] = Placeholder
			}
		}
	}
}

func (c *Cache) offset(x, y, z int) int {
	return (z*c.ny+y)*c.nx + x
}

// ID returns the volume id.
func (c *Cache) ID() string { return c.vol.ID }

// Grid returns the sampling of the volume file.
func (c *Cache) Grid() *grid.Grid { return c.vol.Grid }

// Common returns the common grid the cache is laid out on.
func (c *Cache) Common() *grid.Grid { return c.common }

// Index returns the resample table from the volume grid to the common grid.
func (c *Cache) Index() *resample.Index { return c.index }

// Policy returns the population policy.
func (c *Cache) Policy() Policy { return c.policy }

// Voxel returns the cached intensity at a common-grid voxel. ok is false
// outside the grid.
func (c *Cache) Voxel(v models.Voxel) (value byte, ok bool) {
	if !c.common.Contains(v) {
		return 0, false
	}
	return c.voxels[c.offset(v.X, v.Y, v.Z)], true
}

// Downloaded reports whether source slice i orthogonal to axis has been
// integrated.
func (c *Cache) Downloaded(axis models.Axis, i int) bool {
	if i < 0 || i >= len(c.downloaded[axis]) {
		return false
	}
	return c.downloaded[axis][i].Load()
}

// FullyPopulated reports whether the whole volume has been read.
func (c *Cache) FullyPopulated() bool { return c.fullyPopulated.Load() }

// Label returns the atlas label at world position p, looked up through the
// registry's intensity table. Without a registry it returns space.NoLabel.
func (c *Cache) Label(p models.Point3D) string {
	if c.registry == nil {
		return space.NoLabel
	}
	v, ok := c.Voxel(c.common.PointVoxel(p))
	if !ok {
		return space.NoLabel
	}
	return c.registry.IntensityToLabel(int(v))
}

// SliceSize returns the rows and columns of a slice in orientation o.
func (c *Cache) SliceSize(o Orientation) (rows, cols int) {
	size := c.common.Size()
	return size[o.Vertical], size[o.Horizontal]
}

// GetSlice copies the cached common-grid slice of orientation o through
// world into out and returns its common-grid index. Row 0 of out is the
// highest vertical index. If the matching source slice has not been
// integrated, a background fetch is started and n (if not nil) is
// notified once it lands. GetSlice never waits for I/O.
func (c *Cache) GetSlice(o Orientation, world models.Point3D, out []byte, n Notifier) (int, error) {
	rows, cols := c.SliceSize(o)
	if len(out) < rows*cols {
		return 0, fmt.Errorf("volume: slice buffer holds %d bytes, need %d", len(out), rows*cols)
	}

	k := c.common.PointVoxel(world).At(o.Ortho)
	if k < 0 || k >= c.common.SizeOf(o.Ortho) {
		return 0, ErrOutOfBounds
	}

	c.copySlice(o, k, out)

	srcIndex := c.vol.Grid.PointVoxel(world).At(o.Ortho)
	if srcIndex < 0 || srcIndex >= len(c.downloaded[o.Ortho]) {
		// nothing to fetch outside the source volume
		return k, nil
	}
	if c.downloaded[o.Ortho][srcIndex].Load() || !c.begin() {
		return k, nil
	}

	go func() {
		defer c.done()
		c.fetchSlice(o, srcIndex, k, n)
	}()
	return k, nil
}

// begin registers a fetch. It returns false once the cache is closed.
func (c *Cache) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.inflight++
	return true
}

func (c *Cache) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
}

// copySlice writes slice k of orientation o into out, vertically flipped.
func (c *Cache) copySlice(o Orientation, k int, out []byte) {
	stride := [3]int{1, c.nx, c.nx * c.ny}
	rows, cols := c.SliceSize(o)
	base := k * stride[o.Ortho]
	hs := stride[o.Horizontal]
	vs := stride[o.Vertical]

	for r := 0; r < rows; r++ {
		v := rows - 1 - r
		src := base + v*vs
		dst := out[r*cols : (r+1)*cols]
		if hs == 1 {
			copy(dst, c.voxels[src:src+cols])
			continue
		}
		for h := range dst {
			dst[h] = c.voxels[src+h*hs]
		}
	}
}

// Wait blocks until every fetch started so far has finished.
// Requests made while Wait blocks are waited for too.
func (c *Cache) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

// Close cancels the background whole-volume fetch and stops new slice
// fetches from starting. Slice fetches already in flight run to
// completion.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}
