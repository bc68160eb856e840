package session

import (
	"orthoview/internal/models"
	"orthoview/pkg/space"
)

// Cursor is one position expressed in every coordinate system of the
// session. Positions whose transform is missing are left at zero and
// flagged unavailable.
type Cursor struct {
	// World is the position in template world coordinates, which the
	// common grid shares.
	World models.Point3D

	Common   models.Voxel
	Template models.Voxel

	Native          models.Point3D
	NativeVoxel     models.Voxel
	NativeAvailable bool

	// LabelPosition is the position in label atlas space.
	LabelPosition  models.Point3D
	LabelAvailable bool

	// Label is the atlas label under the cursor.
	Label string

	// Values holds what each volume shows at the cursor, in session order.
	Values []Value
}

// Value is the cached intensity of one volume under the cursor.
type Value struct {
	Alias string

	// Voxel indexes the grid the volume is cached on.
	Voxel models.Voxel

	// Intensity is the cached 0..255 value and Image its real-world
	// value through the volume's imagerange.
	Intensity byte
	Image     float64

	// Inside is false when the cursor is off the volume's cache grid or
	// cannot be placed in its space.
	Inside bool
}

// Center returns the field of view center of the template grid, the
// initial cursor position.
func (s *Session) Center() models.Point3D {
	return s.registry.Grid(models.Template).FOVCenter()
}

// Cursor synchronises position p, given in space from, across all the
// coordinate systems of the session. It fails with a missing transform
// error when p cannot be brought into template space.
func (s *Session) Cursor(from models.Space, p models.Point3D) (Cursor, error) {
	r := s.registry
	if err := r.RequireConversion(from, models.Template); err != nil {
		return Cursor{}, err
	}
	world := r.ConvertPoint(from, models.Template, p)

	c := Cursor{
		World:    world,
		Common:   s.common.PointVoxel(world),
		Template: r.WorldToVoxel(models.Template, world),
		Label:    space.NoLabel,
	}

	if r.Available(models.Template, models.Native) {
		c.NativeAvailable = true
		c.Native = r.ConvertPoint(models.Template, models.Native, world)
		c.NativeVoxel = r.WorldToVoxel(models.Native, c.Native)
	}
	if r.Available(models.Template, models.Label) {
		c.LabelAvailable = true
		c.LabelPosition = r.ConvertPoint(models.Template, models.Label, world)
	}

	labelled := false
	for _, v := range s.volumes {
		if v.Space == models.Label && !labelled {
			c.Label = v.Cache.Label(world)
			labelled = true
		}
		c.Values = append(c.Values, c.value(v))
	}
	return c, nil
}

func (c *Cursor) value(v *Volume) Value {
	val := Value{Alias: v.Alias}

	// the native cache lives on the native grid
	at := c.World
	if v.Space == models.Native {
		if !c.NativeAvailable {
			return val
		}
		at = c.Native
	}

	val.Voxel = v.Cache.Common().PointVoxel(at)
	b, ok := v.Cache.Voxel(val.Voxel)
	if !ok {
		return val
	}
	val.Intensity = b
	val.Image = v.Cache.Grid().VoxelToImage(b)
	val.Inside = true
	return val
}
