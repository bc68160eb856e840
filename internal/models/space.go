package models

import "fmt"

// Point3D is a position in a continuous (world) coordinate system, in mm.
type Point3D struct {
	X, Y, Z float64
}

// Voxel is a discrete array index triple in canonical x,y,z order.
type Voxel struct {
	X, Y, Z int
}

// At returns the component of p along the given canonical axis.
func (p Point3D) At(a Axis) float64 {
	switch a {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	default:
		return p.Z
	}
}

// At returns the component of v along the given canonical axis.
func (v Voxel) At(a Axis) int {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func (p Point3D) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

func (v Voxel) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}

// Axis identifies one of the three canonical axes, independent of how a
// given file orders them on disk.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes lists the canonical axes in x,y,z order.
var Axes = [3]Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Valid reports whether a is one of the three canonical axes.
func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisZ
}

// Space identifies one of the physical coordinate systems a cursor
// position can be expressed in.
type Space int

const (
	// Common is the shared display sampling every volume is resampled onto.
	Common Space = iota
	// Template is the standardized (MNI-like) space shared across subjects.
	Template
	// Native is the physical space of the unregistered subject scan.
	Native
	// Label is the discrete coordinate system of the anatomical atlas.
	Label
)

func (s Space) String() string {
	switch s {
	case Common:
		return "common"
	case Template:
		return "template"
	case Native:
		return "native"
	case Label:
		return "label"
	default:
		return fmt.Sprintf("space(%d)", int(s))
	}
}

// ParseSpace converts a configuration name into a Space.
func ParseSpace(name string) (Space, error) {
	switch name {
	case "common":
		return Common, nil
	case "template", "mni":
		return Template, nil
	case "native":
		return Native, nil
	case "label", "labels":
		return Label, nil
	default:
		return 0, fmt.Errorf("unknown space %q", name)
	}
}
