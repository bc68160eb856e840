package volume

import (
	"fmt"
	"strings"

	"orthoview/internal/models"
)

// Policy selects how a cache is populated.
type Policy int

const (
	// Eager reads the whole volume before New returns.
	Eager Policy = iota
	// OnDemand fetches only the slices that are asked for.
	OnDemand
	// Hybrid reads the whole volume in the background while still
	// fetching requested slices on demand.
	Hybrid
)

func (p Policy) String() string {
	switch p {
	case Eager:
		return "upfront"
	case OnDemand:
		return "on_demand"
	case Hybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upfront", "eager":
		return Eager, nil
	case "on_demand", "ondemand", "lazy":
		return OnDemand, nil
	case "hybrid":
		return Hybrid, nil
	default:
		return 0, fmt.Errorf("unknown download method %q", s)
	}
}

// Orientation describes a slice direction: the canonical axis the slice
// is orthogonal to, and the axes shown vertically and horizontally.
type Orientation struct {
	Name       string
	Ortho      models.Axis
	Vertical   models.Axis
	Horizontal models.Axis
}

var (
	// Transverse slices are orthogonal to z: rows along y, columns along x.
	Transverse = Orientation{Name: "transverse", Ortho: models.AxisZ, Vertical: models.AxisY, Horizontal: models.AxisX}
	// Sagittal slices are orthogonal to x: rows along z, columns along y.
	Sagittal = Orientation{Name: "sagittal", Ortho: models.AxisX, Vertical: models.AxisZ, Horizontal: models.AxisY}
	// Coronal slices are orthogonal to y: rows along z, columns along x.
	Coronal = Orientation{Name: "coronal", Ortho: models.AxisY, Vertical: models.AxisZ, Horizontal: models.AxisX}
)

// Orientations lists the three standard orientations.
var Orientations = []Orientation{Transverse, Sagittal, Coronal}

// ParseOrientation returns the orientation with the given name.
func ParseOrientation(name string) (Orientation, error) {
	for _, o := range Orientations {
		if strings.EqualFold(o.Name, name) {
			return o, nil
		}
	}
	return Orientation{}, fmt.Errorf("unknown orientation %q", name)
}

func (o Orientation) String() string { return o.Name }
