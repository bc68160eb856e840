package grid

import (
	"math"
	"testing"

	"orthoview/internal/models"
	"orthoview/pkg/volerr"
)

func exampleNative(t *testing.T) *Grid {
	t.Helper()
	g, err := New(Spec{
		Start: [3]float64{-70, -100, -60},
		Step:  [3]float64{2, 2, 2},
		Size:  [3]int{70, 100, 60},
	})
	if err != nil {
		t.Fatalf("Failed to create native grid: %v", err)
	}
	return g
}

func rotatedGrid(t *testing.T) *Grid {
	t.Helper()
	theta := math.Pi / 6
	c, s := math.Cos(theta), math.Sin(theta)
	g, err := New(Spec{
		Start:   [3]float64{12.5, -40, 3},
		Step:    [3]float64{0.75, -1.25, 3},
		Size:    [3]int{40, 30, 12},
		Order:   [3]models.Axis{models.AxisY, models.AxisX, models.AxisZ},
		Cosines: [3][3]float64{{c, s, 0}, {-s, c, 0}, {0, 0, 1}},
	})
	if err != nil {
		t.Fatalf("Failed to create rotated grid: %v", err)
	}
	return g
}

// TestVoxelWorldRoundTrip verifies WorldToVoxel(VoxelToWorld(v)) == v for every voxel
func TestVoxelWorldRoundTrip(t *testing.T) {
	grids := map[string]*Grid{
		"default": NewDefault(),
		"native":  exampleNative(t),
		"rotated": rotatedGrid(t),
	}

	for name, g := range grids {
		size := g.Size()
		for z := 0; z < size[2]; z += 3 {
			for y := 0; y < size[1]; y += 5 {
				for x := 0; x < size[0]; x += 7 {
					wx, wy, wz := g.VoxelToWorld(float64(x), float64(y), float64(z))
					vx, vy, vz := g.WorldToVoxel(wx, wy, wz)
					if vx != x || vy != y || vz != z {
						t.Fatalf("%s: expected voxel (%d, %d, %d), got (%d, %d, %d)", name, x, y, z, vx, vy, vz)
					}
				}
			}
		}
	}
}

// TestDefaultGrid verifies the fallback sampling
func TestDefaultGrid(t *testing.T) {
	g := NewDefault()

	if g.Size() != [3]int{181, 217, 181} {
		t.Errorf("Expected size 181x217x181, got %v", g.Size())
	}
	if !g.IsCanonicalOrder() {
		t.Errorf("Expected canonical z,y,x order, got %v", g.FileOrder())
	}

	v := g.PointVoxel(models.Point3D{})
	if v != (models.Voxel{X: 90, Y: 126, Z: 72}) {
		t.Errorf("Expected world origin at voxel (90, 126, 72), got %v", v)
	}

	low, high := g.ImageRange()
	if low != 0 || high != 1 {
		t.Errorf("Expected image range 0..1, got %g..%g", low, high)
	}
}

// TestWorldToVoxelRoundsHalfUp verifies ties round toward +Inf
func TestWorldToVoxelRoundsHalfUp(t *testing.T) {
	g := NewDefault()

	tests := []struct {
		world float64
		want  int
	}{
		{-89.5, 1},
		{-90.5, 0},
		{-90.51, -1},
		{0.49, 90},
		{0.5, 91},
	}

	for _, tc := range tests {
		vx, _, _ := g.WorldToVoxel(tc.world, 0, 0)
		if vx != tc.want {
			t.Errorf("World x %g: expected voxel %d, got %d", tc.world, tc.want, vx)
		}
	}
}

// TestFilePermutation verifies order and permutation are inverse mappings
func TestFilePermutation(t *testing.T) {
	g := rotatedGrid(t)

	order := g.FileOrder()
	perm := g.FilePermutation()
	for pos, axis := range order {
		if perm[axis] != pos {
			t.Errorf("Axis %s: expected file position %d, got %d", axis, pos, perm[axis])
		}
	}
	if g.IsCanonicalOrder() {
		t.Error("Expected y,x,z order not to be canonical")
	}
}

// TestParseHeader verifies a complete header is parsed
func TestParseHeader(t *testing.T) {
	header := `# native scan
size= 70 100 60
start = -70, -100, -60
step=2	2	2
order = z y x
imagerange: -1.5 300
xspace_direction_cosines= 1 0 0
`
	g, err := Parse([]byte(header))
	if err != nil {
		t.Fatalf("Failed to parse header: %v", err)
	}

	if g.Size() != [3]int{70, 100, 60} {
		t.Errorf("Expected size 70x100x60, got %v", g.Size())
	}
	if g.Start() != [3]float64{-70, -100, -60} {
		t.Errorf("Expected start (-70,-100,-60), got %v", g.Start())
	}
	if g.Cosines() != Identity {
		t.Errorf("Expected identity cosines, got %v", g.Cosines())
	}

	low, high := g.ImageRange()
	if low != -1.5 || high != 300 {
		t.Errorf("Expected image range -1.5..300, got %g..%g", low, high)
	}

	v := g.PointVoxel(models.Point3D{})
	if v != (models.Voxel{X: 35, Y: 50, Z: 30}) {
		t.Errorf("Expected world origin at voxel (35, 50, 30), got %v", v)
	}
}

// TestParseHeaderErrors verifies malformed headers are rejected as format errors
func TestParseHeaderErrors(t *testing.T) {
	const base = "size=10 10 10\nstart=0 0 0\nstep=1 1 1\n"

	tests := map[string]string{
		"missing size":     "start=0 0 0\nstep=1 1 1\n",
		"missing start":    "size=10 10 10\nstep=1 1 1\n",
		"missing step":     "size=10 10 10\nstart=0 0 0\n",
		"short size":       "size=10 10\nstart=0 0 0\nstep=1 1 1\n",
		"negative size":    "size=10 -1 10\nstart=0 0 0\nstep=1 1 1\n",
		"bad number":       "size=10 10 10\nstart=0 zero 0\nstep=1 1 1\n",
		"zero step":        "size=10 10 10\nstart=0 0 0\nstep=1 0 1\n",
		"duplicate order":  base + "order=z z x\n",
		"unknown order":    base + "order=z y w\n",
		"inverted range":   base + "imagerange=2 1\n",
		"infinite range":   base + "imagerange=0 +Inf\n",
		"NaN low range":    base + "imagerange=NaN 1\n",
		"NaN high range":   base + "imagerange=0 NaN\n",
		"unknown key":      base + "colour=red\n",
		"no separator":     base + "just words\n",
		"singular cosines": base + "xspace_direction_cosines=0 0 0\nyspace_direction_cosines=0 0 0\n",
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(header))
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !volerr.IsFormat(err) {
				t.Errorf("Expected a format error, got %v", err)
			}
		})
	}
}

// TestCommonSampling verifies the union field of view and the isotropic step
func TestCommonSampling(t *testing.T) {
	def := NewDefault()

	same, err := CommonSampling(def)
	if err != nil {
		t.Fatalf("Failed to compute common sampling: %v", err)
	}
	if same.Size() != def.Size() || same.Start() != def.Start() || same.Step() != def.Step() {
		t.Errorf("Expected common sampling of the default grid to equal it, got %s", same)
	}

	union, err := CommonSampling(def, exampleNative(t))
	if err != nil {
		t.Fatalf("Failed to compute common sampling: %v", err)
	}
	if union.Size() != def.Size() || union.Start() != def.Start() {
		t.Errorf("Expected the default grid to contain the native one, got %s", union)
	}

	low, high := union.ImageRange()
	if !math.IsNaN(low) || !math.IsNaN(high) {
		t.Errorf("Expected NaN image range, got %g..%g", low, high)
	}

	fine, err := New(Spec{Start: [3]float64{0, 0, 0}, Step: [3]float64{-0.5, 1, 1}, Size: [3]int{4, 2, 2}})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	mixed, err := CommonSampling(fine)
	if err != nil {
		t.Fatalf("Failed to compute common sampling: %v", err)
	}
	if mixed.Step() != [3]float64{0.5, 0.5, 0.5} {
		t.Errorf("Expected isotropic step 0.5, got %v", mixed.Step())
	}
	if mixed.Start()[0] != -1.5 || mixed.Size()[0] != 4 {
		t.Errorf("Expected x start -1.5 and size 4, got %g and %d", mixed.Start()[0], mixed.Size()[0])
	}

	if _, err := CommonSampling(); err == nil {
		t.Error("Expected an error for an empty grid list")
	}
}

// TestImageRangeMapping verifies the voxel to intensity conversion
func TestImageRangeMapping(t *testing.T) {
	g, err := New(Spec{
		Start:         [3]float64{0, 0, 0},
		Step:          [3]float64{1, 1, 1},
		Size:          [3]int{2, 2, 2},
		ImageRange:    [2]float64{-100, 155},
		HasImageRange: true,
	})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}

	if got := g.VoxelToImage(0); got != -100 {
		t.Errorf("Expected -100 for voxel 0, got %g", got)
	}
	if got := g.VoxelToImage(255); got != 155 {
		t.Errorf("Expected 155 for voxel 255, got %g", got)
	}
}

// TestFOVCenter verifies the field of view center uses integer half sizes
func TestFOVCenter(t *testing.T) {
	c := exampleNative(t).FOVCenter()
	want := models.Point3D{X: 0, Y: 0, Z: 0}
	if c != want {
		t.Errorf("Expected FOV center %v, got %v", want, c)
	}

	c = NewDefault().FOVCenter()
	want = models.Point3D{X: 0, Y: -18, Z: 18}
	if c != want {
		t.Errorf("Expected FOV center %v, got %v", want, c)
	}
}

// TestExplicitImageRange verifies a given range is kept even when it is 0..0
// and that invalid ranges are rejected by New as well
func TestExplicitImageRange(t *testing.T) {
	g, err := Parse([]byte("size=2 2 2\nstart=0 0 0\nstep=1 1 1\nimagerange=0 0\n"))
	if err != nil {
		t.Fatalf("Failed to parse header: %v", err)
	}
	low, high := g.ImageRange()
	if low != 0 || high != 0 {
		t.Errorf("Expected image range 0..0, got %g..%g", low, high)
	}
	if got := g.VoxelToImage(200); got != 0 {
		t.Errorf("Expected intensity 0 on a flat range, got %g", got)
	}

	spec := Spec{
		Start:         [3]float64{0, 0, 0},
		Step:          [3]float64{1, 1, 1},
		Size:          [3]int{2, 2, 2},
		ImageRange:    [2]float64{math.NaN(), 1},
		HasImageRange: true,
	}
	if _, err := New(spec); !volerr.IsFormat(err) {
		t.Errorf("Expected a format error for a NaN range, got %v", err)
	}

	spec.HasImageRange = false
	g, err = New(spec)
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	low, high = g.ImageRange()
	if low != 0 || high != 1 {
		t.Errorf("Expected default image range 0..1, got %g..%g", low, high)
	}
}

// TestSameSampling verifies step, start and orientation are all compared
func TestSameSampling(t *testing.T) {
	def := NewDefault()
	if !def.SameSampling(NewDefault(), 1e-6) {
		t.Error("Expected the default grid to match itself")
	}

	shifted, err := New(Spec{
		Start: [3]float64{-89, -126, -72},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{181, 217, 181},
	})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	if def.SameSampling(shifted, 1e-6) {
		t.Error("Expected a shifted start not to match")
	}
	if def.SameSampling(exampleNative(t), 1e-6) {
		t.Error("Expected a different step not to match")
	}
	if def.SameSampling(rotatedGrid(t), 1e-6) {
		t.Error("Expected a rotated grid not to match")
	}
}
