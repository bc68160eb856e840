package visualization

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"golang.org/x/image/tiff"

	"orthoview/internal/models"
	"orthoview/pkg/grid"
	"orthoview/pkg/source"
	"orthoview/pkg/volume"
)

// stubSource serves slices whose value is the slice position, and counts
// how often it had to wait.
type stubSource struct {
	common *grid.Grid
	full   bool
	waits  int
	mu     sync.Mutex
	asked  []models.Point3D
	notify volume.Notifier
}

func newStubSource(t *testing.T, full bool) *stubSource {
	g, err := grid.New(grid.Spec{
		Start: [3]float64{0, 0, 0},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{6, 5, 4},
	})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	return &stubSource{common: g, full: full}
}

func (s *stubSource) ID() string         { return "stub" }
func (s *stubSource) Common() *grid.Grid { return s.common }

func (s *stubSource) SliceSize(o volume.Orientation) (int, int) {
	return s.common.SizeOf(o.Vertical), s.common.SizeOf(o.Horizontal)
}

func (s *stubSource) GetSlice(o volume.Orientation, world models.Point3D, out []byte, n volume.Notifier) (int, error) {
	s.mu.Lock()
	s.asked = append(s.asked, world)
	s.notify = n
	s.mu.Unlock()

	k := s.common.PointVoxel(world).At(o.Ortho)
	rows, cols := s.SliceSize(o)
	for i := 0; i < rows*cols; i++ {
		out[i] = byte(10 * (k + 1))
	}
	return k, nil
}

func (s *stubSource) FullyPopulated() bool { return s.full }
func (s *stubSource) Wait()                { s.waits++ }

// TestNewViewer verifies format and quality validation
func TestNewViewer(t *testing.T) {
	src := newStubSource(t, true)

	if _, err := NewViewer(src, JPEG, 90); err != nil {
		t.Errorf("Expected valid JPEG viewer, got %v", err)
	}
	if _, err := NewViewer(src, TIFF, 0); err != nil {
		t.Errorf("Expected valid TIFF viewer, got %v", err)
	}
	if _, err := NewViewer(src, "gif", 90); err == nil {
		t.Error("Expected error for unsupported format, got nil")
	}
	if _, err := NewViewer(src, JPEG, 101); err == nil {
		t.Error("Expected error for invalid quality, got nil")
	}
}

// TestExtractSlice verifies slice dimensions and the requested positions
func TestExtractSlice(t *testing.T) {
	src := newStubSource(t, true)
	viewer, err := NewViewer(src, JPEG, 90)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		o      volume.Orientation
		pos    int
		width  int
		height int
	}{
		{volume.Transverse, 3, 6, 5},
		{volume.Sagittal, 5, 5, 4},
		{volume.Coronal, 0, 6, 4},
	}
	for _, tt := range tests {
		img, err := viewer.ExtractSlice(tt.o, tt.pos)
		if err != nil {
			t.Fatalf("Failed to extract %s slice %d: %v", tt.o, tt.pos, err)
		}
		b := img.Bounds()
		if b.Dx() != tt.width || b.Dy() != tt.height {
			t.Errorf("Expected %s slice dimensions %dx%d, got %dx%d", tt.o, tt.width, tt.height, b.Dx(), b.Dy())
		}
		if got := img.GrayAt(b.Dx()/2, b.Dy()/2).Y; got != byte(10*(tt.pos+1)) {
			t.Errorf("Expected %s slice value %d, got %d", tt.o, 10*(tt.pos+1), got)
		}
	}

	if _, err := viewer.ExtractSlice(volume.Transverse, 4); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice(volume.Sagittal, -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestSaveSlice verifies JPEG and TIFF output
func TestSaveSlice(t *testing.T) {
	tempDir := t.TempDir()
	src := newStubSource(t, true)

	for _, format := range []string{JPEG, TIFF} {
		viewer, err := NewViewer(src, format, 90)
		if err != nil {
			t.Fatal(err)
		}
		img, err := viewer.ExtractSlice(volume.Transverse, 1)
		if err != nil {
			t.Fatalf("Failed to extract slice: %v", err)
		}

		filename := filepath.Join(tempDir, viewer.Filename(volume.Transverse, 1))
		if err := viewer.SaveSlice(img, filename); err != nil {
			t.Fatalf("Failed to save %s slice: %v", format, err)
		}

		f, err := os.Open(filename)
		if err != nil {
			t.Fatalf("Saved file does not exist: %s", filename)
		}
		decoded, name, err := image.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("Failed to decode %s: %v", filename, err)
		}
		if name != format {
			t.Errorf("Expected %s image, got %s", format, name)
		}
		if decoded.Bounds() != img.Bounds() {
			t.Errorf("Expected bounds %v, got %v", img.Bounds(), decoded.Bounds())
		}
	}
}

// TestTIFFLossless verifies TIFF output keeps exact intensities
func TestTIFFLossless(t *testing.T) {
	src := newStubSource(t, true)
	viewer, err := NewViewer(src, TIFF, 0)
	if err != nil {
		t.Fatal(err)
	}
	img, err := viewer.ExtractSlice(volume.Coronal, 2)
	if err != nil {
		t.Fatal(err)
	}

	filename := filepath.Join(t.TempDir(), "slice.tif")
	if err := viewer.SaveSlice(img, filename); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := tiff.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	gray, ok := decoded.(*image.Gray)
	if !ok {
		t.Fatalf("Expected *image.Gray, got %T", decoded)
	}
	for i, p := range gray.Pix {
		if p != img.Pix[i] {
			t.Fatalf("Pixel %d: expected %d, got %d", i, img.Pix[i], p)
		}
	}
}

// TestSaveSliceSequence verifies every slice is written
func TestSaveSliceSequence(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "slices")
	src := newStubSource(t, false)
	viewer, err := NewViewer(src, JPEG, 80)
	if err != nil {
		t.Fatal(err)
	}

	n, err := viewer.SaveSliceSequence(volume.Transverse, outputDir)
	if err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 slices, got %d", n)
	}
	// every slice waited for its fetch and was asked for twice
	if src.waits != 4 {
		t.Errorf("Expected 4 waits, got %d", src.waits)
	}
	if len(src.asked) != 8 {
		t.Errorf("Expected 8 slice requests, got %d", len(src.asked))
	}

	for z := 0; z < n; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_transverse_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}
}

// TestSaveSliceSequenceFromCache verifies export from an on-demand cache
// waits for the fetched data
func TestSaveSliceSequenceFromCache(t *testing.T) {
	g, err := grid.New(grid.Spec{
		Start: [3]float64{-2, -2, -1},
		Step:  [3]float64{1, 1, 1},
		Size:  [3]int{5, 4, 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	fsys := billy.NewMemory()
	// one transverse slice file per z, every byte 200
	for z := 0; z < 3; z++ {
		name := source.SliceKey("tiny.raw", source.Pair12, z)
		if err := fsys.MkdirAll(filepath.Dir(name), 0755); err != nil {
			t.Fatal(err)
		}
		data := make([]byte, 4*5)
		for i := range data {
			data[i] = 200
		}
		if err := fsys.WriteFile(name, data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := volume.New(context.Background(),
		volume.Volume{ID: "tiny.raw", Grid: g, Source: source.NewFS(fsys)},
		g, volume.OnDemand, volume.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	viewer, err := NewViewer(cache, TIFF, 0)
	if err != nil {
		t.Fatal(err)
	}
	ready := volume.NewChannelNotifier(8)
	viewer.SetNotifier(ready)
	outputDir := t.TempDir()
	n, err := viewer.SaveSliceSequence(volume.Transverse, outputDir)
	if err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 slices, got %d", n)
	}
	// one event per fetched slice
	if got := len(ready.C()); got != 3 {
		t.Errorf("Expected 3 slice ready events, got %d", got)
	}

	img, err := viewer.ExtractSlice(volume.Transverse, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range img.Pix {
		if p != 200 {
			t.Fatalf("Pixel %d: expected 200, got %d", i, p)
		}
	}
}

// TestSetNotifier verifies slice requests carry the viewer's notifier
func TestSetNotifier(t *testing.T) {
	src := newStubSource(t, true)
	viewer, err := NewViewer(src, JPEG, 90)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := viewer.ExtractSlice(volume.Transverse, 0); err != nil {
		t.Fatal(err)
	}
	if src.notify != nil {
		t.Errorf("Expected no notifier, got %v", src.notify)
	}

	n := volume.NewChannelNotifier(1)
	viewer.SetNotifier(n)
	if _, err := viewer.ExtractSlice(volume.Transverse, 0); err != nil {
		t.Fatal(err)
	}
	if src.notify != volume.Notifier(n) {
		t.Errorf("Expected the viewer's notifier to be passed along, got %v", src.notify)
	}
}
