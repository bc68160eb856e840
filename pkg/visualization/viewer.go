// Package visualization renders orthogonal slices of a volume cache as
// grayscale images and writes them to disk.
package visualization

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"orthoview/internal/models"
	"orthoview/pkg/grid"
	"orthoview/pkg/volume"
)

// SliceSource is the part of a volume cache the viewer reads from.
type SliceSource interface {
	ID() string
	Common() *grid.Grid
	SliceSize(o volume.Orientation) (rows, cols int)
	GetSlice(o volume.Orientation, world models.Point3D, out []byte, n volume.Notifier) (int, error)
	FullyPopulated() bool
	Wait()
}

// Image formats
const (
	JPEG = "jpeg"
	TIFF = "tiff"
)

// Viewer extracts and saves slices of one volume.
type Viewer struct {
	src SliceSource

	// format is JPEG or TIFF
	format string

	// quality is the JPEG quality
	quality int

	// notify receives the fetches started by ExtractSlice, may be nil
	notify volume.Notifier
}

// NewViewer creates a viewer writing images in format (JPEG or TIFF).
func NewViewer(src SliceSource, format string, quality int) (*Viewer, error) {
	switch format {
	case JPEG, TIFF:
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	if format == JPEG && (quality < 1 || quality > 100) {
		return nil, fmt.Errorf("jpeg quality must be within 1-100, got %d", quality)
	}
	return &Viewer{src: src, format: format, quality: quality}, nil
}

// SetNotifier sets the notifier passed along with every slice request.
func (v *Viewer) SetNotifier(n volume.Notifier) { v.notify = n }

// ExtractSlice returns common-grid slice position of orientation o as it is
// cached now. Row 0 of the image is the top of the slice.
func (v *Viewer) ExtractSlice(o volume.Orientation, position int) (*image.Gray, error) {
	common := v.src.Common()
	if position < 0 || position >= common.SizeOf(o.Ortho) {
		return nil, fmt.Errorf("position %d outside %s range 0-%d", position, o, common.SizeOf(o.Ortho)-1)
	}

	var at models.Voxel
	switch o.Ortho {
	case models.AxisX:
		at.X = position
	case models.AxisY:
		at.Y = position
	default:
		at.Z = position
	}

	rows, cols := v.src.SliceSize(o)
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	if _, err := v.src.GetSlice(o, common.VoxelPoint(at), img.Pix, v.notify); err != nil {
		return nil, err
	}
	return img, nil
}

// SaveSlice writes img to filename in the viewer's format.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if v.format == TIFF {
		return tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: v.quality})
}

// Filename returns the image name of one slice.
func (v *Viewer) Filename(o volume.Orientation, position int) string {
	ext := "jpg"
	if v.format == TIFF {
		ext = "tif"
	}
	return fmt.Sprintf("slice_%s_%03d.%s", o.Name, position, ext)
}

// SaveSliceSequence saves every slice of orientation o to outputDir and
// returns the number of images written. Slices that are not resident yet
// are fetched first.
func (v *Viewer) SaveSliceSequence(o volume.Orientation, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	n := v.src.Common().SizeOf(o.Ortho)
	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(o, pos)
		if err != nil {
			return pos, err
		}
		if !v.src.FullyPopulated() {
			// the first request started the fetch
			v.src.Wait()
			if img, err = v.ExtractSlice(o, pos); err != nil {
				return pos, err
			}
		}

		filename := filepath.Join(outputDir, v.Filename(o, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}

	return n, nil
}
