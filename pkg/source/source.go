// Package source provides the raw voxel bytes of a volume, either the
// whole file or one pre-cut 2D slice of it.
//
// A volume "colin27.raw.gz" is stored next to a directory "colin27" holding
// one subdirectory per file-axis pair ("01", "02", "12"), each containing a
// file per slice index: "colin27/12/45.raw.gz". Objects ending in ".gz" are
// decompressed transparently.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"

	"orthoview/pkg/volerr"
)

// Source opens the byte stream of a whole volume or of a single slice.
// Implementations must be safe for concurrent use.
type Source interface {
	// OpenWhole opens the complete volume file id.
	OpenWhole(ctx context.Context, id string) (io.ReadCloser, error)

	// OpenSlice opens slice index of volume id spanning the file axis
	// positions named by pair.
	OpenSlice(ctx context.Context, id string, pair AxisPair, index int) (io.ReadCloser, error)
}

// AxisPair names the two file axis positions (0 slowest, 2 fastest) a
// slice spans.
type AxisPair string

const (
	Pair01 AxisPair = "01"
	Pair02 AxisPair = "02"
	Pair12 AxisPair = "12"
)

// PairOf returns the pair spanning file positions a and b, in either order.
func PairOf(a, b int) (AxisPair, error) {
	if a > b {
		a, b = b, a
	}
	switch {
	case a == 0 && b == 1:
		return Pair01, nil
	case a == 0 && b == 2:
		return Pair02, nil
	case a == 1 && b == 2:
		return Pair12, nil
	default:
		return "", fmt.Errorf("invalid file axis pair %d,%d", a, b)
	}
}

// compressExt lists the suffixes skipped when computing a volume extension.
var compressExt = []string{".gz"}

// Extension returns the extension of a volume name, keeping a trailing
// compression suffix: "colin27.raw.gz" gives ".raw.gz".
func Extension(name string) string {
	base := path.Base(name)
	comp := ""
	for _, ext := range compressExt {
		if strings.HasSuffix(base, ext) {
			comp = ext
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	return path.Ext(base) + comp
}

// SliceKey returns the object name of one slice of volume id.
func SliceKey(id string, pair AxisPair, index int) string {
	ext := Extension(id)
	base := strings.TrimSuffix(id, ext)
	return fmt.Sprintf("%s/%s/%d%s", base, pair, index, ext)
}

// ReadFull fills buf from r, retrying short reads. A stream that ends
// early yields an IncompleteReadError naming name.
func ReadFull(r io.Reader, buf []byte, name string) error {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return volerr.IncompleteRead(name, len(buf), got, nil)
			}
			return volerr.IncompleteRead(name, len(buf), got, err)
		}
	}
	return nil
}

// decompressed wraps rc in a gzip reader when name ends in ".gz".
func decompressed(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	if !strings.HasSuffix(name, ".gz") {
		return rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		_ = rc.Close()
		return nil, volerr.Transport(err, name)
	}
	return &gzipReadCloser{Reader: zr, underlying: rc}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	underlying io.Closer
}

func (g *gzipReadCloser) Close() error {
	zerr := g.Reader.Close()
	if err := g.underlying.Close(); err != nil {
		return err
	}
	return zerr
}
