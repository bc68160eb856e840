package source

import (
	"context"
	"io"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"

	"orthoview/pkg/volerr"
)

// FS serves volumes from a filesystem abstraction.
type FS struct {
	fsys core.ReadFS
}

// NewFS returns a Source reading from fsys.
func NewFS(fsys core.ReadFS) *FS {
	return &FS{fsys: fsys}
}

// NewLocal returns a Source reading from the local directory root.
func NewLocal(root string) (*FS, error) {
	local, err := billy.NewLocal().Chroot(root)
	if err != nil {
		return nil, volerr.Transport(err, root)
	}
	return NewFS(local), nil
}

// OpenWhole implements Source.
func (s *FS) OpenWhole(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.open(ctx, id)
}

// OpenSlice implements Source.
func (s *FS) OpenSlice(ctx context.Context, id string, pair AxisPair, index int) (io.ReadCloser, error) {
	return s.open(ctx, SliceKey(id, pair, index))
}

func (s *FS) open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, volerr.Transport(err, name)
	}
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, volerr.Transport(err, name)
	}
	return decompressed(f, name)
}
