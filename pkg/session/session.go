// Package session assembles a viewing session from a configuration: it
// reads every volume header, derives the common sampling, loads the
// transforms and label table into a space registry and builds one volume
// cache per volume.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"orthoview/internal/models"
	"orthoview/pkg/config"
	"orthoview/pkg/grid"
	"orthoview/pkg/source"
	"orthoview/pkg/space"
	"orthoview/pkg/volume"
)

// Volume is one loaded volume of the session.
type Volume struct {
	Alias string
	Space models.Space
	Cache *volume.Cache
}

// Session is a set of volumes displayed together plus the coordinate
// systems linking them.
type Session struct {
	registry *space.Registry
	common   *grid.Grid
	volumes  []*Volume
	logger   *slog.Logger
}

// Option configures Load.
type Option func(*Session)

// WithLogger sets the logger handed to the registry and every cache.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// header is a volume whose header was read successfully.
type header struct {
	cfg   config.VolumeConfig
	space models.Space
	grid  *grid.Grid
}

// Load builds a session from cfg, reading every object through src.
//
// A volume whose header cannot be read or parsed is logged and left out.
// Transform and label files that fail to load are logged and leave the
// matching conversions unavailable. ctx bounds background whole-volume
// fetches for the lifetime of the session.
func Load(ctx context.Context, cfg *config.Config, src source.Source, opts ...Option) (*Session, error) {
	s := &Session{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = space.NewRegistry(space.WithLogger(s.logger))

	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	headers, err := s.readHeaders(ctx, cfg.Volumes, src)
	if err != nil {
		return nil, fmt.Errorf("session: reading headers: %w", err)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("session: no usable volume")
	}

	s.common, err = grid.CommonSampling(commonMembers(headers)...)
	if err != nil {
		return nil, fmt.Errorf("session: common sampling: %w", err)
	}

	template, native, label := roles(headers)
	templateGrid := grid.NewDefault()
	if template != nil {
		templateGrid = template.grid
	}
	var nativeGrid *grid.Grid
	if native != nil {
		nativeGrid = native.grid
	}
	s.registry.SetGrids(s.common, templateGrid, nativeGrid)

	s.loadTransform(ctx, src, space.NativeToTemplate, cfg.Transforms.NativeToTemplate, nativeGrid, templateGrid)
	var labelGrid *grid.Grid
	if label != nil {
		labelGrid = label.grid
	}
	s.loadTransform(ctx, src, space.LabelToTemplate, cfg.Transforms.LabelToTemplate, labelGrid, templateGrid)
	s.loadLabels(ctx, src, cfg.Labels)

	s.volumes = make([]*Volume, len(headers))
	var g errgroup.Group
	for i, h := range headers {
		g.Go(func() error {
			// the native volume is shown on its own sampling
			target := s.common
			if h.space == models.Native {
				target = h.grid
			}
			c, err := volume.New(ctx, volume.Volume{ID: h.cfg.File, Grid: h.grid, Source: src}, target, policy,
				volume.WithLogger(s.logger),
				volume.WithRegistry(s.registry))
			if err != nil {
				return fmt.Errorf("volume %s: %w", h.cfg.Alias, err)
			}
			s.volumes[i] = &Volume{Alias: h.cfg.Alias, Space: h.space, Cache: c}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("session: loaded",
		"volumes", len(s.volumes),
		"common", s.common.String(),
		"download", policy.String())
	return s, nil
}

// readHeaders reads and parses every header concurrently and returns the
// usable volumes in configuration order. Only a cancelled ctx is an error;
// unusable volumes are logged and dropped.
func (s *Session) readHeaders(ctx context.Context, volumes []config.VolumeConfig, src source.Source) ([]*header, error) {
	parsed := make([]*header, len(volumes))

	var g errgroup.Group
	g.SetLimit(8)
	for i, vc := range volumes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sp, err := vc.SpaceOf()
			if err != nil {
				s.logger.Warn("session: volume skipped", "alias", vc.Alias, "error", err)
				return nil
			}
			gr, err := readGrid(ctx, src, vc.Header)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("session: volume skipped", "alias", vc.Alias, "header", vc.Header, "error", err)
				return nil
			}
			parsed[i] = &header{cfg: vc, space: sp, grid: gr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := parsed[:0]
	for _, h := range parsed {
		if h != nil {
			out = append(out, h)
		}
	}
	return out, nil
}

func readGrid(ctx context.Context, src source.Source, name string) (*grid.Grid, error) {
	if name == "" {
		return grid.NewDefault(), nil
	}
	data, err := readObject(ctx, src, name)
	if err != nil {
		return nil, err
	}
	return grid.Parse(data)
}

func readObject(ctx context.Context, src source.Source, name string) ([]byte, error) {
	rc, err := src.OpenWhole(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// commonMembers picks the grids the common sampling covers: the volumes
// flagged common, else every non-native volume, else all of them.
func commonMembers(headers []*header) []*grid.Grid {
	var flagged, others, all []*grid.Grid
	for _, h := range headers {
		all = append(all, h.grid)
		if h.cfg.Common {
			flagged = append(flagged, h.grid)
		}
		if h.space != models.Native {
			others = append(others, h.grid)
		}
	}
	switch {
	case len(flagged) > 0:
		return flagged
	case len(others) > 0:
		return others
	default:
		return all
	}
}

// roles returns the first volume of each space, or nil.
func roles(headers []*header) (template, native, label *header) {
	for _, h := range headers {
		switch {
		case h.space == models.Template && template == nil:
			template = h
		case h.space == models.Native && native == nil:
			native = h
		case h.space == models.Label && label == nil:
			label = h
		}
	}
	return template, native, label
}

// loadTransform reads one transform file and folds the direction cosines
// of the source and template grids into it.
func (s *Session) loadTransform(ctx context.Context, src source.Source, kind space.TransformKind, name string, from, template *grid.Grid) {
	if name == "" {
		return
	}
	log := s.logger.With("transform", kind.String(), "file", name)

	data, err := readObject(ctx, src, name)
	if err != nil {
		log.Warn("session: transform unavailable", "error", err)
		return
	}
	m, err := space.ParseTransform(bytes.NewReader(data))
	if err != nil {
		log.Warn("session: transform unavailable", "error", err)
		return
	}
	if err := s.registry.SetTransform(kind, m); err != nil {
		// the forward direction stays usable
		log.Warn("session: transform has no inverse", "error", err)
	}

	identity := grid.NewDefault().CosinesFlat()
	pre := identity
	if from != nil {
		pre = from.CosinesFlat()
	}
	post := template.CosinesFlat()
	if floats.Equal(pre, identity) && floats.Equal(post, identity) {
		return
	}
	if err := s.registry.ComposeDirectionCosines(kind, pre, post); err != nil {
		log.Warn("session: direction cosines not applied", "error", err)
	}
}

func (s *Session) loadLabels(ctx context.Context, src source.Source, name string) {
	if name == "" {
		return
	}
	data, err := readObject(ctx, src, name)
	if err != nil {
		s.logger.Warn("session: label table unavailable", "file", name, "error", err)
		return
	}
	table, err := space.ParseLabelMapping(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("session: label table unavailable", "file", name, "error", err)
		return
	}
	s.registry.SetLabels(table)
}

// Registry returns the coordinate systems of the session.
func (s *Session) Registry() *space.Registry { return s.registry }

// Common returns the common display grid.
func (s *Session) Common() *grid.Grid { return s.common }

// Volumes returns the loaded volumes in configuration order.
func (s *Session) Volumes() []*Volume { return s.volumes }

// Volume returns the volume with the given alias.
func (s *Session) Volume(alias string) (*Volume, bool) {
	for _, v := range s.volumes {
		if v.Alias == alias {
			return v, true
		}
	}
	return nil, false
}

// Wait blocks until every cache has finished its outstanding fetches.
func (s *Session) Wait() {
	for _, v := range s.volumes {
		v.Cache.Wait()
	}
}

// Close stops the background fetches of every cache.
func (s *Session) Close() {
	for _, v := range s.volumes {
		if v != nil {
			v.Cache.Close()
		}
	}
}
