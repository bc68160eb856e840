package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"orthoview/internal/models"
	"orthoview/pkg/config"
	"orthoview/pkg/session"
	"orthoview/pkg/visualization"
	"orthoview/pkg/volume"
)

func main() {
	configPath := flag.String("config", "orthoview.yaml", "Session configuration file")
	initConfig := flag.Bool("init", false, "Write a default configuration file and exit")
	download := flag.String("download", "", "Override the download method (upfront, on_demand, hybrid)")
	cursor := flag.String("cursor", "", "Cursor position x,y,z (template world, mm), defaults to the field of view center")
	exportAlias := flag.String("export", "", "Alias of the volume whose slices are exported")
	orientations := flag.String("orientations", "transverse,sagittal,coronal", "Orientations to export")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *download != "" {
		cfg.Download = *download
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if *verbose || cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := session.OpenSource(cfg.Source)
	if err != nil {
		log.Fatalf("Failed to open source: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("ORTHOVIEW: SYNCHRONISED ORTHOGONAL SLICES OF 3D VOLUMES")
	fmt.Println("================================")

	fmt.Printf("Loading %d volumes from %s (%s download)...\n", len(cfg.Volumes), cfg.Source.Kind, cfg.Download)
	startTime := time.Now()
	s, err := session.Load(ctx, cfg, src, session.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}
	defer s.Close()
	fmt.Printf("Session loaded in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Common sampling: %s\n\n", s.Common())

	for _, v := range s.Volumes() {
		st := v.Cache.Stats()
		fmt.Printf("%-12s %-9s %s\n", v.Alias, v.Space, v.Cache.Grid())
		fmt.Printf("%-12s resident: %-5t voxels: %d  min: %.0f  max: %.0f  mean: %.2f  sd: %.2f\n",
			"", v.Cache.FullyPopulated(), st.Count, st.Min, st.Max, st.Mean, st.StdDev)
	}

	p := s.Center()
	if *cursor != "" {
		if p, err = parsePoint(*cursor); err != nil {
			log.Fatalf("Invalid cursor: %v", err)
		}
	}
	c, err := s.Cursor(models.Template, p)
	if err != nil {
		log.Fatalf("Failed to place cursor: %v", err)
	}
	printCursor(c)

	if *exportAlias != "" {
		v, ok := s.Volume(*exportAlias)
		if !ok {
			log.Fatalf("Unknown volume alias: %s", *exportAlias)
		}
		viewer, err := visualization.NewViewer(v.Cache, cfg.Export.Format, cfg.Export.Quality)
		if err != nil {
			log.Fatalf("Failed to create viewer: %v", err)
		}
		viewer.SetNotifier(volume.NotifierFunc(func(ev volume.SliceReady) {
			logger.Debug("orthoview: slice ready",
				"volume", ev.Volume,
				"axis", ev.Axis.String(),
				"index", ev.Index,
				"source_index", ev.SourceIndex)
		}))

		fmt.Printf("\nExporting %s slices...\n", v.Alias)
		for _, name := range strings.Split(*orientations, ",") {
			o, err := volume.ParseOrientation(strings.TrimSpace(name))
			if err != nil {
				log.Printf("Warning: %v", err)
				continue
			}
			dir := filepath.Join(cfg.Export.Dir, v.Alias, o.Name)
			fmt.Printf("Saving %s slices to: %s\n", o, dir)
			n, err := viewer.SaveSliceSequence(o, dir)
			if err != nil {
				log.Printf("Warning: Failed to save %s slices after %d images: %v", o, n, err)
				continue
			}
			fmt.Printf("- %d images written\n", n)
		}
		fmt.Println("Slice export completed!")
	}
}

func parsePoint(s string) (models.Point3D, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Point3D{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Point3D{}, err
		}
		v[i] = f
	}
	return models.Point3D{X: v[0], Y: v[1], Z: v[2]}, nil
}

func printCursor(c session.Cursor) {
	fmt.Printf("\nCursor at %s (template world)\n", c.World)
	fmt.Printf("- common voxel:   %s\n", c.Common)
	fmt.Printf("- template voxel: %s\n", c.Template)
	if c.NativeAvailable {
		fmt.Printf("- native:         %s voxel %s\n", c.Native, c.NativeVoxel)
	} else {
		fmt.Println("- native:         unavailable")
	}
	if c.LabelAvailable {
		fmt.Printf("- label space:    %s\n", c.LabelPosition)
	} else {
		fmt.Println("- label space:    unavailable")
	}
	fmt.Printf("- label:          %s\n", c.Label)
	for _, v := range c.Values {
		if !v.Inside {
			fmt.Printf("- %-15s outside\n", v.Alias+":")
			continue
		}
		fmt.Printf("- %-15s voxel %s intensity %d value %g\n", v.Alias+":", v.Voxel, v.Intensity, v.Image)
	}
}
