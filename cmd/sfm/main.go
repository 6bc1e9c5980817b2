// Command sfm builds reconstructions from the priors, features and matches
// held in a SQLite database, saves them back to the database and writes
// JSON and optional plots to an output directory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/banshee-data/sfm/internal/calibration"
	"github.com/banshee-data/sfm/internal/config"
	"github.com/banshee-data/sfm/internal/matching"
	"github.com/banshee-data/sfm/internal/monitoring"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/builder"
	"github.com/banshee-data/sfm/internal/storage/sqlite"
	"github.com/banshee-data/sfm/internal/synthetic"
	"github.com/banshee-data/sfm/internal/version"
	"github.com/banshee-data/sfm/internal/viz"
)

type flags struct {
	configPath  string
	dbPath      string
	imagesPath  string
	calibPath   string
	outDir      string
	synthetic   int
	plot        bool
	html        bool
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("sfm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "Builder config file (.json or .yaml); empty uses built-in defaults")
	fs.StringVar(&f.dbPath, "db", "sfm.db", "SQLite database holding priors, features, matches and reconstructions")
	fs.StringVar(&f.imagesPath, "images", "", "File listing one image path per line (default: every image with a prior in the database)")
	fs.StringVar(&f.calibPath, "calibration", "", "Calibration JSON file with per-image intrinsics priors")
	fs.StringVar(&f.outDir, "out", "out", "Output directory for reconstruction JSON and plots")
	fs.IntVar(&f.synthetic, "synthetic", 0, "Generate a synthetic scene with this many views and match it into the database first")
	fs.BoolVar(&f.plot, "plot", false, "Write a top-down PNG plot per reconstruction")
	fs.BoolVar(&f.html, "html", false, "Write an interactive HTML chart of all reconstructions")
	fs.BoolVar(&f.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if f.synthetic < 0 {
		return flags{}, fmt.Errorf("-synthetic must not be negative, got %d", f.synthetic)
	}
	if f.synthetic == 1 {
		return flags{}, errors.New("-synthetic needs at least 2 views")
	}
	return f, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("sfm: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintln(stdout, version.String("sfm"))
		return nil
	}
	monitoring.SetVerbose(f.verbose)
	logf := monitoring.Named("sfm")

	cfg := config.EmptyBuilderConfig()
	if f.configPath != "" {
		if cfg, err = config.LoadBuilderConfig(f.configPath); err != nil {
			return err
		}
	}
	opts, err := builder.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(f.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqlite.NewFeaturesAndMatchesStore(db.DB)

	priors := make(map[string]sfm.CameraIntrinsicsPrior)
	if f.calibPath != "" {
		if priors, err = calibration.ReadCalibration(f.calibPath); err != nil {
			return err
		}
		logf("loaded %d camera priors from %s", len(priors), f.calibPath)
	}

	var (
		source matching.FeatureSource = matching.NewPrecomputed(store)
		images []string
	)
	if f.synthetic > 0 {
		scene := synthetic.NewScene(synthetic.Options{NumViews: f.synthetic, Seed: cfg.GetRandomSeed()})
		popts, err := builder.PipelineOptionsFromConfig(cfg, synthetic.Extractor{Scene: scene})
		if err != nil {
			return err
		}
		if source, err = matching.NewPipeline(popts, store); err != nil {
			return err
		}
		images = scene.Names
		for name, p := range scene.Priors {
			if _, ok := priors[name]; !ok {
				priors[name] = p
			}
		}
		logf("generated synthetic scene with %d views and %d points", len(scene.Names), len(scene.Points))
	} else if images, err = imageList(f.imagesPath, store); err != nil {
		return err
	}

	b, err := builder.New(opts, source, store)
	if err != nil {
		return err
	}
	for _, img := range images {
		if p, ok := priors[matching.ImageName(img)]; ok {
			b.AddImageWithCameraIntrinsicsPrior(img, p)
		} else {
			b.AddImage(img)
		}
	}
	if err := b.ExtractAndMatchFeatures(ctx); err != nil {
		return err
	}

	recons, err := b.BuildReconstruction()
	if err != nil {
		return err
	}
	return save(db, recons, f, stdout)
}

// imageList reads one image path per line from path. Without a list file,
// every image with a prior in the database is used.
func imageList(path string, db matching.Database) ([]string, error) {
	if path == "" {
		return db.ImageNamesOfCameraIntrinsicsPriors()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image list: %w", err)
	}
	defer file.Close()

	var images []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		images = append(images, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image list: %w", err)
	}
	return images, nil
}

func save(db *sqlite.DB, recons []*sfm.Reconstruction, f flags, stdout io.Writer) error {
	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	store := sqlite.NewReconstructionStore(db.DB)
	runID, err := store.CreateRun(fmt.Sprintf("sfm %s", version.Version))
	if err != nil {
		return err
	}
	for i, r := range recons {
		if _, err := store.Save(runID, i, r); err != nil {
			return err
		}
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode reconstruction %d: %w", i, err)
		}
		if err := os.WriteFile(filepath.Join(f.outDir, fmt.Sprintf("reconstruction_%d.json", i)), data, 0o644); err != nil {
			return fmt.Errorf("failed to write reconstruction %d: %w", i, err)
		}
		if f.plot {
			if err := viz.SaveTopDownPlot(r, filepath.Join(f.outDir, fmt.Sprintf("reconstruction_%d.png", i))); err != nil {
				return err
			}
		}
		fmt.Fprintf(stdout, "reconstruction %d: %d views, %d tracks\n", i, r.NumViews(), r.NumTracks())
	}

	if f.html {
		out, err := os.Create(filepath.Join(f.outDir, "reconstructions.html"))
		if err != nil {
			return fmt.Errorf("failed to create chart: %w", err)
		}
		if err := viz.RenderHTML(out, recons); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
	}
	fmt.Fprintf(stdout, "saved %d reconstructions as run %s\n", len(recons), runID)
	return nil
}
