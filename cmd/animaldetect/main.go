// animaldetect runs the animal detector behind a browser shell, or once over
// a single image from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/animal-detect/internal/config"
	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/app"
	"github.com/teslashibe/animal-detect/pkg/catalog"
	"github.com/teslashibe/animal-detect/pkg/display"
	"github.com/teslashibe/animal-detect/pkg/web"
)

type options struct {
	cfg config.Config

	detect string // image to run once
	out    string // annotated output for -detect
	dump   string // detection log to print
	image  string // image to preload
	video  string // video to preload
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "animaldetect:", err)
		os.Exit(2)
	}
	log.Init(opts.cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case opts.dump != "":
		err = dumpLog(os.Stdout, opts.dump)
	case opts.detect != "":
		err = detectOnce(ctx, opts)
	default:
		err = serve(ctx, opts)
	}
	if err != nil {
		log.Error("animaldetect failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags applies defaults, then the environment, then flags.
func parseFlags() (options, error) {
	cfg := config.Default()
	if err := cfg.LoadEnv(); err != nil {
		return options{}, err
	}

	var opts options
	flag.StringVar(&cfg.Port, "port", cfg.Port, "Web shell port")
	flag.StringVar(&cfg.WebDir, "web", cfg.WebDir, "Static dashboard directory (empty disables)")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "ONNX model used by the local detector")
	flag.StringVar(&cfg.DetectorURL, "detector-url", cfg.DetectorURL, "Remote inference service (overrides -model)")
	flag.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Class catalog YAML (default: built-in animals)")
	flag.DurationVar(&cfg.FrameInterval, "interval", cfg.FrameInterval, "Pause after each played frame")
	flag.StringVar(&cfg.RecordDir, "record", cfg.RecordDir, "Directory for per-run detection logs")
	flag.Float64Var(&cfg.ConfidenceThresh, "conf", cfg.ConfidenceThresh, "Detector confidence threshold")
	flag.Float64Var(&cfg.NMSThresh, "nms", cfg.NMSThresh, "Detector NMS threshold")
	flag.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality of streamed frames")
	flag.IntVar(&cfg.ViewportWidth, "width", cfg.ViewportWidth, "Viewport width of streamed frames")
	flag.IntVar(&cfg.ViewportHeight, "height", cfg.ViewportHeight, "Viewport height of streamed frames")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&opts.detect, "detect", "", "Detect animals in this image and exit")
	flag.StringVar(&opts.out, "out", "", "Write the annotated -detect image here")
	flag.StringVar(&opts.dump, "dump", "", "Print a detection log and exit")
	flag.StringVar(&opts.image, "image", "", "Image to load at startup")
	flag.StringVar(&opts.video, "video", "", "Video to load at startup")
	flag.Parse()

	opts.cfg = cfg
	if opts.dump != "" {
		return opts, nil
	}
	return opts, cfg.Validate()
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.CatalogPath)
}

func serve(ctx context.Context, opts options) error {
	cfg := opts.cfg
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	hubs := web.NewHubs()
	core := app.New(app.Config{
		DefaultModel: defaultModel(cfg),
		OpenDetector: detectorOpener(ctx, cfg),
		OpenVideo:    openVideo,
		Catalog:      cat,
		Interval:     cfg.FrameInterval,
		Sink:         display.NewHubSink(cfg.ViewportWidth, cfg.ViewportHeight, cfg.JPEGQuality, hubs.Panes()),
		Observer:     web.NewNotifier(hubs.Events),
		RecordDir:    cfg.RecordDir,
	})
	defer core.Close()

	// A missing model is not fatal; the shell can load one later.
	if err := core.LoadModel(""); err != nil {
		log.Warn("default model not loaded", "error", err)
	}
	if opts.image != "" {
		if err := core.LoadImage(opts.image); err != nil {
			return err
		}
	}
	if opts.video != "" {
		if err := core.LoadVideo(opts.video); err != nil {
			return err
		}
	}

	srv := web.New(web.Config{StaticDir: cfg.WebDir}, core, hubs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hubs.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(core.Run(ctx))
	})
	g.Go(func() error {
		return srv.Run(ctx, ":"+cfg.Port)
	})

	log.Info("animaldetect ready", "url", "http://localhost:"+cfg.Port, "catalog_classes", cat.Len())
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
