// Package app is the command interface the presentation shell drives:
// load a model, an image or a video, detect once, and control playback.
//
// App owns the detector, the current still frame, the playback driver and
// the optional detection log. Playback events are handed over by Run, which
// must be running on the foreground goroutine for frames to be displayed.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/annotate"
	"github.com/teslashibe/animal-detect/pkg/catalog"
	"github.com/teslashibe/animal-detect/pkg/detection"
	"github.com/teslashibe/animal-detect/pkg/display"
	"github.com/teslashibe/animal-detect/pkg/playback"
	"github.com/teslashibe/animal-detect/pkg/record"
	"github.com/teslashibe/animal-detect/pkg/source"
)

var (
	// ErrNoImage is returned by DetectOnce before any image or video is loaded.
	ErrNoImage = errors.New("app: no image loaded")

	// ErrNoModelPath is returned by LoadModel("") without a default model.
	ErrNoModelPath = errors.New("app: no model path and no default model")

	// ErrNoVideoSupport is returned by LoadVideo when no video opener is
	// configured.
	ErrNoVideoSupport = errors.New("app: video support not configured")

	// ErrNoDetectorSupport is returned by LoadModel when no detector opener
	// is configured.
	ErrNoDetectorSupport = errors.New("app: detector support not configured")
)

// DetectorOpener loads a detector from a weights file.
type DetectorOpener func(path string) (detection.Detector, error)

// VideoOpener opens a video file as a frame source.
type VideoOpener func(path string) (source.FrameSource, error)

// Config configures an App.
type Config struct {
	// DefaultModel is used when LoadModel is called with an empty path.
	DefaultModel string

	OpenDetector DetectorOpener
	OpenVideo    VideoOpener

	// Catalog resolves class names. Defaults to the built-in animals.
	Catalog *catalog.Catalog

	// Interval is the playback pause after each frame.
	Interval time.Duration

	// Sink receives original and annotated frames. Display errors are logged
	// and never fail the operation that produced the frame.
	Sink display.Sink

	// Observer is notified of state changes, processed frames, notices and
	// playback failures.
	Observer Observer

	// RecordDir enables a detection log per playback run when set.
	RecordDir string

	Logger *slog.Logger
}

// App is the application core.
type App struct {
	cfg     Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	still   *annotate.Annotator
	driver  *playback.Driver

	model *detection.Slot

	mu        sync.Mutex
	modelPath string
	image     image.Image
	mediaPath string
	mediaKind source.MediaKind
	closed    bool

	recMu  sync.Mutex
	rec    *record.Writer
	recRun uuid.UUID
}

// New creates an App with no model and no media loaded.
func New(cfg Config) *App {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = discardSink{}
	}
	if cfg.Observer == nil {
		cfg.Observer = ObserverFuncs{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("app")
	}

	return &App{
		cfg:     cfg,
		logger:  cfg.Logger,
		catalog: cfg.Catalog,
		model:   detection.NewSlot(cfg.Logger),
		still:   annotate.New(cfg.Catalog, annotate.StillStyle()),
		driver: playback.New(playback.Config{
			Interval:  cfg.Interval,
			Annotator: annotate.New(cfg.Catalog, annotate.VideoStyle()),
			Logger:    cfg.Logger.With("component", "playback"),
		}),
	}
}

// Catalog returns the class catalog in use.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// LoadModel opens the detector at path, or the default model when path is
// empty. On failure the previous model stays in use. A running playback
// switches to the new model on its next frame.
func (a *App) LoadModel(path string) error {
	if path == "" {
		path = a.cfg.DefaultModel
	}
	if path == "" {
		return ErrNoModelPath
	}
	if a.cfg.OpenDetector == nil {
		return ErrNoDetectorSupport
	}

	det, err := a.cfg.OpenDetector(path)
	if err != nil {
		return fmt.Errorf("app: load model %s: %w", path, err)
	}
	det = detection.Validating(det)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		det.Close()
		return playback.ErrClosed
	}
	if err := a.model.Swap(det); err != nil {
		a.logger.Warn("close previous model", "error", err)
	}
	a.modelPath = path
	a.mu.Unlock()

	a.driver.SetDetector(a.model)

	a.logger.Info("model loaded", "path", path)
	a.notifyState()
	return nil
}

// LoadImage makes the image at path the current frame. Playback is disabled
// until a video is loaded again. On failure nothing changes.
func (a *App) LoadImage(path string) error {
	img, err := source.LoadImage(path)
	if err != nil {
		return err
	}

	if err := a.driver.Unload(); err != nil {
		a.logger.Warn("release video", "error", err)
	}
	a.closeRecorder()

	a.mu.Lock()
	a.image = img
	a.mediaPath = path
	a.mediaKind = source.KindImage
	a.mu.Unlock()

	a.show(display.Original, img)
	a.logger.Info("image loaded", "path", path, "size", img.Bounds().Size())
	a.notifyState()
	return nil
}

// LoadVideo opens the video at path for playback. Its first frame becomes
// the current frame for DetectOnce and is shown as a preview. Loading while
// playing is rejected; on failure nothing changes.
func (a *App) LoadVideo(path string) error {
	if a.cfg.OpenVideo == nil {
		return ErrNoVideoSupport
	}
	if source.Kind(path) != source.KindVideo {
		return fmt.Errorf("%w: %s", source.ErrUnsupported, path)
	}
	if a.driver.State() == playback.Playing {
		return playback.ErrPlaying
	}

	src, err := a.cfg.OpenVideo(path)
	if err != nil {
		return fmt.Errorf("app: open video %s: %w", path, err)
	}
	preview, err := a.driver.Load(src)
	if err != nil {
		src.Close()
		return err
	}
	a.closeRecorder()

	a.mu.Lock()
	a.image = preview
	a.mediaPath = path
	a.mediaKind = source.KindVideo
	a.mu.Unlock()

	a.show(display.Original, preview)
	a.logger.Info("video loaded", "path", path)
	a.notifyState()
	return nil
}

// DetectOnce runs the detector over the current frame, shows the annotated
// result and notifies the observer with the summary.
func (a *App) DetectOnce(ctx context.Context) (*Result, error) {
	a.mu.Lock()
	img := a.image
	a.mu.Unlock()

	if !a.model.Loaded() {
		return nil, playback.ErrNoModel
	}
	if img == nil {
		return nil, ErrNoImage
	}

	start := time.Now()
	dets, err := a.model.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("app: detect: %w", err)
	}
	annotated, summary := a.still.Annotate(img, dets)
	a.show(display.Annotated, annotated)

	res := &Result{
		Detections: a.label(dets),
		Summary:    summary,
		Notice:     summary.Notice(),
		Annotated:  annotated,
	}
	a.logger.Info("detection complete",
		"detections", len(dets),
		"carnivorous", summary.CarnivorousCount,
		"species", summary.Species(),
		"elapsed", time.Since(start))
	a.cfg.Observer.OnNotice(*res)
	return res, nil
}

// Play starts playback from the first frame, or resumes a paused run.
func (a *App) Play() error {
	if err := a.driver.Start(); err != nil {
		return err
	}
	a.notifyState()
	return nil
}

// Pause pauses playback and reports whether it was playing.
func (a *App) Pause() bool {
	changed := a.driver.Pause()
	if changed {
		a.notifyState()
	}
	return changed
}

// Stop ends playback and reports whether a run was active.
func (a *App) Stop() bool {
	changed := a.driver.Stop()
	if changed {
		a.closeRecorder()
		a.notifyState()
	}
	return changed
}

// Status returns a snapshot of the application state.
func (a *App) Status() Status {
	ps := a.driver.Status()

	a.mu.Lock()
	st := Status{
		Playback:  ps.State,
		ModelPath: a.modelPath,
		MediaPath: a.mediaPath,
		MediaKind: a.mediaKind,
		HasModel:  a.model.Loaded(),
		HasImage:  a.image != nil,
		HasVideo:  ps.HasSource,
		RunID:     ps.RunID,
		Frames:    ps.Frames,
	}
	a.mu.Unlock()

	a.recMu.Lock()
	if a.rec != nil {
		st.Recording = a.rec.Path()
	}
	a.recMu.Unlock()
	return st
}

// Run hands playback events to the sink and observer until ctx is done or
// the app is closed.
func (a *App) Run(ctx context.Context) error {
	events := a.driver.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.handle(ev)
		}
	}
}

func (a *App) handle(ev playback.Event) {
	switch ev.Kind {
	case playback.EventFrame:
		a.show(display.Original, ev.Original)
		a.show(display.Annotated, ev.Annotated)

		f := Frame{
			RunID:      ev.RunID,
			Index:      ev.Index,
			Detections: a.label(ev.Detections),
			Summary:    ev.Summary,
		}
		a.recordFrame(f)
		a.cfg.Observer.OnFrame(f)

	case playback.EventEnd:
		a.closeRecorder()
		a.notifyState()

	case playback.EventError:
		a.closeRecorder()
		a.cfg.Observer.OnError(ev.Err)
		a.notifyState()
	}
}

// Close stops playback and releases the model, the video and the log.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	err := a.driver.Close()
	err = multierr.Append(err, a.model.Close())
	return multierr.Append(err, a.closeRecorder())
}

func (a *App) label(dets []detection.Detection) []Labeled {
	out := make([]Labeled, len(dets))
	for i, d := range dets {
		name := a.catalog.NameOf(d.ClassID)
		out[i] = Labeled{
			Detection:   d,
			Name:        name,
			Carnivorous: a.catalog.IsCarnivorous(name),
		}
	}
	return out
}

// show delivers a frame to the sink. Display failures are cosmetic.
func (a *App) show(pane display.Pane, frame image.Image) {
	if err := a.cfg.Sink.Show(pane, frame); err != nil {
		a.logger.Warn("display refresh failed", "pane", pane, "error", err)
	}
}

func (a *App) notifyState() {
	a.cfg.Observer.OnState(a.Status())
}

type discardSink struct{}

func (discardSink) Show(display.Pane, image.Image) error { return nil }
