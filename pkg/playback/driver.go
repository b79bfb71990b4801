// Package playback sequences frame retrieval, detection, annotation and
// display handoff for video sources.
//
// A Driver owns at most one background worker. The worker reads a frame,
// runs the detector, annotates the result and hands it to the foreground
// over the Events channel, then waits a fixed interval before the next
// frame. Pause is cooperative: the worker checks the play state once per
// frame, so a pause takes effect after the frame in flight.
package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/annotate"
	"github.com/teslashibe/animal-detect/pkg/catalog"
	"github.com/teslashibe/animal-detect/pkg/detection"
	"github.com/teslashibe/animal-detect/pkg/source"
)

// DefaultInterval is the pause after each frame, about 30 frames per second.
const DefaultInterval = 33 * time.Millisecond

// Precondition and lifecycle errors.
var (
	ErrNoModel        = errors.New("playback: no model loaded")
	ErrNoSource       = errors.New("playback: no video loaded")
	ErrAlreadyPlaying = errors.New("playback: already playing")
	ErrPlaying        = errors.New("playback: cannot load while playing")
	ErrClosed         = errors.New("playback: driver closed")
)

// FrameError reports a failure on a specific frame. It terminates playback.
type FrameError struct {
	Index int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("playback: frame %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// State is the driver's play state.
type State int

const (
	Idle State = iota
	Loaded
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind distinguishes worker events.
type EventKind int

const (
	// EventFrame carries one processed frame.
	EventFrame EventKind = iota
	// EventEnd is sent when the source is exhausted.
	EventEnd
	// EventError is sent when a frame failed and playback stopped.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by the worker for the foreground to render.
type Event struct {
	Kind  EventKind
	RunID uuid.UUID
	Index int
	State State

	Original   image.Image
	Annotated  *image.RGBA
	Detections []detection.Detection
	Summary    annotate.Summary

	Err error
}

// Status is a snapshot of the driver.
type Status struct {
	State       State
	HasSource   bool
	HasDetector bool
	RunID       uuid.UUID
	Frames      int // frames emitted in the current or last run
}

// Config configures a Driver.
type Config struct {
	// Interval is the fixed wait after each frame. Detection time is not
	// compensated for, so the achieved rate is at most 1/Interval.
	Interval time.Duration

	// Annotator draws video overlays. Defaults to the built-in catalog with
	// the video style.
	Annotator *annotate.Annotator

	// Buffer is the Events channel capacity.
	Buffer int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Annotator == nil {
		c.Annotator = annotate.New(catalog.Default(), annotate.VideoStyle())
	}
	if c.Buffer <= 0 {
		c.Buffer = 4
	}
	if c.Logger == nil {
		c.Logger = log.Component("playback")
	}
	return c
}

type run struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
}

// Driver is the playback state machine.
type Driver struct {
	cfg    Config
	logger *slog.Logger
	events chan Event

	mu     sync.Mutex
	state  State
	det    detection.Detector
	src    source.FrameSource
	cur    *run
	lastID uuid.UUID
	frames int
	closed bool
}

// New creates an idle driver.
func New(cfg Config) *Driver {
	cfg = cfg.withDefaults()
	return &Driver{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan Event, cfg.Buffer),
	}
}

// Events returns the channel the worker emits on. It is closed by Close.
func (d *Driver) Events() <-chan Event {
	return d.events
}

// SetDetector installs the detector used for subsequent frames. The driver
// does not take ownership.
func (d *Driver) SetDetector(det detection.Detector) {
	d.mu.Lock()
	d.det = det
	d.mu.Unlock()
}

// Load installs src and returns its first frame for preview. The source is
// rewound afterwards, so playback starts at frame zero. Loading while
// playing is rejected; loading while paused abandons the paused run. If the
// first frame cannot be read the driver is left unchanged and the caller
// keeps ownership of src. On success the driver owns src.
func (d *Driver) Load(src source.FrameSource) (image.Image, error) {
	d.mu.Lock()
	if err := d.loadableLocked(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	preview, err := src.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("source has no frames")
		}
		return nil, fmt.Errorf("playback: read first frame: %w", err)
	}
	if err := src.Rewind(); err != nil {
		return nil, fmt.Errorf("playback: rewind: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for d.cur != nil {
		if err := d.loadableLocked(); err != nil {
			return nil, err
		}
		d.waitRunLocked(d.cur)
	}
	if err := d.loadableLocked(); err != nil {
		return nil, err
	}

	if d.src != nil && d.src != src {
		if err := d.src.Close(); err != nil {
			d.logger.Warn("close previous source", "error", err)
		}
	}
	d.src = src
	d.state = Loaded
	d.frames = 0
	return preview, nil
}

func (d *Driver) loadableLocked() error {
	switch {
	case d.closed:
		return ErrClosed
	case d.state == Playing:
		return ErrPlaying
	}
	return nil
}

// Unload stops any run, releases the source and returns to Idle.
func (d *Driver) Unload() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopAllLocked()
	d.state = Idle
	if d.src == nil {
		return nil
	}
	err := d.src.Close()
	d.src = nil
	return err
}

// Start begins playback. From Idle or Loaded the source is rewound to its
// first frame and a new worker is started. From Paused the existing worker
// resumes where it stopped, without rewinding.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		switch {
		case d.closed:
			return ErrClosed
		case d.det == nil:
			return ErrNoModel
		case d.src == nil:
			return ErrNoSource
		}

		switch d.state {
		case Playing:
			return ErrAlreadyPlaying
		case Paused:
			if d.cur == nil {
				d.state = Idle
				continue
			}
			d.state = Playing
			select {
			case d.cur.wake <- struct{}{}:
			default:
			}
			d.logger.Debug("resumed", "run", d.cur.id)
			return nil
		}

		// A run that just reached the end may still be delivering its
		// last event.
		if d.cur == nil {
			break
		}
		d.waitRunLocked(d.cur)
	}

	if err := d.src.Rewind(); err != nil {
		return fmt.Errorf("playback: rewind: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.New(),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	d.cur = r
	d.lastID = r.id
	d.frames = 0
	d.state = Playing
	d.logger.Info("playback started", "run", r.id)

	go d.loop(r)
	return nil
}

// Pause moves Playing to Paused and reports whether it did. In any other
// state it does nothing.
func (d *Driver) Pause() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Playing {
		return false
	}
	d.state = Paused
	d.logger.Debug("paused", "run", d.lastID)
	return true
}

// Stop ends the current run and returns to Idle, keeping the source so a
// later Start replays it from the beginning. It reports whether a run was
// stopped.
func (d *Driver) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	active := d.state == Playing || d.state == Paused
	d.stopAllLocked()
	if d.state == Playing || d.state == Paused {
		active = true
	}
	if active {
		d.state = Idle
		d.logger.Info("playback stopped", "run", d.lastID, "frames", d.frames)
	}
	return active
}

// Status returns a snapshot of the driver.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		State:       d.state,
		HasSource:   d.src != nil,
		HasDetector: d.det != nil,
		RunID:       d.lastID,
		Frames:      d.frames,
	}
}

// State returns the current play state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close stops the worker, releases the source and closes Events. The
// detector is not closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.stopAllLocked()
	d.state = Idle
	close(d.events)

	if d.src == nil {
		return nil
	}
	err := d.src.Close()
	d.src = nil
	return err
}

// waitRunLocked cancels r and waits for its worker to exit. d.mu is
// released while waiting, so callers must re-check state afterwards.
func (d *Driver) waitRunLocked(r *run) {
	r.cancel()
	d.mu.Unlock()
	<-r.done
	d.mu.Lock()
}

// stopAllLocked returns with no worker running.
func (d *Driver) stopAllLocked() {
	for d.cur != nil {
		d.waitRunLocked(d.cur)
	}
}

func (d *Driver) loop(r *run) {
	defer func() {
		d.mu.Lock()
		if d.cur == r {
			d.cur = nil
		}
		d.mu.Unlock()
		r.cancel()
		close(r.done)
	}()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for index := 0; ; index++ {
		det, src, ok := d.await(r)
		if !ok {
			return
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			d.finish(r, index, nil)
			return
		}
		if err != nil {
			d.finish(r, index, &FrameError{Index: index, Err: err})
			return
		}

		dets, err := det.Detect(r.ctx, frame)
		if r.ctx.Err() != nil {
			return
		}
		if err != nil {
			d.finish(r, index, &FrameError{Index: index, Err: err})
			return
		}

		annotated, summary := d.cfg.Annotator.Annotate(frame, dets)

		d.mu.Lock()
		if d.cur == r {
			d.frames = index + 1
		}
		state := d.state
		d.mu.Unlock()

		if !d.emit(r, Event{
			Kind:       EventFrame,
			RunID:      r.id,
			Index:      index,
			State:      state,
			Original:   frame,
			Annotated:  annotated,
			Detections: dets,
			Summary:    summary,
		}) {
			return
		}

		timer.Reset(d.cfg.Interval)
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// await blocks while the run is paused. It returns the collaborators for the
// next frame, or false when the run was stopped.
func (d *Driver) await(r *run) (detection.Detector, source.FrameSource, bool) {
	for {
		d.mu.Lock()
		if d.cur != r || r.ctx.Err() != nil {
			d.mu.Unlock()
			return nil, nil, false
		}
		switch d.state {
		case Playing:
			det, src := d.det, d.src
			d.mu.Unlock()
			if det == nil || src == nil {
				return nil, nil, false
			}
			return det, src, true
		case Paused:
			d.mu.Unlock()
			select {
			case <-r.ctx.Done():
				return nil, nil, false
			case <-r.wake:
			}
		default:
			d.mu.Unlock()
			return nil, nil, false
		}
	}
}

// finish ends the run on its own: end of stream when err is nil, otherwise
// a frame failure.
func (d *Driver) finish(r *run, index int, err error) {
	d.mu.Lock()
	if d.cur != r || r.ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	d.state = Idle
	d.mu.Unlock()

	ev := Event{Kind: EventEnd, RunID: r.id, Index: index, State: Idle}
	if err != nil {
		ev.Kind = EventError
		ev.Err = err
		d.logger.Error("playback failed", "run", r.id, "frame", index, "error", err)
	} else {
		d.logger.Info("playback finished", "run", r.id, "frames", index)
	}
	d.emit(r, ev)
}

// emit hands ev to the foreground. It gives up if the run is stopped while
// the channel is full.
func (d *Driver) emit(r *run, ev Event) bool {
	select {
	case d.events <- ev:
		return true
	case <-r.ctx.Done():
		return false
	}
}
