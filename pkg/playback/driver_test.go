package playback

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/detection"
	"github.com/teslashibe/animal-detect/pkg/source"
)

const eventTimeout = 2 * time.Second

func testFrames(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, 32, 24))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p] = uint8(i * 10)
			img.Pix[p+3] = 255
		}
		out[i] = img
	}
	return out
}

func newDriver(interval time.Duration) *Driver {
	return New(Config{Interval: interval, Logger: log.Discard()})
}

func nextEvent(t *testing.T, d *Driver) Event {
	t.Helper()
	select {
	case ev, ok := <-d.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

// nextRunEvent skips events from earlier runs.
func nextRunEvent(t *testing.T, d *Driver, id uuid.UUID) Event {
	t.Helper()
	for {
		ev := nextEvent(t, d)
		if ev.RunID == id {
			return ev
		}
	}
}

func expectNoEvent(t *testing.T, d *Driver, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected %v event (index %d)", ev.Kind, ev.Index)
	case <-time.After(wait):
	}
}

func waitState(t *testing.T, d *Driver, want State) {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for d.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", d.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStart_Preconditions(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		d := newDriver(time.Millisecond)
		defer d.Close()
		d.SetDetector(detection.NewMock())

		if err := d.Start(); !errors.Is(err, ErrNoSource) {
			t.Fatalf("Start() = %v, want ErrNoSource", err)
		}
		if d.State() != Idle {
			t.Errorf("state = %v, want idle", d.State())
		}
		if st := d.Status(); st.RunID != uuid.Nil {
			t.Errorf("RunID = %v, want no run", st.RunID)
		}
		expectNoEvent(t, d, 20*time.Millisecond)
	})

	t.Run("no model", func(t *testing.T) {
		d := newDriver(time.Millisecond)
		defer d.Close()
		src := source.NewFrames(testFrames(2)...)
		if _, err := d.Load(src); err != nil {
			t.Fatal(err)
		}

		if err := d.Start(); !errors.Is(err, ErrNoModel) {
			t.Fatalf("Start() = %v, want ErrNoModel", err)
		}
		if d.State() != Loaded {
			t.Errorf("state = %v, want loaded", d.State())
		}
		if src.Position() != 0 {
			t.Errorf("source advanced to %d by a failed Start", src.Position())
		}
		expectNoEvent(t, d, 20*time.Millisecond)
	})
}

func TestPause_IdleIsNoop(t *testing.T) {
	d := newDriver(time.Millisecond)
	defer d.Close()

	if d.Pause() {
		t.Error("Pause() while idle reported a transition")
	}
	if d.State() != Idle {
		t.Errorf("state = %v, want idle", d.State())
	}
}

func TestLoad_PreviewAndRewind(t *testing.T) {
	frames := testFrames(3)
	src := source.NewFrames(frames...)
	d := newDriver(time.Millisecond)
	defer d.Close()

	preview, err := d.Load(src)
	if err != nil {
		t.Fatal(err)
	}
	if preview != frames[0] {
		t.Error("preview is not the first frame")
	}
	if src.Position() != 0 {
		t.Errorf("source position = %d after Load, want 0", src.Position())
	}
	if st := d.Status(); st.State != Loaded || !st.HasSource {
		t.Errorf("status = %+v", st)
	}
}

func TestLoad_FailureLeavesStateIntact(t *testing.T) {
	d := newDriver(time.Millisecond)
	defer d.Close()

	good := source.NewFrames(testFrames(2)...)
	if _, err := d.Load(good); err != nil {
		t.Fatal(err)
	}

	empty := source.NewFrames()
	if _, err := d.Load(empty); err == nil {
		t.Fatal("Load(empty) succeeded")
	}
	if st := d.Status(); st.State != Loaded || !st.HasSource {
		t.Errorf("status after failed load = %+v", st)
	}
	// Previous source still usable.
	if _, err := good.Next(); err != nil {
		t.Errorf("previous source was closed: %v", err)
	}
}

func TestPlayback_RunsToEndThenRestarts(t *testing.T) {
	frames := testFrames(3)
	d := newDriver(time.Millisecond)
	defer d.Close()
	d.SetDetector(detection.NewMock())
	if _, err := d.Load(source.NewFrames(frames...)); err != nil {
		t.Fatal(err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	for i := range frames {
		ev := nextEvent(t, d)
		if ev.Kind != EventFrame || ev.Index != i {
			t.Fatalf("event %d = %v index %d", i, ev.Kind, ev.Index)
		}
		if ev.Original != frames[i] {
			t.Errorf("event %d carries the wrong frame", i)
		}
		if ev.Annotated == nil {
			t.Errorf("event %d has no annotated frame", i)
		}
	}
	end := nextEvent(t, d)
	if end.Kind != EventEnd || end.State != Idle {
		t.Fatalf("final event = %v state %v, want end/idle", end.Kind, end.State)
	}
	waitState(t, d, Idle)

	if d.Pause() {
		t.Error("Pause() after end of stream reported a transition")
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() after end of stream = %v", err)
	}
	ev := nextRunEvent(t, d, d.Status().RunID)
	if ev.Index != 0 || ev.Original != frames[0] {
		t.Errorf("restart began at index %d", ev.Index)
	}
}

func TestStart_AlwaysBeginsAtFirstFrame(t *testing.T) {
	frames := testFrames(5)
	d := newDriver(time.Hour)
	defer d.Close()
	d.SetDetector(detection.NewMock())
	if _, err := d.Load(source.NewFrames(frames...)); err != nil {
		t.Fatal(err)
	}

	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	if ev := nextEvent(t, d); ev.Index != 0 {
		t.Fatalf("first index = %d", ev.Index)
	}
	if !d.Stop() {
		t.Fatal("Stop() reported no active run")
	}
	if d.State() != Idle {
		t.Fatalf("state after Stop = %v", d.State())
	}

	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	ev := nextRunEvent(t, d, d.Status().RunID)
	if ev.Index != 0 || ev.Original != frames[0] {
		t.Errorf("second run started at index %d", ev.Index)
	}
}

func TestPause_ResumesWithoutRewind(t *testing.T) {
	frames := testFrames(4)
	d := newDriver(time.Millisecond)
	defer d.Close()

	mock := detection.NewMock()
	mock.OnDetect = func(call int, _ image.Image) {
		if call == 2 {
			d.Pause()
		}
	}
	d.SetDetector(mock)
	if _, err := d.Load(source.NewFrames(frames...)); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	// The frame in flight when pausing is still delivered.
	for i := 0; i < 2; i++ {
		if ev := nextEvent(t, d); ev.Index != i {
			t.Fatalf("event index = %d, want %d", ev.Index, i)
		}
	}
	expectNoEvent(t, d, 50*time.Millisecond)
	if d.State() != Paused {
		t.Fatalf("state = %v, want paused", d.State())
	}
	if d.Pause() {
		t.Error("second Pause() reported a transition")
	}

	runID := d.Status().RunID
	if err := d.Start(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	ev := nextEvent(t, d)
	if ev.RunID != runID {
		t.Error("resume started a new run")
	}
	if ev.Index != 2 || ev.Original != frames[2] {
		t.Errorf("resumed at index %d, want 2", ev.Index)
	}
}

func TestPlayback_DetectionFailureStops(t *testing.T) {
	boom := errors.New("inference exploded")
	mock := detection.NewMock()
	mock.FailAt = 2
	mock.FailErr = boom

	d := newDriver(time.Millisecond)
	defer d.Close()
	d.SetDetector(mock)
	if _, err := d.Load(source.NewFrames(testFrames(5)...)); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	if ev := nextEvent(t, d); ev.Kind != EventFrame || ev.Index != 0 {
		t.Fatalf("first event = %v %d", ev.Kind, ev.Index)
	}
	ev := nextEvent(t, d)
	if ev.Kind != EventError {
		t.Fatalf("second event = %v, want error", ev.Kind)
	}
	var fe *FrameError
	if !errors.As(ev.Err, &fe) || fe.Index != 1 {
		t.Fatalf("error = %v, want *FrameError at index 1", ev.Err)
	}
	if !errors.Is(ev.Err, boom) {
		t.Errorf("error does not wrap detector failure: %v", ev.Err)
	}
	waitState(t, d, Idle)
	expectNoEvent(t, d, 20*time.Millisecond)
	if mock.Calls() != 2 {
		t.Errorf("detector calls = %d, want 2 (no retry)", mock.Calls())
	}
}

func TestStart_ConcurrentCallsSpawnOneWorker(t *testing.T) {
	mock := detection.NewMock()
	d := newDriver(time.Hour)
	defer d.Close()
	d.SetDetector(mock)
	if _, err := d.Load(source.NewFrames(testFrames(3)...)); err != nil {
		t.Fatal(err)
	}

	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- d.Start()
		}()
	}
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrAlreadyPlaying):
		default:
			t.Errorf("Start() = %v", err)
		}
	}
	if started != 1 {
		t.Fatalf("%d Start calls succeeded, want 1", started)
	}

	nextEvent(t, d)
	expectNoEvent(t, d, 30*time.Millisecond)
	if mock.Calls() != 1 {
		t.Errorf("detector calls = %d, want 1", mock.Calls())
	}
}

func TestLoad_WhilePlayingRejected(t *testing.T) {
	d := newDriver(time.Hour)
	defer d.Close()
	d.SetDetector(detection.NewMock())
	if _, err := d.Load(source.NewFrames(testFrames(3)...)); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	other := source.NewFrames(testFrames(1)...)
	if _, err := d.Load(other); !errors.Is(err, ErrPlaying) {
		t.Fatalf("Load() while playing = %v, want ErrPlaying", err)
	}
	if other.Position() != 0 {
		t.Error("rejected source was read")
	}
}

func TestLoad_WhilePausedReplacesSource(t *testing.T) {
	d := newDriver(time.Millisecond)
	defer d.Close()
	d.SetDetector(detection.NewMock())

	first := source.NewFrames(testFrames(10)...)
	if _, err := d.Load(first); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	d.Pause()
	waitState(t, d, Paused)

	second := testFrames(2)
	if _, err := d.Load(source.NewFrames(second...)); err != nil {
		t.Fatalf("Load() while paused = %v", err)
	}
	if d.State() != Loaded {
		t.Errorf("state = %v, want loaded", d.State())
	}
	if _, err := first.Next(); !errors.Is(err, source.ErrClosed) {
		t.Errorf("previous source not closed: %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	ev := nextRunEvent(t, d, d.Status().RunID)
	if ev.Original != second[0] {
		t.Error("new run did not start at the new source's first frame")
	}
}

func TestPlayback_Pacing(t *testing.T) {
	const interval = 25 * time.Millisecond
	d := newDriver(interval)
	defer d.Close()
	d.SetDetector(detection.NewMock())
	if _, err := d.Load(source.NewFrames(testFrames(3)...)); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	nextEvent(t, d)
	start := time.Now()
	nextEvent(t, d)
	nextEvent(t, d)
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Errorf("3 frames took %v after the first, want at least %v", elapsed, 2*interval)
	}
}

func TestPlayback_Summary(t *testing.T) {
	lion := detection.Detection{Box: image.Rect(2, 2, 20, 20), Confidence: 0.9, ClassID: 3}
	dog := detection.Detection{Box: image.Rect(4, 4, 12, 12), Confidence: 0.6, ClassID: 0}

	d := newDriver(time.Millisecond)
	defer d.Close()
	d.SetDetector(detection.NewMock([]detection.Detection{lion, dog, lion}))
	if _, err := d.Load(source.NewFrames(testFrames(1)...)); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	ev := nextEvent(t, d)
	if ev.Summary.CarnivorousCount != 2 || ev.Summary.SpeciesCount() != 2 {
		t.Errorf("summary = %d %v", ev.Summary.CarnivorousCount, ev.Summary.Species())
	}
	if ev.Annotated.RGBAAt(2, 10) == (color.RGBA{}) {
		t.Error("annotated frame looks blank")
	}
}

func TestClose(t *testing.T) {
	d := newDriver(time.Hour)
	d.SetDetector(detection.NewMock())
	src := source.NewFrames(testFrames(3)...)
	if _, err := d.Load(src); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}

	// Drain; channel must be closed.
	deadline := time.After(eventTimeout)
	for open := true; open; {
		select {
		case _, open = <-d.Events():
		case <-deadline:
			t.Fatal("events channel not closed")
		}
	}
	if _, err := src.Next(); !errors.Is(err, source.ErrClosed) {
		t.Errorf("source not closed: %v", err)
	}
	if err := d.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
}

func TestUnload(t *testing.T) {
	d := newDriver(time.Millisecond)
	defer d.Close()
	d.SetDetector(detection.NewMock())
	if _, err := d.Load(source.NewFrames(testFrames(2)...)); err != nil {
		t.Fatal(err)
	}
	if err := d.Unload(); err != nil {
		t.Fatal(err)
	}
	if st := d.Status(); st.HasSource || st.State != Idle {
		t.Errorf("status = %+v", st)
	}
	if err := d.Start(); !errors.Is(err, ErrNoSource) {
		t.Errorf("Start() after Unload = %v, want ErrNoSource", err)
	}
}

func TestStateStrings(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Loaded: "loaded", Playing: "playing", Paused: "paused"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", int(s), s.String())
		}
	}
	if EventEnd.String() != "end" {
		t.Errorf("EventEnd = %q", EventEnd.String())
	}
}
