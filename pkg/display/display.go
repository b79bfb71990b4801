// Package display implements the display sink boundary: frames are scaled to
// fit a viewport and delivered to a named pane.
package display

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/animal-detect/pkg/hub"
)

// Pane names a display target.
type Pane string

const (
	Original  Pane = "original"
	Annotated Pane = "annotated"
)

// ErrUnknownPane is returned for panes a sink does not serve.
var ErrUnknownPane = errors.New("display: unknown pane")

// Valid reports whether p is a known pane.
func (p Pane) Valid() bool {
	return p == Original || p == Annotated
}

// Sink accepts frames for a pane.
type Sink interface {
	Show(pane Pane, frame image.Image) error
}

// Fit scales frame down to fit within w×h, preserving aspect ratio. Frames
// that already fit, and non-positive viewports, are returned unchanged.
func Fit(frame image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return frame
	}
	b := frame.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return frame
	}
	return imaging.Fit(frame, w, h, imaging.Lanczos)
}

// HubSink fits frames to a viewport, encodes them as JPEG and broadcasts
// them on one hub per pane.
type HubSink struct {
	width, height int
	quality       int
	hubs          map[Pane]*hub.Hub
}

// NewHubSink creates a sink broadcasting to the given hubs.
func NewHubSink(width, height, quality int, hubs map[Pane]*hub.Hub) *HubSink {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &HubSink{width: width, height: height, quality: quality, hubs: hubs}
}

// Show implements Sink.
func (s *HubSink) Show(pane Pane, frame image.Image) error {
	h, ok := s.hubs[pane]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPane, pane)
	}
	data, err := EncodeJPEG(Fit(frame, s.width, s.height), s.quality)
	if err != nil {
		return err
	}
	h.BroadcastBinary(data)
	return nil
}

// EncodeJPEG encodes frame at the given quality.
func EncodeJPEG(frame image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("display: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Shown is one frame delivered to a Recorder.
type Shown struct {
	Pane  Pane
	Frame image.Image
}

// Recorder is an in-memory sink that keeps every frame it is shown.
type Recorder struct {
	mu    sync.Mutex
	shown []Shown

	// Err, when set, is returned by Show after recording the frame.
	Err error
}

// Show implements Sink.
func (r *Recorder) Show(pane Pane, frame image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, Shown{Pane: pane, Frame: frame})
	return r.Err
}

// Shown returns a copy of everything shown so far.
func (r *Recorder) Shown() []Shown {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Shown(nil), r.shown...)
}

// Last returns the most recent frame for pane.
func (r *Recorder) Last(pane Pane) (image.Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.shown) - 1; i >= 0; i-- {
		if r.shown[i].Pane == pane {
			return r.shown[i].Frame, true
		}
	}
	return nil, false
}

// Count returns how many frames pane has received.
func (r *Recorder) Count(pane Pane) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.shown {
		if s.Pane == pane {
			n++
		}
	}
	return n
}
