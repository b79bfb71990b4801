package app

import (
	"image"

	"github.com/google/uuid"

	"github.com/teslashibe/animal-detect/pkg/annotate"
	"github.com/teslashibe/animal-detect/pkg/detection"
	"github.com/teslashibe/animal-detect/pkg/playback"
	"github.com/teslashibe/animal-detect/pkg/source"
)

// Labeled is a detection with its resolved class name.
type Labeled struct {
	detection.Detection
	Name        string
	Carnivorous bool
}

// Result is the outcome of a single-image detection pass.
type Result struct {
	Detections []Labeled
	Summary    annotate.Summary
	Notice     annotate.Notice
	Annotated  *image.RGBA
}

// Frame describes one processed playback frame.
type Frame struct {
	RunID      uuid.UUID
	Index      int
	Detections []Labeled
	Summary    annotate.Summary
}

// Status is a snapshot of the application.
type Status struct {
	Playback  playback.State
	ModelPath string
	MediaPath string
	MediaKind source.MediaKind
	HasModel  bool
	HasImage  bool
	HasVideo  bool
	RunID     uuid.UUID
	Frames    int
	Recording string // path of the open detection log, if any
}

// CanPlay reports whether Play would be accepted.
func (s Status) CanPlay() bool {
	return s.HasModel && s.HasVideo && s.Playback != playback.Playing
}

// CanPause reports whether Pause would change anything.
func (s Status) CanPause() bool {
	return s.Playback == playback.Playing
}

// CanDetect reports whether DetectOnce has what it needs.
func (s Status) CanDetect() bool {
	return s.HasModel && s.HasImage
}

// Observer receives notifications from the app. OnFrame and playback
// failures are delivered from the goroutine running App.Run; the rest from
// the goroutine issuing the command.
type Observer interface {
	OnState(Status)
	OnFrame(Frame)
	OnNotice(Result)
	OnError(error)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	State  func(Status)
	Frame  func(Frame)
	Notice func(Result)
	Error  func(error)
}

func (o ObserverFuncs) OnState(s Status) {
	if o.State != nil {
		o.State(s)
	}
}

func (o ObserverFuncs) OnFrame(f Frame) {
	if o.Frame != nil {
		o.Frame(f)
	}
}

func (o ObserverFuncs) OnNotice(r Result) {
	if o.Notice != nil {
		o.Notice(r)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}
