// Package detection defines the detector boundary: what a model returns for
// one frame and the interface every backend implements.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Sentinel errors for common conditions.
var (
	// ErrEmptyFrame is returned when a detector is handed an empty image.
	ErrEmptyFrame = errors.New("detection: empty frame")

	// ErrClosed is returned when a closed detector is used.
	ErrClosed = errors.New("detection: detector closed")
)

// Detection is one model output: a bounding box in pixel coordinates,
// a confidence score and a class id.
type Detection struct {
	Box        image.Rectangle // Min is (x1, y1), Max is (x2, y2)
	Confidence float64         // 0-1
	ClassID    int
}

// Validate checks that the detection is well formed.
func (d Detection) Validate() error {
	switch {
	case d.Box.Min.X >= d.Box.Max.X || d.Box.Min.Y >= d.Box.Max.Y:
		return fmt.Errorf("degenerate box %v", d.Box)
	case d.Confidence < 0 || d.Confidence > 1:
		return fmt.Errorf("confidence %.3f outside [0,1]", d.Confidence)
	case d.ClassID < 0:
		return fmt.Errorf("negative class id %d", d.ClassID)
	}
	return nil
}

// Detector is the interface for object detection backends.
type Detector interface {
	// Detect finds objects in the frame. The frame is not modified.
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, frame image.Image) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	return f(ctx, frame)
}

// Close is a no-op.
func (f Func) Close() error { return nil }

// InvalidError reports a malformed detection returned by a backend.
type InvalidError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	return fmt.Sprintf("detection: result %d invalid: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvalidError) Unwrap() error {
	return e.Err
}

// validating rejects malformed backend output before it reaches the
// annotator.
type validating struct {
	Detector
}

// Validating wraps d so that any malformed detection turns the whole call
// into an *InvalidError.
func Validating(d Detector) Detector {
	if d == nil {
		return nil
	}
	if _, ok := d.(validating); ok {
		return d
	}
	return validating{Detector: d}
}

// Detect implements Detector.
func (v validating) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	dets, err := v.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	for i, d := range dets {
		if err := d.Validate(); err != nil {
			return nil, &InvalidError{Index: i, Err: err}
		}
	}
	return dets, nil
}
