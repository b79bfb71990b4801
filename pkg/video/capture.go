// Package video reads frames from video container files through OpenCV.
package video

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/animal-detect/internal/log"
)

var (
	ErrClosed   = errors.New("video: capture closed")
	ErrNotVideo = errors.New("video: file could not be opened as video")
)

// Info describes an opened video.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}

// Capture is a frame source over a video file. It implements
// source.FrameSource.
type Capture struct {
	mu     sync.Mutex
	path   string
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	info   Info
	closed bool
	logger *slog.Logger
}

// Open opens path for sequential reading, positioned at the first frame.
func Open(path string) (*Capture, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video: %w", err)
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotVideo, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotVideo, path)
	}

	c := &Capture{
		path: path,
		vc:   vc,
		mat:  gocv.NewMat(),
		info: Info{
			Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
			FPS:        vc.Get(gocv.VideoCaptureFPS),
			FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
		},
		logger: log.Component("video"),
	}
	c.logger.Debug("opened", "path", path, "width", c.info.Width, "height", c.info.Height,
		"fps", c.info.FPS, "frames", c.info.FrameCount)
	return c, nil
}

// Info returns the container properties reported by the decoder.
func (c *Capture) Info() Info {
	return c.info
}

// Path returns the opened file.
func (c *Capture) Path() string {
	return c.path
}

// Next decodes the next frame. It returns io.EOF when no frame remains.
func (c *Capture) Next() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("video: convert frame: %w", err)
	}
	return img, nil
}

// Rewind seeks back to the first frame.
func (c *Capture) Rewind() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.vc.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

// Close releases the decoder. It is safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.vc.Close()
}
