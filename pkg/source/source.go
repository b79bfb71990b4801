// Package source provides sequential frame sources for still images and
// in-memory frame lists.
package source

import (
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

var (
	// ErrClosed is returned by sources used after Close.
	ErrClosed = errors.New("source: closed")

	// ErrUnsupported is returned for paths with an unknown extension.
	ErrUnsupported = errors.New("source: unsupported file type")
)

// FrameSource yields frames in order. Next returns io.EOF once the source is
// exhausted; Rewind repositions it at the first frame.
type FrameSource interface {
	Next() (image.Image, error)
	Rewind() error
	Close() error
}

// MediaKind classifies a path by extension.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindImage
	KindVideo
)

func (k MediaKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".tif": true, ".tiff": true}
	videoExts = map[string]bool{".mp4": true, ".avi": true, ".mov": true, ".mkv": true}
)

// Kind classifies path as an image or video file. Matching is case-insensitive.
func Kind(path string) MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExts[ext]:
		return KindImage
	case videoExts[ext]:
		return KindVideo
	default:
		return KindUnknown
	}
}

// LoadImage decodes a still image, applying EXIF orientation.
func LoadImage(path string) (image.Image, error) {
	if Kind(path) != KindImage {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("source: open image %s: %w", path, err)
	}
	return img, nil
}

// Frames is an in-memory source over a fixed list of frames.
type Frames struct {
	mu     sync.Mutex
	frames []image.Image
	pos    int
	closed bool
}

// NewFrames returns a source yielding frames in order.
func NewFrames(frames ...image.Image) *Frames {
	return &Frames{frames: frames}
}

// Next returns the next frame or io.EOF.
func (f *Frames) Next() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.pos >= len(f.frames) {
		return nil, io.EOF
	}
	img := f.frames[f.pos]
	f.pos++
	return img, nil
}

// Rewind moves back to the first frame.
func (f *Frames) Rewind() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.pos = 0
	return nil
}

// Position returns the index of the next frame to be read.
func (f *Frames) Position() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// Len returns the number of frames.
func (f *Frames) Len() int {
	return len(f.frames)
}

// Close releases the source. It is safe to call more than once.
func (f *Frames) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
