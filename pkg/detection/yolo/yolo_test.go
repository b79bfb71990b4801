package yolo

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/animal-detect/pkg/detection"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}
	if cfg.NMSThresh <= 0 || cfg.NMSThresh > 1 {
		t.Errorf("DefaultConfig: NMSThresh should be 0-1, got %f", cfg.NMSThresh)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		t.Errorf("DefaultConfig: bad input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
}

func TestNew_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := New(cfg)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("New() error = %v, want os.ErrNotExist", err)
	}
}

func TestDetect_SolidFrame(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YOLO model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}
	frame.Set(0, 0, color.RGBA{255, 0, 0, 255})

	dets, err := d.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for _, det := range dets {
		if err := det.Validate(); err != nil {
			t.Errorf("invalid detection %+v: %v", det, err)
		}
		if !det.Box.In(frame.Bounds()) {
			t.Errorf("box %v outside frame", det.Box)
		}
	}
}

func TestDetect_EmptyFrameAndClosed(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YOLO model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if _, err := d.Detect(ctx, image.NewRGBA(image.Rectangle{})); !errors.Is(err, detection.ErrEmptyFrame) {
		t.Errorf("empty frame: %v, want ErrEmptyFrame", err)
	}

	d.Close()
	if _, err := d.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 8, 8))); !errors.Is(err, detection.ErrClosed) {
		t.Errorf("after Close: %v, want ErrClosed", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// findModelPath looks for the exported model relative to the test.
func findModelPath() string {
	candidates := []string{
		os.Getenv("ANIMALDETECT_MODEL"),
		"../../../models/yolov8n.onnx",
		"models/yolov8n.onnx",
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
	}
	return ""
}
