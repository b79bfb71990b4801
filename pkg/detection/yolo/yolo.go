// Package yolo runs a YOLOv8 ONNX export through OpenCV's dnn module.
package yolo

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/detection"
)

// Config holds YOLO detector configuration
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	Logger           *slog.Logger
}

// DefaultConfig returns production defaults for a YOLOv8n export.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// Detector uses YOLOv8 for object detection.
type Detector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
	closed    bool
	log       *slog.Logger
}

// New loads the ONNX model. A missing file yields an error wrapping
// os.ErrNotExist.
func New(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("yolo: model %s: %w", cfg.ModelPath, err)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		def := DefaultConfig()
		cfg.InputWidth, cfg.InputHeight = def.InputWidth, def.InputHeight
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("yolo")
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("yolo: failed to load model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	cfg.Logger.Info("model loaded", "path", cfg.ModelPath,
		"input", fmt.Sprintf("%dx%d", cfg.InputWidth, cfg.InputHeight))

	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		log:       cfg.Logger,
	}, nil
}

// Detect implements detection.Detector. The network call itself cannot be
// interrupted; ctx is only checked before it starts.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, detection.ErrEmptyFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, detection.ErrClosed
	}

	// ImageToMatRGB stores pixels in OpenCV's BGR order.
	img, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("yolo: convert frame: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, detection.ErrEmptyFrame
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	origin := frame.Bounds().Min
	dets, err := d.parse(output, float32(img.Cols()), float32(img.Rows()))
	if err != nil {
		return nil, err
	}
	for i := range dets {
		dets[i].Box = dets[i].Box.Add(origin)
	}

	d.log.Debug("inference done", "detections", len(dets))
	return dets, nil
}

// parse decodes the [1, 4+C, N] YOLOv8 output tensor.
func (d *Detector) parse(output gocv.Mat, imgW, imgH float32) ([]detection.Detection, error) {
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("yolo: unexpected output shape %v", dims)
	}
	attrs, n := dims[1], dims[2] // 4 bbox + class scores, candidates
	if attrs <= 4 {
		return nil, fmt.Errorf("yolo: output has no class scores: %v", dims)
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("yolo: read output: %w", err)
	}

	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)
	bounds := image.Rect(0, 0, int(imgW), int(imgH))

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	for i := 0; i < n; i++ {
		maxScore := float32(0)
		maxClass := 0
		for c := 4; c < attrs; c++ {
			if s := data[c*n+i]; s > maxScore {
				maxScore = s
				maxClass = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[0*n+i], data[1*n+i]
		w, h := data[2*n+i], data[3*n+i]

		box := image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		boxes = append(boxes, box)
		scores = append(scores, maxScore)
		classIDs = append(classIDs, maxClass)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	out := make([]detection.Detection, 0, len(indices))
	for _, idx := range indices {
		conf := float64(scores[idx])
		if conf > 1 {
			conf = 1
		}
		out = append(out, detection.Detection{
			Box:        boxes[idx],
			Confidence: conf,
			ClassID:    classIDs[idx],
		})
	}
	return out, nil
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}
