// Package remote delegates detection to an external inference service over
// HTTP. The service receives the frame as a JPEG multipart upload and
// answers with pixel-space boxes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/teslashibe/animal-detect/internal/httpc"
	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/detection"
)

// ErrNoURL is returned when the service URL is missing.
var ErrNoURL = errors.New("remote: service URL required")

// APIError represents a non-200 response from the inference service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: inference failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote: inference failed with status %d: %s", e.StatusCode, e.Message)
}

// Config holds remote detector configuration.
type Config struct {
	// URL is the service base URL; /predict and /health are appended.
	URL string

	// JPEGQuality for the uploaded frame (default 90).
	JPEGQuality int

	// HTTPClient overrides the shared client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Detector calls the inference service once per frame.
type Detector struct {
	baseURL string
	quality int
	client  *http.Client
	log     *slog.Logger
}

// wireDetection is the JSON shape returned by the service.
type wireDetection struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

type predictResponse struct {
	Detections []wireDetection `json:"detections"`
}

// New creates a remote detector.
func New(cfg Config) (*Detector, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 90
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpc.Client
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("remote-detector")
	}
	return &Detector{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		quality: cfg.JPEGQuality,
		client:  cfg.HTTPClient,
		log:     cfg.Logger,
	}, nil
}

// Detect implements detection.Detector.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]detection.Detection, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, detection.ErrEmptyFrame
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("remote: create form file: %w", err)
	}
	if err := jpeg.Encode(part, frame, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("remote: encode frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("remote: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}

	// The service sees a JPEG whose origin is (0,0). Corners are kept as
	// sent so inverted boxes fail validation.
	origin := frame.Bounds().Min
	out := make([]detection.Detection, 0, len(result.Detections))
	for _, w := range result.Detections {
		box := image.Rectangle{Min: image.Pt(w.X1, w.Y1), Max: image.Pt(w.X2, w.Y2)}
		out = append(out, detection.Detection{
			Box:        box.Add(origin),
			Confidence: w.Confidence,
			ClassID:    w.ClassID,
		})
	}

	d.log.Debug("remote inference done", "detections", len(out))
	return out, nil
}

// Health checks that the service is reachable.
func (d *Detector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "unhealthy"}
	}
	return nil
}

// Close is a no-op; the HTTP client is shared.
func (d *Detector) Close() error {
	return nil
}
