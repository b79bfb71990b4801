package main

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/animal-detect/internal/config"
	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/app"
	"github.com/teslashibe/animal-detect/pkg/detection"
	"github.com/teslashibe/animal-detect/pkg/detection/remote"
	"github.com/teslashibe/animal-detect/pkg/detection/yolo"
	"github.com/teslashibe/animal-detect/pkg/source"
	"github.com/teslashibe/animal-detect/pkg/video"
)

const healthTimeout = 5 * time.Second

// defaultModel is what LoadModel("") resolves to: the remote service when
// configured, the local weights otherwise.
func defaultModel(cfg config.Config) string {
	if cfg.DetectorURL != "" {
		return cfg.DetectorURL
	}
	return cfg.ModelPath
}

// detectorOpener builds detectors for app.LoadModel. With a detector URL
// every load targets the service at that path, after a health check.
func detectorOpener(ctx context.Context, cfg config.Config) app.DetectorOpener {
	if cfg.DetectorURL != "" {
		return func(url string) (detection.Detector, error) {
			d, err := remote.New(remote.Config{URL: url, JPEGQuality: cfg.JPEGQuality})
			if err != nil {
				return nil, err
			}
			hctx, cancel := context.WithTimeout(ctx, healthTimeout)
			defer cancel()
			if err := d.Health(hctx); err != nil {
				d.Close()
				return nil, fmt.Errorf("detector service %s: %w", url, err)
			}
			return d, nil
		}
	}

	return func(path string) (detection.Detector, error) {
		ycfg := yolo.DefaultConfig()
		ycfg.ModelPath = path
		ycfg.ConfidenceThresh = float32(cfg.ConfidenceThresh)
		ycfg.NMSThresh = float32(cfg.NMSThresh)
		d, err := yolo.New(ycfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func openVideo(path string) (source.FrameSource, error) {
	c, err := video.Open(path)
	if err != nil {
		return nil, err
	}
	log.Debug("video opened", "path", path, "info", c.Info())
	return c, nil
}
