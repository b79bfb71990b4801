package app

import (
	"github.com/teslashibe/animal-detect/pkg/record"
)

// recordFrame appends f to the log of its run, opening a new log when the
// run changes. Logging failures are reported once and disable the log for
// the rest of the run.
func (a *App) recordFrame(f Frame) {
	if a.cfg.RecordDir == "" {
		return
	}

	a.recMu.Lock()
	defer a.recMu.Unlock()

	if a.recRun != f.RunID {
		a.closeRecorderLocked()
		a.recRun = f.RunID
		w, err := record.Create(a.cfg.RecordDir, f.RunID.String())
		if err != nil {
			a.logger.Error("open detection log", "dir", a.cfg.RecordDir, "error", err)
			return
		}
		a.rec = w
		a.logger.Info("recording detections", "path", w.Path())
	}
	if a.rec == nil {
		return
	}

	a.mu.Lock()
	mediaPath := a.mediaPath
	a.mu.Unlock()

	boxes := make([]record.Box, len(f.Detections))
	for i, d := range f.Detections {
		boxes[i] = record.Box{
			X1:         d.Box.Min.X,
			Y1:         d.Box.Min.Y,
			X2:         d.Box.Max.X,
			Y2:         d.Box.Max.Y,
			Confidence: d.Confidence,
			ClassID:    d.ClassID,
			Name:       d.Name,
		}
	}
	err := a.rec.Write(record.Record{
		RunID:            f.RunID.String(),
		Index:            f.Index,
		Source:           mediaPath,
		Detections:       boxes,
		CarnivorousCount: f.Summary.CarnivorousCount,
		Species:          f.Summary.Species(),
	})
	if err != nil {
		a.logger.Error("write detection log", "error", err)
		a.closeRecorderLocked()
	}
}

func (a *App) closeRecorder() error {
	a.recMu.Lock()
	defer a.recMu.Unlock()
	return a.closeRecorderLocked()
}

func (a *App) closeRecorderLocked() error {
	if a.rec == nil {
		return nil
	}
	err := a.rec.Close()
	a.rec = nil
	return err
}
