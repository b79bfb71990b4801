package detection

import (
	"context"
	"image"
	"log/slog"
	"sync"
)

// Slot is a Detector whose model can be replaced while Detect calls are in
// flight. Each call runs on the model current when it starts; a replaced
// model is closed once its last call returns.
type Slot struct {
	logger *slog.Logger

	mu     sync.Mutex
	cur    *lease
	closed bool
}

type lease struct {
	det     Detector
	refs    int
	retired bool
}

// NewSlot creates an empty slot. Close errors of models retired while busy
// are logged to logger when it is non-nil.
func NewSlot(logger *slog.Logger) *Slot {
	return &Slot{logger: logger}
}

// Swap installs det. The previous model is closed now if idle, otherwise
// when its in-flight calls finish. The returned error is from an immediate
// close.
func (s *Slot) Swap(det Detector) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return det.Close()
	}
	old := s.cur
	s.cur = &lease{det: det}
	s.mu.Unlock()
	return s.retire(old)
}

// Loaded reports whether a model is installed.
func (s *Slot) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Detect implements Detector.
func (s *Slot) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	s.mu.Lock()
	l := s.cur
	if s.closed || l == nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	l.refs++
	s.mu.Unlock()

	dets, err := l.det.Detect(ctx, frame)

	s.mu.Lock()
	l.refs--
	idle := l.retired && l.refs == 0
	s.mu.Unlock()
	if idle {
		if cerr := l.det.Close(); cerr != nil && s.logger != nil {
			s.logger.Warn("close replaced model", "error", cerr)
		}
	}
	return dets, err
}

// Close retires the current model. Later Detect calls fail with ErrClosed.
func (s *Slot) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	old := s.cur
	s.cur = nil
	s.mu.Unlock()
	return s.retire(old)
}

func (s *Slot) retire(l *lease) error {
	if l == nil {
		return nil
	}
	s.mu.Lock()
	l.retired = true
	idle := l.refs == 0
	s.mu.Unlock()
	if idle {
		return l.det.Close()
	}
	return nil
}
