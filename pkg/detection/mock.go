package detection

import (
	"context"
	"image"
	"sync"
)

// Mock is a scripted detector for tests. Each call to Detect consumes the
// next entry of Results; once exhausted it keeps returning the last entry
// (or nothing when Results is empty).
type Mock struct {
	mu sync.Mutex

	// Results are returned in call order.
	Results [][]Detection

	// Err, when set, is returned by every call.
	Err error

	// FailAt makes call number FailAt (1-based) return FailErr.
	FailAt  int
	FailErr error

	// OnDetect, when set, observes every frame before the result is chosen.
	OnDetect func(call int, frame image.Image)

	calls  int
	closed bool
}

// NewMock creates a mock that returns results in order.
func NewMock(results ...[]Detection) *Mock {
	return &Mock{Results: results}
}

// Detect implements Detector.
func (m *Mock) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	m.calls++
	if m.OnDetect != nil {
		m.OnDetect(m.calls, frame)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.FailAt > 0 && m.calls == m.FailAt {
		return nil, m.FailErr
	}
	if len(m.Results) == 0 {
		return nil, nil
	}
	idx := m.calls - 1
	if idx >= len(m.Results) {
		idx = len(m.Results) - 1
	}
	out := make([]Detection, len(m.Results[idx]))
	copy(out, m.Results[idx])
	return out, nil
}

// Calls returns how many times Detect has been invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close implements Detector.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
