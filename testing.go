package renderpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource provides a mock implementation of Source for testing.
// It tracks method calls for verification and detects concurrent entry,
// which would indicate a hole in the source lock.
type MockSource struct {
	units       int
	renderDelay time.Duration
	bytesHint   int64

	// Failure injection, keyed by unit index
	openErrs   map[int]error
	renderErrs map[int]error

	// Set while any load or render call is in progress
	inUse atomic.Bool
	// Races observed: a call entered while another was in flight
	races atomic.Int64

	mu          sync.Mutex
	openCalls   int
	renderCalls int
	closeCalls  int
}

// NewMockSource creates a mock source with the given unit count.
func NewMockSource(units int) *MockSource {
	return &MockSource{
		units:      units,
		openErrs:   make(map[int]error),
		renderErrs: make(map[int]error),
	}
}

// FailOpen makes OpenUnit fail for the given unit index.
func (m *MockSource) FailOpen(unit int, err error) {
	m.openErrs[unit] = err
}

// FailRender makes RenderUnit fail for the given unit index.
func (m *MockSource) FailRender(unit int, err error) {
	m.renderErrs[unit] = err
}

// SetRenderDelay adds an artificial delay to every render call.
func (m *MockSource) SetRenderDelay(d time.Duration) {
	m.renderDelay = d
}

// SetUnitBytesHint makes the mock implement a meaningful Sizer.
func (m *MockSource) SetUnitBytesHint(n int64) {
	m.bytesHint = n
}

// enter flags the source busy and records a race if it already was.
func (m *MockSource) enter() {
	if !m.inUse.CompareAndSwap(false, true) {
		m.races.Add(1)
	}
}

func (m *MockSource) leave() {
	m.inUse.Store(false)
}

// UnitCount implements the Source interface
func (m *MockSource) UnitCount() int {
	return m.units
}

// OpenUnit implements the Source interface
func (m *MockSource) OpenUnit(index int) (Unit, error) {
	m.enter()
	defer m.leave()

	m.mu.Lock()
	m.openCalls++
	m.mu.Unlock()

	if index < 0 || index >= m.units {
		return nil, fmt.Errorf("unit %d out of range", index)
	}
	if err := m.openErrs[index]; err != nil {
		return nil, err
	}
	return &mockUnit{src: m, index: index}, nil
}

// RenderUnit implements the Source interface
func (m *MockSource) RenderUnit(u Unit, dst *Pixmap, params RenderParams) error {
	m.enter()
	defer m.leave()

	m.mu.Lock()
	m.renderCalls++
	m.mu.Unlock()

	mu, ok := u.(*mockUnit)
	if !ok {
		return errors.New("unit does not belong to this source")
	}
	if mu.closed.Load() {
		return errors.New("unit already closed")
	}
	if err := m.renderErrs[mu.index]; err != nil {
		return err
	}
	if m.renderDelay > 0 {
		time.Sleep(m.renderDelay)
	}

	// Stamp the unit index into the first pixel so tests can verify the
	// right unit landed in the right callback.
	if len(dst.Pix) > 0 {
		dst.Pix[0] = byte(mu.index)
	}
	return nil
}

// UnitBytesHint implements the Sizer interface
func (m *MockSource) UnitBytesHint() int64 {
	return m.bytesHint
}

// OpenCalls returns the number of OpenUnit calls made.
func (m *MockSource) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// RenderCalls returns the number of RenderUnit calls made.
func (m *MockSource) RenderCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderCalls
}

// CloseCalls returns the number of unit Close calls made.
func (m *MockSource) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// Races returns how many calls entered while another call was in flight.
// A correctly locked pool keeps this at zero.
func (m *MockSource) Races() int {
	return int(m.races.Load())
}

type mockUnit struct {
	src    *MockSource
	index  int
	closed atomic.Bool
}

// Close implements the Unit interface
func (u *mockUnit) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return errors.New("double close")
	}
	u.src.mu.Lock()
	u.src.closeCalls++
	u.src.mu.Unlock()
	return nil
}
