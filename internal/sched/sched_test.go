package sched

import (
	"sync"

	"github.com/renderkit/go-renderpool/internal/interfaces"
	"github.com/renderkit/go-renderpool/internal/pix"
)

// fakeSource is a minimal Source for scheduler tests. It records close order
// so collector semantics can be asserted.
type fakeSource struct {
	units     int
	openErr   map[int]error
	renderErr map[int]error
	closeErr  map[int]error

	// renderGate, when set, blocks every render until a value is sent
	renderGate chan struct{}

	mu         sync.Mutex
	closeOrder []int
}

func newFakeSource(units int) *fakeSource {
	return &fakeSource{
		units:     units,
		openErr:   make(map[int]error),
		renderErr: make(map[int]error),
		closeErr:  make(map[int]error),
	}
}

func (s *fakeSource) UnitCount() int { return s.units }

func (s *fakeSource) OpenUnit(index int) (interfaces.Unit, error) {
	if err := s.openErr[index]; err != nil {
		return nil, err
	}
	return &fakeUnit{src: s, index: index}, nil
}

func (s *fakeSource) RenderUnit(u interfaces.Unit, dst *pix.Pixmap, params interfaces.RenderParams) error {
	fu := u.(*fakeUnit)
	if err := s.renderErr[fu.index]; err != nil {
		return err
	}
	if s.renderGate != nil {
		<-s.renderGate
	}
	if len(dst.Pix) > 0 {
		dst.Pix[0] = byte(fu.index)
	}
	return nil
}

func (s *fakeSource) closed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.closeOrder...)
}

type fakeUnit struct {
	src   *fakeSource
	index int
}

func (u *fakeUnit) Close() error {
	u.src.mu.Lock()
	u.src.closeOrder = append(u.src.closeOrder, u.index)
	u.src.mu.Unlock()
	return u.src.closeErr[u.index]
}
