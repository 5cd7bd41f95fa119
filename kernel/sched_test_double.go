package kernel

import "github.com/pucrs-maestro/maestro/wire"

// FIFOScheduler is a deterministic Scheduler double: ready tasks are
// served in the order they were woken, exactly once each. It exists so
// kernel tests can assert on messaging/migration/halt behavior without
// depending on real time-slicing (out of scope per spec.md §1).
type FIFOScheduler struct {
	ready   []wire.TaskID
	blocked map[wire.TaskID]WaitReason
	events  []string
}

func NewFIFOScheduler() *FIFOScheduler {
	return &FIFOScheduler{blocked: make(map[wire.TaskID]WaitReason)}
}

func (s *FIFOScheduler) Block(id wire.TaskID, reason WaitReason) {
	s.blocked[id] = reason
}

func (s *FIFOScheduler) Wake(id wire.TaskID) {
	if _, ok := s.blocked[id]; ok {
		delete(s.blocked, id)
	}
	s.ready = append(s.ready, id)
}

func (s *FIFOScheduler) ReportEvent(kind string) {
	s.events = append(s.events, kind)
}

func (s *FIFOScheduler) RunNext() (wire.TaskID, bool) {
	if len(s.ready) == 0 {
		return wire.NoTask, false
	}
	id := s.ready[0]
	s.ready = s.ready[1:]
	return id, true
}

// WaitReasonOf reports why id is currently blocked, for test
// assertions.
func (s *FIFOScheduler) WaitReasonOf(id wire.TaskID) (WaitReason, bool) {
	r, ok := s.blocked[id]
	return r, ok
}

// Events returns every ReportEvent kind seen so far, for test
// assertions.
func (s *FIFOScheduler) Events() []string { return append([]string(nil), s.events...) }
