package kernel

import (
	"github.com/pucrs-maestro/maestro/wire"
)

const NumSavedRegs = 32 // generic register file width; the HAL (out of scope) knows the real count for its ISA

// TCB is a task's complete off-CPU state (spec.md §3).
type TCB struct {
	ID TaskID

	TextSize, DataSize, BSSSize uint32
	HeapEnd                     uint32

	SavedRegs [NumSavedRegs]uint32
	PC        uint32

	Page   *Page
	Mapper MapperRef

	// MsgRequests and DataAvs are ordered, unique-by-peer-task lists
	// (spec.md §3 invariant: "a second same-peer entry must not be
	// created").
	MsgRequests []PeerRef
	DataAvs     []PeerRef

	PipeIn  *Pipe
	PipeOut *Pipe

	ProcToMigrate wire.TileAddr // wire.NoTile if not migrating
	CalledExit    bool

	WaitState WaitReason
	Released  bool // schedulable: set on TASK_RELEASE, or immediately if Mapper.Task == NoMapper

	// ExecTime/Period/Deadline are the scheduler's real-time
	// parameters; the kernel only ferries them through migration
	// (spec.md §4.5 step 7), it never interprets them (scheduling math
	// is explicitly out of scope, spec.md §1).
	ExecTime, Period uint32
	Deadline         int32

	App *App
}

// TaskID is a local alias kept distinct from wire.TaskID only so this
// file reads naturally; they are the same underlying type.
type TaskID = wire.TaskID

// PeerRef is the in-kernel form of wire.PeerRef (same shape, reused
// directly rather than duplicated).
type PeerRef = wire.PeerRef

// HasPendingRequestFrom reports whether peer already has a buffered
// MESSAGE_REQUEST on this TCB (spec.md §3 invariant: unique by peer).
func (t *TCB) HasPendingRequestFrom(peer wire.TaskID) (int, bool) {
	for i, r := range t.MsgRequests {
		if r.PeerTask == peer {
			return i, true
		}
	}
	return -1, false
}

// HasPendingDataAvFrom reports whether peer already has a buffered
// DATA_AV on this TCB.
func (t *TCB) HasPendingDataAvFrom(peer wire.TaskID) (int, bool) {
	for i, d := range t.DataAvs {
		if d.PeerTask == peer {
			return i, true
		}
	}
	return -1, false
}

// PopDataAv removes and returns the head of DataAvs (FIFO order).
func (t *TCB) PopDataAv() (PeerRef, bool) {
	if len(t.DataAvs) == 0 {
		return PeerRef{}, false
	}
	head := t.DataAvs[0]
	t.DataAvs = t.DataAvs[1:]
	return head, true
}

// RemoveMsgRequest deletes the entry at index i, preserving order.
func (t *TCB) RemoveMsgRequest(i int) {
	t.MsgRequests = append(t.MsgRequests[:i], t.MsgRequests[i+1:]...)
}
