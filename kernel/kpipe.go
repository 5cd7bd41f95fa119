package kernel

import "github.com/pucrs-maestro/maestro/wire"

// KernelMessage is one kernel-originated message waiting in the kernel
// pipe (spec.md §4.7 "kernel pipe"), e.g. TASK_ALLOCATED, TASK_ABORTED
// or a local PE_HALTED.
type KernelMessage struct {
	Service wire.Service
	Src     wire.TileAddr
	Body    any
}

// KPipe is the kernel's own FIFO of such messages. Unlike a task's
// ipipe/opipe (capacity one), the kernel pipe has unbounded depth: the
// kernel must never block queuing its own housekeeping traffic.
type KPipe struct {
	q []KernelMessage
}

func NewKPipe() *KPipe { return &KPipe{} }

func (k *KPipe) Push(m KernelMessage) {
	k.q = append(k.q, m)
}

func (k *KPipe) Pop() (KernelMessage, bool) {
	if len(k.q) == 0 {
		return KernelMessage{}, false
	}
	m := k.q[0]
	k.q = k.q[1:]
	return m, true
}

func (k *KPipe) Empty() bool { return len(k.q) == 0 }
