// Package kernel is the per-tile microkernel itself: the TCB registry,
// pipes, the messaging rendezvous state machine, task migration, halt,
// and the RPC/ISR dispatchers (spec.md §4.3-4.7). Every handler in this
// package takes the same single *Kernel parameter, per Design Notes §9
// ("model as a single per-tile Kernel struct ... pass as the sole
// &mut Kernel parameter through every handler").
package kernel

import (
	"github.com/pucrs-maestro/maestro/wire"
)

// WaitReason is why a TCB is parked off the ready queue (spec.md §4.3).
type WaitReason int

const (
	NotWaiting WaitReason = iota
	WaitingDataAv
	WaitingMessageRequest
	WaitingMessageDelivery
)

func (r WaitReason) String() string {
	switch r {
	case WaitingDataAv:
		return "waiting-data-av"
	case WaitingMessageRequest:
		return "waiting-message-request"
	case WaitingMessageDelivery:
		return "waiting-message-delivery"
	default:
		return "not-waiting"
	}
}

// MapperRef names the task (and its tile) that mapped (created) a task.
// MapperRef.Task == NoMapper disables termination reports, per
// spec.md §3.
type MapperRef struct {
	Task TaskMapperTask
	Addr wire.TileAddr
}

// TaskMapperTask is wire.TaskID widened with the "-1 disables reports"
// sentinel spelled out explicitly, matching the original source's
// mapper_task being a signed int8 (-1 means "no mapper", as opposed to
// app id 0's task 0) while every other task id in this repo is
// unsigned. Kept as its own type so call sites can't accidentally
// compare it against a plain wire.TaskID.
type TaskMapperTask int16

const NoMapper TaskMapperTask = -1

// Page stands in for the external page-table/paging subsystem
// (explicitly out of scope, spec.md §1): just enough surface — a page
// offset ORed into user pointers — for the kernel to reason about.
type Page struct {
	Offset uint32
}

// App is the per-application object a TCB refers back to: its location
// table and a refcount of the TCBs currently pointing at it (spec.md
// §3, §4.5 "app_refer on TCB creation and app_derefer on TCB removal").
type App struct {
	ID       uint8
	refcount int
	Location *LocationTable
}
