package kernel

import "github.com/pucrs-maestro/maestro/wire"

// Scheduler is the external collaborator the messaging, migration, and
// halt cores call into to change a task's run state (spec.md §1 "the
// scheduler's time-slice math" is explicitly out of scope; this
// package only needs to Block/Wake/ReportEvent through it). Kept as an
// interface, the way the teacher seams its xaction demand-source
// (`xreg.BckXact`) and transport notification callbacks, so tests can
// supply a deterministic double instead of a real time-sliced
// scheduler.
type Scheduler interface {
	// Block parks id off the ready queue for reason. Called whenever
	// read/write would otherwise return Retry.
	Block(id wire.TaskID, reason WaitReason)

	// Wake puts id on the ready queue, clearing any block recorded for
	// it. The kernel also calls it for tasks that were never blocked, to
	// make a newly allocated, released or migrated-in task runnable.
	Wake(id wire.TaskID)

	// ReportEvent accounts for an ISR firing (spec.md §4.7 step 1); the
	// scheduler uses it for its own bookkeeping and returns nothing.
	ReportEvent(kind string)

	// RunNext returns the task id the HAL should resume, or
	// (wire.NoTask, false) if nothing is ready.
	RunNext() (wire.TaskID, bool)
}
