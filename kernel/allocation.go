package kernel

import (
	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/wire"
)

// AllocateTask installs a fresh TCB from an inbound TASK_ALLOCATION
// (spec.md §4.1 component 11, §3 "Lifecycle"). The text+data+bss
// payload has already been drained by the caller into page; the new
// task is not schedulable until TASK_RELEASE arrives (or immediately,
// if it has no mapper).
func (k *Kernel) AllocateTask(t wire.Talloc, page *Page) (*TCB, error) {
	if _, exists := k.Reg.Get(t.Task); exists {
		return nil, cmn.ErrInvalidArg
	}
	tcb := k.Reg.Create(t.Task)
	tcb.TextSize = t.TextSize
	tcb.DataSize = t.DataSize
	tcb.BSSSize = t.BSSSize
	tcb.HeapEnd = t.DataSize + t.BSSSize
	tcb.PC = t.EntryPoint
	tcb.Page = page
	tcb.Mapper = MapperRef{Task: TaskMapperTask(t.MapperTask), Addr: t.MapperAddress}
	tcb.ProcToMigrate = wire.NoTile

	if tcb.Mapper.Task == NoMapper {
		tcb.Released = true
		k.Sched.Wake(tcb.ID)
	}

	k.KPipe.Push(KernelMessage{Service: wire.TaskAllocated, Src: k.Addr})
	return tcb, nil
}
