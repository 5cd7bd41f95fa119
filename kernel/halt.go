package kernel

import (
	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/wire"
)

// HaltPE records a halt request from (task, addr) (spec.md §4.6).
// halt_try is attempted immediately, and again whenever an APP_TERMINATED
// broadcast arrives or the pending FIFO is drained empty.
func (k *Kernel) HaltPE(task wire.TaskID, addr wire.TileAddr) error {
	k.halter = task
	k.halterAddr = addr
	k.halterActive = true
	_, err := k.HaltTry()
	return err
}

// HaltTry succeeds iff the kernel pipe, the migration table, and the
// pending-handshake FIFO are all empty (spec.md §4.6, §8 "Halt
// safety"). On success it enqueues PE_HALTED to the halter exactly
// once and clears the halt request.
func (k *Kernel) HaltTry() (bool, error) {
	k.Metrics.HaltAttempts.Inc()
	if !k.halterActive {
		return false, cmn.ErrInvalidArg
	}
	if !k.KPipe.Empty() || len(k.MigTable) != 0 || !k.Pending.Empty() {
		return false, cmn.ErrRetry
	}
	k.sendHalted()
	k.halterActive = false
	k.halted = true
	k.Metrics.PEHalted.Set(1)
	return true, nil
}

// IsHalted reports whether this tile has reached PE_HALTED at least
// once. Used by cmd/maestro-sim to stop ticking a tile's ISR loop and
// by debugsrv to report halt status.
func (k *Kernel) IsHalted() bool { return k.halted }

func (k *Kernel) sendHalted() {
	if k.halterAddr == k.Addr {
		k.KPipe.Push(KernelMessage{Service: wire.PEHalted, Src: k.Addr})
		return
	}
	head := wire.HermesHead{Service: wire.PEHalted, Address: k.halterAddr}
	hdshk := wire.MsgHdshk{Source: k.Addr, Receiver: k.halter, Sender: wire.NoTask}
	_ = k.sendHermes(k.halterAddr, head, hdshk.MarshalBinary(), nil)
}
