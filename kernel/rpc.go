package kernel

import (
	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/wire"
)

// RPC dispatcher (spec.md §4.4): decodes kernel-targeted services
// arriving either as a BrLite broadcast or as the payload of an inbound
// MESSAGE_DELIVERY addressed to the kernel (wire.NoTask / KernelMsg).

// DispatchBroadcast handles one inbound BrLite packet.
func (k *Kernel) DispatchBroadcast(pkt wire.BrLitePacket) error {
	switch pkt.Service {
	case wire.AnnounceMonitor:
		k.Observers.Announce(Observer{Addr: pkt.SrcAddr, Service: wire.Service(pkt.Payload)})
	case wire.ReleasePeripheral:
		// peripheral ownership bit is out of scope (external HAL
		// collaborator, spec.md §1); the broadcast is only logged.
		nlog.Infof("release-peripheral from %s", pkt.SrcAddr)
	case wire.AppTerminated:
		appID := uint8(pkt.Payload)
		k.clearMigrationsForApp(appID)
		if k.halterActive {
			_, _ = k.HaltTry()
		}
	case wire.HaltPE:
		return k.HaltPE(wire.TaskID(pkt.Payload), pkt.SrcAddr)
	case wire.ClearMonTable:
		k.Observers.Clear()
	default:
		nlog.Warnf("rpc: unhandled broadcast service 0x%02x", pkt.Service)
	}
	return nil
}

// DispatchHermesRPC decodes and routes a MESSAGE_DELIVERY payload
// addressed to the kernel itself (wire.NoTask): TASK_RELEASE,
// ABORT_TASK and TASK_MIGRATION all arrive this way rather than as
// their own Hermes services, mirroring rpc_hermes_dispatcher reading
// the service out of the delivered message.
func (k *Kernel) DispatchHermesRPC(payload []byte) error {
	svc, err := wire.PeekRPCService(payload)
	if err != nil {
		return err
	}
	switch svc {
	case wire.TaskRelease:
		r, err := wire.UnmarshalRPCTaskRelease(payload)
		if err != nil {
			return err
		}
		off := wire.RPCTaskReleaseSize
		locations := make([]wire.PeerRef, 0, r.TaskCnt)
		for i := 0; i < int(r.TaskCnt); i++ {
			loc, err := wire.UnmarshalPeerRef(payload[off:])
			if err != nil {
				return err
			}
			locations = append(locations, loc)
			off += wire.PeerRefSize
		}
		mapper := MapperRef{Task: TaskMapperTask(r.MapperTask), Addr: r.MapperAddress}
		return k.TaskRelease(r.Task, mapper, locations)

	case wire.AbortTask:
		r, err := wire.UnmarshalRPCAbortTask(payload)
		if err != nil {
			return err
		}
		return k.AbortTask(r.Task)

	case wire.TaskMigration:
		r, err := wire.UnmarshalRPCTaskMigration(payload)
		if err != nil {
			return err
		}
		// The section bytes a migration ships (.text/.data/.stack) are
		// HAL-owned (spec.md §1, out of scope); an RPC-triggered
		// migration has none of its own to offer, same as
		// RecvMigrationStack trusting the HAL to have applied the
		// payload it validates but never touches.
		return k.MigrateTask(r.Task, r.Address, MigrationSource{})

	default:
		nlog.Warnf("rpc: unknown service 0x%02x inside MESSAGE_DELIVERY", svc)
		return cmn.ErrInvalidArg
	}
}

func (k *Kernel) clearMigrationsForApp(appID uint8) {
	for id := range k.MigTable {
		if id.AppID() == appID {
			delete(k.MigTable, id)
		}
	}
}

// TaskRelease creates the TCB if it is not resident yet, records its
// mapper, writes the delivered location entries into its application's
// location table, marks it released and wakes it in the scheduler.
func (k *Kernel) TaskRelease(id wire.TaskID, mapper MapperRef, locations []wire.PeerRef) error {
	t, ok := k.Reg.Get(id)
	if !ok {
		t = k.Reg.Create(id)
	}
	t.Mapper = mapper
	for _, loc := range locations {
		_ = t.App.Location.Set(loc.PeerTask, loc.PeerAddr)
	}
	t.Released = true
	k.Sched.Wake(id)
	return nil
}

// AbortTask terminates id if resident, or forwards the abort to its
// current tile if the migration table shows it moved elsewhere (spec.md
// §4.4 "ABORT_TASK (terminate or forward if migrated)").
func (k *Kernel) AbortTask(id wire.TaskID) error {
	if _, ok := k.Reg.Get(id); ok {
		k.Reg.Remove(id)
		k.KPipe.Push(KernelMessage{Service: wire.TaskAborted, Src: k.Addr})
		return nil
	}
	if dst, migrated := k.MigTable[id]; migrated {
		head := wire.HermesHead{Service: wire.AbortTask, Address: dst}
		hdshk := wire.MsgHdshk{Source: k.Addr, Receiver: id, Sender: wire.NoTask}
		return k.sendHermes(dst, head, hdshk.MarshalBinary(), nil)
	}
	return cmn.ErrNotFound
}
