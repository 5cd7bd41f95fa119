package kernel

import (
	"github.com/pucrs-maestro/maestro/cmn/cos"
	"github.com/pucrs-maestro/maestro/metrics"
	"github.com/pucrs-maestro/maestro/transport"
	"github.com/pucrs-maestro/maestro/wire"
)

// Kernel is the complete per-tile state (spec.md §9 Design Notes:
// "model as a single per-tile Kernel struct ... pass as the sole
// parameter through every handler"). One Kernel exists per simulated
// tile; cmd/maestro-sim wires one per mesh node sharing a
// transport.Mesh, the way the teacher wires one target runner per node
// sharing a single cluster map.
type Kernel struct {
	Addr wire.TileAddr

	Reg       *Registry
	KPipe     *KPipe
	Pending   *PendingFIFO
	MigTable  map[wire.TaskID]wire.TileAddr // source-side forwarding table after a completed migration (spec.md §4.5)
	Observers *ObserverRegistry
	Sched     Scheduler
	Metrics   *metrics.Registry

	DMNI  *transport.DMNI
	BCast *transport.Broadcast

	halter       wire.TaskID
	halterAddr   wire.TileAddr
	halterActive bool
	halted       bool

	sendBusy bool
}

func NewKernel(addr wire.TileAddr, mesh *transport.Mesh, sched Scheduler) *Kernel {
	return &Kernel{
		Addr:      addr,
		Reg:       NewRegistry(),
		KPipe:     NewKPipe(),
		Pending:   NewPendingFIFO(),
		MigTable:  make(map[wire.TaskID]wire.TileAddr),
		Observers: NewObserverRegistry(),
		Sched:     sched,
		Metrics:   metrics.NewRegistry(addr),
		DMNI:      transport.NewDMNI(addr, mesh),
		BCast:     transport.NewBroadcast(addr, mesh),
	}
}

// SetSendBusy flags whether the DMNI send channel is occupied by an
// in-flight transfer (spec.md §4.1, §4.3 step 4 deadlock avoidance).
// The simulated DMNI.Send call returns as soon as the frame is handed
// to the mesh, so nothing observes a real busy window on its own;
// callers that issue a multi-packet transfer (migration) bracket it
// with SetSendBusy so the Pending FIFO path has a real signal to react
// to, exactly mirroring the source's "send-active bit" being asserted
// for the duration of a DMA burst.
func (k *Kernel) SetSendBusy(busy bool) { k.sendBusy = busy }

func (k *Kernel) SendBusy() bool { return k.sendBusy }

// sendHermes marshals head+body(+payload), flit-pads each section, and
// hands the frame to the DMNI.
func (k *Kernel) sendHermes(dst wire.TileAddr, head wire.HermesHead, body, payload []byte) error {
	pkt := padFlit(append(head.MarshalBinary(), body...))
	payload = padFlit(payload)
	if err := k.DMNI.Send(dst, pkt, true, payload, len(payload) > 0); err != nil {
		return err
	}
	k.Metrics.ObserveSent(head.Service)
	return nil
}

func padFlit(b []byte) []byte {
	if r := len(b) % cos.FlitSize; r != 0 {
		b = append(b, make([]byte, cos.FlitSize-r)...)
	}
	return b
}

// resolveTarget implements spec.md §4.3 write-algorithm step 1: a
// receiver in the producer's own application is resolved through that
// application's location table; otherwise receiver is already a
// port-encoded address (Design Notes "open question" — the
// port-flag/FORCE_PORT encoding is preserved bit-exact by callers, this
// kernel just reads the low 16 bits as a tile address).
func (k *Kernel) resolveTarget(producer *TCB, receiver wire.TaskID) wire.TileAddr {
	if producer.App != nil && receiver.AppID() == producer.ID.AppID() {
		if addr, ok := producer.App.Location.Get(receiver); ok {
			return addr
		}
	}
	return wire.TileAddr(receiver)
}
