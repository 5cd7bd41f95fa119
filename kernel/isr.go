package kernel

import (
	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/transport"
	"github.com/pucrs-maestro/maestro/wire"
)

// ISR implements the interrupt dispatcher (spec.md §4.7): on every
// entry it reports the event to the scheduler, then drains exactly one
// unit of work in priority order BrLite > Hermes > Pending > Timer,
// diverting DATA_AV/MESSAGE_REQUEST into the Pending FIFO when the send
// channel is busy. It returns the task id the HAL should resume.
func (k *Kernel) ISR(timerFired bool) (wire.TaskID, bool) {
	k.Sched.ReportEvent("isr")
	k.Metrics.ISRTicks.Inc()
	k.Metrics.KPipeDepth.Set(float64(len(k.KPipe.q)))
	k.Metrics.PendingDepth.Set(float64(len(k.Pending.q)))
	k.Metrics.MigTableSize.Set(float64(len(k.MigTable)))
	k.Metrics.TCBCount.Set(float64(k.Reg.Len()))

	switch {
	case k.tryBroadcast():
	case k.tryHermes():
	case k.tryPending():
	case timerFired:
		k.Sched.ReportEvent("timer")
	}

	return k.Sched.RunNext()
}

func (k *Kernel) tryBroadcast() bool {
	pkt, ok := k.BCast.TryRecv()
	if !ok {
		return false
	}
	if err := k.DispatchBroadcast(pkt); err != nil {
		nlog.Errorf("isr: broadcast dispatch: %v", err)
	}
	return true
}

func (k *Kernel) tryHermes() bool {
	if !k.DMNI.HasPending() {
		return false
	}
	frame, ok := transport.DecodeHermes(k.DMNI)
	if !ok {
		return false
	}

	// Step 3: divert DATA_AV/MESSAGE_REQUEST to the Pending FIFO when
	// the send channel is busy, since their handlers may themselves
	// need to transmit (spec.md §4.4).
	if (frame.Head.Service == wire.DataAv || frame.Head.Service == wire.MessageRequest) && k.SendBusy() {
		h := frame.Body.(wire.MsgHdshk)
		k.Pending.Push(PendingEntry{Service: frame.Head.Service, Target: h.Receiver, Peer: PeerRef{PeerTask: h.Sender, PeerAddr: h.Source}})
		return true
	}

	k.dispatchHermes(frame)
	return true
}

func (k *Kernel) tryPending() bool {
	e, ok := k.Pending.Pop()
	if !ok {
		return false
	}
	h := wire.MsgHdshk{Source: e.Peer.PeerAddr, Receiver: e.Target, Sender: e.Peer.PeerTask}
	var err error
	switch e.Service {
	case wire.DataAv:
		err = k.RecvDataAv(h)
	case wire.MessageRequest:
		err = k.RecvRequest(h)
	}
	if err != nil {
		nlog.Errorf("isr: pending dispatch: %v", err)
	}
	if k.halterActive && k.Pending.Empty() {
		_, _ = k.HaltTry()
	}
	return true
}

// dispatchHermes routes one decoded Hermes frame to its handler. Frames
// carrying a trailing variable payload (MESSAGE_DELIVERY and the
// migration sections) drain it here, decompressing first when the
// sender set wire.CompressedFlag.
func (k *Kernel) dispatchHermes(frame transport.Frame) {
	k.Metrics.ObserveRecv(frame.Head.Service)
	var err error
	switch body := frame.Body.(type) {
	case wire.MsgHdshk:
		switch frame.Head.Service {
		case wire.DataAv:
			err = k.RecvDataAv(body)
		case wire.MessageRequest:
			err = k.RecvRequest(body)
		}

	case wire.MsgDlv:
		payload := k.drainPlain(int(body.Size))
		err = k.RecvDelivery(body, payload)

	case wire.Talloc:
		payload := k.drainPlain(int(body.TextSize + body.DataSize + body.BSSSize))
		_, err = k.AllocateTask(body, &Page{Offset: uint32(len(payload))})

	case wire.TMText:
		payload := k.drainSection(int(body.Size), frame.Head.Flags)
		_, err = k.RecvMigrationText(body, &Page{Offset: uint32(len(payload))})

	case wire.TMData:
		k.drainSection(int(body.DataSize+body.BSSSize), frame.Head.Flags)
		err = k.RecvMigrationData(body)

	case wire.TMStack:
		k.drainSection(int(body.Size), frame.Head.Flags)
		err = k.RecvMigrationStack(body)

	case wire.TMHdshk:
		n := (int(body.AvailableSize) + int(body.RequestSize)) * wire.PeerRefSize
		payload := k.drainPlain(n)
		err = k.RecvMigrationHdshk(body, payload)

	case wire.TMOpipe:
		payload := k.drainPlain(int(body.Size))
		err = k.RecvMigrationPipe(body, payload)

	case wire.TMTaskLocation:
		n := int(body.TaskCnt) * wire.PeerRefSize
		payload := k.drainPlain(n)
		err = k.RecvMigrationLocation(body, payload)

	case wire.TMTCB:
		payload := k.drainPlain(NumSavedRegs * 4)
		err = k.RecvMigrationTCB(body, payload)
	}

	if err != nil {
		nlog.Errorf("isr: hermes dispatch 0x%02x: %v", frame.Head.Service, err)
	}
}

func alignFlit(size int) int {
	if r := size % 4; r != 0 {
		size += 4 - r
	}
	return size
}

// drainPlain reads exactly size (flit-padded) bytes of uncompressed
// payload from the DMNI.
func (k *Kernel) drainPlain(size int) []byte {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, alignFlit(size))
	if _, err := k.DMNI.Recv(buf); err != nil {
		nlog.Errorf("isr: payload recv: %v", err)
		return nil
	}
	return buf[:size]
}

// drainSection reads a migration text/data/stack section, which is
// either size bytes of plain payload or — when flags carries
// wire.CompressedFlag — a 4-byte compressed-length prefix followed by
// that many compressed bytes, decompressed back to the original
// section.
func (k *Kernel) drainSection(size int, flags uint8) []byte {
	if flags&wire.CompressedFlag == 0 {
		return k.drainPlain(size)
	}
	lenBuf := k.drainPlain(4)
	if len(lenBuf) != 4 {
		return nil
	}
	n := int(uint32(lenBuf[0]) | uint32(lenBuf[1])<<8 | uint32(lenBuf[2])<<16 | uint32(lenBuf[3])<<24)
	compressed := k.drainPlain(n)
	framed := append(lenBuf, compressed...)
	out, err := maybeDecompress(framed)
	if err != nil {
		nlog.Errorf("isr: section decompress: %v", err)
		return nil
	}
	return out
}
