package kernel

import (
	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/wire"
)

// Write implements the producer-side rendezvous contract (spec.md
// §4.3 "Write algorithm"). producer is the calling task's own TCB;
// receiver is the consumer task id; sync selects synchronous
// (DATA_AV-first) vs asynchronous (delivery-only, requires a request
// already buffered) write mode.
func (k *Kernel) Write(producer *TCB, buf []byte, receiver wire.TaskID, sync bool) (int, error) {
	target := k.resolveTarget(producer, receiver)
	local := target == k.Addr

	// Step 2: a matching request is already buffered and its requester
	// is resident here — short-circuit straight into its pipe_in.
	if i, ok := producer.HasPendingRequestFrom(receiver); ok && producer.MsgRequests[i].PeerAddr == k.Addr {
		req := producer.MsgRequests[i]
		producer.RemoveMsgRequest(i)
		consumer, ok := k.Reg.Get(req.PeerTask)
		if !ok {
			return 0, cmn.ErrNotFound
		}
		consumer.PipeIn = &Pipe{Buf: append([]byte(nil), buf...), Read: true}
		k.Sched.Wake(consumer.ID)
		return len(buf), nil
	}

	// Step 3.
	if producer.PipeOut != nil {
		producer.WaitState = WaitingMessageRequest
		k.Sched.Block(producer.ID, WaitingMessageRequest)
		return 0, cmn.ErrRetry
	}

	_, remoteReqExists := producer.HasPendingRequestFrom(receiver)

	// Step 4: deadlock avoidance — a handler about to transmit must not
	// run while the send channel is already busy.
	if (remoteReqExists || (sync && !local)) && k.SendBusy() {
		producer.WaitState = WaitingMessageRequest
		k.Sched.Block(producer.ID, WaitingMessageRequest)
		return 0, cmn.ErrRetry
	}

	// Step 5.
	producer.PipeOut = &Pipe{Buf: append([]byte(nil), buf...)}

	switch {
	case remoteReqExists:
		idx, _ := producer.HasPendingRequestFrom(receiver)
		req := producer.MsgRequests[idx]
		producer.RemoveMsgRequest(idx)
		if err := k.deliverRemote(producer, req.PeerTask, req.PeerAddr); err != nil {
			return 0, err
		}
		producer.PipeOut = nil

	case sync && local:
		consumer, ok := k.Reg.Get(receiver)
		if !ok {
			return 0, cmn.ErrNotFound
		}
		consumer.DataAvs = append(consumer.DataAvs, PeerRef{PeerTask: producer.ID, PeerAddr: k.Addr})
		if consumer.WaitState == WaitingDataAv {
			consumer.WaitState = NotWaiting
			k.Sched.Wake(consumer.ID)
		}

	case sync && !local:
		hdshk := wire.MsgHdshk{Source: k.Addr, Receiver: receiver, Sender: producer.ID}
		head := wire.HermesHead{Service: wire.DataAv, Address: target}
		if err := k.sendHermes(target, head, hdshk.MarshalBinary(), nil); err != nil {
			return 0, err
		}

	default:
		// async, local, no request yet buffered: leave pipe_out armed
		// for a future local MESSAGE_REQUEST (handled in RecvRequest).
	}

	return len(buf), nil
}

// deliverRemote sends MESSAGE_DELIVERY for the producer's currently
// armed pipe_out to (peerTask, peerAddr), or performs the local
// memcpy short-circuit when peerAddr is this tile.
func (k *Kernel) deliverRemote(producer *TCB, peerTask wire.TaskID, peerAddr wire.TileAddr) error {
	if peerAddr == k.Addr {
		consumer, ok := k.Reg.Get(peerTask)
		if !ok {
			return cmn.ErrNotFound
		}
		consumer.PipeIn = &Pipe{Buf: append([]byte(nil), producer.PipeOut.Buf...), Read: true}
		k.Sched.Wake(consumer.ID)
		return nil
	}
	hdshk := wire.MsgHdshk{Source: k.Addr, Receiver: peerTask, Sender: producer.ID}
	dlv := wire.MsgDlv{Hdshk: hdshk, Size: uint32(len(producer.PipeOut.Buf))}
	head := wire.HermesHead{Service: wire.MessageDelivery, Address: peerAddr}
	return k.sendHermes(peerAddr, head, dlv.MarshalBinary(), producer.PipeOut.Buf)
}

// Read implements the consumer-side rendezvous contract (spec.md §4.3
// "Read algorithm"). consumer is the calling task's own TCB; producer
// is significant only in async mode (it names who to request from);
// sync selects synchronous (DATA_AV-driven) vs asynchronous
// (request-to-known-producer) read mode.
func (k *Kernel) Read(consumer *TCB, buf []byte, producer wire.TaskID, sync bool) (int, error) {
	// Step 1.
	if consumer.PipeIn != nil && consumer.PipeIn.Read {
		n := copy(buf, consumer.PipeIn.Buf)
		consumer.PipeIn = nil
		return n, nil
	}

	var peerTask wire.TaskID
	var peerAddr wire.TileAddr

	if sync {
		dav, ok := consumer.PopDataAv()
		if !ok {
			consumer.PipeIn = &Pipe{Buf: buf}
			consumer.WaitState = WaitingDataAv
			k.Sched.Block(consumer.ID, WaitingDataAv)
			return 0, cmn.ErrRetry
		}
		peerTask, peerAddr = dav.PeerTask, dav.PeerAddr
	} else {
		peerTask = producer
		peerAddr = k.Addr
		if consumer.App != nil {
			if addr, ok := consumer.App.Location.Get(producer); ok {
				peerAddr = addr
			}
		}
	}

	// Step 4: same-tile short-circuit.
	if peerAddr == k.Addr {
		if prodTCB, ok := k.Reg.Get(peerTask); ok && prodTCB.PipeOut != nil {
			n := copy(buf, prodTCB.PipeOut.Buf)
			prodTCB.PipeOut = nil
			if prodTCB.WaitState == WaitingMessageRequest {
				prodTCB.WaitState = NotWaiting
				k.Sched.Wake(prodTCB.ID)
			}
			return n, nil
		}
	}

	// Steps 5-8.
	consumer.PipeIn = &Pipe{Buf: buf}
	if peerAddr == k.Addr {
		if prodTCB, ok := k.Reg.Get(peerTask); ok {
			prodTCB.MsgRequests = append(prodTCB.MsgRequests, PeerRef{PeerTask: consumer.ID, PeerAddr: k.Addr})
		}
	} else {
		hdshk := wire.MsgHdshk{Source: k.Addr, Receiver: peerTask, Sender: consumer.ID}
		head := wire.HermesHead{Service: wire.MessageRequest, Address: peerAddr}
		if err := k.sendHermes(peerAddr, head, hdshk.MarshalBinary(), nil); err != nil {
			return 0, err
		}
	}

	consumer.WaitState = WaitingMessageDelivery
	k.Sched.Block(consumer.ID, WaitingMessageDelivery)
	return 0, cmn.ErrRetry
}

// forwardIfMigrated re-sends a handshake packet addressed to id to
// wherever the migration table says it now lives (spec.md §8 "Migration
// transparency": a message addressed to a task that has since migrated
// must be routed via the source tile's migration table). Returns false
// if id is neither resident nor known to have migrated, so the caller
// can fall back to cmn.ErrNotFound.
func (k *Kernel) forwardIfMigrated(id wire.TaskID, svc wire.Service, h wire.MsgHdshk) bool {
	dst, migrated := k.MigTable[id]
	if !migrated {
		return false
	}
	head := wire.HermesHead{Service: svc, Address: dst}
	_ = k.sendHermes(dst, head, h.MarshalBinary(), nil)
	return true
}

// RecvDataAv handles an inbound DATA_AV packet (spec.md §4.3 "Handshake
// receive"): append to the receiver's data_avs, wake it if blocked on
// DATA_AV.
func (k *Kernel) RecvDataAv(h wire.MsgHdshk) error {
	receiver, ok := k.Reg.Get(h.Receiver)
	if !ok {
		if k.forwardIfMigrated(h.Receiver, wire.DataAv, h) {
			return nil
		}
		return cmn.ErrNotFound
	}
	receiver.DataAvs = append(receiver.DataAvs, PeerRef{PeerTask: h.Sender, PeerAddr: h.Source})
	if receiver.WaitState == WaitingDataAv {
		receiver.WaitState = NotWaiting
		k.Sched.Wake(receiver.ID)
	}
	return nil
}

// RecvRequest handles an inbound MESSAGE_REQUEST packet: if the
// addressed producer already has a matching pipe_out, send
// MESSAGE_DELIVERY immediately (the scenario-3 "remote async,
// producer-second" race); otherwise store the request.
func (k *Kernel) RecvRequest(h wire.MsgHdshk) error {
	producer, ok := k.Reg.Get(h.Receiver)
	if !ok {
		if k.forwardIfMigrated(h.Receiver, wire.MessageRequest, h) {
			return nil
		}
		return cmn.ErrNotFound
	}
	if producer.PipeOut != nil {
		if err := k.deliverRemote(producer, h.Sender, h.Source); err != nil {
			return err
		}
		producer.PipeOut = nil
		if producer.WaitState == WaitingMessageRequest {
			producer.WaitState = NotWaiting
			k.Sched.Wake(producer.ID)
		}
		return nil
	}
	if _, exists := producer.HasPendingRequestFrom(h.Sender); !exists {
		producer.MsgRequests = append(producer.MsgRequests, PeerRef{PeerTask: h.Sender, PeerAddr: h.Source})
	}
	return nil
}

// RecvDelivery handles an inbound MESSAGE_DELIVERY packet (spec.md
// §4.3 "Delivery receive"): locate the receiver's pipe_in, drain the
// payload into it (bounce-copying through a temporary buffer if the
// caller's buffer is smaller than the payload), mark it read, and wake
// the consumer.
func (k *Kernel) RecvDelivery(dlv wire.MsgDlv, payload []byte) error {
	if dlv.Hdshk.Receiver == wire.NoTask {
		return k.DispatchHermesRPC(payload)
	}
	receiver, ok := k.Reg.Get(dlv.Hdshk.Receiver)
	if !ok {
		if dst, migrated := k.MigTable[dlv.Hdshk.Receiver]; migrated {
			head := wire.HermesHead{Service: wire.MessageDelivery, Address: dst}
			return k.sendHermes(dst, head, dlv.MarshalBinary(), payload)
		}
		return cmn.ErrNotFound
	}
	if receiver.PipeIn == nil {
		return cmn.ErrBadMessage
	}
	n := copy(receiver.PipeIn.Buf, payload)
	receiver.PipeIn.Buf = receiver.PipeIn.Buf[:n]
	receiver.PipeIn.Read = true
	receiver.WaitState = NotWaiting
	k.Sched.Wake(receiver.ID)
	return nil
}
