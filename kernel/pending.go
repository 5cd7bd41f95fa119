package kernel

import "github.com/pucrs-maestro/maestro/wire"

// PendingEntry is one deferred DATA_AV or MESSAGE_REQUEST: exactly the
// two services the pending FIFO is allowed to hold (spec.md §4.4 "it
// only holds DATA_AV or MESSAGE_REQUEST").
type PendingEntry struct {
	Service wire.Service // wire.DataAv or wire.MessageRequest
	Target  wire.TaskID  // local task the packet was addressed to
	Peer    PeerRef      // sender (task, tile)
}

// PendingFIFO defers inbound handshake packets that arrive while the
// DMNI send channel is busy, so their handler — which may itself need
// to transmit a reply — never stalls waiting on the adapter (spec.md
// §4.4, §4.7 step 3). Drained strictly FIFO by the PENDING interrupt.
type PendingFIFO struct {
	q []PendingEntry
}

func NewPendingFIFO() *PendingFIFO { return &PendingFIFO{} }

func (p *PendingFIFO) Push(e PendingEntry) {
	p.q = append(p.q, e)
}

func (p *PendingFIFO) Pop() (PendingEntry, bool) {
	if len(p.q) == 0 {
		return PendingEntry{}, false
	}
	e := p.q[0]
	p.q = p.q[1:]
	return e, true
}

func (p *PendingFIFO) Empty() bool { return len(p.q) == 0 }
