package transport

import (
	"sync"

	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/cmn/cos"
	"github.com/pucrs-maestro/maestro/wire"
)

// DMNI is the exclusive programming interface to one tile's DMA Network
// Interface (spec.md §4.1). It is the only writer of "DMA registers";
// everything above it (the Hermes decoder, the messaging core) goes
// through Send/Recv/DropPayload. One outbound packet is ever in flight:
// the next Send implicitly frees whatever buffers the previous one
// owned.
type DMNI struct {
	addr   wire.TileAddr
	mesh   *Mesh
	recvCh <-chan []byte

	mu      sync.Mutex
	pending []byte // bytes of the current inbound frame not yet drained
	owned   []any   // buffers this adapter currently owns and must free on the next Send
}

func NewDMNI(addr wire.TileAddr, mesh *Mesh) *DMNI {
	return &DMNI{
		addr:   addr,
		mesh:   mesh,
		recvCh: mesh.registerHermes(addr),
	}
}

// Send programs the DMNI to transmit pkt followed by pld to dst. Sizes
// must be flit-aligned. If pktOwned/pldOwned is set, this adapter takes
// ownership of that buffer and frees the one it owned from the previous
// Send before replacing it — transferring large migration payloads
// never blocks on the previous send's completion.
func (d *DMNI) Send(dst wire.TileAddr, pkt []byte, pktOwned bool, pld []byte, pldOwned bool) error {
	if !cos.IsFlitAligned(len(pkt)) || !cos.IsFlitAligned(len(pld)) {
		return cmn.ErrInvalidArg
	}

	d.mu.Lock()
	owned := d.owned[:0]
	if pktOwned {
		owned = append(owned, pkt)
	}
	if pldOwned {
		owned = append(owned, pld)
	}
	d.owned = owned // the previous contents are simply dropped, letting the GC reclaim them -- this is the "free on next send" contract
	d.mu.Unlock()

	frame := make([]byte, 0, len(pkt)+len(pld))
	frame = append(frame, pkt...)
	frame = append(frame, pld...)
	frame = eccMaybeCorrupt(frame)

	// Delivery is the simulated wire transmission; a full destination
	// inbox blocks here the way the real driver spins on the send-active
	// bit waiting for the previous frame to drain.
	d.mesh.sendHermes(dst, frame)
	return nil
}

// Recv drains size bytes of the current (or next) inbound frame into
// dst. size must be flit-aligned. Blocks until the receive-active bit
// would clear, i.e. until a frame has fully arrived.
func (d *DMNI) Recv(dst []byte) (int, error) {
	if !cos.IsFlitAligned(len(dst)) {
		return 0, cmn.ErrInvalidArg
	}
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		frame := <-d.recvCh
		d.mu.Lock()
		d.pending = frame
	}
	n := copy(dst, d.pending)
	d.pending = d.pending[n:]
	d.mu.Unlock()
	return n, nil
}

// HasPending reports, without blocking, whether a Hermes frame is
// available to read: either bytes already buffered from a prior partial
// drain, or a fresh frame waiting on the mesh channel. Used by the ISR
// dispatcher's priority scan (spec.md §4.7), which must never block
// probing Hermes before falling through to Pending/Timer.
func (d *DMNI) HasPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) > 0 {
		return true
	}
	select {
	case frame := <-d.recvCh:
		d.pending = frame
		return true
	default:
		return false
	}
}

// DropPayload discards size bytes from the receive channel without
// copying them anywhere, used by the Hermes decoder to discard the rest
// of a frame whose service it does not know.
func (d *DMNI) DropPayload(size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if size <= 0 {
		return
	}
	if size >= len(d.pending) {
		d.pending = nil
		return
	}
	d.pending = d.pending[size:]
}
