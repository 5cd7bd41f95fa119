package transport

import "github.com/pucrs-maestro/maestro/wire"

// Broadcast is the BrLite adapter (spec.md §4.3): sends/receives
// 16-bit-payload packets and maps them to kernel services. Unlike
// Hermes, BrLite has no per-service body beyond the fixed 16-bit
// payload, so there is no decoder table here — just the wire framing.
type Broadcast struct {
	addr   wire.TileAddr
	mesh   *Mesh
	recvCh <-chan []byte
}

func NewBroadcast(addr wire.TileAddr, mesh *Mesh) *Broadcast {
	return &Broadcast{addr: addr, mesh: mesh, recvCh: mesh.registerBrLite(addr)}
}

// Send broadcasts packet to every other tile. SrcAddr is overwritten
// with this adapter's own address, matching the original bcast_send
// contract ("src_addr is ignored" on the way in).
func (b *Broadcast) Send(packet wire.BrLitePacket) {
	packet.SrcAddr = b.addr
	b.mesh.broadcastAll(b.addr, packet.MarshalBinary())
}

// Recv blocks until a BrLite packet addressed to this tile arrives.
func (b *Broadcast) Recv() (wire.BrLitePacket, error) {
	frame := <-b.recvCh
	return wire.UnmarshalBrLitePacket(frame)
}

// TryRecv is a non-blocking poll used by the ISR dispatcher's priority
// scan (spec.md §4.7: BrLite is checked before Hermes).
func (b *Broadcast) TryRecv() (wire.BrLitePacket, bool) {
	select {
	case frame := <-b.recvCh:
		p, err := wire.UnmarshalBrLitePacket(frame)
		if err != nil {
			return wire.BrLitePacket{}, false
		}
		return p, true
	default:
		return wire.BrLitePacket{}, false
	}
}
