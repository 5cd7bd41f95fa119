package wire

import (
	"encoding/binary"

	"github.com/pucrs-maestro/maestro/cmn"
)

// BrLitePacket is the broadcast-network packet: {service:8, src_addr:16,
// payload:16}, the 16-bit-payload "newer MAestro path" variant (spec.md
// §6, §9 open question: this repo does not implement the older 32-bit
// legacy broadcast format).
type BrLitePacket struct {
	Service Service
	SrcAddr TileAddr
	Payload uint16
}

const BrLitePacketSize = 1 + 2 + 2

func (p BrLitePacket) MarshalBinary() []byte {
	buf := make([]byte, BrLitePacketSize)
	buf[0] = byte(p.Service)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(p.SrcAddr))
	binary.LittleEndian.PutUint16(buf[3:5], p.Payload)
	return buf
}

func UnmarshalBrLitePacket(buf []byte) (BrLitePacket, error) {
	if len(buf) < BrLitePacketSize {
		return BrLitePacket{}, cmn.ErrInvalidArg
	}
	return BrLitePacket{
		Service: Service(buf[0]),
		SrcAddr: TileAddr(binary.LittleEndian.Uint16(buf[1:3])),
		Payload: binary.LittleEndian.Uint16(buf[3:5]),
	}, nil
}
