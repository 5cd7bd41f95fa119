package transport

import (
	"math"

	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/wire"
)

// Frame is a decoded Hermes packet: the 4-byte head plus its
// fixed-size body, already unmarshaled into the concrete wire.* type
// for Head.Service. Any variable-length payload that follows (the
// "payload follows" sections in spec.md §4.2) is NOT drained here —
// callers with the context to know where it goes (a pipe, a fresh TCB
// buffer, …) drain it themselves via the same DMNI.
type Frame struct {
	Head wire.HermesHead
	Body any // one of wire.MsgHdshk, wire.MsgDlv, wire.Talloc, wire.TMText, ... per Head.Service
}

// DecodeHermes implements spec.md §4.2: read the 4-byte head, look up
// the service's fixed body size, drain exactly that many bytes, and
// unmarshal. An unknown service or a body read that can't be completed
// returns (Frame{}, false); for an unknown service the rest of the
// frame is dropped from the DMNI here, so the packet is discarded, as
// the original source does on allocation failure.
func DecodeHermes(d *DMNI) (Frame, bool) {
	head := make([]byte, wire.HermesHeadSize)
	if _, err := d.Recv(head); err != nil {
		nlog.Errorln("hermes: head recv:", err)
		return Frame{}, false
	}
	h, err := wire.UnmarshalHermesHead(head)
	if err != nil {
		return Frame{}, false
	}

	size, known := wire.BodySize[h.Service]
	if !known {
		nlog.Warnf("hermes: unknown service 0x%02x, dropping", h.Service)
		// the body size is unknown, so discard the rest of this frame
		d.DropPayload(math.MaxInt)
		return Frame{}, false
	}
	aligned := size
	if aligned%4 != 0 {
		aligned += 4 - aligned%4
	}
	body := make([]byte, aligned)
	if _, err := d.Recv(body); err != nil {
		nlog.Errorln("hermes: body recv:", err)
		return Frame{}, false
	}
	body = body[:size]

	decoded, err := unmarshalBody(h.Service, body)
	if err != nil {
		nlog.Errorln("hermes: body decode:", err)
		return Frame{}, false
	}
	return Frame{Head: h, Body: decoded}, true
}

func unmarshalBody(svc wire.Service, body []byte) (any, error) {
	switch svc {
	case wire.DataAv, wire.MessageRequest:
		return wire.UnmarshalMsgHdshk(body)
	case wire.MessageDelivery:
		return wire.UnmarshalMsgDlv(body)
	case wire.TaskAllocation:
		return wire.UnmarshalTalloc(body)
	case wire.MigrationText:
		return wire.UnmarshalTMText(body)
	case wire.MigrationData:
		return wire.UnmarshalTMData(body)
	case wire.MigrationStack:
		return wire.UnmarshalTMStack(body)
	case wire.MigrationHdshk:
		return wire.UnmarshalTMHdshk(body)
	case wire.MigrationPipe:
		return wire.UnmarshalTMOpipe(body)
	case wire.MigrationTaskLocation:
		return wire.UnmarshalTMTaskLocation(body)
	case wire.MigrationTCB:
		return wire.UnmarshalTMTCB(body)
	default:
		return nil, cmn.ErrInvalidArg
	}
}
