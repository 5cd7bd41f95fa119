package kernel

// Pipe is the one-message buffer attached to a TCB: either an ipipe
// (blocked read target) or an opipe (buffered, not-yet-delivered
// write), per spec.md §4.6. A TCB holds at most one of each at a time
// (spec.md §3 invariant).
type Pipe struct {
	Buf  []byte
	Read bool // ipipe only: payload has arrived and is ready to hand back to the caller
}

// NewPipe allocates a pipe with buf as its backing storage. len(buf) is
// the caller's buffer capacity (spec.md's ipipe_set "allocated buffer
// size") and may be smaller than an inbound delivery, in which
// case the messaging core bounce-copies via a temporary buffer (spec.md
// §4.3 "Delivery receive").
func NewPipe(buf []byte) *Pipe {
	return &Pipe{Buf: buf}
}

// Size returns how much of Buf actually holds a message.
func (p *Pipe) Size() int { return len(p.Buf) }
