package wire

import "fmt"

// TileAddr is a 16-bit tile address in XXYY layout (spec.md §3): the
// high byte is X, the low byte is Y.
type TileAddr uint16

// TaskID is a 16-bit task id: the high byte is the application id, the
// low byte is the task's index within that application (spec.md §3).
type TaskID uint16

// HandshakeTarget is a tile address optionally ORed with KernelMsg,
// identifying either a task-hosting tile or "the kernel of this tile"
// as the peer of a handshake (spec.md §3).
type HandshakeTarget uint16

func NewTileAddr(x, y uint8) TileAddr { return TileAddr(uint16(x)<<8 | uint16(y)) }

func (a TileAddr) XY() (x, y uint8) { return uint8(a >> 8), uint8(a) }

func (a TileAddr) String() string {
	x, y := a.XY()
	return fmt.Sprintf("%02X%02X", x, y)
}

func NewTaskID(appID, idx uint8) TaskID { return TaskID(uint16(appID)<<8 | uint16(idx)) }

// AppID returns the upper 8 bits: which application this task belongs
// to.
func (t TaskID) AppID() uint8 { return uint8(t >> 8) }

// Index returns the lower 8 bits: the task's index within its app.
func (t TaskID) Index() uint8 { return uint8(t) }

func (t TaskID) String() string {
	if t == NoTask {
		return "kernel"
	}
	return fmt.Sprintf("%d.%d", t.AppID(), t.Index())
}

// TargetTile returns the underlying tile address, stripping KernelMsg.
func (h HandshakeTarget) TargetTile() TileAddr { return TileAddr(uint16(h) &^ KernelMsg) }

// IsKernel reports whether this target addresses the peer tile's kernel
// rather than a resident task.
func (h HandshakeTarget) IsKernel() bool { return uint16(h)&KernelMsg != 0 }

func TargetOf(addr TileAddr, kernel bool) HandshakeTarget {
	h := HandshakeTarget(addr)
	if kernel {
		h |= HandshakeTarget(KernelMsg)
	}
	return h
}
