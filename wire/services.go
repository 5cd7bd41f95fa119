// Package wire is the closed catalog of on-the-wire types shared by
// every tile: service codes, the Hermes and BrLite header layouts, and
// tile/task address encoding. Nothing in this package blocks or touches
// kernel state — it only knows how to lay bytes out and read them back,
// mirroring how the teacher keeps transport.ObjHdr/Obj free of any
// cluster/xaction awareness in transport/api.go.
package wire

// Service is a Hermes or BrLite service code. The three rendezvous
// codes are pinned to the exact values spec.md §6 gives; the rest of
// the catalog is a closed set per spec but the source material this
// repo was grounded on only enumerates those three numerically, so the
// remaining codes are assigned here in two sequential blocks (Hermes
// kernel-to-kernel services from 0x01, BrLite services from 0x80 per
// the "high bit set" convention spec.md §6 documents for legal
// broadcast codes) — see DESIGN.md for the Open Question note.
type Service uint8

const (
	// Hermes: rendezvous handshake, exact codes per spec.md §6.
	DataAv           Service = 0x20
	MessageRequest   Service = 0x21
	MessageDelivery  Service = 0x22

	// Hermes: task lifecycle & RPC payload carrier.
	TaskAllocation Service = 0x01
	TaskRelease    Service = 0x02
	TaskTerminated Service = 0x03
	TaskAllocated  Service = 0x04
	TaskMigrated   Service = 0x05
	TaskAborted    Service = 0x06
	AbortTask      Service = 0x07
	TaskMigration  Service = 0x08

	// Hermes: seven-packet migration protocol, in send order.
	MigrationText         Service = 0x10
	MigrationData         Service = 0x11
	MigrationStack        Service = 0x12
	MigrationHdshk        Service = 0x13
	MigrationPipe         Service = 0x14
	MigrationTaskLocation Service = 0x15
	MigrationTCB          Service = 0x16

	// BrLite: high bit set, middle nibble zero, per spec.md §6.
	AnnounceMonitor   Service = 0x80
	ReleasePeripheral Service = 0x81
	AppTerminated     Service = 0x82
	HaltPE            Service = 0x83
	PEHalted          Service = 0x84
	ClearMonTable     Service = 0x85
	Monitor           Service = 0x86
)

// CompressedFlag, ORed into HermesHead.Flags, marks a migration
// section's payload as lz4-compressed (see cmn.Config.Migration.Compress).
// Not part of the original service catalog; an addition this
// reimplementation needs since compression is opt-in per tile.
const CompressedFlag uint8 = 0x01

// KernelMsg, ORed into a HandshakeTarget, flags that the peer is the
// kernel of that tile rather than a task resident on it (spec.md §3).
const KernelMsg uint16 = 0x8000

// NoTask and NoTile are the typed stand-ins for the abstract "-1 means
// kernel/none" sentinel spec.md §3 describes; both fields are 16 bits,
// so -1 and ^uint16(0) are bit-identical on the wire.
const (
	NoTask TaskID   = 0xFFFF
	NoTile TileAddr = 0xFFFF
)

// IsUserBcast reports whether svc is one of the codes a user task (as
// opposed to the kernel itself) is allowed to broadcast, per spec.md §6:
// high bit set, middle nibble (bits 4-6) zero.
func IsUserBcast(svc Service) bool {
	return svc&0x80 != 0 && svc&0x70 == 0
}
