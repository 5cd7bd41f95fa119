package kernel

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v3"
	"github.com/teris-io/shortid"

	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/wire"
)

// MigrationSource carries the state a source-side migration needs
// beyond what the TCB already holds: the raw section payloads the HAL
// (out of scope, spec.md §1) hands the kernel to ship across.
type MigrationSource struct {
	Text, Data, Stack []byte
}

// MigrateTask runs the seven-packet source-side migration protocol
// (spec.md §4.5) for task id to dst. It is triggered by an inbound
// TASK_MIGRATION{task, address} service.
//
// A correlation id (via shortid, log-only — it never appears on the
// wire) ties the seven packets together in the debug log the way a
// txn-uuid ties together a multi-part transfer in the teacher's own
// datapath logging.
func (k *Kernel) MigrateTask(id wire.TaskID, dst wire.TileAddr, src MigrationSource) error {
	tcb, ok := k.Reg.Get(id)
	if !ok {
		return cmn.ErrNotFound
	}

	// Source-side invariant: migration cannot proceed while pipe_in is
	// half-transferred (spec.md §4.5 "Source-side invariants").
	if tcb.WaitState == WaitingMessageDelivery {
		nlog.Infof("migration %s: task %s mid-delivery, deferred", migrationTxn(), id)
		return nil
	}

	txn := migrationTxn()
	tcb.ProcToMigrate = dst
	k.SetSendBusy(true)
	defer k.SetSendBusy(false)

	if err := k.sendMigrationText(txn, dst, tcb, src.Text); err != nil {
		return err
	}
	if err := k.sendMigrationData(txn, dst, tcb, src.Data); err != nil {
		return err
	}
	if err := k.sendMigrationStack(txn, dst, tcb, src.Stack); err != nil {
		return err
	}
	if err := k.sendMigrationHdshk(txn, dst, tcb); err != nil {
		return err
	}
	if err := k.sendMigrationPipe(txn, dst, tcb); err != nil {
		return err
	}
	if err := k.sendMigrationLocation(txn, dst, tcb); err != nil {
		return err
	}
	if err := k.sendMigrationTCB(txn, dst, tcb); err != nil {
		return err
	}

	// Step 7 succeeded: the source tile now forwards for this task
	// rather than hosting it (spec.md §4.5 "Application reference
	// counting" is untouched by migration — only residency moves).
	k.MigTable[id] = dst
	k.Reg.Remove(id)
	k.Metrics.MigrationsOut.Inc()
	nlog.Infof("migration %s: task %s complete, %s -> %s", txn, id, k.Addr, dst)
	return nil
}

func migrationTxn() string {
	id, err := shortid.Generate()
	if err != nil {
		return "txn-unknown"
	}
	return id
}

// maybeCompress lz4-compresses a migration section when the running
// configuration asks for it (spec.md leaves payload framing as an
// implementation detail; compression is an addition to relieve NoC
// bandwidth on large text/data/stack sections, never spec-violating
// since the destination always decompresses deterministically). The
// section headers (TMText.Size etc.) keep carrying the true
// uncompressed size, so on-wire framing needs its own length: when
// compression applies, the returned buffer is a 4-byte little-endian
// compressed length followed by the compressed bytes, so the receiver
// can read exactly that many bytes off the wire before decompressing.
func maybeCompress(buf []byte) ([]byte, bool) {
	if !cmn.GCO().Migration.Compress || len(buf) == 0 {
		return buf, false
	}
	var compressed bytes.Buffer
	w := lz4.NewWriter(&compressed)
	if _, err := w.Write(buf); err != nil {
		return buf, false
	}
	if err := w.Close(); err != nil {
		return buf, false
	}
	framed := make([]byte, 4+compressed.Len())
	binary.LittleEndian.PutUint32(framed, uint32(compressed.Len()))
	copy(framed[4:], compressed.Bytes())
	return framed, true
}

// maybeDecompress undoes maybeCompress: wire already holds the 4-byte
// compressed-length prefix plus the compressed bytes.
func maybeDecompress(framed []byte) ([]byte, error) {
	if len(framed) < 4 {
		return nil, cmn.ErrBadMessage
	}
	n := binary.LittleEndian.Uint32(framed)
	if int(n) > len(framed)-4 {
		return nil, cmn.ErrBadMessage
	}
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(framed[4 : 4+n])))
	if err != nil {
		return nil, cmn.ErrBadMessage
	}
	return out, nil
}

func (k *Kernel) sendMigrationText(txn string, dst wire.TileAddr, tcb *TCB, payload []byte) error {
	body, compressed := maybeCompress(payload)
	hdr := wire.TMText{Size: uint32(len(payload)), MapperAddress: tcb.Mapper.Addr, Task: tcb.ID, MapperTask: int8(tcb.Mapper.Task)}
	head := wire.HermesHead{Service: wire.MigrationText, Address: dst, Flags: compressFlag(compressed)}
	nlog.Infof("migration %s: text %dB (%dB on wire) -> %s", txn, len(payload), len(body), dst)
	return k.sendHermes(dst, head, hdr.MarshalBinary(), body)
}

func (k *Kernel) sendMigrationData(txn string, dst wire.TileAddr, tcb *TCB, payload []byte) error {
	body, compressed := maybeCompress(payload)
	hdr := wire.TMData{DataSize: tcb.DataSize, BSSSize: tcb.BSSSize, HeapSize: tcb.HeapEnd, Task: tcb.ID}
	head := wire.HermesHead{Service: wire.MigrationData, Address: dst, Flags: compressFlag(compressed)}
	nlog.Infof("migration %s: data+bss+heap %dB -> %s", txn, len(payload), dst)
	return k.sendHermes(dst, head, hdr.MarshalBinary(), body)
}

func (k *Kernel) sendMigrationStack(txn string, dst wire.TileAddr, tcb *TCB, payload []byte) error {
	body, compressed := maybeCompress(payload)
	hdr := wire.TMStack{Size: uint32(len(payload)), Task: tcb.ID}
	head := wire.HermesHead{Service: wire.MigrationStack, Address: dst, Flags: compressFlag(compressed)}
	nlog.Infof("migration %s: stack %dB -> %s", txn, len(payload), dst)
	return k.sendHermes(dst, head, hdr.MarshalBinary(), body)
}

func compressFlag(compressed bool) uint8 {
	if compressed {
		return wire.CompressedFlag
	}
	return 0
}

func (k *Kernel) sendMigrationHdshk(txn string, dst wire.TileAddr, tcb *TCB) error {
	hdr := wire.TMHdshk{Task: tcb.ID, AvailableSize: uint8(len(tcb.DataAvs)), RequestSize: uint8(len(tcb.MsgRequests))}
	var payload []byte
	for _, d := range tcb.DataAvs {
		payload = append(payload, d.MarshalBinary()...)
	}
	for _, r := range tcb.MsgRequests {
		payload = append(payload, r.MarshalBinary()...)
	}
	head := wire.HermesHead{Service: wire.MigrationHdshk, Address: dst}
	nlog.Infof("migration %s: hdshk %d data_avs, %d msg_requests -> %s", txn, len(tcb.DataAvs), len(tcb.MsgRequests), dst)
	return k.sendHermes(dst, head, hdr.MarshalBinary(), payload)
}

func (k *Kernel) sendMigrationPipe(txn string, dst wire.TileAddr, tcb *TCB) error {
	var payload []byte
	size := 0
	if tcb.PipeOut != nil {
		payload = tcb.PipeOut.Buf
		size = len(payload)
	}
	hdr := wire.TMOpipe{Receiver: wire.NoTask, Task: tcb.ID, Size: uint32(size)}
	head := wire.HermesHead{Service: wire.MigrationPipe, Address: dst}
	nlog.Infof("migration %s: pipe_out %dB -> %s", txn, size, dst)
	return k.sendHermes(dst, head, hdr.MarshalBinary(), payload)
}

func (k *Kernel) sendMigrationLocation(txn string, dst wire.TileAddr, tcb *TCB) error {
	var entries []wire.PeerRef
	if tcb.App != nil {
		entries = tcb.App.Location.All()
	}
	hdr := wire.TMTaskLocation{Task: tcb.ID, TaskCnt: uint8(len(entries))}
	var payload []byte
	for _, e := range entries {
		payload = append(payload, e.MarshalBinary()...)
	}
	head := wire.HermesHead{Service: wire.MigrationTaskLocation, Address: dst}
	nlog.Infof("migration %s: location vector %d entries -> %s", txn, len(entries), dst)
	return k.sendHermes(dst, head, hdr.MarshalBinary(), payload)
}

func (k *Kernel) sendMigrationTCB(txn string, dst wire.TileAddr, tcb *TCB) error {
	received := uint16(0)
	waiting := uint8(tcb.WaitState)
	if tcb.PipeIn != nil {
		received = uint16(len(tcb.PipeIn.Buf))
	}
	hdr := wire.TMTCB{
		PC: tcb.PC, ExecTime: tcb.ExecTime, Period: tcb.Period, Deadline: tcb.Deadline,
		Task: tcb.ID, Source: k.Addr, Received: received, Waiting: waiting,
	}
	var payload []byte
	for _, r := range tcb.SavedRegs {
		payload = append(payload, byte(r), byte(r>>8), byte(r>>16), byte(r>>24))
	}
	head := wire.HermesHead{Service: wire.MigrationTCB, Address: dst}
	nlog.Infof("migration %s: tcb registers -> %s", txn, dst)
	return k.sendHermes(dst, head, hdr.MarshalBinary(), payload)
}

// --- destination-side handlers, one per step ---

// RecvMigrationText handles step 1: create the destination TCB and its
// page.
func (k *Kernel) RecvMigrationText(t wire.TMText, page *Page) (*TCB, error) {
	if _, exists := k.Reg.Get(t.Task); exists {
		return nil, cmn.ErrInvalidArg
	}
	tcb := k.Reg.Create(t.Task)
	tcb.TextSize = t.Size
	tcb.Page = page
	tcb.Mapper = MapperRef{Task: TaskMapperTask(t.MapperTask), Addr: t.MapperAddress}
	return tcb, nil
}

// RecvMigrationData handles step 2.
func (k *Kernel) RecvMigrationData(d wire.TMData) error {
	tcb, ok := k.Reg.Get(d.Task)
	if !ok {
		return cmn.ErrNotFound
	}
	tcb.DataSize, tcb.BSSSize, tcb.HeapEnd = d.DataSize, d.BSSSize, d.HeapSize
	return nil
}

// RecvMigrationStack handles step 3; the stack payload itself is
// applied by the HAL (out of scope), the kernel only validates the TCB
// exists.
func (k *Kernel) RecvMigrationStack(s wire.TMStack) error {
	if _, ok := k.Reg.Get(s.Task); !ok {
		return cmn.ErrNotFound
	}
	return nil
}

// RecvMigrationHdshk handles step 4: install the data_avs and
// msg_requests arrays from the concatenated payload.
func (k *Kernel) RecvMigrationHdshk(h wire.TMHdshk, payload []byte) error {
	tcb, ok := k.Reg.Get(h.Task)
	if !ok {
		return cmn.ErrNotFound
	}
	off := 0
	for i := 0; i < int(h.AvailableSize); i++ {
		p, err := wire.UnmarshalPeerRef(payload[off:])
		if err != nil {
			return err
		}
		tcb.DataAvs = append(tcb.DataAvs, p)
		off += wire.PeerRefSize
	}
	for i := 0; i < int(h.RequestSize); i++ {
		p, err := wire.UnmarshalPeerRef(payload[off:])
		if err != nil {
			return err
		}
		tcb.MsgRequests = append(tcb.MsgRequests, p)
		off += wire.PeerRefSize
	}
	return nil
}

// RecvMigrationPipe handles step 5.
func (k *Kernel) RecvMigrationPipe(o wire.TMOpipe, payload []byte) error {
	tcb, ok := k.Reg.Get(o.Task)
	if !ok {
		return cmn.ErrNotFound
	}
	if o.Size > 0 {
		tcb.PipeOut = &Pipe{Buf: payload[:o.Size]}
	}
	return nil
}

// RecvMigrationLocation handles step 6: install the application's full
// location vector into the App the TCB already refers to (Reg.Create
// referred or created it at step 1, whether or not TASK_RELEASE has been
// seen here; spec.md §4.5 "Ordering is crucial").
func (k *Kernel) RecvMigrationLocation(t wire.TMTaskLocation, payload []byte) error {
	tcb, ok := k.Reg.Get(t.Task)
	if !ok {
		return cmn.ErrNotFound
	}
	off := 0
	for i := 0; i < int(t.TaskCnt); i++ {
		e, err := wire.UnmarshalPeerRef(payload[off:])
		if err != nil {
			return err
		}
		_ = tcb.App.Location.Set(e.PeerTask, e.PeerAddr)
		off += wire.PeerRefSize
	}
	return nil
}

// RecvMigrationTCB handles step 7: install registers, PC, real-time
// parameters and waiting reason, re-create pipe_in if data had already
// partially arrived, install the scheduler block, and notify the
// mapper (spec.md §4.5 final paragraph).
func (k *Kernel) RecvMigrationTCB(t wire.TMTCB, regs []byte) error {
	tcb, ok := k.Reg.Get(t.Task)
	if !ok {
		return cmn.ErrNotFound
	}
	tcb.PC = t.PC
	tcb.ExecTime = t.ExecTime
	tcb.Period = t.Period
	tcb.Deadline = t.Deadline
	tcb.WaitState = WaitReason(t.Waiting)
	for i := 0; i+4 <= len(regs) && i/4 < len(tcb.SavedRegs); i += 4 {
		tcb.SavedRegs[i/4] = uint32(regs[i]) | uint32(regs[i+1])<<8 | uint32(regs[i+2])<<16 | uint32(regs[i+3])<<24
	}
	if t.Received > 0 {
		tcb.PipeIn = &Pipe{Buf: make([]byte, t.Received), Read: false}
	}
	tcb.Released = true
	k.Sched.Wake(tcb.ID)
	k.Metrics.MigrationsIn.Inc()

	if tcb.Mapper.Task != NoMapper {
		head := wire.HermesHead{Service: wire.TaskMigrated, Address: tcb.Mapper.Addr}
		hdshk := wire.MsgHdshk{Source: k.Addr, Receiver: wire.TaskID(tcb.Mapper.Task), Sender: tcb.ID}
		return k.sendHermes(tcb.Mapper.Addr, head, hdshk.MarshalBinary(), nil)
	}
	return nil
}
