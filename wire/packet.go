package wire

import (
	"encoding/binary"

	"github.com/pucrs-maestro/maestro/cmn"
)

// HermesHead is the 4-byte Hermes packet header (spec.md §6): flags:8,
// service:8, address:16, all little-endian.
type HermesHead struct {
	Flags   uint8
	Service Service
	Address TileAddr
}

const HermesHeadSize = 4

func (h HermesHead) MarshalBinary() []byte {
	buf := make([]byte, HermesHeadSize)
	buf[0] = h.Flags
	buf[1] = byte(h.Service)
	binary.LittleEndian.PutUint16(buf[2:], uint16(h.Address))
	return buf
}

func UnmarshalHermesHead(buf []byte) (HermesHead, error) {
	if len(buf) < HermesHeadSize {
		return HermesHead{}, cmn.ErrInvalidArg
	}
	return HermesHead{
		Flags:   buf[0],
		Service: Service(buf[1]),
		Address: TileAddr(binary.LittleEndian.Uint16(buf[2:4])),
	}, nil
}

// BodySize is the per-service fixed body size table the Hermes decoder
// consults (spec.md §4.2); sizes are in bytes, not counting HermesHead
// and not counting any variable payload that follows.
var BodySize = map[Service]int{
	DataAv:          MsgHdshkBodySize,
	MessageRequest:  MsgHdshkBodySize,
	MessageDelivery: MsgDlvBodySize,

	TaskAllocation: TallocBodySize,

	MigrationText:         TMTextBodySize,
	MigrationData:         TMDataBodySize,
	MigrationStack:        TMStackBodySize,
	MigrationHdshk:        TMHdshkBodySize,
	MigrationPipe:         TMOpipeBodySize,
	MigrationTaskLocation: TMTLBodySize,
	MigrationTCB:          TMTCBBodySize,
}

// ---- handshake (DATA_AV / MESSAGE_REQUEST) ----

// MsgHdshk mirrors the body of msg_hdshk_t from the original source: a
// 32-bit source tile and the {receiver, sender} task ids. The Hermes head
// travels separately as HermesHead.
type MsgHdshk struct {
	Source   TileAddr
	Receiver TaskID
	Sender   TaskID
}

const MsgHdshkBodySize = 4 + 2 + 2 // source(uint32 on the wire, but only the low 16 bits are a real tile addr) + receiver + sender

func (m MsgHdshk) MarshalBinary() []byte {
	buf := make([]byte, MsgHdshkBodySize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Source))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(m.Receiver))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(m.Sender))
	return buf
}

func UnmarshalMsgHdshk(buf []byte) (MsgHdshk, error) {
	if len(buf) < MsgHdshkBodySize {
		return MsgHdshk{}, cmn.ErrInvalidArg
	}
	return MsgHdshk{
		Source:   TileAddr(binary.LittleEndian.Uint32(buf[0:4])),
		Receiver: TaskID(binary.LittleEndian.Uint16(buf[4:6])),
		Sender:   TaskID(binary.LittleEndian.Uint16(buf[6:8])),
	}, nil
}

// ---- delivery (MESSAGE_DELIVERY) ----

// MsgDlv mirrors msg_dlv_t: a handshake plus a timestamp and payload
// size; the payload itself follows on the wire as a separate transfer.
type MsgDlv struct {
	Hdshk     MsgHdshk
	Timestamp uint32
	Size      uint32
}

const MsgDlvBodySize = MsgHdshkBodySize + 4 + 4

func (m MsgDlv) MarshalBinary() []byte {
	buf := make([]byte, MsgDlvBodySize)
	copy(buf, m.Hdshk.MarshalBinary())
	binary.LittleEndian.PutUint32(buf[8:12], m.Timestamp)
	binary.LittleEndian.PutUint32(buf[12:16], m.Size)
	return buf
}

func UnmarshalMsgDlv(buf []byte) (MsgDlv, error) {
	if len(buf) < MsgDlvBodySize {
		return MsgDlv{}, cmn.ErrInvalidArg
	}
	hdshk, err := UnmarshalMsgHdshk(buf[0:8])
	if err != nil {
		return MsgDlv{}, err
	}
	return MsgDlv{
		Hdshk:     hdshk,
		Timestamp: binary.LittleEndian.Uint32(buf[8:12]),
		Size:      binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// ---- task allocation ----

// Talloc mirrors talloc_t: entry point, the three section sizes, the
// new task's id, and its mapper's id+address; text+data+bss payload
// follows.
type Talloc struct {
	EntryPoint               uint32
	TextSize, DataSize, BSSSize uint32
	MapperAddress            TileAddr
	Task                     TaskID
	MapperTask               int8
}

const TallocBodySize = 4 + 4 + 4 + 4 + 2 + 2 + 1 + 1 + 2 // entry+3 sizes+mapperAddr+task+mapperTask+pad8+pad16

func (t Talloc) MarshalBinary() []byte {
	buf := make([]byte, TallocBodySize)
	binary.LittleEndian.PutUint32(buf[0:4], t.EntryPoint)
	binary.LittleEndian.PutUint32(buf[4:8], t.TextSize)
	binary.LittleEndian.PutUint32(buf[8:12], t.DataSize)
	binary.LittleEndian.PutUint32(buf[12:16], t.BSSSize)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(t.MapperAddress))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(t.Task))
	buf[20] = byte(t.MapperTask)
	return buf
}

func UnmarshalTalloc(buf []byte) (Talloc, error) {
	if len(buf) < TallocBodySize {
		return Talloc{}, cmn.ErrInvalidArg
	}
	return Talloc{
		EntryPoint:    binary.LittleEndian.Uint32(buf[0:4]),
		TextSize:      binary.LittleEndian.Uint32(buf[4:8]),
		DataSize:      binary.LittleEndian.Uint32(buf[8:12]),
		BSSSize:       binary.LittleEndian.Uint32(buf[12:16]),
		MapperAddress: TileAddr(binary.LittleEndian.Uint16(buf[16:18])),
		Task:          TaskID(binary.LittleEndian.Uint16(buf[18:20])),
		MapperTask:    int8(buf[20]),
	}, nil
}

// ---- migration: seven ordered sections, spec.md §4.5 ----

// TMText mirrors tm_text_t (step 1): code payload follows.
type TMText struct {
	Size          uint32
	MapperAddress TileAddr
	Task          TaskID
	MapperTask    int8
}

const TMTextBodySize = 4 + 2 + 2 + 1 + 1 + 2

func (t TMText) MarshalBinary() []byte {
	buf := make([]byte, TMTextBodySize)
	binary.LittleEndian.PutUint32(buf[0:4], t.Size)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(t.MapperAddress))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(t.Task))
	buf[8] = byte(t.MapperTask)
	return buf
}

func UnmarshalTMText(buf []byte) (TMText, error) {
	if len(buf) < TMTextBodySize {
		return TMText{}, cmn.ErrInvalidArg
	}
	return TMText{
		Size:          binary.LittleEndian.Uint32(buf[0:4]),
		MapperAddress: TileAddr(binary.LittleEndian.Uint16(buf[4:6])),
		Task:          TaskID(binary.LittleEndian.Uint16(buf[6:8])),
		MapperTask:    int8(buf[8]),
	}, nil
}

// TMData mirrors tm_data_t (step 2): data+bss+heap payload follows.
type TMData struct {
	DataSize, BSSSize, HeapSize uint32
	Task                        TaskID
}

const TMDataBodySize = 4 + 4 + 4 + 2 + 2

func (d TMData) MarshalBinary() []byte {
	buf := make([]byte, TMDataBodySize)
	binary.LittleEndian.PutUint32(buf[0:4], d.DataSize)
	binary.LittleEndian.PutUint32(buf[4:8], d.BSSSize)
	binary.LittleEndian.PutUint32(buf[8:12], d.HeapSize)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(d.Task))
	return buf
}

func UnmarshalTMData(buf []byte) (TMData, error) {
	if len(buf) < TMDataBodySize {
		return TMData{}, cmn.ErrInvalidArg
	}
	return TMData{
		DataSize: binary.LittleEndian.Uint32(buf[0:4]),
		BSSSize:  binary.LittleEndian.Uint32(buf[4:8]),
		HeapSize: binary.LittleEndian.Uint32(buf[8:12]),
		Task:     TaskID(binary.LittleEndian.Uint16(buf[12:14])),
	}, nil
}

// TMStack mirrors tm_stack_t (step 3): stack payload follows.
type TMStack struct {
	Size uint32
	Task TaskID
}

const TMStackBodySize = 4 + 2 + 2

func (s TMStack) MarshalBinary() []byte {
	buf := make([]byte, TMStackBodySize)
	binary.LittleEndian.PutUint32(buf[0:4], s.Size)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(s.Task))
	return buf
}

func UnmarshalTMStack(buf []byte) (TMStack, error) {
	if len(buf) < TMStackBodySize {
		return TMStack{}, cmn.ErrInvalidArg
	}
	return TMStack{
		Size: binary.LittleEndian.Uint32(buf[0:4]),
		Task: TaskID(binary.LittleEndian.Uint16(buf[4:6])),
	}, nil
}

// TMHdshk mirrors tm_hdshk_t (step 4): the concatenated data_avs then
// msg_requests arrays follow as payload.
type TMHdshk struct {
	Task          TaskID
	AvailableSize uint8 // number of data_avs entries
	RequestSize   uint8 // number of msg_requests entries
}

const TMHdshkBodySize = 2 + 1 + 1

func (h TMHdshk) MarshalBinary() []byte {
	buf := make([]byte, TMHdshkBodySize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Task))
	buf[2] = h.AvailableSize
	buf[3] = h.RequestSize
	return buf
}

func UnmarshalTMHdshk(buf []byte) (TMHdshk, error) {
	if len(buf) < TMHdshkBodySize {
		return TMHdshk{}, cmn.ErrInvalidArg
	}
	return TMHdshk{
		Task:          TaskID(binary.LittleEndian.Uint16(buf[0:2])),
		AvailableSize: buf[2],
		RequestSize:   buf[3],
	}, nil
}

// PeerRef is one entry of the data_avs/msg_requests arrays carried by
// MIGRATION_HDSHK, and also the in-kernel representation of those
// lists on a TCB (spec.md §3).
type PeerRef struct {
	PeerTask TaskID
	PeerAddr TileAddr
}

const PeerRefSize = 2 + 2

func (p PeerRef) MarshalBinary() []byte {
	buf := make([]byte, PeerRefSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.PeerTask))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(p.PeerAddr))
	return buf
}

func UnmarshalPeerRef(buf []byte) (PeerRef, error) {
	if len(buf) < PeerRefSize {
		return PeerRef{}, cmn.ErrInvalidArg
	}
	return PeerRef{
		PeerTask: TaskID(binary.LittleEndian.Uint16(buf[0:2])),
		PeerAddr: TileAddr(binary.LittleEndian.Uint16(buf[2:4])),
	}, nil
}

// TMOpipe mirrors tm_opipe_t (step 5): pipe_out buffer follows, if any.
type TMOpipe struct {
	Receiver TaskID
	Task     TaskID
	Size     uint32
}

const TMOpipeBodySize = 2 + 2 + 4

func (o TMOpipe) MarshalBinary() []byte {
	buf := make([]byte, TMOpipeBodySize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(o.Receiver))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(o.Task))
	binary.LittleEndian.PutUint32(buf[4:8], o.Size)
	return buf
}

func UnmarshalTMOpipe(buf []byte) (TMOpipe, error) {
	if len(buf) < TMOpipeBodySize {
		return TMOpipe{}, cmn.ErrInvalidArg
	}
	return TMOpipe{
		Receiver: TaskID(binary.LittleEndian.Uint16(buf[0:2])),
		Task:     TaskID(binary.LittleEndian.Uint16(buf[2:4])),
		Size:     binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// TMTaskLocation mirrors tm_tl_t (step 6): the full location vector for
// the application follows as payload (task_cnt entries of PeerRef-like
// {task, addr} pairs).
type TMTaskLocation struct {
	Task    TaskID
	TaskCnt uint8
}

const TMTLBodySize = 2 + 1 + 1

func (t TMTaskLocation) MarshalBinary() []byte {
	buf := make([]byte, TMTLBodySize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(t.Task))
	buf[2] = t.TaskCnt
	return buf
}

func UnmarshalTMTaskLocation(buf []byte) (TMTaskLocation, error) {
	if len(buf) < TMTLBodySize {
		return TMTaskLocation{}, cmn.ErrInvalidArg
	}
	return TMTaskLocation{
		Task:    TaskID(binary.LittleEndian.Uint16(buf[0:2])),
		TaskCnt: buf[2],
	}, nil
}

// TMTCB mirrors tm_tcb_t (step 7): registers follow as payload.
type TMTCB struct {
	PC                    uint32
	ExecTime, Period      uint32
	Deadline              int32
	Task                  TaskID
	Source                TileAddr
	Received              uint16
	Waiting               uint8
}

const TMTCBBodySize = 4 + 4 + 4 + 4 + 2 + 2 + 2 + 1 + 1

func (t TMTCB) MarshalBinary() []byte {
	buf := make([]byte, TMTCBBodySize)
	binary.LittleEndian.PutUint32(buf[0:4], t.PC)
	binary.LittleEndian.PutUint32(buf[4:8], t.ExecTime)
	binary.LittleEndian.PutUint32(buf[8:12], t.Period)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(t.Deadline))
	binary.LittleEndian.PutUint16(buf[16:18], uint16(t.Task))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(t.Source))
	binary.LittleEndian.PutUint16(buf[20:22], t.Received)
	buf[22] = t.Waiting
	return buf
}

func UnmarshalTMTCB(buf []byte) (TMTCB, error) {
	if len(buf) < TMTCBBodySize {
		return TMTCB{}, cmn.ErrInvalidArg
	}
	return TMTCB{
		PC:       binary.LittleEndian.Uint32(buf[0:4]),
		ExecTime: binary.LittleEndian.Uint32(buf[4:8]),
		Period:   binary.LittleEndian.Uint32(buf[8:12]),
		Deadline: int32(binary.LittleEndian.Uint32(buf[12:16])),
		Task:     TaskID(binary.LittleEndian.Uint16(buf[16:18])),
		Source:   TileAddr(binary.LittleEndian.Uint16(buf[18:20])),
		Received: binary.LittleEndian.Uint16(buf[20:22]),
		Waiting:  buf[22],
	}, nil
}

// ---- RPC over MESSAGE_DELIVERY ----
//
// A MESSAGE_DELIVERY addressed to the kernel itself (Hdshk.Receiver ==
// NoTask) doesn't carry task data: its payload opens with its own
// service byte — TaskRelease, AbortTask or TaskMigration — naming which
// of these three follows, mirroring how rpc_hermes_dispatcher reads the
// service out of the delivered message rather than off the Hermes head.

// PeekRPCService reads the leading service byte of a kernel-addressed
// MESSAGE_DELIVERY payload.
func PeekRPCService(payload []byte) (Service, error) {
	if len(payload) < 1 {
		return 0, cmn.ErrBadMessage
	}
	return Service(payload[0]), nil
}

// RPCTaskRelease is the TASK_RELEASE payload: the task being released,
// its mapper, and a location-vector entry count; the vector itself
// (TaskCnt PeerRef entries) follows as trailing payload.
type RPCTaskRelease struct {
	Task          TaskID
	MapperTask    int8
	MapperAddress TileAddr
	TaskCnt       uint8
}

const RPCTaskReleaseSize = 1 + 2 + 1 + 2 + 1 // service + task + mapperTask + mapperAddr + taskCnt

func (r RPCTaskRelease) MarshalBinary() []byte {
	buf := make([]byte, RPCTaskReleaseSize)
	buf[0] = byte(TaskRelease)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(r.Task))
	buf[3] = byte(r.MapperTask)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(r.MapperAddress))
	buf[6] = r.TaskCnt
	return buf
}

func UnmarshalRPCTaskRelease(buf []byte) (RPCTaskRelease, error) {
	if len(buf) < RPCTaskReleaseSize {
		return RPCTaskRelease{}, cmn.ErrInvalidArg
	}
	return RPCTaskRelease{
		Task:          TaskID(binary.LittleEndian.Uint16(buf[1:3])),
		MapperTask:    int8(buf[3]),
		MapperAddress: TileAddr(binary.LittleEndian.Uint16(buf[4:6])),
		TaskCnt:       buf[6],
	}, nil
}

// RPCAbortTask is the ABORT_TASK payload: just the task to abort.
type RPCAbortTask struct {
	Task TaskID
}

const RPCAbortTaskSize = 1 + 2

func (r RPCAbortTask) MarshalBinary() []byte {
	buf := make([]byte, RPCAbortTaskSize)
	buf[0] = byte(AbortTask)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(r.Task))
	return buf
}

func UnmarshalRPCAbortTask(buf []byte) (RPCAbortTask, error) {
	if len(buf) < RPCAbortTaskSize {
		return RPCAbortTask{}, cmn.ErrInvalidArg
	}
	return RPCAbortTask{Task: TaskID(binary.LittleEndian.Uint16(buf[1:3]))}, nil
}

// RPCTaskMigration is the TASK_MIGRATION payload: the task to migrate
// and its new destination tile.
type RPCTaskMigration struct {
	Task    TaskID
	Address TileAddr
}

const RPCTaskMigrationSize = 1 + 2 + 2

func (r RPCTaskMigration) MarshalBinary() []byte {
	buf := make([]byte, RPCTaskMigrationSize)
	buf[0] = byte(TaskMigration)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(r.Task))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(r.Address))
	return buf
}

func UnmarshalRPCTaskMigration(buf []byte) (RPCTaskMigration, error) {
	if len(buf) < RPCTaskMigrationSize {
		return RPCTaskMigration{}, cmn.ErrInvalidArg
	}
	return RPCTaskMigration{
		Task:    TaskID(binary.LittleEndian.Uint16(buf[1:3])),
		Address: TileAddr(binary.LittleEndian.Uint16(buf[3:5])),
	}, nil
}
