package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/transport"
	"github.com/pucrs-maestro/maestro/wire"
)

// TestRecvDeliveryRoutesKernelAddressedRPC verifies a MESSAGE_DELIVERY
// addressed to the kernel (Hdshk.Receiver == wire.NoTask) is decoded as
// an RPC call rather than dropped as ErrBadMessage, closing the gap
// that otherwise left TASK_RELEASE/ABORT_TASK/TASK_MIGRATION
// unreachable from any inbound packet.
func TestRecvDeliveryRoutesKernelAddressedRPC(t *testing.T) {
	mesh := transport.NewMesh()
	k := newTestTile(t, mesh, wire.NewTileAddr(6, 0))

	abort := wire.RPCAbortTask{Task: wire.NewTaskID(1, 1)}
	k.Reg.Create(abort.Task)

	dlv := wire.MsgDlv{Hdshk: wire.MsgHdshk{Receiver: wire.NoTask}}
	err := k.RecvDelivery(dlv, abort.MarshalBinary())
	require.NoError(t, err)

	_, ok := k.Reg.Get(abort.Task)
	require.False(t, ok, "ABORT_TASK delivered to the kernel should have removed the TCB")
}

// TestDispatchHermesRPCTaskRelease verifies the TASK_RELEASE payload
// installs the mapper and location vector and wakes the task.
func TestDispatchHermesRPCTaskRelease(t *testing.T) {
	mesh := transport.NewMesh()
	k := newTestTile(t, mesh, wire.NewTileAddr(6, 1))

	id := wire.NewTaskID(2, 1)
	loc := wire.PeerRef{PeerTask: wire.NewTaskID(2, 2), PeerAddr: wire.NewTileAddr(6, 2)}

	r := wire.RPCTaskRelease{Task: id, MapperTask: 3, MapperAddress: wire.NewTileAddr(0, 0), TaskCnt: 1}
	payload := append(r.MarshalBinary(), loc.MarshalBinary()...)

	require.NoError(t, k.DispatchHermesRPC(payload))

	tcb, ok := k.Reg.Get(id)
	require.True(t, ok)
	require.True(t, tcb.Released)
	require.Equal(t, TaskMapperTask(3), tcb.Mapper.Task)
	addr, ok := tcb.App.Location.Get(loc.PeerTask)
	require.True(t, ok)
	require.Equal(t, loc.PeerAddr, addr)
}

// TestDispatchHermesRPCTaskMigration verifies an inbound TASK_MIGRATION
// triggers MigrateTask on the task named in the payload.
func TestDispatchHermesRPCTaskMigration(t *testing.T) {
	mesh := transport.NewMesh()
	kSrc := newTestTile(t, mesh, wire.NewTileAddr(6, 2))
	kDst := newTestTile(t, mesh, wire.NewTileAddr(6, 3))

	id := kSrc.Reg.Create(wire.NewTaskID(3, 1)).ID

	r := wire.RPCTaskMigration{Task: id, Address: kDst.Addr}
	require.NoError(t, kSrc.DispatchHermesRPC(r.MarshalBinary()))

	require.Equal(t, kDst.Addr, kSrc.MigTable[id])
	_, stillResident := kSrc.Reg.Get(id)
	require.False(t, stillResident)
}

// TestDispatchHermesRPCUnknownService verifies an unrecognized service
// byte is rejected rather than silently ignored.
func TestDispatchHermesRPCUnknownService(t *testing.T) {
	mesh := transport.NewMesh()
	k := newTestTile(t, mesh, wire.NewTileAddr(6, 4))

	err := k.DispatchHermesRPC([]byte{0xEE, 0, 0})
	require.ErrorIs(t, err, cmn.ErrInvalidArg)
}
