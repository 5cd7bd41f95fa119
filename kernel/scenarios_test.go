package kernel

import (
	"testing"

	"github.com/onsi/ginkgo"
	"github.com/onsi/gomega"

	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/transport"
	"github.com/pucrs-maestro/maestro/wire"
)

func TestKernelScenarios(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Kernel Scenarios Suite")
}

// These specs each correspond to one of the literal rendezvous/migration
// scenarios worked through by hand before writing the messaging,
// migration, and halt cores: a local synchronous pair, a remote
// synchronous pair, the remote-async producer-arrives-second race, a
// migration happening mid-dialog, a halt attempt blocked by kpipe
// backlog, and a handshake packet deferred to the pending FIFO because
// the send channel was busy.
var _ = ginkgo.Describe("rendezvous and migration scenarios", func() {

	ginkgo.It("local sync: A writes while B is already blocked in a sync read", func() {
		mesh := transport.NewMesh()
		k := NewKernel(wire.NewTileAddr(5, 0), mesh, NewFIFOScheduler())
		a, b := sameAppPair(k, k.Addr)

		out := make([]byte, 4)
		_, err := k.Read(b, out, a.ID, true)
		gomega.Expect(err).To(gomega.MatchError(cmn.ErrRetry))
		gomega.Expect(b.WaitState).To(gomega.Equal(WaitingDataAv))

		n, err := k.Write(a, []byte{9, 8, 7, 6}, b.ID, true)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(n).To(gomega.Equal(4))
		gomega.Expect(b.WaitState).To(gomega.Equal(NotWaiting))

		n, err = k.Read(b, out, a.ID, true)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out[:n]).To(gomega.Equal([]byte{9, 8, 7, 6}))
		gomega.Expect(a.PipeOut).To(gomega.BeNil())
	})

	ginkgo.It("remote sync: DATA_AV, then MESSAGE_REQUEST, then MESSAGE_DELIVERY", func() {
		mesh := transport.NewMesh()
		kA := NewKernel(wire.NewTileAddr(0, 1), mesh, NewFIFOScheduler())
		kB := NewKernel(wire.NewTileAddr(0, 2), mesh, NewFIFOScheduler())
		producer, consumer := remotePair(kA, kB)

		payload := []byte("remote sync payload")
		_, err := kA.Write(producer, payload, consumer.ID, true)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		pump(kB)
		gomega.Expect(consumer.DataAvs).To(gomega.HaveLen(1))

		out := make([]byte, len(payload))
		_, err = kB.Read(consumer, out, producer.ID, true)
		gomega.Expect(err).To(gomega.MatchError(cmn.ErrRetry))

		pump(kA)
		pump(kB)

		gomega.Expect(consumer.PipeIn).NotTo(gomega.BeNil())
		gomega.Expect(consumer.PipeIn.Read).To(gomega.BeTrue())
		gomega.Expect(consumer.PipeIn.Buf).To(gomega.Equal(payload))
	})

	ginkgo.It("remote async: the requester's MESSAGE_REQUEST beats the producer's write", func() {
		mesh := transport.NewMesh()
		kA := NewKernel(wire.NewTileAddr(1, 1), mesh, NewFIFOScheduler())
		kB := NewKernel(wire.NewTileAddr(1, 2), mesh, NewFIFOScheduler())
		producer, consumer := remotePair(kA, kB)

		out := make([]byte, 6)
		_, err := kB.Read(consumer, out, producer.ID, false)
		gomega.Expect(err).To(gomega.MatchError(cmn.ErrRetry))

		pump(kA)
		gomega.Expect(producer.MsgRequests).To(gomega.HaveLen(1))
		gomega.Expect(producer.DataAvs).To(gomega.BeEmpty())

		payload := []byte{1, 1, 2, 3, 5, 8}
		_, err = kA.Write(producer, payload, consumer.ID, false)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		// MESSAGE_DELIVERY goes straight out; no DATA_AV was ever needed.
		gomega.Expect(producer.PipeOut).To(gomega.BeNil())

		pump(kB)
		gomega.Expect(consumer.PipeIn).NotTo(gomega.BeNil())
		gomega.Expect(consumer.PipeIn.Read).To(gomega.BeTrue())
		gomega.Expect(consumer.PipeIn.Buf).To(gomega.Equal(payload))
	})

	ginkgo.It("migration mid-dialog: a request addressed to the old tile is forwarded, and the carried-over DATA_AV lets a read complete on the new tile", func() {
		mesh := transport.NewMesh()
		kA := NewKernel(wire.NewTileAddr(2, 0), mesh, NewFIFOScheduler())
		kT1 := NewKernel(wire.NewTileAddr(2, 1), mesh, NewFIFOScheduler())
		kT2 := NewKernel(wire.NewTileAddr(2, 2), mesh, NewFIFOScheduler())
		kC := NewKernel(wire.NewTileAddr(2, 3), mesh, NewFIFOScheduler())

		producer, b := remotePair(kA, kT1)

		payload := []byte("migrated mid-dialog")
		_, err := kA.Write(producer, payload, b.ID, true)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		pump(kT1)
		gomega.Expect(b.DataAvs).To(gomega.HaveLen(1))

		err = kT1.MigrateTask(b.ID, kT2.Addr, MigrationSource{
			Text: []byte("text"), Data: []byte("data"), Stack: []byte("stack"),
		})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		pump(kT2)

		newB, ok := kT2.Reg.Get(b.ID)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(newB.DataAvs).To(gomega.HaveLen(1))
		gomega.Expect(kT1.MigTable[b.ID]).To(gomega.Equal(kT2.Addr))
		_, stillAtT1 := kT1.Reg.Get(b.ID)
		gomega.Expect(stillAtT1).To(gomega.BeFalse())

		// A third task, still holding a stale location-table entry for B
		// at its pre-migration tile, requests from it; T1 must forward
		// via the migration table rather than reporting NotFound.
		stale := wire.MsgHdshk{Source: kC.Addr, Receiver: b.ID, Sender: wire.NewTaskID(9, 1)}
		gomega.Expect(kT1.RecvRequest(stale)).To(gomega.Succeed())
		pump(kT2)
		gomega.Expect(newB.MsgRequests).To(gomega.HaveLen(1))
		gomega.Expect(newB.MsgRequests[0].PeerAddr).To(gomega.Equal(kC.Addr))

		// A's DATA_AV, received before migration and carried across in
		// MIGRATION_HDSHK, lets B's sync read on its new tile complete
		// with A's original payload.
		out := make([]byte, len(payload))
		_, err = kT2.Read(newB, out, producer.ID, true)
		gomega.Expect(err).To(gomega.MatchError(cmn.ErrRetry))
		pump(kA)
		pump(kT2)

		gomega.Expect(newB.PipeIn).NotTo(gomega.BeNil())
		gomega.Expect(newB.PipeIn.Read).To(gomega.BeTrue())
		gomega.Expect(newB.PipeIn.Buf).To(gomega.Equal(payload))
	})

	ginkgo.It("halt with pending: halt_try retries while kpipe is non-empty, then succeeds exactly once", func() {
		mesh := transport.NewMesh()
		k := NewKernel(wire.NewTileAddr(3, 0), mesh, NewFIFOScheduler())
		k.KPipe.Push(KernelMessage{Service: wire.TaskTerminated, Src: k.Addr})

		err := k.HaltPE(wire.NoTask, k.Addr)
		gomega.Expect(err).To(gomega.MatchError(cmn.ErrRetry))
		gomega.Expect(k.IsHalted()).To(gomega.BeFalse())

		_, ok := k.KPipe.Pop()
		gomega.Expect(ok).To(gomega.BeTrue())

		ok, err = k.HaltTry()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(k.IsHalted()).To(gomega.BeTrue())

		// PE_HALTED was enqueued to the halter (itself, here) exactly once.
		msg, ok := k.KPipe.Pop()
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(msg.Service).To(gomega.Equal(wire.PEHalted))
		gomega.Expect(k.KPipe.Empty()).To(gomega.BeTrue())

		// A second attempt, with no halt request outstanding, is rejected
		// rather than re-emitting PE_HALTED.
		_, err = k.HaltTry()
		gomega.Expect(err).To(gomega.MatchError(cmn.ErrInvalidArg))
	})

	ginkgo.It("pending FIFO: an inbound DATA_AV is deferred while the send channel is busy, then drained exactly once", func() {
		mesh := transport.NewMesh()
		kA := NewKernel(wire.NewTileAddr(4, 0), mesh, NewFIFOScheduler())
		kB := NewKernel(wire.NewTileAddr(4, 1), mesh, NewFIFOScheduler())
		producer, consumer := remotePair(kA, kB)

		kB.SetSendBusy(true)
		_, err := kA.Write(producer, []byte{1, 2, 3, 4}, consumer.ID, true)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(kB.DMNI.HasPending()).To(gomega.BeTrue())
		gomega.Expect(kB.tryHermes()).To(gomega.BeTrue())
		gomega.Expect(consumer.DataAvs).To(gomega.BeEmpty())
		gomega.Expect(kB.Pending.Empty()).To(gomega.BeFalse())

		kB.SetSendBusy(false)
		gomega.Expect(kB.tryPending()).To(gomega.BeTrue())
		gomega.Expect(consumer.DataAvs).To(gomega.HaveLen(1))
		gomega.Expect(kB.Pending.Empty()).To(gomega.BeTrue())

		gomega.Expect(kB.tryPending()).To(gomega.BeFalse())
	})
})
