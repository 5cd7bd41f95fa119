// Package transport is the lowest layer of the kernel: the DMNI
// adapter, the Hermes packet decoder, and the BrLite broadcast adapter
// (spec.md §4.1-4.3). It knows how to move bytes between tiles; it
// never touches TCBs, pipes, or any other kernel state.
package transport

import (
	"sync"

	"github.com/pucrs-maestro/maestro/wire"
)

// Mesh is the on-chip interconnect fabric standing in for real NoC
// hardware: a registry of per-tile inboxes that DMNI.Send and
// Broadcast.Send deliver into. One Mesh is shared by every tile kernel
// in a process (see cmd/maestro-sim); tests typically build a two- or
// three-tile Mesh directly.
type Mesh struct {
	mu        sync.RWMutex
	hermes    map[wire.TileAddr]chan []byte
	brlite    map[wire.TileAddr]chan []byte
}

func NewMesh() *Mesh {
	return &Mesh{
		hermes: make(map[wire.TileAddr]chan []byte),
		brlite: make(map[wire.TileAddr]chan []byte),
	}
}

// registerHermes/registerBrLite are called by NewDMNI/NewBroadcast; the
// channel is buffered (inboxDepth frames) so Send only waits when the
// destination tile already has that many undrained frames (the mesh is
// not a rendezvous — that rendezvous happens one layer up, in the
// messaging state machine).
const inboxDepth = 64

func (m *Mesh) registerHermes(addr wire.TileAddr) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan []byte, inboxDepth)
	m.hermes[addr] = ch
	return ch
}

func (m *Mesh) registerBrLite(addr wire.TileAddr) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan []byte, inboxDepth)
	m.brlite[addr] = ch
	return ch
}

func (m *Mesh) sendHermes(dst wire.TileAddr, frame []byte) {
	m.mu.RLock()
	ch, ok := m.hermes[dst]
	m.mu.RUnlock()
	if !ok {
		return // no such tile wired into the mesh; silently dropped, as an unreachable address would be on real hardware
	}
	ch <- frame
}

// broadcastAll delivers frame to every registered BrLite inbox except
// src (a tile does not receive its own broadcast).
func (m *Mesh) broadcastAll(src wire.TileAddr, frame []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for addr, ch := range m.brlite {
		if addr == src {
			continue
		}
		ch <- frame
	}
}
