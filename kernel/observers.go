package kernel

import (
	"github.com/seiflotfy/cuckoofilter"

	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/wire"
)

// Observer is one monitor subscribing to a metric class (spec.md
// GLOSSARY "Observer"): a tile address plus the service it wants
// repeated (QoS, security, …).
type Observer struct {
	Addr    wire.TileAddr
	Service wire.Service
}

// ObserverRegistry tracks ANNOUNCE_MONITOR subscriptions. The exact
// map is the only thing correctness depends on; a cuckoo filter sits
// in front of it purely to de-noise the debug log for repeat (addr,
// service) announcements, which are extremely common on a broadcast
// network since every observer re-announces on a timer. A false
// positive there costs at worst one suppressed log line — it is never
// consulted to decide whether an observer gets registered.
type ObserverRegistry struct {
	observers map[wire.TileAddr]wire.Service
	seen      *cuckoo.Filter
}

func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{
		observers: make(map[wire.TileAddr]wire.Service),
		seen:      cuckoo.NewFilter(1024),
	}
}

// Announce registers obs, always, in the exact map; the cuckoo filter
// only decides whether the redundant-announcement case is worth a log
// line.
func (r *ObserverRegistry) Announce(obs Observer) {
	key := observerKey(obs)
	if r.seen.Lookup(key) {
		nlog.Infof("observers: duplicate announce from %s for service 0x%02x", obs.Addr, uint8(obs.Service))
	}
	r.seen.Insert(key)
	r.observers[obs.Addr] = obs.Service
}

// Clear drops every observer, per CLEAR_MON_TABLE.
func (r *ObserverRegistry) Clear() {
	r.observers = make(map[wire.TileAddr]wire.Service)
	r.seen = cuckoo.NewFilter(1024)
}

// For returns every observer subscribed to svc.
func (r *ObserverRegistry) For(svc wire.Service) []Observer {
	var out []Observer
	for addr, s := range r.observers {
		if s == svc {
			out = append(out, Observer{Addr: addr, Service: s})
		}
	}
	return out
}

func observerKey(obs Observer) []byte {
	return []byte{byte(obs.Addr >> 8), byte(obs.Addr), byte(obs.Service)}
}
