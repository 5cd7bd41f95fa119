package kernel

import "github.com/pucrs-maestro/maestro/wire"

// Registry owns every TCB resident on this tile, plus the App objects
// they refer back to (spec.md §3 "TCB registry", §4.5 app refcounting).
type Registry struct {
	tcbs map[wire.TaskID]*TCB
	apps map[uint8]*App
}

func NewRegistry() *Registry {
	return &Registry{
		tcbs: make(map[wire.TaskID]*TCB),
		apps: make(map[uint8]*App),
	}
}

// Get returns the resident TCB for id, if any.
func (r *Registry) Get(id wire.TaskID) (*TCB, bool) {
	t, ok := r.tcbs[id]
	return t, ok
}

// appRefer returns the App for appID, creating (and location-table
// backing) it on first reference.
func (r *Registry) appRefer(appID uint8) *App {
	a, ok := r.apps[appID]
	if !ok {
		a = &App{ID: appID, Location: NewLocationTable()}
		r.apps[appID] = a
	}
	a.refcount++
	return a
}

// appDerefer drops one reference; at refcount zero the app's location
// table is freed and the App object forgotten (spec.md §4.5: "the
// application's location vector is freed at refcount = 0").
func (r *Registry) appDerefer(a *App) {
	a.refcount--
	if a.refcount <= 0 {
		a.Location.Close()
		delete(r.apps, a.ID)
	}
}

// Create installs a fresh TCB (TASK_ALLOCATION or the destination side
// of MIGRATION_TEXT) and refers its app.
func (r *Registry) Create(id wire.TaskID) *TCB {
	t := &TCB{
		ID:            id,
		ProcToMigrate: wire.NoTile,
	}
	t.App = r.appRefer(id.AppID())
	r.tcbs[id] = t
	return t
}

// Remove frees a TCB: exit (drained), ABORT_TASK, stack overflow, or a
// completed outbound migration (spec.md §3 "Lifecycle").
func (r *Registry) Remove(id wire.TaskID) {
	t, ok := r.tcbs[id]
	if !ok {
		return
	}
	delete(r.tcbs, id)
	r.appDerefer(t.App)
}

// Len reports how many tasks are resident; used by the ISR to update
// the TCB-count metric.
func (r *Registry) Len() int { return len(r.tcbs) }

// All returns every resident TCB, for diagnostics/iteration only
// (debugsrv task dumps).
func (r *Registry) All() []*TCB {
	out := make([]*TCB, 0, len(r.tcbs))
	for _, t := range r.tcbs {
		out = append(out, t)
	}
	return out
}
