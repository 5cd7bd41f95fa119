package kernel

import (
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/wire"
)

// LocationTable tracks where each task of one application currently
// lives (spec.md §4.5 "location vector"). It is backed by an in-memory
// buntdb database rather than a plain map: migration churns this table
// constantly (every MIGRATION_TASK_LOCATION rewrites the vector while
// TASK_LOCATION lookups can be issued concurrently from RPC handling),
// and buntdb gives ACID-ish transactions plus key iteration for free
// instead of a hand-rolled RWMutex+map pair.
type LocationTable struct {
	db *buntdb.DB
}

// NewLocationTable opens a fresh in-memory table. ":memory:" never
// touches disk, matching the per-tile, power-loss-means-task-is-gone
// semantics of the system being modeled.
func NewLocationTable() *LocationTable {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// in-memory open failing means the process is unusable.
		nlog.Errorf("location table: open: %v", err)
		panic(err)
	}
	return &LocationTable{db: db}
}

func locKey(id wire.TaskID) string {
	return fmt.Sprintf("task:%d", uint16(id))
}

// Set records task id as currently resident at addr.
func (lt *LocationTable) Set(id wire.TaskID, addr wire.TileAddr) error {
	return lt.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(locKey(id), fmt.Sprintf("%d", uint16(addr)), nil)
		return err
	})
}

// Get returns the last known tile for id.
func (lt *LocationTable) Get(id wire.TaskID) (wire.TileAddr, bool) {
	var addr wire.TileAddr
	found := false
	_ = lt.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(locKey(id))
		if err != nil {
			return nil //nolint:nilerr // buntdb.ErrNotFound means "not found", not a real error
		}
		var raw uint16
		if _, scanErr := fmt.Sscanf(v, "%d", &raw); scanErr != nil {
			return scanErr
		}
		addr = wire.TileAddr(raw)
		found = true
		return nil
	})
	return addr, found
}

// Delete forgets id, e.g. once its app has fully terminated.
func (lt *LocationTable) Delete(id wire.TaskID) {
	_ = lt.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(locKey(id))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// All returns every (task, tile) entry currently recorded, used to
// ship the full location vector during migration step 6 (spec.md
// §4.5).
func (lt *LocationTable) All() []wire.PeerRef {
	var out []wire.PeerRef
	_ = lt.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			var taskRaw, addrRaw uint16
			if _, err := fmt.Sscanf(key, "task:%d", &taskRaw); err != nil {
				return true
			}
			if _, err := fmt.Sscanf(value, "%d", &addrRaw); err != nil {
				return true
			}
			out = append(out, wire.PeerRef{PeerTask: wire.TaskID(taskRaw), PeerAddr: wire.TileAddr(addrRaw)})
			return true
		})
	})
	return out
}

// Close releases the backing store. Called on app_derefer at
// refcount zero (spec.md §4.5).
func (lt *LocationTable) Close() {
	_ = lt.db.Close()
}
