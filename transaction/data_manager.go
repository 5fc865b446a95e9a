package transaction

import (
	"sort"
	"strconv"

	simerrors "repsim/internal/errors"
)

// DataManager is one site's local store: the 20-or-fewer variables it
// hosts, each with its own LockManager, plus the site's up/down status
// and failure history. Grounded on original_source/data/manager.py's
// DataManager (per-site variable table seeded by the replication rule)
// and the teacher's isolation.go MVCCStorage for the commit/snapshot
// split.
type DataManager struct {
	SiteID    int
	Up        bool
	variables map[string]*Variable
	locks     map[string]*LockManager
	// failIntervals records [failedAt, recoveredAt) ranges for this site,
	// used by snapshot reads to reject a commit whose interval overlapped
	// a failure (spec.md §4.3 "available copies").
	failIntervals []failInterval
}

type failInterval struct {
	Down  int
	Up    int // -1 while still down
	Ended bool
}

// NewDataManager builds site sid's store, seeding every variable it
// should host under the replication rule (spec.md §6): even-numbered
// variables live at all ten sites, odd-numbered variables live only at
// their home site.
func NewDataManager(sid int) *DataManager {
	dm := &DataManager{
		SiteID:    sid,
		Up:        true,
		variables: make(map[string]*Variable),
		locks:     make(map[string]*LockManager),
	}
	for n := 1; n <= VariableCount; n++ {
		if variableReplicated(n) || variableHomeSite(n) == sid {
			v := newVariable(n)
			dm.variables[v.ID] = v
			dm.locks[v.ID] = newLockManager(v.ID)
		}
	}
	return dm
}

// HasVariable reports whether this site hosts varID at all (regardless
// of up/down status).
func (dm *DataManager) HasVariable(varID string) bool {
	_, ok := dm.variables[varID]
	return ok
}

// Read returns the latest committed value of varID under SS2PL,
// attempting to acquire (or confirming already-held) the read lock; a
// transaction holding varID's write lock gets its own staged value
// instead, if it has staged one. It
// fails if the site is down, does not host the variable, or the
// variable is currently unreadable after recovery (spec.md §4.3
// "unreadable until first post-recovery commit") — all three are
// operational, retryable conditions (TransactionError), never the
// fatal DataError spec.md §7 reserves for a missing tentative value.
func (dm *DataManager) Read(tid, varID string) (value int, granted bool, err error) {
	if !dm.Up {
		return 0, false, simerrors.NewTransactionError("site %d is down", dm.SiteID)
	}
	v, ok := dm.variables[varID]
	if !ok {
		return 0, false, simerrors.NewTransactionError("site %d does not host %s", dm.SiteID, varID)
	}
	if !v.Readable {
		return 0, false, simerrors.NewTransactionError("%s unreadable since site %d recovery", varID, dm.SiteID)
	}
	lm := dm.locks[varID]
	if !lm.TryRead(tid) {
		return 0, false, nil
	}
	if kind, ok := lm.holdsAny(tid); ok && kind == Write {
		val, terr := v.ReadTentative()
		if terr == nil {
			return val, true, nil
		}
	}
	return v.ReadLatest(), true, nil
}

// SnapshotRead serves a read-only transaction's consistent-snapshot
// read as of start time ts, without taking any lock (spec.md §4.2
// "multiversion reads bypass SS2PL"). It fails if the variable is
// replicated and this site was down at any point in (lastCommit, ts]
// that would have hidden a commit — concretely, if the site was down
// at any instant <= ts after the version being returned committed, per
// original_source/transaction/manager.py's snapshot_read site-skip logic.
func (dm *DataManager) SnapshotRead(varID string, ts int) (value int, ok bool) {
	v, present := dm.variables[varID]
	if !present {
		return 0, false
	}
	entry, found := v.Snapshot(ts)
	if !found {
		return 0, false
	}
	if v.Replicated && dm.failedDuring(entry.CommitTime, ts) {
		return 0, false
	}
	return entry.Value, true
}

// failedDuring reports whether the site was down at any point in
// (from, to], which would make a replicated copy's snapshot unusable
// even though the commit itself predates ts (spec.md §4.3).
func (dm *DataManager) failedDuring(from, to int) bool {
	for _, iv := range dm.failIntervals {
		if iv.Down > from && iv.Down <= to {
			return true
		}
	}
	return false
}

// GetWriteLock attempts to acquire varID's write lock for tid, without
// staging a value yet (used by the all-or-nothing write protocol in
// TransactionManager.attemptWrite, spec.md §4.4).
func (dm *DataManager) GetWriteLock(tid, varID string) (granted bool, err error) {
	if !dm.Up {
		return false, simerrors.NewTransactionError("site %d is down", dm.SiteID)
	}
	if !dm.HasVariable(varID) {
		return false, simerrors.NewTransactionError("site %d does not host %s", dm.SiteID, varID)
	}
	return dm.locks[varID].TryWrite(tid), nil
}

// Write stages value for tid at varID. Precondition: the caller has
// already confirmed GetWriteLock true for tid at this site in the same
// attempt (spec.md §4.3). Violating it is an internal bug, not a
// retryable condition, so it is reported as a fatal LockError rather
// than silently staging a write nobody holds the lock for.
func (dm *DataManager) Write(tid, varID string, value int) error {
	kind, ok := dm.locks[varID].holdsAny(tid)
	if !ok || kind != Write {
		return simerrors.NewLockError("%s attempted to write %s at site %d without holding its write lock", tid, varID, dm.SiteID)
	}
	dm.variables[varID].Stage(tid, value)
	return nil
}

// Commit durably applies tid's staged write (if any) on this site and
// releases all its locks (spec.md §4.2). ts is the transaction's commit
// timestamp.
func (dm *DataManager) Commit(tid string, ts int) {
	for id, v := range dm.variables {
		if v.Tentative != nil && v.Tentative.TxnID == tid {
			v.Commit(ts)
		}
		dm.locks[id].Release(tid)
	}
}

// Abort discards tid's staged writes (if any) on this site and releases
// all its locks (spec.md §4.4).
func (dm *DataManager) Abort(tid string) {
	for id, v := range dm.variables {
		if v.Tentative != nil && v.Tentative.TxnID == tid {
			v.Discard()
		}
		dm.locks[id].Release(tid)
	}
}

// Fail marks the site down at tick ts, discarding all lock state and
// in-flight tentative writes (they never reach the wire in the real
// protocol, spec.md §4.3 "fail wipes in-memory lock state"). Committed
// history is untouched.
func (dm *DataManager) Fail(ts int) {
	dm.Up = false
	dm.failIntervals = append(dm.failIntervals, failInterval{Down: ts, Up: -1})
	for id, v := range dm.variables {
		v.Discard()
		dm.locks[id] = newLockManager(id)
	}
}

// Recover brings the site back up at tick ts. Replicated variables are
// marked unreadable until their first post-recovery commit (spec.md
// §4.3); unreplicated variables remain readable (no available-copies
// ambiguity possible for them).
func (dm *DataManager) Recover(ts int) {
	dm.Up = true
	if n := len(dm.failIntervals); n > 0 && dm.failIntervals[n-1].Up == -1 {
		dm.failIntervals[n-1].Up = ts
		dm.failIntervals[n-1].Ended = true
	}
	for _, v := range dm.variables {
		if v.Replicated {
			v.Readable = false
		}
	}
}

// LocalWaitsFor returns this site's contribution to the cluster-wide
// waits-for graph (spec.md §4.5 "union across all sites").
func (dm *DataManager) LocalWaitsFor() []waitEdge {
	var edges []waitEdge
	ids := make([]string, 0, len(dm.locks))
	for id := range dm.locks {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic edge ordering for reproducible traces
	for _, id := range ids {
		edges = append(edges, dm.locks[id].waitsForEdges()...)
	}
	return edges
}

// Dump renders every variable this site hosts, in id order, for the
// "dump" command (spec.md §7).
func (dm *DataManager) Dump() []string {
	ids := make([]string, 0, len(dm.variables))
	for id := range dm.variables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return varNumber(ids[i]) < varNumber(ids[j]) })
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id+": "+strconv.Itoa(dm.variables[id].ReadLatest()))
	}
	return out
}

func varNumber(id string) int {
	n := 0
	for _, c := range id[1:] {
		n = n*10 + int(c-'0')
	}
	return n
}
