package transaction

import (
	"fmt"
	"sort"

	simerrors "repsim/internal/errors"
	"repsim/internal/tracelog"
)

// TransactionManager is the cluster-wide orchestrator: it owns every
// site's DataManager, the transaction table, the queue of operations
// blocked on a lock, and the tick counter. Grounded on
// original_source/transaction/manager.py's TransactionManager (the
// process()/process_command()/execute_operations() tick loop) and the
// teacher's DefaultTransactionManager (transaction/manager.go) for the
// Begin/Commit/Abort table-management shape.
type TransactionManager struct {
	tick     int
	sites    map[int]*DataManager
	txns     map[string]*Transaction
	pending  []Operation
	detector DeadlockDetector
	log      *tracelog.Logger
	cfg      logConfig
}

// logConfig carries the ambient config knobs the manager cares about,
// decoupling package transaction from package config (spec.md §9 "no
// import cycles").
type logConfig struct {
	LogDeadlocks  bool
	LogDrainNoops bool
}

// NewTransactionManager builds a fresh cluster: ten up sites, no
// transactions, an empty pending queue, tick 0 (spec.md §6).
func NewTransactionManager(log *tracelog.Logger, logDeadlocks, logDrainNoops bool) *TransactionManager {
	tm := &TransactionManager{
		sites: make(map[int]*DataManager, SiteCount),
		txns:  make(map[string]*Transaction),
		log:   log,
		cfg:   logConfig{LogDeadlocks: logDeadlocks, LogDrainNoops: logDrainNoops},
	}
	for sid := 1; sid <= SiteCount; sid++ {
		tm.sites[sid] = NewDataManager(sid)
	}
	return tm
}

// Tick returns the current logical timestamp.
func (tm *TransactionManager) Tick() int { return tm.tick }

// Begin starts a read/write transaction (spec.md §4.1).
func (tm *TransactionManager) Begin(tid string) error {
	if _, exists := tm.txns[tid]; exists {
		return simerrors.NewTransactionError("transaction %s already began", tid)
	}
	tm.txns[tid] = newTransaction(tid, tm.tick, ReadWrite)
	tm.log.Info(tm.tick, "manager", "%s begins", tid)
	return nil
}

// BeginRO starts a read-only (snapshot) transaction (spec.md §4.2).
func (tm *TransactionManager) BeginRO(tid string) error {
	if _, exists := tm.txns[tid]; exists {
		return simerrors.NewTransactionError("transaction %s already began", tid)
	}
	tm.txns[tid] = newTransaction(tid, tm.tick, ReadOnly)
	tm.log.Info(tm.tick, "manager", "%s begins (read-only)", tid)
	return nil
}

// Read queues a read of varID by tid as a pending Operation, attempted
// when the queue is next drained (by Step or Process). Read-only
// transactions are then served from a snapshot, read/write transactions
// under a read lock (spec.md §4.4).
func (tm *TransactionManager) Read(tid, varID string) error {
	if _, err := tm.requireLive(tid); err != nil {
		return err
	}
	tm.pending = append(tm.pending, Operation{Kind: OpRead, TxnID: tid, VarID: varID})
	return nil
}

// Write queues a write of value to varID by tid (spec.md §4.4).
func (tm *TransactionManager) Write(tid, varID string, value int) error {
	txn, err := tm.requireLive(tid)
	if err != nil {
		return err
	}
	if txn.Kind == ReadOnly {
		return simerrors.NewTransactionError("read-only transaction %s cannot write", tid)
	}
	tm.pending = append(tm.pending, Operation{Kind: OpWrite, TxnID: tid, VarID: varID, Value: value})
	return nil
}

func (tm *TransactionManager) requireLive(tid string) (*Transaction, error) {
	txn, ok := tm.txns[tid]
	if !ok {
		return nil, simerrors.NewTransactionError("transaction %s has not begun", tid)
	}
	if txn.MustAbort {
		return nil, simerrors.NewTransactionError("transaction %s must abort", tid)
	}
	return txn, nil
}

// attemptSnapshotRead serves a read-only transaction's queued read
// against every up site hosting varID, as of its start time (spec.md
// §4.2). Like a read/write read, it stays pending if no site can
// currently serve a usable snapshot (spec.md §9 "Retry model") —
// e.g. every replica that held a pre-failure commit is still down.
func (tm *TransactionManager) attemptSnapshotRead(txn *Transaction, op Operation) (bool, error) {
	for _, sid := range tm.siteOrder() {
		dm := tm.sites[sid]
		if !dm.Up || !dm.HasVariable(op.VarID) {
			continue
		}
		if val, ok := dm.SnapshotRead(op.VarID, txn.Start); ok {
			tm.log.Info(tm.tick, "manager", "%s reads %s = %d (site %d, snapshot)", txn.ID, op.VarID, val, sid)
			return true, nil
		}
	}
	return false, nil
}

func (tm *TransactionManager) siteOrder() []int {
	out := make([]int, 0, len(tm.sites))
	for sid := range tm.sites {
		out = append(out, sid)
	}
	sort.Ints(out)
	return out
}

// End requests tid commit if it has not been marked must-abort, or
// aborts it otherwise (spec.md §4.4 "end").
func (tm *TransactionManager) End(tid string) error {
	txn, ok := tm.txns[tid]
	if !ok {
		return simerrors.NewTransactionError("transaction %s has not begun", tid)
	}
	if txn.MustAbort {
		tm.abort(txn, txn.AbortReason)
		return nil
	}
	tm.commit(txn)
	return nil
}

func (tm *TransactionManager) commit(txn *Transaction) {
	for _, sid := range txn.Visited {
		if dm, ok := tm.sites[sid]; ok && dm.Up {
			dm.Commit(txn.ID, tm.tick)
		}
	}
	tm.log.Info(tm.tick, "manager", "%s commits", txn.ID)
	tm.dropOperationsFor(txn.ID)
	delete(tm.txns, txn.ID)
}

func (tm *TransactionManager) abort(txn *Transaction, reason AbortReason) {
	for _, dm := range tm.sites {
		dm.Abort(txn.ID)
	}
	tm.log.Info(tm.tick, "manager", "%s aborts (%s)", txn.ID, reason)
	tm.dropOperationsFor(txn.ID)
	delete(tm.txns, txn.ID)
}

func (tm *TransactionManager) dropOperationsFor(tid string) {
	kept := tm.pending[:0:0]
	for _, op := range tm.pending {
		if op.TxnID != tid {
			kept = append(kept, op)
		}
	}
	tm.pending = kept
}

// Fail marks site sid down, cascading abort to every live read/write
// transaction that had successfully visited it (read-only transactions
// are immune, spec.md §4.3 "fail does not affect in-flight snapshot
// reads").
func (tm *TransactionManager) Fail(sid int) error {
	dm, ok := tm.sites[sid]
	if !ok {
		return simerrors.NewTransactionError("no such site %d", sid)
	}
	if !dm.Up {
		return simerrors.NewTransactionError("site %d is already down", sid)
	}
	dm.Fail(tm.tick)
	tm.log.Info(tm.tick, "manager", "site %d fails", sid)

	ids := make([]string, 0, len(tm.txns))
	for id := range tm.txns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		txn := tm.txns[id]
		if txn.Kind == ReadOnly {
			continue
		}
		for _, v := range txn.Visited {
			if v == sid {
				txn.MustAbort = true
				txn.AbortReason = AbortSiteFailure
				break
			}
		}
	}
	return nil
}

// Recover brings site sid back up (spec.md §4.3).
func (tm *TransactionManager) Recover(sid int) error {
	dm, ok := tm.sites[sid]
	if !ok {
		return simerrors.NewTransactionError("no such site %d", sid)
	}
	if dm.Up {
		return simerrors.NewTransactionError("site %d is already up", sid)
	}
	dm.Recover(tm.tick)
	tm.log.Info(tm.tick, "manager", "site %d recovers", sid)
	return nil
}

// Dump renders every site's variables in site order (spec.md §7).
func (tm *TransactionManager) Dump() []string {
	var out []string
	for _, sid := range tm.siteOrder() {
		for _, line := range tm.sites[sid].Dump() {
			out = append(out, fmt.Sprintf("site %d - %s", sid, line))
		}
	}
	return out
}

// Step executes one parsed Command as a single tick, in the order
// original_source/transaction/manager.py's process() uses and spec.md
// §4.4 names explicitly: (1) detect and resolve a deadlock using the
// waits-for state left by the previous tick — if a victim was aborted,
// immediately drain once more so operations its abort unblocked are not
// starved behind the new command; (2) apply cmd; (3) drain every
// pending operation once; (4) advance the clock. It returns the
// rendered lines for a "dump" command, or nil for every other command.
func (tm *TransactionManager) Step(cmd Command) ([]string, error) {
	if tm.detectAndResolve() {
		tm.drainPending()
	}

	var dump []string
	var err error
	switch cmd.Name {
	case "begin":
		err = tm.Begin(cmd.TxnID)
	case "beginRO":
		err = tm.BeginRO(cmd.TxnID)
	case "R":
		err = tm.Read(cmd.TxnID, cmd.VarID)
	case "W":
		err = tm.Write(cmd.TxnID, cmd.VarID, cmd.Value)
	case "end":
		err = tm.End(cmd.TxnID)
	case "fail":
		err = tm.Fail(cmd.SiteID)
	case "recover":
		err = tm.Recover(cmd.SiteID)
	case "dump":
		dump = tm.Dump()
	default:
		err = simerrors.NewParseError("unhandled command %q", cmd.Name)
	}

	tm.drainPending()
	tm.tick++
	return dump, err
}

// Process runs one tick's detect-and-drain phases without an
// accompanying command, for tests that drive the sub-components
// directly rather than through Step.
func (tm *TransactionManager) Process() {
	tm.detectAndResolve()
	tm.drainPending()
	tm.tick++
}

// detectAndResolve reports whether it aborted a deadlock victim, so
// callers know whether to re-drain before moving on (mirroring
// original_source/transaction/manager.py's `if self.detect_deadlock():
// self.execute_operations()`).
func (tm *TransactionManager) detectAndResolve() bool {
	var edges []waitEdge
	for _, sid := range tm.siteOrder() {
		edges = append(edges, tm.sites[sid].LocalWaitsFor()...)
	}
	victim, found := tm.detector.Detect(edges, tm.txns)
	if !found {
		return false
	}
	txn, ok := tm.txns[victim]
	if !ok {
		return false
	}
	if tm.cfg.LogDeadlocks {
		tm.log.Warn(tm.tick, "deadlock", "cycle detected, aborting %s", victim)
	}
	tm.abort(txn, AbortDeadlock)
	return true
}

func (tm *TransactionManager) drainPending() {
	remaining := tm.pending[:0:0]
	progressed := false
	for _, op := range tm.pending {
		txn, ok := tm.txns[op.TxnID]
		if !ok {
			continue // transaction already ended/aborted elsewhere
		}
		if txn.MustAbort {
			continue // dropped here; abort() will clear the rest
		}
		done, err := tm.attempt(txn, op)
		if err != nil {
			tm.log.Warn(tm.tick, "manager", "%s: %v", op, err)
			continue
		}
		if done {
			progressed = true
			continue
		}
		remaining = append(remaining, op)
	}
	tm.pending = remaining
	if !progressed && len(tm.pending) > 0 && tm.cfg.LogDrainNoops {
		tm.log.Info(tm.tick, "manager", "%d operation(s) still blocked", len(tm.pending))
	}
}

// attempt tries to service one queued operation against whichever
// sites currently host and can grant it, returning done=true once the
// operation has fully executed.
func (tm *TransactionManager) attempt(txn *Transaction, op Operation) (done bool, err error) {
	if op.Kind == OpRead {
		if txn.Kind == ReadOnly {
			return tm.attemptSnapshotRead(txn, op)
		}
		return tm.attemptRead(txn, op)
	}
	return tm.attemptWrite(txn, op)
}

// attemptRead reads varID from the first up site that hosts it and can
// grant the read lock (spec.md §4.4 "read from any available copy").
func (tm *TransactionManager) attemptRead(txn *Transaction, op Operation) (bool, error) {
	for _, sid := range tm.siteOrder() {
		dm := tm.sites[sid]
		if !dm.Up || !dm.HasVariable(op.VarID) {
			continue
		}
		val, granted, err := dm.Read(txn.ID, op.VarID)
		if err != nil || !granted {
			continue
		}
		txn.visit(sid)
		tm.log.Info(tm.tick, "manager", "%s reads %s = %d (site %d)", txn.ID, op.VarID, val, sid)
		return true, nil
	}
	// No up site currently hosts or can grant op.VarID; stays pending
	// until one does or recovers (spec.md §9 "Retry model").
	return false, nil
}

// attemptWrite implements the all-or-nothing write protocol (spec.md
// §4.4 "write to every up replica atomically"): it only stages the
// write once the write lock has been acquired at every up site hosting
// the variable in the same attempt.
func (tm *TransactionManager) attemptWrite(txn *Transaction, op Operation) (bool, error) {
	var targets []int
	for _, sid := range tm.siteOrder() {
		dm := tm.sites[sid]
		if dm.Up && dm.HasVariable(op.VarID) {
			targets = append(targets, sid)
		}
	}
	if len(targets) == 0 {
		return false, nil // no up site hosts op.VarID; stays pending
	}

	for _, sid := range targets {
		granted, err := tm.sites[sid].GetWriteLock(txn.ID, op.VarID)
		if err != nil {
			return false, err
		}
		if !granted {
			return false, nil // not all-or-nothing yet; retry next tick
		}
	}
	for _, sid := range targets {
		if err := tm.sites[sid].Write(txn.ID, op.VarID, op.Value); err != nil {
			return false, err
		}
		txn.visit(sid)
	}
	tm.log.Info(tm.tick, "manager", "%s writes %s = %d (sites %v)", txn.ID, op.VarID, op.Value, targets)
	return true, nil
}
