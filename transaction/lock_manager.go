package transaction

// LockManager serializes access to a single variable. It is grounded on
// the teacher's DefaultLockManager (transaction/lock_manager.go): a
// holders set plus a FIFO wait queue, deduplicated by (txn, kind). The
// teacher's AcquireLock blocks the caller's goroutine on a channel with
// a timeout; spec.md §4.1 has no goroutines, so TryRead/TryWrite here
// return a Granted/Blocked verdict immediately instead. The
// TransactionManager re-issues blocked requests through TryRead/TryWrite
// on every drain, and Release calls Advance to hand the lock to the
// head of the wait queue.
type LockManager struct {
	VarID   string
	holders []Lock
	queue   []Lock
}

func newLockManager(varID string) *LockManager {
	return &LockManager{VarID: varID}
}

// compatible reports whether a lock request of kind by tid would be granted
// immediately given the current holder set (spec.md §4.1 compatibility
// matrix: R/R compatible, R/W and W/W incompatible except self-upgrade).
func (lm *LockManager) compatible(kind LockKind, tid string) bool {
	for _, h := range lm.holders {
		if h.TxnID == tid {
			continue
		}
		if kind == Read && h.Kind == Read {
			continue
		}
		return false
	}
	return true
}

func (lm *LockManager) holds(tid string, kind LockKind) bool {
	for _, h := range lm.holders {
		if h.TxnID == tid && h.Kind == kind {
			return true
		}
	}
	return false
}

func (lm *LockManager) holdsAny(tid string) (LockKind, bool) {
	for _, h := range lm.holders {
		if h.TxnID == tid {
			return h.Kind, true
		}
	}
	return 0, false
}

func (lm *LockManager) queued(tid string, kind LockKind) bool {
	for _, q := range lm.queue {
		if q.TxnID == tid && q.Kind == kind {
			return true
		}
	}
	return false
}

// TryRead attempts to grant tid a read lock, queueing it (FIFO, deduped)
// on conflict. It returns true iff the lock is held by tid after the
// call (read-read batching: every reader sharing the current read set
// is granted together, per spec.md §4.1 "read batch coalescing").
func (lm *LockManager) TryRead(tid string) bool {
	if kind, ok := lm.holdsAny(tid); ok {
		return kind == Read || kind == Write // a write holder can always read its own write
	}
	if len(lm.queue) == 0 && lm.compatible(Read, tid) {
		lm.holders = append(lm.holders, Lock{Kind: Read, TxnID: tid, VarID: lm.VarID})
		return true
	}
	// A pending Write from tid already subsumes a later Read from the
	// same tid (spec.md I3): don't enqueue a redundant Read behind it.
	if !lm.queued(tid, Read) && !lm.queued(tid, Write) {
		lm.queue = append(lm.queue, Lock{Kind: Read, TxnID: tid, VarID: lm.VarID})
	}
	return false
}

// TryWrite attempts to grant tid a write lock, including upgrading an
// existing sole read holder in place (spec.md §4.1 "read→write
// promotion"). It returns true iff tid holds the write lock afterward.
func (lm *LockManager) TryWrite(tid string) bool {
	if kind, ok := lm.holdsAny(tid); ok {
		if kind == Write {
			return true
		}
		// tid already holds Read: promote only if it is the sole holder.
		if len(lm.holders) == 1 {
			lm.holders[0].Kind = Write
			return true
		}
		if !lm.queued(tid, Write) {
			lm.queue = append(lm.queue, Lock{Kind: Write, TxnID: tid, VarID: lm.VarID})
		}
		return false
	}
	if len(lm.holders) == 0 && len(lm.queue) == 0 {
		lm.holders = append(lm.holders, Lock{Kind: Write, TxnID: tid, VarID: lm.VarID})
		return true
	}
	if !lm.queued(tid, Write) {
		lm.queue = append(lm.queue, Lock{Kind: Write, TxnID: tid, VarID: lm.VarID})
	}
	return false
}

// Release drops every lock (held or queued) belonging to tid, then
// drains the head of the wait queue into the now-possibly-empty holder
// set (spec.md §4.1 "FIFO wait queue"). It is used on both commit and
// abort.
func (lm *LockManager) Release(tid string) {
	lm.holders = filterLocks(lm.holders, tid)
	lm.queue = filterLocks(lm.queue, tid)
	lm.Advance()
}

// Advance attempts to drain the front of the wait queue into the holder
// set. A write request only drains when the holder set is empty or its
// own tid is the only holder (then that Read is promoted in place); a read
// request drains — together with every other queued read immediately
// following it — when the holder set is empty or all-readers, matching
// the teacher's dequeue loop in DefaultLockManager.processQueue.
func (lm *LockManager) Advance() bool {
	granted := false
	for len(lm.queue) > 0 {
		next := lm.queue[0]
		if !lm.compatible(next.Kind, next.TxnID) {
			break
		}
		if next.Kind == Write {
			if kind, ok := lm.holdsAny(next.TxnID); ok && kind == Read {
				// next.TxnID already holds a Read: promote it in place
				// rather than appending a second holder for the same tid.
				for i := range lm.holders {
					if lm.holders[i].TxnID == next.TxnID {
						lm.holders[i].Kind = Write
						break
					}
				}
			} else {
				lm.holders = append(lm.holders, next)
			}
		} else {
			lm.holders = append(lm.holders, next)
		}
		lm.queue = lm.queue[1:]
		granted = true
		if next.Kind == Write {
			break // a granted write blocks everything behind it
		}
	}
	return granted
}

// waitsForEdges returns the (tid -> blocking tid) edges implied by this
// variable's current state, for the deadlock detector's waits-for graph
// union (spec.md §4.5): every queued request waits for each conflicting
// holder, and also for each earlier conflicting queued request — a
// later request can't jump an earlier incompatible one even once the
// holder releases.
func (lm *LockManager) waitsForEdges() []waitEdge {
	var edges []waitEdge
	for _, q := range lm.queue {
		for _, h := range lm.holders {
			if h.TxnID == q.TxnID {
				continue
			}
			if q.Kind == Read && h.Kind == Read {
				continue
			}
			edges = append(edges, waitEdge{From: q.TxnID, To: h.TxnID})
		}
	}
	for j, qj := range lm.queue {
		for i := 0; i < j; i++ {
			qi := lm.queue[i]
			if qi.TxnID == qj.TxnID {
				continue
			}
			if qi.Kind == Read && qj.Kind == Read {
				continue
			}
			edges = append(edges, waitEdge{From: qj.TxnID, To: qi.TxnID})
		}
	}
	return edges
}

func filterLocks(locks []Lock, tid string) []Lock {
	out := locks[:0:0]
	for _, l := range locks {
		if l.TxnID != tid {
			out = append(out, l)
		}
	}
	return out
}

// waitEdge is one edge of the cluster-wide waits-for graph (spec.md §4.5).
type waitEdge struct {
	From string
	To   string
}
