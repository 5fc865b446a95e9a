package transaction

import (
	"io"
	"testing"

	"repsim/internal/tracelog"
)

func newTestManager() *TransactionManager {
	return NewTransactionManager(tracelog.NewLogger(io.Discard), true, true)
}

func TestManagerBeginReadWriteCommit(t *testing.T) {
	tm := newTestManager()
	if err := tm.Begin("T1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tm.Write("T1", "x2", 100); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tm.Process() // drains the queued write

	if err := tm.Read("T1", "x2"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	tm.Process()

	if err := tm.End("T1"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, exists := tm.txns["T1"]; exists {
		t.Fatalf("T1 should be removed from the transaction table after commit")
	}
}

func TestManagerReadOnlySnapshot(t *testing.T) {
	tm := newTestManager()
	tm.Begin("T1")
	tm.Write("T1", "x2", 99)
	tm.Process()
	tm.End("T1")

	if err := tm.BeginRO("R1"); err != nil {
		t.Fatalf("BeginRO: %v", err)
	}
	if err := tm.Read("R1", "x2"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	tm.Process() // drains the queued snapshot read
	if len(tm.pending) != 0 {
		t.Fatalf("read-only snapshot read should have resolved immediately, got %d still pending", len(tm.pending))
	}
}

func TestManagerReadOnlyCannotWrite(t *testing.T) {
	tm := newTestManager()
	tm.BeginRO("R1")
	if err := tm.Write("R1", "x2", 1); err == nil {
		t.Fatalf("a read-only transaction must not be able to write")
	}
}

func TestManagerWriteConflictBlocksUntilRelease(t *testing.T) {
	tm := newTestManager()
	tm.Begin("T1")
	tm.Begin("T2")
	tm.Write("T1", "x2", 1)
	tm.Write("T2", "x2", 2)
	tm.Process() // T1's write proceeds, T2's queues behind it

	if _, held := tm.sites[1].locks["x2"].holdsAny("T2"); held {
		t.Fatalf("T2 should not hold x2's write lock yet")
	}

	tm.End("T1")
	tm.Process() // T2's write can now proceed

	if _, held := tm.sites[1].locks["x2"].holdsAny("T2"); !held {
		t.Fatalf("T2 should hold x2's write lock after T1 released it")
	}
}

func TestManagerSiteFailureAbortsVisitingTransaction(t *testing.T) {
	tm := newTestManager()
	tm.Begin("T1")
	tm.Write("T1", "x7", 1) // x7 lives only at site 8
	tm.Process()

	tm.Fail(8)
	if !tm.txns["T1"].MustAbort {
		t.Fatalf("T1 visited the failed site and must be marked for abort")
	}
}

func TestManagerSiteFailureDoesNotAffectReadOnly(t *testing.T) {
	tm := newTestManager()
	tm.BeginRO("R1")
	tm.Fail(3)
	if txn := tm.txns["R1"]; txn.MustAbort {
		t.Fatalf("a read-only transaction must be immune to site failure")
	}
}
