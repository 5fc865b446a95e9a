package transaction

import (
	"testing"

	simerrors "repsim/internal/errors"
)

func TestNewDataManagerSeeding(t *testing.T) {
	dm1 := NewDataManager(1)
	dm2 := NewDataManager(2)

	if !dm1.HasVariable("x2") || !dm2.HasVariable("x2") {
		t.Fatalf("x2 is replicated, every site should host it")
	}
	if dm1.HasVariable("x11") {
		t.Fatalf("x11's home site is 11%%10+1=2, site 1 should not host it")
	}
	if !dm2.HasVariable("x11") {
		t.Fatalf("x11's home site is 11%%10+1=2, site 2 should host it")
	}
}

func TestUnreplicatedVariablePlacement(t *testing.T) {
	home := variableHomeSite(7) // 7%10+1 = 8
	for sid := 1; sid <= SiteCount; sid++ {
		dm := NewDataManager(sid)
		want := sid == home
		if got := dm.HasVariable("x7"); got != want {
			t.Errorf("site %d HasVariable(x7) = %v, want %v (home=%d)", sid, got, want, home)
		}
	}
}

func TestDataManagerReadWriteCommit(t *testing.T) {
	dm := NewDataManager(1)
	granted, err := dm.GetWriteLock("T1", "x2")
	if err != nil || !granted {
		t.Fatalf("GetWriteLock = (%v, %v), want (true, nil)", granted, err)
	}
	if err := dm.Write("T1", "x2", 100); err != nil {
		t.Fatalf("Write: %v", err)
	}

	val, granted, err := dm.Read("T1", "x2")
	if err != nil || !granted || val != 100 {
		t.Fatalf("Read own write = (%d, %v, %v), want (100, true, nil)", val, granted, err)
	}

	dm.Commit("T1", 5)
	val, granted, err = dm.Read("T2", "x2")
	if err != nil || !granted || val != 100 {
		t.Fatalf("Read after commit = (%d, %v, %v), want (100, true, nil)", val, granted, err)
	}
}

func TestDataManagerFailBlocksAccess(t *testing.T) {
	dm := NewDataManager(1)
	dm.Fail(3)
	if _, _, err := dm.Read("T1", "x2"); err == nil {
		t.Fatalf("Read should fail while the site is down")
	}
	if _, err := dm.GetWriteLock("T1", "x2"); err == nil {
		t.Fatalf("GetWriteLock should fail while the site is down")
	}
}

func TestDataManagerRecoverMarksReplicatedUnreadable(t *testing.T) {
	dm := NewDataManager(1)
	dm.Fail(3)
	dm.Recover(8)

	if _, _, err := dm.Read("T1", "x2"); err == nil {
		t.Fatalf("replicated x2 should be unreadable until a post-recovery commit")
	}

	granted, err := dm.GetWriteLock("T1", "x2")
	if err != nil || !granted {
		t.Fatalf("GetWriteLock after recovery = (%v, %v), want (true, nil)", granted, err)
	}
	if err := dm.Write("T1", "x2", 5); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dm.Commit("T1", 9)

	if _, _, err := dm.Read("T2", "x2"); err != nil {
		t.Fatalf("x2 should be readable again after a post-recovery commit: %v", err)
	}
}

func TestDataManagerWriteWithoutLockIsFatal(t *testing.T) {
	dm := NewDataManager(1)
	err := dm.Write("T1", "x2", 100)
	if err == nil {
		t.Fatalf("Write without holding the write lock should fail")
	}
	if !simerrors.IsFatal(err) {
		t.Fatalf("Write precondition violation should be fatal, got %v", err)
	}
}

func TestDataManagerSnapshotReadRejectsStaleFailedInterval(t *testing.T) {
	dm := NewDataManager(1)
	dm.Fail(3)
	dm.Recover(8)
	if _, ok := dm.SnapshotRead("x2", 10); ok {
		t.Fatalf("snapshot as of t=10 should be rejected: site was down between commit and t")
	}
}
