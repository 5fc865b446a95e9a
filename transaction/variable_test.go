package transaction

import "testing"

func TestNewVariableInitialValue(t *testing.T) {
	v := newVariable(4)
	if got := v.ReadLatest(); got != 40 {
		t.Fatalf("x4 initial value = %d, want 40", got)
	}
	if !v.Replicated {
		t.Fatalf("x4 should be replicated")
	}
	if !v.Readable {
		t.Fatalf("fresh variable should be readable")
	}
}

func TestVariableReplication(t *testing.T) {
	cases := []struct {
		n          int
		replicated bool
	}{
		{2, true}, {4, true}, {20, true},
		{1, false}, {3, false}, {19, false},
	}
	for _, c := range cases {
		if got := variableReplicated(c.n); got != c.replicated {
			t.Errorf("variableReplicated(%d) = %v, want %v", c.n, got, c.replicated)
		}
	}
}

func TestVariableHomeSite(t *testing.T) {
	if got := variableHomeSite(7); got != 8 {
		t.Fatalf("home site of x7 = %d, want 8", got)
	}
	if got := variableHomeSite(11); got != 2 {
		t.Fatalf("home site of x11 = %d, want 2", got)
	}
}

func TestVariableStageCommitDiscard(t *testing.T) {
	v := newVariable(2)
	v.Stage("T1", 99)
	if val, err := v.ReadTentative(); err != nil || val != 99 {
		t.Fatalf("ReadTentative() = (%d, %v), want (99, nil)", val, err)
	}
	v.Commit(5)
	if v.Tentative != nil {
		t.Fatalf("Tentative should be cleared after Commit")
	}
	if got := v.ReadLatest(); got != 99 {
		t.Fatalf("ReadLatest() after commit = %d, want 99", got)
	}

	v.Stage("T2", 7)
	v.Discard()
	if v.Tentative != nil {
		t.Fatalf("Tentative should be cleared after Discard")
	}
	if got := v.ReadLatest(); got != 99 {
		t.Fatalf("Discard must not touch history, got %d", got)
	}
}

func TestVariableSnapshot(t *testing.T) {
	v := newVariable(2) // history: {20, t=0}
	v.Stage("T1", 30)
	v.Commit(5) // history: {20,0}, {30,5}

	if entry, ok := v.Snapshot(0); !ok || entry.Value != 20 {
		t.Fatalf("Snapshot(0) = (%+v, %v), want (20, true)", entry, ok)
	}
	if entry, ok := v.Snapshot(4); !ok || entry.Value != 20 {
		t.Fatalf("Snapshot(4) = (%+v, %v), want (20, true)", entry, ok)
	}
	if entry, ok := v.Snapshot(5); !ok || entry.Value != 30 {
		t.Fatalf("Snapshot(5) = (%+v, %v), want (30, true)", entry, ok)
	}
	if _, ok := v.Snapshot(-1); ok {
		t.Fatalf("Snapshot(-1) should fail: no history committed before time 0")
	}
}
