package transaction

import (
	"strconv"

	simerrors "repsim/internal/errors"
)

// HistoryEntry is one committed version of a variable (spec.md §3
// "history"), grounded on original_source/data/value.py's CommitValue
// and the teacher's VersionedValue (transaction/isolation.go).
type HistoryEntry struct {
	Value      int
	CommitTime int
}

// tentative is the single uncommitted write buffered at a variable,
// grounded on original_source/data/value.py's TemporaryValue.
type tentative struct {
	Value int
	TxnID string
}

// Variable holds one variable's replication flag, readability flag,
// committed history, and at most one uncommitted tentative value
// (spec.md §3 "Variable").
type Variable struct {
	ID         string
	Replicated bool
	Readable   bool
	History    []HistoryEntry
	Tentative  *tentative
}

// newVariable creates a variable initialized to (10*n, 0), matching
// spec.md §6's "Variable xN initial value is 10*N at commit_time 0"
// and original_source/data/manager.py's `init_val = i * 10`.
func newVariable(n int) *Variable {
	id := varID(n)
	return &Variable{
		ID:         id,
		Replicated: variableReplicated(n),
		Readable:   true,
		History:    []HistoryEntry{{Value: n * 10, CommitTime: 0}},
	}
}

// ReadLatest returns the value of the most recently committed entry
// (spec.md §4.2).
func (v *Variable) ReadLatest() int {
	return v.History[len(v.History)-1].Value
}

// ReadTentative returns the uncommitted value, or a DataError if none
// exists (spec.md §4.2, §7).
func (v *Variable) ReadTentative() (int, error) {
	if v.Tentative == nil {
		return 0, simerrors.NewDataError("variable %s has no tentative value", v.ID)
	}
	return v.Tentative.Value, nil
}

// Snapshot returns the value whose commit_time is the greatest <= ts,
// or ok=false if no such entry exists (spec.md §4.2). It does not apply
// the replicated-interval failure check — that is the DataManager's job
// (spec.md §4.3), since only the DataManager knows the site's fail log.
func (v *Variable) Snapshot(ts int) (HistoryEntry, bool) {
	for i := len(v.History) - 1; i >= 0; i-- {
		if v.History[i].CommitTime <= ts {
			return v.History[i], true
		}
	}
	return HistoryEntry{}, false
}

// Stage buffers value as tid's uncommitted write, replacing any prior
// tentative value. The caller is expected to hold tid's write lock
// (spec.md §4.2 precondition).
func (v *Variable) Stage(tid string, value int) {
	v.Tentative = &tentative{Value: value, TxnID: tid}
}

// Commit appends the staged value to history at commit time ts, clears
// the tentative slot, and marks the variable readable again (spec.md §4.2).
// Precondition: v.Tentative != nil and v.Tentative.TxnID is the
// committing transaction, checked by the caller (DataManager.Commit).
func (v *Variable) Commit(ts int) {
	v.History = append(v.History, HistoryEntry{Value: v.Tentative.Value, CommitTime: ts})
	v.Tentative = nil
	v.Readable = true
}

// Discard clears the tentative value without committing it (used on abort).
func (v *Variable) Discard() {
	v.Tentative = nil
}

func varID(n int) string {
	return "x" + strconv.Itoa(n)
}
