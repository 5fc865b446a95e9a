package transaction

import "testing"

func TestDetectNoCycle(t *testing.T) {
	edges := []waitEdge{{From: "T1", To: "T2"}}
	txns := map[string]*Transaction{
		"T1": {ID: "T1", Start: 1},
		"T2": {ID: "T2", Start: 2},
	}
	if _, found := (DeadlockDetector{}).Detect(edges, txns); found {
		t.Fatalf("a single edge is not a cycle")
	}
}

func TestDetectSimpleCycleYoungestVictim(t *testing.T) {
	edges := []waitEdge{
		{From: "T1", To: "T2"},
		{From: "T2", To: "T1"},
	}
	txns := map[string]*Transaction{
		"T1": {ID: "T1", Start: 1},
		"T2": {ID: "T2", Start: 5},
	}
	victim, found := (DeadlockDetector{}).Detect(edges, txns)
	if !found {
		t.Fatalf("expected a cycle to be detected")
	}
	if victim != "T2" {
		t.Fatalf("victim = %q, want T2 (greatest Start)", victim)
	}
}

func TestDetectTieBreakByGreatestID(t *testing.T) {
	edges := []waitEdge{
		{From: "T1", To: "T2"},
		{From: "T2", To: "T1"},
	}
	txns := map[string]*Transaction{
		"T1": {ID: "T1", Start: 3},
		"T2": {ID: "T2", Start: 3},
	}
	victim, found := (DeadlockDetector{}).Detect(edges, txns)
	if !found {
		t.Fatalf("expected a cycle to be detected")
	}
	if victim != "T2" {
		t.Fatalf("victim = %q, want T2 (lexicographically greatest on a Start tie)", victim)
	}
}

func TestDetectLongerCycle(t *testing.T) {
	edges := []waitEdge{
		{From: "T1", To: "T2"},
		{From: "T2", To: "T3"},
		{From: "T3", To: "T1"},
	}
	txns := map[string]*Transaction{
		"T1": {ID: "T1", Start: 1},
		"T2": {ID: "T2", Start: 2},
		"T3": {ID: "T3", Start: 9},
	}
	victim, found := (DeadlockDetector{}).Detect(edges, txns)
	if !found {
		t.Fatalf("expected a 3-cycle to be detected")
	}
	if victim != "T3" {
		t.Fatalf("victim = %q, want T3 (greatest Start)", victim)
	}
}

func TestDetectDisjointGraphsOnlyFlagsTheCycle(t *testing.T) {
	edges := []waitEdge{
		{From: "T1", To: "T2"}, // no cycle
		{From: "T3", To: "T4"},
		{From: "T4", To: "T3"}, // cycle
	}
	txns := map[string]*Transaction{
		"T1": {ID: "T1", Start: 1},
		"T2": {ID: "T2", Start: 2},
		"T3": {ID: "T3", Start: 1},
		"T4": {ID: "T4", Start: 4},
	}
	victim, found := (DeadlockDetector{}).Detect(edges, txns)
	if !found || victim != "T4" {
		t.Fatalf("Detect() = (%q, %v), want (T4, true)", victim, found)
	}
}
