package common

import "testing"

func TestStatusPipelineAdvancesOneStep(t *testing.T) {
	order := []DocumentStatus{
		StatusIngested,
		StatusClassifying,
		StatusExtracting,
		StatusChunking,
		StatusEmbedding,
		StatusGraphSyncing,
		StatusEnriching,
		StatusReady,
	}
	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		if !ok {
			t.Fatalf("%s: expected a next state", order[i])
		}
		if next != order[i+1] {
			t.Fatalf("%s: expected next %s, got %s", order[i], order[i+1], next)
		}
	}
}

func TestTerminalStatesHaveNoNext(t *testing.T) {
	for _, s := range []DocumentStatus{StatusReady, StatusFailed} {
		if !s.Terminal() {
			t.Fatalf("%s: expected terminal", s)
		}
		if _, ok := s.Next(); ok {
			t.Fatalf("%s: expected no next state", s)
		}
	}
}

func TestFailedReachableFromAnyNonTerminal(t *testing.T) {
	for _, s := range pipeline[:len(pipeline)-1] {
		if !s.CanTransitionTo(StatusFailed) {
			t.Fatalf("%s: expected FAILED to be reachable", s)
		}
	}
	if StatusReady.CanTransitionTo(StatusFailed) {
		t.Fatal("READY: expected FAILED to be unreachable")
	}
	if StatusFailed.CanTransitionTo(StatusIngested) {
		t.Fatal("FAILED: expected no transitions out")
	}
}

func TestCanTransitionToRejectsSkips(t *testing.T) {
	if StatusIngested.CanTransitionTo(StatusExtracting) {
		t.Fatal("INGESTED: skipping CLASSIFYING must be rejected")
	}
	if !StatusIngested.CanTransitionTo(StatusClassifying) {
		t.Fatal("INGESTED: expected CLASSIFYING to be reachable")
	}
}

func TestValid(t *testing.T) {
	if !StatusFailed.Valid() {
		t.Fatal("FAILED should be valid")
	}
	if DocumentStatus("BOGUS").Valid() {
		t.Fatal("unknown status should not be valid")
	}
}
