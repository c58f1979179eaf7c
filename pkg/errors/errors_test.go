package errors

import (
	stderrors "errors"
	"testing"
)

func TestReconcilerErrorMessage(t *testing.T) {
	cause := stderrors.New("no such file")
	err := Wrap(cause, CategoryFile, CodeFileNotFound, "statement file not found").
		WithSuggestion("check the supplied path")

	if err.Error() != "statement file not found (suggestion: check the supplied path)" {
		t.Errorf("unexpected Error() output: %s", err.Error())
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the original cause")
	}
}

func TestDomainKindConstructors(t *testing.T) {
	be := BoundariesMissing("statement.pdf", true, false)
	if be.Kind != KindBoundariesMissing {
		t.Errorf("expected KindBoundariesMissing, got %s", be.Kind)
	}
	if be.Context["missing_start"] != true {
		t.Error("expected missing_start context to be recorded")
	}

	csp := CspInfeasible(100000, 80000, 100, 3)
	if csp.Kind != KindCspInfeasible {
		t.Errorf("expected KindCspInfeasible, got %s", csp.Kind)
	}

	st := SolverTimeout(2, "cluster-1", 9500)
	if !st.IsRecoverable() {
		t.Error("SolverTimeout should be recoverable")
	}

	hs := ClusterHardStop("cluster-2", 600, 500)
	if hs.IsRecoverable() {
		t.Error("ClusterHardStop should not be recoverable")
	}
}

func TestErrorSummaryAggregatesByKindAndCategory(t *testing.T) {
	errs := []*ReconcilerError{
		BoundariesMissing("a.pdf", true, true),
		CspInfeasible(1, 2, 3, 4),
		New(CategoryFile, CodeFileNotFound, "missing"),
	}
	summary := NewErrorSummary(errs)

	if summary.Total != 3 {
		t.Errorf("total = %d, want 3", summary.Total)
	}
	if !summary.HasKind(KindBoundariesMissing) {
		t.Error("expected HasKind(KindBoundariesMissing) to be true")
	}
	if summary.ByCategory[CategoryFile] != 1 {
		t.Errorf("ByCategory[file] = %d, want 1", summary.ByCategory[CategoryFile])
	}
}

func TestAsReconcilerErrorRoundTrips(t *testing.T) {
	var err error = InvalidInput("amount", "abc", "not numeric")
	rerr, ok := AsReconcilerError(err)
	if !ok || rerr.Kind != KindInvalidInput {
		t.Error("expected to recover the InvalidInput kind through the error chain")
	}
}
