// Package lexsolver implements the three-phase lexicographic integer
// optimizer LexSolver runs per cluster (spec.md §4.D): minimize
// imbalance, then minimize cardinality subject to that imbalance,
// then maximize match quality subject to both. No MILP library
// appears anywhere in the retrieval pack, so the search itself is a
// hand-rolled branch-and-bound, grounded on the same
// maxRemaining-pruned depth-first idiom as
// internal/bankrecovery.solveCSP (itself ported from
// leanlp-BTC-coinjoin's cpsat_solver.go); only the objective and the
// constraint set differ.
package lexsolver

import "time"

// Status is a Backend's verdict for one phase solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusFeasible
	StatusInfeasible
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusTimedOut:
		return "TIMED_OUT"
	default:
		return "INFEASIBLE"
	}
}

// modelInvoice is one invoice node as the solver sees it: just the
// quantities the balance/bounds/causality constraints need.
type modelInvoice struct {
	AmountCents int64
	Instalment  bool
	Date        time.Time
	HasDate     bool
}

// modelPayment is one payment node as the solver sees it.
type modelPayment struct {
	AmountCents int64
	Date        time.Time
	HasDate     bool
}

// modelEdge is a candidate (invoice, payment) pairing with its
// integer-scaled affinity weight, used only in phase 3.
type modelEdge struct {
	InvoiceIdx int
	PaymentIdx int
	ScaledW    int64 // floor(1000 * W(i,j))
}

// Model is the fully-built optimization problem for one cluster.
type Model struct {
	Invoices []modelInvoice
	Payments []modelPayment
	Edges    []modelEdge

	GapCapCents         int64
	DeltaCapCents       int64
	CausalityBufferDays int

	// ForceAllPayments requires every payment to be included (yⱼ=1)
	// unless causality makes that infeasible given the invoices
	// chosen. Bank money that reached BankRecovery is assumed real
	// and in need of an explanation; invoices, by contrast, may
	// legitimately go unpaid, so they stay freely excludable. Without
	// this, "exclude every node" is a spurious zero-error optimum
	// that would make LexSolver never match anything (see DESIGN.md).
	ForceAllPayments bool
}

// Solution is one phase's result: which invoices/payments are
// included, the balance split, and (phase 3 only) the edges chosen.
type Solution struct {
	IncludeInvoice []bool
	IncludePayment []bool
	RemainderCents []int64 // per invoice, 0 unless absorbing leftover imbalance
	Delta          int64
	GammaPlus      int64
	GammaMinus     int64
	SelectedEdges  []bool // parallel to Model.Edges, phase 3 only
	Objective       int64
}

// Backend is LexSolver's pluggable optimization engine, matching
// spec.md §6's "Solve(model, timeLimit) → Optimal|Feasible|Infeasible
// |TimedOut" contract. phase selects which objective/constraint set
// to apply; prior is the previous phase's accepted solution (nil for
// phase 1), needed to build phases 2 and 3's added constraints.
type Backend interface {
	Solve(model *Model, phase int, prior *Solution, timeLimit time.Duration) (*Solution, Status)
}
