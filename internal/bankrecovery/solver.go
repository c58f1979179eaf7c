package bankrecovery

// choiceKind names which option the CSP solve picked for a block.
type choiceKind int

const (
	choiceNull choiceKind = iota
	choiceDebit
	choiceCredit
)

// choice is the solver's decision for one block: either null, or a
// signed variant.
type choice struct {
	kind    choiceKind
	variant Variant
}

// defaultToleranceCents is the default balance-reconciliation
// tolerance (spec.md §4.A.6).
const defaultToleranceCents = int64(100)

// solveCSP finds an assignment of {debit variant, credit variant, null}
// to each block minimizing the number of nulls, subject to the
// balance constraint, using depth-first search with backtracking in
// block order. Ported from the maxRemaining-pruned backtracker in
// internal/heuristics/cpsat_solver.go (leanlp-BTC-coinjoin), adapted
// from Bitcoin input/output partitioning to debit/credit/null block
// assignment.
func solveCSP(blocks []block, startCents, endCents, toleranceCents int64) ([]choice, bool) {
	n := len(blocks)
	target := endCents - startCents // Σ(credit) - Σ(debit) must equal this, within tolerance.

	// maxRemaining[i] = sum over j>=i of the largest |value| available
	// to block j (its best magnitude hypothesis, or 0 if it has none).
	maxRemaining := make([]int64, n+1)
	for i := n - 1; i >= 0; i-- {
		best := int64(0)
		for _, v := range blocks[i].variants {
			if v.ValueCents > best {
				best = v.ValueCents
			}
		}
		maxRemaining[i] = maxRemaining[i+1] + best
	}

	assignment := make([]choice, n)
	var solution []choice

	var recurse func(i int, currentDelta int64) bool
	recurse = func(i int, currentDelta int64) bool {
		if i == n {
			if abs64(target-currentDelta) <= toleranceCents {
				solution = make([]choice, n)
				copy(solution, assignment)
				return true
			}
			return false
		}

		if abs64(target-currentDelta) > maxRemaining[i]+toleranceCents {
			return false
		}

		b := blocks[i]
		for _, v := range b.variants {
			assignment[i] = choice{kind: choiceDebit, variant: v}
			if recurse(i+1, currentDelta-v.ValueCents) {
				return true
			}
		}
		for _, v := range b.variants {
			assignment[i] = choice{kind: choiceCredit, variant: v}
			if recurse(i+1, currentDelta+v.ValueCents) {
				return true
			}
		}
		assignment[i] = choice{kind: choiceNull}
		if recurse(i+1, currentDelta) {
			return true
		}
		return false
	}

	if recurse(0, 0) {
		return solution, true
	}
	return nil, false
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
