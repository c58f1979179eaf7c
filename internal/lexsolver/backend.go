package lexsolver

import (
	"time"
)

// DefaultBackend is LexSolver's built-in Backend: a depth-first
// branch-and-bound search over invoice/payment inclusion, in the same
// pruned-backtracking idiom as internal/bankrecovery.solveCSP.
type DefaultBackend struct {
	// NodeBudget caps the number of DFS nodes explored per phase
	// before giving up and returning StatusTimedOut, independent of
	// the wall-clock deadline (keeps behavior deterministic in tests
	// that don't want to depend on real elapsed time).
	NodeBudget int
}

// NewDefaultBackend returns a DefaultBackend with a sane node budget.
func NewDefaultBackend() *DefaultBackend {
	return &DefaultBackend{NodeBudget: 200000}
}

func (b *DefaultBackend) budget() int {
	if b.NodeBudget <= 0 {
		return 200000
	}
	return b.NodeBudget
}

// causalityForbidden returns, for each payment index, the set of
// invoice indices it cannot be paired with: pay.date < inv.date -
// causalityBufferDays (spec.md §4.D "Causality").
func causalityForbidden(model *Model) map[int]map[int]bool {
	buf := time.Duration(model.CausalityBufferDays) * 24 * time.Hour
	forbidden := make(map[int]map[int]bool)
	for j, p := range model.Payments {
		if !p.HasDate {
			continue
		}
		for i, inv := range model.Invoices {
			if !inv.HasDate {
				continue
			}
			if p.Date.Before(inv.Date.Add(-buf)) {
				if forbidden[j] == nil {
					forbidden[j] = make(map[int]bool)
				}
				forbidden[j][i] = true
			}
		}
	}
	return forbidden
}

// suffixBounds precomputes, for each position in the combined
// invoice-then-payment item order, the maximum positive and maximum
// negative contribution still available from that position onward,
// for the subset-sum style pruning bound used by every phase.
func suffixBounds(model *Model) (maxPos, maxNeg []int64) {
	n, m := len(model.Invoices), len(model.Payments)
	total := n + m
	maxPos = make([]int64, total+1)
	maxNeg = make([]int64, total+1)
	for i := total - 1; i >= 0; i-- {
		var amt int64
		isInvoice := i < n
		if isInvoice {
			amt = model.Invoices[i].AmountCents
		} else {
			amt = model.Payments[i-n].AmountCents
		}
		if isInvoice {
			maxPos[i] = maxPos[i+1] + amt
			maxNeg[i] = maxNeg[i+1]
		} else {
			maxPos[i] = maxPos[i+1]
			maxNeg[i] = maxNeg[i+1] + amt
		}
	}
	return maxPos, maxNeg
}

// bestAchievableAbs returns the smallest |net| reachable from
// runningNet given that the remaining items can each contribute
// anywhere in [-maxNeg[i], +maxPos[i]].
func bestAchievableAbs(runningNet, maxPos, maxNeg int64) int64 {
	lo := runningNet - maxNeg
	hi := runningNet + maxPos
	if lo <= 0 && hi >= 0 {
		return 0
	}
	if lo > 0 {
		return lo
	}
	return -hi
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// Solve dispatches to the phase-specific search.
func (b *DefaultBackend) Solve(model *Model, phase int, prior *Solution, timeLimit time.Duration) (*Solution, Status) {
	deadline := time.Now().Add(timeLimit)
	switch phase {
	case 1:
		return b.solvePhase1(model, deadline)
	case 2:
		return b.solvePhase2(model, prior, deadline)
	case 3:
		return b.solvePhase3(model, prior, deadline)
	default:
		return nil, StatusInfeasible
	}
}

// phaseSearchState carries the shared DFS bookkeeping across an
// invoice-then-payment item order.
type phaseSearchState struct {
	model      *Model
	forbidden  map[int]map[int]bool
	maxPos     []int64
	maxNeg     []int64
	n, m       int
	includeInv []bool
	includePay []bool
	nodes      int
	budget     int
	deadline   time.Time
}

func newSearchState(model *Model, budget int, deadline time.Time) *phaseSearchState {
	maxPos, maxNeg := suffixBounds(model)
	return &phaseSearchState{
		model:      model,
		forbidden:  causalityForbidden(model),
		maxPos:     maxPos,
		maxNeg:     maxNeg,
		n:          len(model.Invoices),
		m:          len(model.Payments),
		includeInv: make([]bool, len(model.Invoices)),
		includePay: make([]bool, len(model.Payments)),
		budget:     budget,
		deadline:   deadline,
	}
}

func (s *phaseSearchState) exhausted() bool {
	s.nodes++
	if s.nodes > s.budget {
		return true
	}
	if s.nodes%1024 == 0 && time.Now().After(s.deadline) {
		return true
	}
	return false
}

// applyRemainder finds the first included instalment invoice and lets
// it absorb a non-negative leftover imbalance, up to its own amount,
// per the single-absorbing-invoice simplification documented in
// DESIGN.md. Returns the post-absorption net and the per-invoice
// remainder array.
func applyRemainder(model *Model, includeInv []bool, net int64) (int64, []int64) {
	remainders := make([]int64, len(model.Invoices))
	if net <= 0 {
		return net, remainders
	}
	for i, inv := range model.Invoices {
		if !includeInv[i] || !inv.Instalment {
			continue
		}
		r := net
		if r > inv.AmountCents {
			r = inv.AmountCents
		}
		remainders[i] = r
		net -= r
		break
	}
	return net, remainders
}

func splitGamma(net, gapCap int64) (gammaPlus, gammaMinus, delta int64) {
	imbalance := abs64(net)
	gamma := imbalance
	if gamma > gapCap {
		gamma = gapCap
	}
	delta = imbalance - gamma
	if net >= 0 {
		return gamma, 0, delta
	}
	return 0, gamma, delta
}

// solvePhase1 minimizes δ+γ⁺+γ⁻, i.e. the absolute balance imbalance,
// over every invoice/payment inclusion combination, respecting the
// causality constraint and the combined gap+delta cap.
func (b *DefaultBackend) solvePhase1(model *Model, deadline time.Time) (*Solution, Status) {
	st := newSearchState(model, b.budget(), deadline)
	cap := model.GapCapCents + model.DeltaCapCents

	best := int64(-1)
	var bestInv, bestPay []bool
	timedOut := false

	var recurse func(i int, net int64) bool
	recurse = func(i int, net int64) bool {
		if st.exhausted() {
			timedOut = true
			return true
		}
		if i == st.n+st.m {
			imbalance := abs64(net)
			if imbalance > cap {
				return false
			}
			if best == -1 || imbalance < best {
				best = imbalance
				bestInv = append([]bool(nil), st.includeInv...)
				bestPay = append([]bool(nil), st.includePay...)
			}
			return best == 0
		}

		bound := bestAchievableAbs(net, st.maxPos[i], st.maxNeg[i])
		if best != -1 && bound >= best {
			return false
		}
		if bound > cap {
			return false
		}

		if i < st.n {
			amt := model.Invoices[i].AmountCents
			st.includeInv[i] = true
			if recurse(i+1, net+amt) {
				return true
			}
			st.includeInv[i] = false
			if recurse(i+1, net) {
				return true
			}
			return false
		}

		j := i - st.n
		blocked := false
		if st.forbidden[j] != nil {
			for invIdx := range st.forbidden[j] {
				if st.includeInv[invIdx] {
					blocked = true
					break
				}
			}
		}
		if !blocked {
			amt := model.Payments[j].AmountCents
			st.includePay[j] = true
			if recurse(i+1, net-amt) {
				return true
			}
			st.includePay[j] = false
		}
		if model.ForceAllPayments {
			// Bank money is assumed real: a payment only goes
			// unaccounted when causality leaves no other option.
			if blocked {
				return recurse(i+1, net)
			}
			return false
		}
		return recurse(i+1, net)
	}

	recurse(0, 0)

	if best == -1 {
		if timedOut {
			return nil, StatusTimedOut
		}
		return nil, StatusInfeasible
	}

	net := netOf(model, bestInv, bestPay)
	net, remainders := applyRemainder(model, bestInv, net)
	gammaPlus, gammaMinus, delta := splitGamma(net, model.GapCapCents)

	sol := &Solution{
		IncludeInvoice: bestInv,
		IncludePayment: bestPay,
		RemainderCents: remainders,
		Delta:          delta,
		GammaPlus:      gammaPlus,
		GammaMinus:     gammaMinus,
		Objective:      best,
	}
	if best == 0 {
		return sol, StatusOptimal
	}
	if timedOut {
		return sol, StatusFeasible
	}
	return sol, StatusOptimal
}

func netOf(model *Model, includeInv, includePay []bool) int64 {
	var net int64
	for i, inc := range includeInv {
		if inc {
			net += model.Invoices[i].AmountCents
		}
	}
	for j, inc := range includePay {
		if inc {
			net -= model.Payments[j].AmountCents
		}
	}
	return net
}

// solvePhase2 minimizes Σxᵢ (invoice cardinality) subject to the
// imbalance staying within δ*+|γ*|+1 of phase 1's result.
func (b *DefaultBackend) solvePhase2(model *Model, prior *Solution, deadline time.Time) (*Solution, Status) {
	if prior == nil {
		return nil, StatusInfeasible
	}
	bound := prior.Delta + prior.GammaPlus + prior.GammaMinus + 1

	st := newSearchState(model, b.budget(), deadline)
	bestCard := -1
	var bestInv, bestPay []bool
	timedOut := false

	var recurse func(i int, net int64, card int) bool
	recurse = func(i int, net int64, card int) bool {
		if st.exhausted() {
			timedOut = true
			return true
		}
		if bestCard != -1 && card >= bestCard {
			return false
		}
		if i == st.n+st.m {
			imbalance := abs64(net)
			if imbalance > bound {
				return false
			}
			if bestCard == -1 || card < bestCard {
				bestCard = card
				bestInv = append([]bool(nil), st.includeInv...)
				bestPay = append([]bool(nil), st.includePay...)
			}
			return false
		}

		bAbs := bestAchievableAbs(net, st.maxPos[i], st.maxNeg[i])
		if bAbs > bound {
			return false
		}

		if i < st.n {
			amt := model.Invoices[i].AmountCents
			// Try exclude first: cheaper in cardinality, explored first
			// so the search finds low-cardinality solutions sooner.
			st.includeInv[i] = false
			if recurse(i+1, net, card) {
				return true
			}
			st.includeInv[i] = true
			if recurse(i+1, net+amt, card+1) {
				return true
			}
			st.includeInv[i] = false
			return false
		}

		j := i - st.n
		amt := model.Payments[j].AmountCents
		blocked := false
		if st.forbidden[j] != nil {
			for invIdx := range st.forbidden[j] {
				if st.includeInv[invIdx] {
					blocked = true
					break
				}
			}
		}
		if !model.ForceAllPayments || blocked {
			st.includePay[j] = false
			if recurse(i+1, net, card) {
				return true
			}
		}
		if !blocked {
			st.includePay[j] = true
			if recurse(i+1, net-amt, card) {
				return true
			}
			st.includePay[j] = false
		}
		return false
	}

	recurse(0, 0, 0)

	if bestCard == -1 {
		if timedOut {
			return nil, StatusTimedOut
		}
		return nil, StatusInfeasible
	}

	net := netOf(model, bestInv, bestPay)
	net, remainders := applyRemainder(model, bestInv, net)
	gammaPlus, gammaMinus, delta := splitGamma(net, model.GapCapCents)

	sol := &Solution{
		IncludeInvoice: bestInv,
		IncludePayment: bestPay,
		RemainderCents: remainders,
		Delta:          delta,
		GammaPlus:      gammaPlus,
		GammaMinus:     gammaMinus,
		Objective:      int64(bestCard),
	}
	if timedOut {
		return sol, StatusFeasible
	}
	return sol, StatusOptimal
}

// solvePhase3 keeps phase 1's imbalance bound and phase 2's
// cardinality+1 bound, and maximizes the sum of scaled affinity
// weights over edges whose endpoints are both included. Since zᵢⱼ is
// otherwise unconstrained, the optimum simply selects every edge
// between two included nodes.
func (b *DefaultBackend) solvePhase3(model *Model, prior *Solution, deadline time.Time) (*Solution, Status) {
	if prior == nil {
		return nil, StatusInfeasible
	}
	imbalanceBound := prior.Delta + prior.GammaPlus + prior.GammaMinus
	cardBound := int(prior.Objective) + 1
	if prior.Objective == 0 && countIncluded(prior.IncludeInvoice) > 0 {
		// prior was a phase-1 solution (Objective is imbalance, not
		// cardinality); fall back to its own invoice count + 1.
		cardBound = countIncluded(prior.IncludeInvoice) + 1
	}

	st := newSearchState(model, b.budget(), deadline)
	bestQuality := int64(-1)
	var bestInv, bestPay []bool
	timedOut := false

	totalWeight := int64(0)
	for _, e := range model.Edges {
		totalWeight += e.ScaledW
	}

	var recurse func(i int, net int64, card int) bool
	recurse = func(i int, net int64, card int) bool {
		if st.exhausted() {
			timedOut = true
			return true
		}
		if card > cardBound {
			return false
		}
		bAbs := bestAchievableAbs(net, st.maxPos[i], st.maxNeg[i])
		if bAbs > imbalanceBound {
			return false
		}

		if i == st.n+st.m {
			q := qualityOf(model, st.includeInv, st.includePay)
			if q > bestQuality {
				bestQuality = q
				bestInv = append([]bool(nil), st.includeInv...)
				bestPay = append([]bool(nil), st.includePay...)
			}
			return false
		}

		if i < st.n {
			amt := model.Invoices[i].AmountCents
			st.includeInv[i] = true
			if card+1 <= cardBound {
				recurse(i+1, net+amt, card+1)
			}
			st.includeInv[i] = false
			recurse(i+1, net, card)
			return false
		}

		j := i - st.n
		blocked := false
		if st.forbidden[j] != nil {
			for invIdx := range st.forbidden[j] {
				if st.includeInv[invIdx] {
					blocked = true
					break
				}
			}
		}
		if !blocked {
			amt := model.Payments[j].AmountCents
			st.includePay[j] = true
			recurse(i+1, net-amt, card)
			st.includePay[j] = false
		}
		if !model.ForceAllPayments || blocked {
			recurse(i+1, net, card)
		}
		return false
	}

	recurse(0, 0, 0)

	if bestQuality == -1 {
		if timedOut {
			return nil, StatusTimedOut
		}
		return nil, StatusInfeasible
	}

	net := netOf(model, bestInv, bestPay)
	net, remainders := applyRemainder(model, bestInv, net)
	gammaPlus, gammaMinus, delta := splitGamma(net, model.GapCapCents)

	selected := make([]bool, len(model.Edges))
	for k, e := range model.Edges {
		selected[k] = bestInv[e.InvoiceIdx] && bestPay[e.PaymentIdx]
	}

	sol := &Solution{
		IncludeInvoice: bestInv,
		IncludePayment: bestPay,
		RemainderCents: remainders,
		Delta:          delta,
		GammaPlus:      gammaPlus,
		GammaMinus:     gammaMinus,
		SelectedEdges:  selected,
		Objective:      bestQuality,
	}
	if timedOut {
		return sol, StatusFeasible
	}
	return sol, StatusOptimal
}

func qualityOf(model *Model, includeInv, includePay []bool) int64 {
	var q int64
	for _, e := range model.Edges {
		if includeInv[e.InvoiceIdx] && includePay[e.PaymentIdx] {
			q += e.ScaledW
		}
	}
	return q
}

func countIncluded(b []bool) int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}
