package lexsolver

import (
	"math"
	"sort"
	"time"

	"reconciliation-core/internal/config"
	"reconciliation-core/internal/models"
	recerrors "reconciliation-core/pkg/errors"
)

// Outcome is LexSolver's per-cluster result: the matches and partials
// it could extract from the best available phase, plus whether the
// cluster should be handed to RescueLoop.
type Outcome struct {
	MatchedPairs   []models.MatchedPair
	PartialMatches []models.PartialMatch
	// UnassignedInvoiceIDs/UnassignedPaymentIDs are nodes the chosen
	// solution left with xᵢ=0/yⱼ=0: not part of any pair or partial,
	// left for RescueLoop to augment or escalate.
	UnassignedInvoiceIDs []string
	UnassignedPaymentIDs []string
	NeedsRescue          bool
	Delta                int64
	AvgSemantic          float64
	PhasesReached        int
}

// buildModel translates a cluster and its config into the solver's
// integer model, including the causality buffer and the gap/delta
// caps from spec.md §4.D "Bounds".
func buildModel(cluster *models.Cluster, cfg *config.Config, forceAllPayments bool) *Model {
	m := &Model{
		GapCapCents:         cfg.FixedGapThresholdCents,
		CausalityBufferDays: cfg.CausalityBufferDays,
		ForceAllPayments:    forceAllPayments,
	}

	for _, inv := range cluster.Invoices {
		m.Invoices = append(m.Invoices, modelInvoice{
			AmountCents: inv.AmountCents,
			Instalment:  inv.Method == models.MethodInstalment,
			Date:        inv.Date,
			HasDate:     inv.HasDate,
		})
	}
	for _, pay := range cluster.Payments {
		m.Payments = append(m.Payments, modelPayment{
			AmountCents: pay.AmountCents,
			Date:        pay.Date,
			HasDate:     pay.HasDate,
		})
	}
	for _, e := range cluster.Edges {
		m.Edges = append(m.Edges, modelEdge{
			InvoiceIdx: e.InvoiceIdx,
			PaymentIdx: e.PaymentIdx,
			ScaledW:    int64(math.Floor(1000 * e.Weight)),
		})
	}

	deltaCap := cfg.MaxAbsDeltaCents
	if ratioCap := int64(float64(cluster.PaymentTotal) * cfg.RelDeltaRatio); ratioCap < deltaCap {
		deltaCap = ratioCap
	}
	if deltaCap < 0 {
		deltaCap = 0
	}
	m.DeltaCapCents = deltaCap

	return m
}

// Solve runs the three lexicographic phases over one cluster, each
// bounded by solver_timeout_seconds/3, per spec.md §4.D. A failed or
// timed-out phase 2 or phase 3 falls back to the prior phase's
// solution rather than aborting the cluster; only phase 1 failing
// outright fails the cluster.
//
// Phase 1 first runs with every payment forced included (xᵢ=0/yⱼ=0
// otherwise costs nothing toward the balance equation, so leaving a
// reconciled payment unaccounted is never itself a zero-error answer
// unless causality truly blocks the only invoices that could explain
// it). If that forced search is infeasible, Solve retries fully free,
// so a payment that genuinely cannot be matched still resolves to
// "unassigned" instead of failing the cluster outright.
func Solve(cluster *models.Cluster, cfg *config.Config, backend Backend) (*Outcome, *recerrors.ReconcilerError) {
	if backend == nil {
		backend = NewDefaultBackend()
	}
	timeLimit := time.Duration(cfg.SolverTimeoutSeconds) * time.Second / 3

	model := buildModel(cluster, cfg, true)
	phase1, status1 := backend.Solve(model, 1, nil, timeLimit)
	if status1 == StatusInfeasible {
		model = buildModel(cluster, cfg, false)
		phase1, status1 = backend.Solve(model, 1, nil, timeLimit)
	}
	if status1 == StatusInfeasible {
		return nil, recerrors.SolverInfeasible(cluster.ID, 1)
	}
	if status1 == StatusTimedOut && phase1 == nil {
		return nil, recerrors.SolverTimeout(1, cluster.ID, int64(timeLimit/time.Millisecond))
	}

	best := phase1
	reached := 1

	phase2, status2 := backend.Solve(model, 2, phase1, timeLimit)
	if status2 == StatusOptimal || status2 == StatusFeasible {
		best = phase2
		reached = 2

		phase3, status3 := backend.Solve(model, 3, phase2, timeLimit)
		if status3 == StatusOptimal || status3 == StatusFeasible {
			best = phase3
			reached = 3
		}
	}

	outcome := extractAssignment(cluster, model, best, reached, cfg)
	return outcome, nil
}

// extractAssignment converts the best available phase's Solution into
// MatchedPairs and PartialMatches, per spec.md §4.D "Assignment
// extraction", and computes the needsRescue flag.
func extractAssignment(cluster *models.Cluster, model *Model, sol *Solution, reached int, cfg *config.Config) *Outcome {
	outcome := &Outcome{Delta: sol.Delta, PhasesReached: reached}

	if reached == 3 && sol.SelectedEdges != nil {
		extractFromEdges(cluster, model, sol, cfg, outcome)
	} else {
		extractGreedy(cluster, model, sol, cfg, outcome)
	}

	for i, inc := range sol.IncludeInvoice {
		if !inc {
			outcome.UnassignedInvoiceIDs = append(outcome.UnassignedInvoiceIDs, cluster.Invoices[i].ID)
		}
	}
	for j, inc := range sol.IncludePayment {
		if !inc {
			outcome.UnassignedPaymentIDs = append(outcome.UnassignedPaymentIDs, cluster.Payments[j].ID)
		}
	}

	var sumR int64
	for _, r := range sol.RemainderCents {
		sumR += r
	}

	var semanticSum float64
	var semanticCount int
	for _, e := range model.Edges {
		if sol.IncludeInvoice[e.InvoiceIdx] && sol.IncludePayment[e.PaymentIdx] {
			semanticSum += float64(e.ScaledW) / 1000.0
			semanticCount++
		}
	}
	if semanticCount > 0 {
		outcome.AvgSemantic = semanticSum / float64(semanticCount)
	}

	outcome.NeedsRescue = sol.Delta > 0 && sumR == 0 && outcome.AvgSemantic < cfg.RescueSemanticThreshold
	return outcome
}

// edgeUnionFind is a minimal union-find over the bipartite node space
// of one cluster: invoice i is node i, payment j is node n+j. It exists
// solely to group phase 3's selected edges into connected components.
type edgeUnionFind struct {
	parent []int
}

func newEdgeUnionFind(size int) *edgeUnionFind {
	p := make([]int, size)
	for i := range p {
		p[i] = i
	}
	return &edgeUnionFind{parent: p}
}

func (u *edgeUnionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *edgeUnionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// extractFromEdges builds one MatchedPair (or PartialMatch) per
// connected component of phase 3's selected edges, not per invoice:
// qualityOf (backend.go) selects every edge between two included
// nodes, so a payment with a qualifying edge to two different invoices
// is routine (it's exactly the kind of ambiguity Cluster groups
// together) and must not be credited to two separate MatchedPairs.
func extractFromEdges(cluster *models.Cluster, model *Model, sol *Solution, cfg *config.Config, outcome *Outcome) {
	n := len(cluster.Invoices)
	m := len(cluster.Payments)
	uf := newEdgeUnionFind(n + m)

	type selectedEdge struct {
		invIdx, payIdx int
	}
	var selected []selectedEdge
	for k, e := range model.Edges {
		if sol.SelectedEdges[k] {
			selected = append(selected, selectedEdge{e.InvoiceIdx, e.PaymentIdx})
			uf.union(e.InvoiceIdx, n+e.PaymentIdx)
		}
	}

	componentInvoices := make(map[int][]int)
	componentPayments := make(map[int][]int)
	seenInvoice := make(map[int]bool)
	seenPayment := make(map[int]bool)
	for _, e := range selected {
		root := uf.find(e.invIdx)
		if !seenInvoice[e.invIdx] {
			seenInvoice[e.invIdx] = true
			componentInvoices[root] = append(componentInvoices[root], e.invIdx)
		}
		if !seenPayment[e.payIdx] {
			seenPayment[e.payIdx] = true
			componentPayments[root] = append(componentPayments[root], e.payIdx)
		}
	}

	matchedInvoices := make(map[int]bool)

	// Iterate roots in a stable order (component discovery order above
	// isn't deterministic across map iteration, so sort by the
	// component's union-find root id).
	roots := make([]int, 0, len(componentInvoices))
	for root := range componentInvoices {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	for _, root := range roots {
		invIdxs := componentInvoices[root]
		payIdxs := componentPayments[root]
		sort.Ints(invIdxs)
		sort.Ints(payIdxs)

		var invTotal, payTotal, remainder int64
		var invIDs, payIDs []string
		expectedPartial := false
		for _, i := range invIdxs {
			inv := cluster.Invoices[i]
			invTotal += inv.AmountCents
			invIDs = append(invIDs, inv.ID)
			remainder += sol.RemainderCents[i]
			if inv.Method == models.MethodInstalment {
				expectedPartial = true
			}
			matchedInvoices[i] = true
		}
		for _, j := range payIdxs {
			pay := cluster.Payments[j]
			payTotal += pay.AmountCents
			payIDs = append(payIDs, pay.ID)
		}

		switch {
		case remainder == 0:
			outcome.MatchedPairs = append(outcome.MatchedPairs, models.NewMatchedPair(invIDs, payIDs, invTotal, payTotal, models.ConfidenceHigh, "lexsolver"))
		case remainder > 0 && remainder <= cfg.MaxAbsDeltaCents:
			outcome.MatchedPairs = append(outcome.MatchedPairs, models.NewMatchedPair(invIDs, payIDs, invTotal, payTotal, models.ConfidenceMedium, "lexsolver"))
		default:
			// PartialMatch (models.go) names a single invoice id; when a
			// component groups more than one invoice, the first id
			// stands in for the whole group rather than dropping any
			// payment id from the set.
			outcome.PartialMatches = append(outcome.PartialMatches, models.NewPartialMatch(invIDs[0], payIDs, invTotal, payTotal, expectedPartial))
		}
	}

	for i, inc := range sol.IncludeInvoice {
		if inc && !matchedInvoices[i] {
			outcome.PartialMatches = append(outcome.PartialMatches, models.NewPartialMatch(cluster.Invoices[i].ID, nil, cluster.Invoices[i].AmountCents, 0, cluster.Invoices[i].Method == models.MethodInstalment))
		}
	}
}

// extractGreedy is used when phase 3 didn't run (or produced no
// edges): it derives pairs greedily from the candidate edge list,
// restricted to the included xᵢ, yⱼ, per spec.md §4.D's fallback note.
func extractGreedy(cluster *models.Cluster, model *Model, sol *Solution, cfg *config.Config, outcome *Outcome) {
	usedPayment := make(map[int]bool)

	for i, inc := range sol.IncludeInvoice {
		if !inc {
			continue
		}
		var bestEdge *modelEdge
		for k := range model.Edges {
			e := &model.Edges[k]
			if e.InvoiceIdx != i || !sol.IncludePayment[e.PaymentIdx] || usedPayment[e.PaymentIdx] {
				continue
			}
			if bestEdge == nil || e.ScaledW > bestEdge.ScaledW {
				bestEdge = e
			}
		}
		inv := cluster.Invoices[i]
		if bestEdge == nil {
			outcome.PartialMatches = append(outcome.PartialMatches, models.NewPartialMatch(inv.ID, nil, inv.AmountCents, 0, inv.Method == models.MethodInstalment))
			continue
		}
		usedPayment[bestEdge.PaymentIdx] = true
		pay := cluster.Payments[bestEdge.PaymentIdx]
		emitForInvoice(inv, []string{pay.ID}, pay.AmountCents, sol.RemainderCents[i], cfg, outcome)
	}
}

// emitForInvoice applies the r_i threshold rule: zero remainder is a
// clean MatchedPair; a small remainder becomes an operational gap on
// the pair; a large remainder is a PartialMatch.
func emitForInvoice(inv models.Invoice, payIDs []string, payTotal, remainder int64, cfg *config.Config, outcome *Outcome) {
	switch {
	case remainder == 0:
		outcome.MatchedPairs = append(outcome.MatchedPairs, models.NewMatchedPair([]string{inv.ID}, payIDs, inv.AmountCents, payTotal, models.ConfidenceHigh, "lexsolver"))
	case remainder > 0 && remainder <= cfg.MaxAbsDeltaCents:
		outcome.MatchedPairs = append(outcome.MatchedPairs, models.NewMatchedPair([]string{inv.ID}, payIDs, inv.AmountCents, payTotal, models.ConfidenceMedium, "lexsolver"))
	default:
		outcome.PartialMatches = append(outcome.PartialMatches, models.NewPartialMatch(inv.ID, payIDs, inv.AmountCents, payTotal, inv.Method == models.MethodInstalment))
	}
}
