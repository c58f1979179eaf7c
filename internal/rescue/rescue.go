// Package rescue implements RescueLoop (spec.md §4.E): the last chance
// for a cluster LexSolver flagged needsRescue to be saved before it is
// escalated to human review. It either augments the cluster with a
// matching orphan and re-solves, merges it with an adjacent cluster
// that shares a tax id and re-solves, or gives up and produces an
// AmbiguousCase.
//
// The attempt ladder (augment, then merge, then escalate) follows the
// same descending-confidence-rule idiom internal/safepeel and
// internal/matcher.MatchingEngine.FindBestMatch already use: try the
// cheapest, most targeted fix first, fall back only when it doesn't
// resolve the case.
package rescue

import (
	"sort"
	"time"

	"reconciliation-core/internal/config"
	"reconciliation-core/internal/lexsolver"
	"reconciliation-core/internal/models"
)

// orphanMatchToleranceCents is the "±10 cents of δ" window spec.md
// §4.E's attempt 1 uses to recognize a missing-transaction orphan.
const orphanMatchToleranceCents = int64(10)

// syntheticOrphanWeight is the affinity given to the edges created
// when an orphan is spliced into a cluster for a rescue attempt. The
// orphan was never scored against the cluster's nodes by Cluster (it
// had no edges at all, which is why it ended up an orphan), so there
// is no real affinity score to reuse; this constant lets phase 3
// consider the orphan without biasing it above genuine matches found
// by Cluster's affinity graph.
const syntheticOrphanWeight = 0.5

// Result is RescueLoop's output: the final cluster/outcome pairs after
// every augmentation and merge attempt, any resulting AmbiguousCases,
// and the audit trail of what was tried.
type Result struct {
	Clusters                []*models.Cluster
	Outcomes                []*lexsolver.Outcome
	AmbiguousCases          []models.AmbiguousCase
	AuditLog                []models.AuditEntry
	RemainingOrphanInvoices []models.Invoice
	RemainingOrphanPayments []models.Payment
}

// Run walks every cluster flagged needsRescue by LexSolver and tries
// to save it, in the order spec.md §4.E prescribes. Clusters that
// don't need rescue pass through unchanged. now stamps every audit
// entry Run produces.
func Run(
	clusters []*models.Cluster,
	outcomes []*lexsolver.Outcome,
	orphanInvoices []models.Invoice,
	orphanPayments []models.Payment,
	cfg *config.Config,
	backend lexsolver.Backend,
	now time.Time,
) *Result {
	invUsed := make([]bool, len(orphanInvoices))
	payUsed := make([]bool, len(orphanPayments))
	clusterUsed := make([]bool, len(clusters))

	res := &Result{}

	for i, cluster := range clusters {
		if clusterUsed[i] {
			continue
		}
		outcome := outcomes[i]
		if outcome == nil || !outcome.NeedsRescue {
			res.Clusters = append(res.Clusters, cluster)
			res.Outcomes = append(res.Outcomes, outcome)
			continue
		}

		res.AuditLog = append(res.AuditLog, models.NewAuditEntry(now, "RESCUE_TRIGGERED",
			"cluster flagged needsRescue by LexSolver", clusterTouchedIDs(cluster), map[string]interface{}{
				"delta":        outcome.Delta,
				"avg_semantic": outcome.AvgSemantic,
			}))

		rescuedCluster, rescuedOutcome, rescued := attemptOrphanAugment(
			cluster, outcome, orphanInvoices, invUsed, orphanPayments, payUsed, cfg, backend, now, res)

		if !rescued {
			rescuedCluster, rescuedOutcome, rescued = attemptMerge(
				i, cluster, clusters, clusterUsed, cfg, backend, now, res)
		}

		if rescued {
			res.Clusters = append(res.Clusters, rescuedCluster)
			res.Outcomes = append(res.Outcomes, rescuedOutcome)
			res.AuditLog = append(res.AuditLog, models.NewAuditEntry(now, "RESCUE_RESOLVED",
				"cluster rescued", clusterTouchedIDs(rescuedCluster), nil))
			continue
		}

		res.Clusters = append(res.Clusters, cluster)
		res.Outcomes = append(res.Outcomes, outcome)
		ac := models.NewAmbiguousCase(invoiceIDs(cluster), paymentIDs(cluster),
			"rescue attempts exhausted: no matching orphan and no mergeable adjacent cluster", outcome.Delta, outcome.AvgSemantic)
		res.AmbiguousCases = append(res.AmbiguousCases, ac)
		res.AuditLog = append(res.AuditLog, models.NewAuditEntry(now, "MANUAL_REVIEW_REQUIRED",
			"escalated to manual review", clusterTouchedIDs(cluster), map[string]interface{}{
				"ambiguous_case_id": ac.ID,
			}))
	}

	for idx, used := range invUsed {
		if !used {
			res.RemainingOrphanInvoices = append(res.RemainingOrphanInvoices, orphanInvoices[idx])
		}
	}
	for idx, used := range payUsed {
		if !used {
			res.RemainingOrphanPayments = append(res.RemainingOrphanPayments, orphanPayments[idx])
		}
	}

	return res
}

// attemptOrphanAugment is spec.md §4.E's attempt 1: splice in the
// orphan closest to δ within tolerance and re-solve.
func attemptOrphanAugment(
	cluster *models.Cluster,
	outcome *lexsolver.Outcome,
	orphanInvoices []models.Invoice,
	invUsed []bool,
	orphanPayments []models.Payment,
	payUsed []bool,
	cfg *config.Config,
	backend lexsolver.Backend,
	now time.Time,
	res *Result,
) (*models.Cluster, *lexsolver.Outcome, bool) {
	for idx, inv := range orphanInvoices {
		if invUsed[idx] || abs64(inv.AmountCents-outcome.Delta) > orphanMatchToleranceCents {
			continue
		}
		augmented := augmentWithInvoice(cluster, inv)
		if clusterSize(augmented) > cfg.HardStopClusterSize {
			res.AuditLog = append(res.AuditLog, hardStopEntry(now, augmented, clusterSize(augmented), cfg.HardStopClusterSize))
			continue
		}
		newOutcome, recErr := lexsolver.Solve(augmented, cfg, backend)
		if recErr != nil || newOutcome.NeedsRescue {
			continue
		}
		invUsed[idx] = true
		return augmented, newOutcome, true
	}

	for idx, pay := range orphanPayments {
		if payUsed[idx] || abs64(pay.AmountCents-outcome.Delta) > orphanMatchToleranceCents {
			continue
		}
		augmented := augmentWithPayment(cluster, pay)
		if clusterSize(augmented) > cfg.HardStopClusterSize {
			res.AuditLog = append(res.AuditLog, hardStopEntry(now, augmented, clusterSize(augmented), cfg.HardStopClusterSize))
			continue
		}
		newOutcome, recErr := lexsolver.Solve(augmented, cfg, backend)
		if recErr != nil || newOutcome.NeedsRescue {
			continue
		}
		payUsed[idx] = true
		return augmented, newOutcome, true
	}

	return nil, nil, false
}

// attemptMerge is spec.md §4.E's attempt 2: try up to three adjacent
// clusters sharing any tax id, smallest first, merging and re-solving
// until one resolves the rescue or the candidates are exhausted.
func attemptMerge(
	selfIdx int,
	cluster *models.Cluster,
	clusters []*models.Cluster,
	clusterUsed []bool,
	cfg *config.Config,
	backend lexsolver.Backend,
	now time.Time,
	res *Result,
) (*models.Cluster, *lexsolver.Outcome, bool) {
	type candidate struct {
		idx  int
		size int
	}
	var candidates []candidate
	for j, other := range clusters {
		if j == selfIdx || clusterUsed[j] {
			continue
		}
		if sharesTaxID(cluster, other) {
			candidates = append(candidates, candidate{idx: j, size: clusterSize(other)})
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].size < candidates[b].size })
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	for _, c := range candidates {
		merged := mergeClusters(cluster, clusters[c.idx])
		if clusterSize(merged) > cfg.HardStopClusterSize {
			res.AuditLog = append(res.AuditLog, hardStopEntry(now, merged, clusterSize(merged), cfg.HardStopClusterSize))
			continue
		}
		newOutcome, recErr := lexsolver.Solve(merged, cfg, backend)
		if recErr != nil || newOutcome.NeedsRescue {
			continue
		}
		clusterUsed[c.idx] = true
		return merged, newOutcome, true
	}
	return nil, nil, false
}

func hardStopEntry(now time.Time, attempted *models.Cluster, size, cap int) models.AuditEntry {
	return models.NewAuditEntry(now, "HARD_STOP",
		"rescue attempt rejected: cluster exceeds hard_stop_cluster_size", clusterTouchedIDs(attempted),
		map[string]interface{}{"size": size, "cap": cap})
}

func clusterSize(c *models.Cluster) int {
	return len(c.Invoices) + len(c.Payments)
}

func sharesTaxID(a, b *models.Cluster) bool {
	taxIDs := make(map[string]bool)
	for _, inv := range a.Invoices {
		if inv.CounterpartyTax != "" {
			taxIDs[inv.CounterpartyTax] = true
		}
	}
	for _, p := range a.Payments {
		if p.CounterpartyTax != "" {
			taxIDs[p.CounterpartyTax] = true
		}
	}
	for _, inv := range b.Invoices {
		if taxIDs[inv.CounterpartyTax] {
			return true
		}
	}
	for _, p := range b.Payments {
		if taxIDs[p.CounterpartyTax] {
			return true
		}
	}
	return false
}

// augmentWithInvoice splices an orphan invoice into a cluster, wired
// to every existing payment with syntheticOrphanWeight so LexSolver
// can consider it without it dominating genuine affinity edges.
func augmentWithInvoice(c *models.Cluster, inv models.Invoice) *models.Cluster {
	invoices := append(append([]models.Invoice(nil), c.Invoices...), inv)
	augmented := models.NewCluster(invoices, append([]models.Payment(nil), c.Payments...))
	for _, e := range c.Edges {
		augmented.AddEdge(e.InvoiceIdx, e.PaymentIdx, e.Weight)
	}
	newIdx := len(invoices) - 1
	for j := range augmented.Payments {
		augmented.AddEdge(newIdx, j, syntheticOrphanWeight)
	}
	return augmented
}

// augmentWithPayment is augmentWithInvoice's mirror for a payment orphan.
func augmentWithPayment(c *models.Cluster, pay models.Payment) *models.Cluster {
	payments := append(append([]models.Payment(nil), c.Payments...), pay)
	augmented := models.NewCluster(append([]models.Invoice(nil), c.Invoices...), payments)
	for _, e := range c.Edges {
		augmented.AddEdge(e.InvoiceIdx, e.PaymentIdx, e.Weight)
	}
	newIdx := len(payments) - 1
	for i := range augmented.Invoices {
		augmented.AddEdge(i, newIdx, syntheticOrphanWeight)
	}
	return augmented
}

// mergeClusters concatenates two clusters' nodes and re-adds each
// side's own candidate edges at their shifted indices. No cross edges
// between a's and b's nodes are hypothesized: Cluster never scored
// that affinity, and RescueLoop has no embedder access to compute one,
// so the merged graph stays block-diagonal; LexSolver's causality and
// balance constraints still apply across the whole merged node set.
func mergeClusters(a, b *models.Cluster) *models.Cluster {
	invoices := append(append([]models.Invoice(nil), a.Invoices...), b.Invoices...)
	payments := append(append([]models.Payment(nil), a.Payments...), b.Payments...)
	merged := models.NewCluster(invoices, payments)

	for _, e := range a.Edges {
		merged.AddEdge(e.InvoiceIdx, e.PaymentIdx, e.Weight)
	}
	invOffset, payOffset := len(a.Invoices), len(a.Payments)
	for _, e := range b.Edges {
		merged.AddEdge(e.InvoiceIdx+invOffset, e.PaymentIdx+payOffset, e.Weight)
	}
	return merged
}

func invoiceIDs(c *models.Cluster) []string {
	ids := make([]string, len(c.Invoices))
	for i, inv := range c.Invoices {
		ids[i] = inv.ID
	}
	return ids
}

func paymentIDs(c *models.Cluster) []string {
	ids := make([]string, len(c.Payments))
	for i, p := range c.Payments {
		ids[i] = p.ID
	}
	return ids
}

func clusterTouchedIDs(c *models.Cluster) []string {
	return append(invoiceIDs(c), paymentIDs(c)...)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
