// Package safepeel implements the time-tiered commit engine (spec.md
// §4.B): it peels off the unambiguous invoice/payment pairs a
// reconciliation run can commit immediately, tags each with a
// reversibility level, and leaves the rest as residuals for Cluster
// and LexSolver.
//
// The rule-ladder-plus-score idiom is grounded on
// internal/matcher.MatchingEngine.FindBestMatch (the teacher tries
// exact match, then close match, then fuzzy match, in descending
// order of confidence, taking the first rule that fires).
package safepeel

import (
	"sort"
	"time"

	"reconciliation-core/internal/config"
	"reconciliation-core/internal/models"
	"reconciliation-core/internal/textsim"
)

// Result is SafePeel's output: the matches it could commit outright,
// and what remains for later stages.
type Result struct {
	Matches          []models.MatchedPair
	ResidualInvoices []models.Invoice
	ResidualPayments []models.Payment
	AuditLog         []models.AuditEntry
}

// Run applies the reference-match and unique-amount-match rules to
// every invoice in order, then assigns a commit level to each
// resulting match relative to refDate. Unmatched invoices and
// payments are returned as residuals.
func Run(invoices []models.Invoice, payments []models.Payment, refDate time.Time, cfg *config.Config) *Result {
	usedPayment := make([]bool, len(payments))
	usedInvoice := make([]bool, len(invoices))

	// windowCounts is computed once, over the full original invoice+
	// payment population, before any invoice is processed — mirroring
	// original_source's _count_amounts_in_window, which is called once
	// at the top of process() rather than recomputed as items get
	// consumed by earlier rules. A later reference-match consuming one
	// of several same-amount pairs must not change whether an amount
	// is "unique in the window" for a still-unprocessed invoice.
	windowCounts := countAmountsInWindow(invoices, payments, refDate, cfg)

	var matches []models.MatchedPair
	var audit []models.AuditEntry

	for i := range invoices {
		inv := &invoices[i]

		if j, ok := referenceMatch(inv, payments, usedPayment); ok {
			pay := &payments[j]
			mp := commitMatch(inv, pay, refDate, cfg, "safepeel:reference", models.ConfidenceHigh)
			matches = append(matches, mp)
			audit = append(audit, models.NewAuditEntry(refDate, "MATCH_COMMITTED", "reference match", []string{inv.ID, pay.ID}, map[string]interface{}{"rule": "reference", "commit": mp.CommitStatus.String()}))
			usedPayment[j] = true
			usedInvoice[i] = true
			continue
		}

		if j, ok := uniqueAmountMatch(inv, payments, usedPayment, windowCounts, refDate, cfg); ok {
			pay := &payments[j]
			mp := commitMatch(inv, pay, refDate, cfg, "safepeel:unique_amount", models.ConfidenceMedium)
			matches = append(matches, mp)
			audit = append(audit, models.NewAuditEntry(refDate, "MATCH_COMMITTED", "unique amount + text validation", []string{inv.ID, pay.ID}, map[string]interface{}{"rule": "unique_amount", "commit": mp.CommitStatus.String()}))
			usedPayment[j] = true
			usedInvoice[i] = true
		}
	}

	result := &Result{Matches: matches, AuditLog: audit}
	for i, inv := range invoices {
		if !usedInvoice[i] {
			result.ResidualInvoices = append(result.ResidualInvoices, inv)
		}
	}
	for j, pay := range payments {
		if !usedPayment[j] {
			result.ResidualPayments = append(result.ResidualPayments, pay)
		}
	}
	return result
}

// referenceMatch implements rule 1: an invoice's document id or
// Reference field appears as the Reference on exactly one still-unused
// payment, and the amounts match exactly.
func referenceMatch(inv *models.Invoice, payments []models.Payment, used []bool) (int, bool) {
	ref := inv.Reference
	if ref == "" {
		ref = inv.DocumentID
	}
	if ref == "" {
		return 0, false
	}

	candidate := -1
	count := 0
	for j := range payments {
		if used[j] || payments[j].Reference != ref {
			continue
		}
		count++
		candidate = j
	}
	if count != 1 {
		return 0, false
	}
	if payments[candidate].AmountCents != inv.AmountCents {
		return 0, false
	}
	return candidate, true
}

// countAmountsInWindow counts, once over the full invoice+payment
// population, how many entries of each amount fall within the
// uniqueness window around refDate. Grounded on original_source's
// _count_amounts_in_window: transactions without a date are excluded
// from the count entirely rather than treated as an automatic hit.
// This population and its counts stay fixed for the whole run — they
// must not shrink as earlier rules consume invoices and payments.
func countAmountsInWindow(invoices []models.Invoice, payments []models.Payment, refDate time.Time, cfg *config.Config) map[int64]int {
	windowStart := refDate.AddDate(0, 0, -cfg.UniquenessWindowDays)
	windowEnd := refDate.AddDate(0, 0, cfg.BufferDays+cfg.UniquenessWindowDays)

	counts := make(map[int64]int)
	for _, inv := range invoices {
		if inv.HasDate && inWindow(inv.Date, windowStart, windowEnd) {
			counts[inv.AmountCents]++
		}
	}
	for _, pay := range payments {
		if pay.HasDate && inWindow(pay.Date, windowStart, windowEnd) {
			counts[pay.AmountCents]++
		}
	}
	return counts
}

// uniqueAmountMatch implements rule 2: inv.AmountCents is globally
// unique within the uniqueness window (exactly one invoice occurrence
// and one payment occurrence, per windowCounts — precomputed once over
// the full population, not the residual one), exactly one still-unused
// payment carries that amount, and their averaged field-similarity
// clears cfg.TextSimilarityThreshold.
func uniqueAmountMatch(inv *models.Invoice, payments []models.Payment, usedPayment []bool, windowCounts map[int64]int, refDate time.Time, cfg *config.Config) (int, bool) {
	if windowCounts[inv.AmountCents] != 2 {
		return 0, false
	}

	var paymentHits []int
	for j := range payments {
		if usedPayment[j] || payments[j].AmountCents != inv.AmountCents {
			continue
		}
		paymentHits = append(paymentHits, j)
	}
	if len(paymentHits) != 1 {
		return 0, false
	}

	pay := &payments[paymentHits[0]]
	score := textsim.AverageFieldSimilarity(
		inv.Counterparty, pay.Counterparty,
		inv.Description, pay.Description,
		inv.CounterpartyTax, pay.CounterpartyTax,
	)
	if score <= cfg.TextSimilarityThreshold {
		return 0, false
	}
	return paymentHits[0], true
}

func inWindow(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}

// commitMatch builds a MatchedPair for a one-invoice/one-payment match
// and assigns its commit level per the time-tiered rule.
func commitMatch(inv *models.Invoice, pay *models.Payment, refDate time.Time, cfg *config.Config, stage string, confidence models.Confidence) models.MatchedPair {
	mp := models.NewMatchedPair([]string{inv.ID}, []string{pay.ID}, inv.AmountCents, pay.AmountCents, confidence, stage)
	mp.CommitStatus = commitLevel(inv, pay, refDate, cfg)
	return mp
}

// commitLevel assigns HARD/SOFT/SHADOW/PENDING per spec.md §4.B's
// "commit level assignment" rule: d = max(invoice.date, payment.date)
// compared against refDate and refDate+HardCommitThresholdDays.
func commitLevel(inv *models.Invoice, pay *models.Payment, refDate time.Time, cfg *config.Config) models.CommitLevel {
	if !inv.HasDate || !pay.HasDate {
		return models.Soft
	}

	d := inv.Date
	if pay.Date.After(d) {
		d = pay.Date
	}

	hardCutoff := refDate.AddDate(0, 0, cfg.HardCommitThresholdDays)

	switch {
	case d.After(refDate):
		return models.Shadow
	case d.After(hardCutoff):
		return models.Soft
	default:
		return models.Hard
	}
}

// Promote advances every SHADOW/SOFT match's commit level as clock
// moves past the windows computed against the matches' own underlying
// dates, recomputed relative to clock instead of the original refDate.
// Every promotion appends a COMMIT_PROMOTED audit entry. Matches are
// mutated in place and the full set of new audit entries is returned.
func Promote(matches []models.MatchedPair, invoiceDates, paymentDates map[string]dateRef, clock time.Time, cfg *config.Config) []models.AuditEntry {
	var audit []models.AuditEntry

	ids := make([]string, 0, len(matches))
	for i := range matches {
		ids = append(ids, matches[i].ID)
	}
	sort.Strings(ids) // deterministic audit ordering

	byID := make(map[string]*models.MatchedPair, len(matches))
	for i := range matches {
		byID[matches[i].ID] = &matches[i]
	}

	for _, id := range ids {
		mp := byID[id]
		if mp.CommitStatus == models.Hard {
			continue
		}

		d, ok := latestTouchedDate(mp, invoiceDates, paymentDates)
		if !ok {
			continue
		}

		hardCutoff := clock.AddDate(0, 0, cfg.HardCommitThresholdDays)
		next := mp.CommitStatus
		switch {
		case d.After(clock):
			next = models.Shadow
		case d.After(hardCutoff):
			next = models.Soft
		default:
			next = models.Hard
		}

		if next > mp.CommitStatus {
			audit = append(audit, models.NewAuditEntry(clock, "COMMIT_PROMOTED", "commit level advanced", append(append([]string{}, mp.InvoiceIDs...), mp.PaymentIDs...), map[string]interface{}{
				"from": mp.CommitStatus.String(),
				"to":   next.String(),
			}))
			mp.CommitStatus = next
		}
	}

	return audit
}

// dateRef is the promotion pass's lightweight view of a touched
// entity's date, since by the time Promote runs the original
// Invoice/Payment slices may be long gone.
type dateRef struct {
	Date    time.Time
	HasDate bool
}

func latestTouchedDate(mp *models.MatchedPair, invoiceDates, paymentDates map[string]dateRef) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, id := range mp.InvoiceIDs {
		if r, ok := invoiceDates[id]; ok && r.HasDate {
			if !found || r.Date.After(latest) {
				latest = r.Date
			}
			found = true
		}
	}
	for _, id := range mp.PaymentIDs {
		if r, ok := paymentDates[id]; ok && r.HasDate {
			if !found || r.Date.After(latest) {
				latest = r.Date
			}
			found = true
		}
	}
	return latest, found
}
