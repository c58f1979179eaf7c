// Package reporter renders a models.ReconciliationResult for a human
// or a downstream system, in the console/JSON/CSV OutputFormat idiom
// internal/reconciler's own report generator used, re-pointed at the
// pipeline's actual output shape and integer-cents amounts.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"reconciliation-core/internal/models"
)

// OutputFormat names a supported report rendering.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid reports whether f is one of the supported formats.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig controls what a ReportGenerator includes.
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeMatchedPairs   bool `json:"include_matched_pairs"`
	IncludePartialMatches bool `json:"include_partial_matches"`
	IncludeUnmatched      bool `json:"include_unmatched"`
	IncludeManualReview   bool `json:"include_manual_review"`
	IncludeAuditLog       bool `json:"include_audit_log"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns the console-oriented default: everything
// but the audit log, which is verbose enough to opt into explicitly.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                FormatConsole,
		IncludeMatchedPairs:   true,
		IncludePartialMatches: true,
		IncludeUnmatched:      true,
		IncludeManualReview:   true,
		IncludeAuditLog:       false,
		CSVDelimiter:          ',',
		CSVHeaders:            true,
	}
}

// Validate checks the configuration is self-consistent.
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders a models.ReconciliationResult per its config.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator builds a ReportGenerator, defaulting config when nil.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes result to w in the generator's configured format.
func (rg *ReportGenerator) GenerateReport(result *models.ReconciliationResult, w io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}
	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsole(result, w)
	case FormatJSON:
		return rg.generateJSON(result, w)
	case FormatCSV:
		return rg.generateCSV(result, w)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// centsToDecimal converts signed integer cents to a two-decimal amount
// for display only; every internal computation stays in int64 cents.
func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func (rg *ReportGenerator) generateConsole(result *models.ReconciliationResult, w io.Writer) error {
	fmt.Fprintf(w, "RECONCILIATION REPORT\n")
	fmt.Fprintf(w, "Status: %s\n\n", result.Status)

	fmt.Fprintf(w, "=== SUMMARY ===\n")
	s := result.Summary
	fmt.Fprintf(w, "Invoices:            %d\n", s.InvoiceCount)
	fmt.Fprintf(w, "Payments:            %d\n", s.PaymentCount)
	fmt.Fprintf(w, "Matched pairs:       %d\n", s.MatchedPairCount)
	fmt.Fprintf(w, "Partial matches:     %d\n", s.PartialMatchCount)
	fmt.Fprintf(w, "Unmatched invoices:  %d\n", s.UnmatchedInvoices)
	fmt.Fprintf(w, "Unmatched payments:  %d\n", s.UnmatchedPayments)
	fmt.Fprintf(w, "Manual review:       %d\n", s.ManualReviewCount)
	fmt.Fprintf(w, "Total matched:       %s\n", centsToDecimal(s.TotalMatchedCents).StringFixed(2))
	fmt.Fprintf(w, "Total residual:      %s\n\n", centsToDecimal(s.TotalResidualCents).StringFixed(2))

	if rg.config.IncludeMatchedPairs && len(result.MatchedPairs) > 0 {
		fmt.Fprintf(w, "=== MATCHED PAIRS ===\n")
		for _, mp := range result.MatchedPairs {
			fmt.Fprintf(w, "[%s] invoices=%v payments=%v gap=%s confidence=%s stage=%s\n",
				mp.CommitStatus, mp.InvoiceIDs, mp.PaymentIDs, centsToDecimal(mp.Gap).StringFixed(2), mp.Confidence, mp.SourceStage)
		}
		fmt.Fprintf(w, "\n")
	}

	if rg.config.IncludePartialMatches && len(result.PartialMatches) > 0 {
		fmt.Fprintf(w, "=== PARTIAL MATCHES ===\n")
		for _, pm := range result.PartialMatches {
			fmt.Fprintf(w, "invoice=%s payments=%v paid=%s remainder=%s expected=%v\n",
				pm.InvoiceID, pm.PaymentIDs, centsToDecimal(pm.PaidCents).StringFixed(2), centsToDecimal(pm.RemainderCents).StringFixed(2), pm.ExpectedPartial)
		}
		fmt.Fprintf(w, "\n")
	}

	if rg.config.IncludeUnmatched && (len(result.UnmatchedInvoices) > 0 || len(result.UnmatchedPayments) > 0) {
		fmt.Fprintf(w, "=== UNMATCHED ===\n")
		fmt.Fprintf(w, "Invoices: %v\n", result.UnmatchedInvoices)
		fmt.Fprintf(w, "Payments: %v\n\n", result.UnmatchedPayments)
	}

	if rg.config.IncludeManualReview && len(result.ManualReview) > 0 {
		fmt.Fprintf(w, "=== MANUAL REVIEW ===\n")
		for _, ac := range result.ManualReview {
			fmt.Fprintf(w, "[%s] invoices=%v payments=%v delta=%s reason=%q\n",
				ac.ID, ac.InvoiceIDs, ac.PaymentIDs, centsToDecimal(ac.SolverDelta).StringFixed(2), ac.Reason)
		}
		fmt.Fprintf(w, "\n")
	}

	if rg.config.IncludeAuditLog && len(result.AuditLog) > 0 {
		fmt.Fprintf(w, "=== AUDIT LOG ===\n")
		for _, e := range result.AuditLog {
			fmt.Fprintf(w, "%s %s %s touched=%v\n", e.Timestamp.Format(time.RFC3339), e.Action, e.Message, e.TouchedIDs)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "=== ERRORS ===\n")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "- %s\n", e)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "=== WARNINGS ===\n")
		for _, wrn := range result.Warnings {
			fmt.Fprintf(w, "- %s\n", wrn)
		}
	}

	return nil
}

// jsonReport is GenerateReport's JSON shape: the same result, minus
// whatever sections this generator's config opts out of.
type jsonReport struct {
	Status         models.Status            `json:"status"`
	Summary        models.Summary           `json:"summary"`
	MatchedPairs   []models.MatchedPair     `json:"matched_pairs,omitempty"`
	PartialMatches []models.PartialMatch    `json:"partial_matches,omitempty"`
	Unmatched      *unmatchedSection        `json:"unmatched,omitempty"`
	ManualReview   []models.AmbiguousCase   `json:"manual_review,omitempty"`
	AuditLog       []models.AuditEntry      `json:"audit_log,omitempty"`
	Errors         []string                 `json:"errors,omitempty"`
	Warnings       []string                 `json:"warnings,omitempty"`
}

type unmatchedSection struct {
	Invoices []string `json:"invoices"`
	Payments []string `json:"payments"`
}

func (rg *ReportGenerator) generateJSON(result *models.ReconciliationResult, w io.Writer) error {
	report := jsonReport{
		Status:   result.Status,
		Summary:  result.Summary,
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if rg.config.IncludeMatchedPairs {
		report.MatchedPairs = result.MatchedPairs
	}
	if rg.config.IncludePartialMatches {
		report.PartialMatches = result.PartialMatches
	}
	if rg.config.IncludeUnmatched {
		report.Unmatched = &unmatchedSection{Invoices: result.UnmatchedInvoices, Payments: result.UnmatchedPayments}
	}
	if rg.config.IncludeManualReview {
		report.ManualReview = result.ManualReview
	}
	if rg.config.IncludeAuditLog {
		report.AuditLog = result.AuditLog
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// generateCSV emits one row per matched pair and partial match, sorted
// by invoice id for a stable diff-friendly output; unmatched/manual
// review/audit data doesn't fit this row shape and is left to JSON/console.
func (rg *ReportGenerator) generateCSV(result *models.ReconciliationResult, w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = rg.config.CSVDelimiter
	defer cw.Flush()

	if rg.config.CSVHeaders {
		if err := cw.Write([]string{"kind", "invoice_ids", "payment_ids", "invoice_total", "payment_total", "gap_or_remainder", "status"}); err != nil {
			return err
		}
	}

	type row struct {
		kind, invoiceIDs, paymentIDs string
		invoiceTotal, paymentTotal   int64
		delta                        int64
		status                       string
	}
	var rows []row

	if rg.config.IncludeMatchedPairs {
		for _, mp := range result.MatchedPairs {
			rows = append(rows, row{"matched", joinIDs(mp.InvoiceIDs), joinIDs(mp.PaymentIDs), mp.InvoiceTotal, mp.PaymentTotal, mp.Gap, mp.Confidence.String()})
		}
	}
	if rg.config.IncludePartialMatches {
		for _, pm := range result.PartialMatches {
			rows = append(rows, row{"partial", pm.InvoiceID, joinIDs(pm.PaymentIDs), pm.PaidCents + pm.RemainderCents, pm.PaidCents, pm.RemainderCents, "PARTIAL"})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].invoiceIDs < rows[j].invoiceIDs })

	for _, r := range rows {
		if err := cw.Write([]string{
			r.kind, r.invoiceIDs, r.paymentIDs,
			centsToDecimal(r.invoiceTotal).StringFixed(2),
			centsToDecimal(r.paymentTotal).StringFixed(2),
			centsToDecimal(r.delta).StringFixed(2),
			r.status,
		}); err != nil {
			return err
		}
	}
	return nil
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ";"
		}
		out += id
	}
	return out
}
