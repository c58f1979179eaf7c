package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"reconciliation-core/internal/models"
)

func sampleResult() *models.ReconciliationResult {
	return &models.ReconciliationResult{
		Status: models.StatusCompleted,
		MatchedPairs: []models.MatchedPair{
			models.NewMatchedPair([]string{"inv-1"}, []string{"pay-1"}, 10000, 10000, models.ConfidenceHigh, "safepeel:reference"),
		},
		PartialMatches: []models.PartialMatch{
			models.NewPartialMatch("inv-2", []string{"pay-2"}, 5000, 3000, false),
		},
		UnmatchedInvoices: []string{"inv-3"},
		UnmatchedPayments: []string{"pay-3"},
		ManualReview: []models.AmbiguousCase{
			models.NewAmbiguousCase([]string{"inv-4"}, []string{"pay-4"}, "rescue exhausted", 15, 0.2),
		},
		Summary: models.Summary{
			InvoiceCount:      4,
			PaymentCount:      4,
			MatchedPairCount:  1,
			PartialMatchCount: 1,
			UnmatchedInvoices: 1,
			UnmatchedPayments: 1,
			ManualReviewCount: 1,
			TotalMatchedCents: 13000,
			TotalResidualCents: 2000,
		},
	}
}

func TestGenerateReportConsoleIncludesEachSection(t *testing.T) {
	gen, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := gen.GenerateReport(sampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"inv-1", "inv-2", "inv-3", "inv-4", "SUMMARY", "MATCHED PAIRS", "PARTIAL MATCHES", "UNMATCHED", "MANUAL REVIEW"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected console output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestGenerateReportJSONRoundTrips(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.Format = FormatJSON
	gen, err := NewReportGenerator(cfg)
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := gen.GenerateReport(sampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	var decoded jsonReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON report: %v", err)
	}
	if decoded.Status != models.StatusCompleted {
		t.Errorf("Status = %v, want %v", decoded.Status, models.StatusCompleted)
	}
	if len(decoded.MatchedPairs) != 1 || len(decoded.PartialMatches) != 1 {
		t.Errorf("unexpected section lengths: %+v", decoded)
	}
	if decoded.Unmatched == nil || len(decoded.Unmatched.Invoices) != 1 {
		t.Errorf("expected unmatched section to be populated")
	}
}

func TestGenerateReportCSVSortsByInvoiceID(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.Format = FormatCSV
	gen, err := NewReportGenerator(cfg)
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := gen.GenerateReport(sampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 { // header + 2 rows
		t.Fatalf("expected 3 CSV lines (header + 2 rows), got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "matched,inv-1,") {
		t.Errorf("expected first data row for inv-1, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "partial,inv-2,") {
		t.Errorf("expected second data row for inv-2, got %q", lines[2])
	}
}

func TestReportConfigValidateRejectsUnknownFormat(t *testing.T) {
	cfg := &ReportConfig{Format: "xml"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}
