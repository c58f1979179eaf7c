package orchestrator

import (
	"context"
	"testing"
	"time"

	"reconciliation-core/internal/bankrecovery"
	"reconciliation-core/internal/config"
	"reconciliation-core/internal/models"
)

func TestToPaymentsMapsFields(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	out := []bankrecovery.PaymentOut{
		{
			AmountCents:   15000,
			Direction:     1,
			DateText:      "2024-06-01",
			Description:   "Payment one",
			BalanceBefore: 100000,
			BalanceAfter:  85000,
			OCRConfidence: 0.95,
			OCRRawText:    "150.0O",
			SourcePage:    1,
			SourceRow:     2,
		},
		{
			AmountCents: 3000,
			Direction:   0,
			DateText:    "not-a-date",
		},
	}

	payments := toPayments(out, now)
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}

	p0 := payments[0]
	if p0.ID == "" {
		t.Errorf("expected a minted ID")
	}
	if p0.Source != models.SourceBank {
		t.Errorf("expected SourceBank")
	}
	if p0.Direction != models.Debit {
		t.Errorf("expected Debit for Direction=1")
	}
	if !p0.HasDate || !p0.Date.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected parsed date 2024-06-01, got %v hasDate=%v", p0.Date, p0.HasDate)
	}
	if p0.BalanceBeforeCents != 100000 || p0.BalanceAfterCents != 85000 {
		t.Errorf("balance fields not carried through")
	}

	p1 := payments[1]
	if p1.HasDate {
		t.Errorf("expected HasDate=false for an unparsable date, got true with date %v", p1.Date)
	}
	if p1.Direction != models.Credit {
		t.Errorf("expected Credit for Direction=0")
	}
}

func TestSummarizeAggregatesCounts(t *testing.T) {
	result := &models.ReconciliationResult{
		MatchedPairs: []models.MatchedPair{
			{InvoiceTotal: 1000, PaymentTotal: 1000, Gap: 0},
			{InvoiceTotal: 1100, PaymentTotal: 1000, Gap: 100},
		},
		PartialMatches: []models.PartialMatch{
			{PaidCents: 500, RemainderCents: 200},
		},
		UnmatchedInvoices: []string{"inv-x"},
		UnmatchedPayments: []string{"pay-x", "pay-y"},
		ManualReview:      []models.AmbiguousCase{{}},
	}

	summary := summarize(result, 5, 7)

	if summary.InvoiceCount != 5 || summary.PaymentCount != 7 {
		t.Errorf("unexpected node counts: %+v", summary)
	}
	if summary.MatchedPairCount != 2 || summary.PartialMatchCount != 1 {
		t.Errorf("unexpected match counts: %+v", summary)
	}
	if summary.UnmatchedInvoices != 1 || summary.UnmatchedPayments != 2 {
		t.Errorf("unexpected unmatched counts: %+v", summary)
	}
	if summary.ManualReviewCount != 1 {
		t.Errorf("unexpected manual review count: %+v", summary)
	}
	if summary.TotalMatchedCents != 1000+1000+500 {
		t.Errorf("TotalMatchedCents = %d, want %d", summary.TotalMatchedCents, 2500)
	}
	if summary.TotalResidualCents != 100+200 {
		t.Errorf("TotalResidualCents = %d, want %d", summary.TotalResidualCents, 300)
	}
}

func TestRunFailsWhenBankRecoveryFindsNoBoundaries(t *testing.T) {
	cfg := config.DefaultConfig()
	o := New(cfg, nil, nil, nil, 0)

	var progressCalls int
	o.AddProgressCallback(func(Progress) { progressCalls++ })

	doc := bankrecovery.OcrDocument{FilePath: "empty.pdf"}
	result, recErr := o.Run(context.Background(), doc, nil, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	if recErr == nil {
		t.Fatal("expected a ReconcilerError for a boundary-less document")
	}
	if result.Status != models.StatusFailed {
		t.Errorf("expected StatusFailed, got %v", result.Status)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected exactly one recorded error, got %d", len(result.Errors))
	}
	if progressCalls != 0 {
		t.Errorf("expected no progress callbacks before stage A completes, got %d", progressCalls)
	}
}

func TestRunStopsAtCancelledContextAfterBankRecovery(t *testing.T) {
	cfg := config.DefaultConfig()
	o := New(cfg, nil, nil, nil, 0)

	const pageWidth = 1000.0
	word := func(text string, x float64) bankrecovery.OcrWord {
		return bankrecovery.OcrWord{Text: text, Confidence: 0.95, BoundingBox: bankrecovery.BoundingBox{X: x * pageWidth}}
	}
	doc := bankrecovery.OcrDocument{
		FilePath:   "statement.pdf",
		TotalPages: 1,
		Pages: []bankrecovery.OcrPage{{
			PageNumber: 1,
			Width:      pageWidth,
			Height:     300,
			Rows: []bankrecovery.OcrRow{
				{YPosition: 1, RawText: "saldo anterior 1000.00", Words: []bankrecovery.OcrWord{
					word("saldo", 0), word("anterior", 0.1), word("1000.00", 0.2),
				}},
				{YPosition: 10, RawText: "01/06/2024 Payment one 150.0O", Words: []bankrecovery.OcrWord{
					word("01/06/2024", 0), word("Payment", 0.1), word("one", 0.2), word("150.0O", 0.6),
				}},
				{YPosition: 50, RawText: "02/06/2024 Payment two 30.00", Words: []bankrecovery.OcrWord{
					word("02/06/2024", 0), word("Payment", 0.1), word("two", 0.2), word("30.00", 0.6),
				}},
				{YPosition: 90, RawText: "03/06/2024 Payment three 8O.OO", Words: []bankrecovery.OcrWord{
					word("03/06/2024", 0), word("Payment", 0.1), word("three", 0.2), word("8O.OO", 0.6),
				}},
				{YPosition: 200, RawText: "saldo final 800.00", Words: []bankrecovery.OcrWord{
					word("saldo", 0), word("final", 0.1), word("800.00", 0.2),
				}},
			},
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, recErr := o.Run(ctx, doc, nil, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	if recErr == nil {
		t.Fatal("expected a cancellation error")
	}
	if result.Status != models.StatusFailed {
		t.Errorf("expected StatusFailed, got %v", result.Status)
	}
	if stage, _ := recErr.Context["stage"].(string); stage != "bankrecovery" {
		t.Errorf("expected cancellation recorded at the bankrecovery boundary, got %q", stage)
	}
}
