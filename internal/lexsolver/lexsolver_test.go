package lexsolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reconciliation-core/internal/config"
	"reconciliation-core/internal/models"
)

func txnInvoice(id string, amount int64, date time.Time) models.Invoice {
	return models.Invoice{Txn: models.Txn{ID: id, AmountCents: amount, HasDate: true, Date: date}}
}

func txnPayment(id string, amount int64, date time.Time) models.Payment {
	return models.Payment{Txn: models.Txn{ID: id, AmountCents: amount, HasDate: true, Date: date}}
}

func TestSolveBalancedClusterProducesExactMatch(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	cluster := models.NewCluster(
		[]models.Invoice{txnInvoice("inv-1", 10000, now)},
		[]models.Payment{txnPayment("pay-1", 10000, now)},
	)
	cluster.AddEdge(0, 0, 0.9)

	outcome, recErr := Solve(cluster, cfg, NewDefaultBackend())
	require.Nil(t, recErr, "Solve failed: %v", recErr)
	require.Len(t, outcome.MatchedPairs, 1)
	require.Equal(t, int64(0), outcome.MatchedPairs[0].Gap)
	require.Equal(t, int64(0), outcome.Delta)
	require.Empty(t, outcome.UnassignedInvoiceIDs)
	require.Empty(t, outcome.UnassignedPaymentIDs)
}

func TestSolvePrefersParsimony(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	cluster := models.NewCluster(
		[]models.Invoice{
			txnInvoice("inv-single", 10000, now),
			txnInvoice("inv-split-a", 5000, now),
			txnInvoice("inv-split-b", 5000, now),
		},
		[]models.Payment{txnPayment("pay-1", 10000, now)},
	)
	cluster.AddEdge(0, 0, 0.9)
	cluster.AddEdge(1, 0, 0.9)
	cluster.AddEdge(2, 0, 0.9)

	outcome, recErr := Solve(cluster, cfg, NewDefaultBackend())
	if recErr != nil {
		t.Fatalf("Solve failed: %v", recErr)
	}

	includedInvoices := 0
	for _, mp := range outcome.MatchedPairs {
		includedInvoices += len(mp.InvoiceIDs)
	}
	if includedInvoices != 1 {
		t.Errorf("expected parsimony to prefer the single matching invoice, got %d invoices used", includedInvoices)
	}
}

func TestSolveSharedPaymentIsCreditedOnce(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Two invoices both have a qualifying edge to the same payment, the
	// routine output of Cluster grouping an ambiguous multi-candidate
	// set; phase 3's quality objective has no reason to exclude either
	// edge, so extraction must not credit pay-1 to two MatchedPairs.
	cluster := models.NewCluster(
		[]models.Invoice{
			txnInvoice("inv-a", 5000, now),
			txnInvoice("inv-b", 5000, now),
		},
		[]models.Payment{txnPayment("pay-1", 10000, now)},
	)
	cluster.AddEdge(0, 0, 0.9)
	cluster.AddEdge(1, 0, 0.9)

	outcome, recErr := Solve(cluster, cfg, NewDefaultBackend())
	if recErr != nil {
		t.Fatalf("Solve failed: %v", recErr)
	}

	seenPayments := make(map[string]int)
	for _, mp := range outcome.MatchedPairs {
		for _, id := range mp.PaymentIDs {
			seenPayments[id]++
		}
		if mp.InvoiceTotal-mp.PaymentTotal != mp.Gap {
			t.Errorf("gap invariant violated: %+v", mp)
		}
	}
	for _, pm := range outcome.PartialMatches {
		for _, id := range pm.PaymentIDs {
			seenPayments[id]++
		}
	}
	for id, count := range seenPayments {
		if count > 1 {
			t.Errorf("payment %s credited to %d records, want at most 1", id, count)
		}
	}

	if len(outcome.MatchedPairs) != 1 {
		t.Fatalf("expected the two invoices to merge into a single component, got %d matched pairs", len(outcome.MatchedPairs))
	}
	mp := outcome.MatchedPairs[0]
	if len(mp.InvoiceIDs) != 2 || len(mp.PaymentIDs) != 1 {
		t.Errorf("expected one MatchedPair spanning both invoices and the shared payment, got %+v", mp)
	}
	if mp.Gap != 0 {
		t.Errorf("expected zero gap (5000+5000 == 10000), got %d", mp.Gap)
	}
}

func TestSolveEnforcesCausality(t *testing.T) {
	cfg := config.DefaultConfig()
	invDate := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	// Payment predates the invoice by far more than the causality
	// buffer: it cannot legitimately pay for an invoice issued later.
	earlyPayDate := invDate.AddDate(0, 0, -cfg.CausalityBufferDays-10)

	cluster := models.NewCluster(
		[]models.Invoice{txnInvoice("inv-1", 10000, invDate)},
		[]models.Payment{txnPayment("pay-early", 10000, earlyPayDate)},
	)
	cluster.AddEdge(0, 0, 0.9)

	outcome, recErr := Solve(cluster, cfg, NewDefaultBackend())
	if recErr != nil {
		t.Fatalf("Solve failed: %v", recErr)
	}
	for _, mp := range outcome.MatchedPairs {
		if len(mp.InvoiceIDs) > 0 && len(mp.PaymentIDs) > 0 {
			t.Errorf("causality-forbidden pair was matched: %+v", mp)
		}
	}
}
