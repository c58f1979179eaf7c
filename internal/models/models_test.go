package models

import (
	"testing"
	"time"
)

func TestCommitLevelOrdering(t *testing.T) {
	// HARD is the most irreversible, PENDING the least.
	levels := []CommitLevel{Hard, Soft, Shadow, Pending}
	for i := 0; i < len(levels)-1; i++ {
		if !levels[i].Less(levels[i+1]) {
			t.Errorf("%v should be Less than %v", levels[i], levels[i+1])
		}
	}
	if Hard.String() != "HARD" || Pending.String() != "PENDING" {
		t.Errorf("unexpected String() output")
	}
}

func TestNewMatchedPairComputesGap(t *testing.T) {
	mp := NewMatchedPair([]string{"inv-1"}, []string{"pay-1"}, 10000, 9950, ConfidenceHigh, "safepeel")
	if mp.Gap != 50 {
		t.Errorf("gap = %d, want 50", mp.Gap)
	}
	if mp.InvoiceTotal-mp.PaymentTotal != mp.Gap {
		t.Errorf("invariant invoice_total - payment_total == gap violated")
	}
	if mp.ID == "" {
		t.Error("expected a stable id to be assigned")
	}
}

func TestNewPartialMatchComputesRemainder(t *testing.T) {
	pm := NewPartialMatch("inv-1", []string{"pay-1", "pay-2"}, 10000, 6000, false)
	if pm.RemainderCents != 4000 {
		t.Errorf("remainder = %d, want 4000", pm.RemainderCents)
	}
	if pm.PaidCents+pm.RemainderCents != 10000 {
		t.Error("invariant paid + remainder == invoice_amount violated")
	}
}

func TestClusterAddEdgeUpdatesBothAdjacencyTables(t *testing.T) {
	invoices := []Invoice{{Txn: Txn{ID: "inv-1", AmountCents: 10000}}}
	payments := []Payment{{Txn: Txn{ID: "pay-1", AmountCents: 10000}}}
	c := NewCluster(invoices, payments)

	c.AddEdge(0, 0, 0.85)

	if len(c.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(c.Edges))
	}
	if len(c.InvoiceEdges[0]) != 1 || c.InvoiceEdges[0][0] != 0 {
		t.Error("invoice adjacency table not updated")
	}
	if len(c.PaymentEdges[0]) != 1 || c.PaymentEdges[0][0] != 0 {
		t.Error("payment adjacency table not updated")
	}
	if c.InvoiceTotal != 10000 || c.PaymentTotal != 10000 {
		t.Error("cluster totals not computed from node amounts")
	}
}

func TestAuditEntryCarriesTouchedIDs(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := NewAuditEntry(now, "SAFE_PEEL_MATCH", "exact reference match", []string{"inv-1", "pay-1"}, nil)
	if e.Action != "SAFE_PEEL_MATCH" || len(e.TouchedIDs) != 2 {
		t.Error("audit entry fields not set as expected")
	}
}
