package cluster

import (
	"context"
	"testing"
	"time"

	"reconciliation-core/internal/config"
	"reconciliation-core/internal/embedder"
	"reconciliation-core/internal/models"
)

func TestPartitionGroupsRelatedInvoiceAndPayment(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	invoices := []models.Invoice{
		{Txn: models.Txn{ID: "inv-1", AmountCents: 10000, HasDate: true, Date: now, Counterparty: "Acme Corp", Description: "widgets"}},
	}
	payments := []models.Payment{
		{Txn: models.Txn{ID: "pay-1", AmountCents: 10000, HasDate: true, Date: now, Counterparty: "Acme Corp", Description: "widgets"}},
	}

	result, err := Partition(context.Background(), invoices, payments, embedder.NewZeroEmbedder(8), cfg)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(result.Clusters))
	}
	if len(result.Clusters[0].Invoices) != 1 || len(result.Clusters[0].Payments) != 1 {
		t.Errorf("expected cluster to contain both nodes")
	}
	if len(result.Clusters[0].Edges) != 1 {
		t.Errorf("expected 1 edge, got %d", len(result.Clusters[0].Edges))
	}
}

func TestPartitionEmitsOrphansForUnrelatedEntries(t *testing.T) {
	cfg := config.DefaultConfig()
	farPast := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	invoices := []models.Invoice{
		{Txn: models.Txn{ID: "inv-orphan", AmountCents: 999999, HasDate: true, Date: farPast, Counterparty: "Zzz Unrelated", Description: "nothing in common"}},
	}
	payments := []models.Payment{
		{Txn: models.Txn{ID: "pay-orphan", AmountCents: 1, HasDate: true, Date: now, Counterparty: "Totally Different", Description: "no relation"}},
	}

	result, err := Partition(context.Background(), invoices, payments, embedder.NewZeroEmbedder(8), cfg)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(result.Clusters) != 0 {
		t.Errorf("expected no clusters for disconnected nodes, got %d", len(result.Clusters))
	}
	if len(result.OrphanInvoices) != 1 || len(result.OrphanPayments) != 1 {
		t.Errorf("expected both entries to be orphaned, got %d invoices, %d payments",
			len(result.OrphanInvoices), len(result.OrphanPayments))
	}
}

func TestDetectCommunitiesIsDeterministic(t *testing.T) {
	edges := []candidateEdge{
		{invoiceIdx: 0, paymentIdx: 0, weight: 0.9},
		{invoiceIdx: 1, paymentIdx: 1, weight: 0.9},
	}
	first := detectCommunities(2, 2, edges, 1.0)
	second := detectCommunities(2, 2, edges, 1.0)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("community detection is not deterministic: %v vs %v", first, second)
		}
	}
	if first[0] == first[2] && first[1] != first[3] {
		t.Errorf("expected consistent pairing of invoice/payment communities")
	}
}
