// Package cluster partitions SafePeel's residual invoices and payments
// into solver-sized clusters by building a weighted bipartite affinity
// graph and running a modularity-maximizing community detection pass
// over it (spec.md §4.C).
//
// No community-detection or graph library appears anywhere in the
// retrieval pack (leanlp-BTC-coinjoin's clustering is a flat
// union-find over address reuse, not a weighted-modularity method;
// dydanz-recon-engine and vijayiyer-Insightdelivered-QEAAutoLens do
// not cluster at all). This package is therefore a hand-rolled,
// standard-library Louvain-style local-moving optimizer, following
// the dense-adjacency design already used by models.Cluster.
package cluster

import (
	"context"
	"math"

	"reconciliation-core/internal/config"
	"reconciliation-core/internal/embedder"
	"reconciliation-core/internal/models"
	"reconciliation-core/internal/textsim"
)

// candidateEdge is one affinity edge discovered while building the
// graph, before community detection groups nodes into clusters.
type candidateEdge struct {
	invoiceIdx int
	paymentIdx int
	weight     float64
}

const edgeWeightFloor = 0.1

// buildEdges computes W(i,j) for every invoice/payment pair and keeps
// those clearing edgeWeightFloor, per spec.md §4.C's graph rule.
func buildEdges(ctx context.Context, invoices []models.Invoice, payments []models.Payment, emb embedder.Embedder, cfg *config.Config) ([]candidateEdge, error) {
	invEmb, err := encodeAll(ctx, emb, invoiceTexts(invoices))
	if err != nil {
		return nil, err
	}
	payEmb, err := encodeAll(ctx, emb, paymentTexts(payments))
	if err != nil {
		return nil, err
	}

	var edges []candidateEdge
	for i := range invoices {
		for j := range payments {
			w := affinityWeight(&invoices[i], invEmb[i], &payments[j], payEmb[j], cfg)
			if w >= edgeWeightFloor {
				edges = append(edges, candidateEdge{invoiceIdx: i, paymentIdx: j, weight: w})
			}
		}
	}
	return edges, nil
}

func encodeAll(ctx context.Context, emb embedder.Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return emb.Encode(ctx, texts)
}

func invoiceTexts(invoices []models.Invoice) []string {
	texts := make([]string, len(invoices))
	for i, inv := range invoices {
		texts[i] = inv.Counterparty + " " + inv.Description
	}
	return texts
}

func paymentTexts(payments []models.Payment) []string {
	texts := make([]string, len(payments))
	for i, p := range payments {
		texts[i] = p.Counterparty + " " + p.Description
	}
	return texts
}

// affinityWeight computes W(i,j) = semantic · temporal · amountBoost,
// clipped to at most 1.
func affinityWeight(inv *models.Invoice, invEmb []float32, pay *models.Payment, payEmb []float32, cfg *config.Config) float64 {
	w := semanticScore(inv, invEmb, pay, payEmb) * temporalScore(inv, pay, cfg.TemporalDecayAlpha) * amountBoost(inv.AmountCents, pay.AmountCents)
	if w > 1 {
		w = 1
	}
	return w
}

func semanticScore(inv *models.Invoice, invEmb []float32, pay *models.Payment, payEmb []float32) float64 {
	if hasEmbedding(invEmb) && hasEmbedding(payEmb) {
		return embedder.CosineSimilarity(invEmb, payEmb)
	}

	var total float64
	var count int
	if inv.Counterparty != "" || pay.Counterparty != "" {
		total += textsim.TokenSortRatio(inv.Counterparty, pay.Counterparty)
		count++
	}
	if inv.CounterpartyTax != "" || pay.CounterpartyTax != "" {
		if textsim.TaxIDEqual(inv.CounterpartyTax, pay.CounterpartyTax) {
			total += 1.0
		}
		count++
	}
	if count == 0 {
		return 0.3
	}
	return total / float64(count)
}

func hasEmbedding(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return true
		}
	}
	return false
}

func temporalScore(inv *models.Invoice, pay *models.Payment, alpha float64) float64 {
	if !inv.HasDate || !pay.HasDate {
		return 1.0 / (1.0 + alpha) // treat unknown dates as 1 day apart, not infinitely apart
	}
	days := math.Abs(inv.Date.Sub(pay.Date).Hours() / 24)
	return 1.0 / (1.0 + alpha*days)
}

func amountBoost(invCents, payCents int64) float64 {
	a, b := math.Abs(float64(invCents)), math.Abs(float64(payCents))
	max := a
	if b > max {
		max = b
	}
	if max == 0 {
		return 1.0
	}
	diff := math.Abs(a-b) / max
	switch {
	case diff < 0.01:
		return 1.5
	case diff < 0.05:
		return 1.2
	default:
		return 1.0
	}
}
