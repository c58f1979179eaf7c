package cluster

import (
	"context"
	"sort"

	"reconciliation-core/internal/config"
	"reconciliation-core/internal/embedder"
	"reconciliation-core/internal/models"
)

// Result is Cluster's output: the partitioned solver-sized clusters,
// plus the nodes no retained cluster claimed.
type Result struct {
	Clusters        []*models.Cluster
	OrphanInvoices  []models.Invoice
	OrphanPayments  []models.Payment
}

const maxRepartitionDepth = 3

// Partition builds the bipartite affinity graph over invoices and
// payments and runs community detection to produce solver-sized
// clusters, recursively re-partitioning any cluster that exceeds
// cfg.MaxClusterSize, per spec.md §4.C.
func Partition(ctx context.Context, invoices []models.Invoice, payments []models.Payment, emb embedder.Embedder, cfg *config.Config) (*Result, error) {
	edges, err := buildEdges(ctx, invoices, payments, emb, cfg)
	if err != nil {
		return nil, err
	}

	invoiceIdxs := rangeIdx(len(invoices))
	paymentIdxs := rangeIdx(len(payments))

	groups, orphanInv, orphanPay := partitionRecursive(invoiceIdxs, paymentIdxs, edges, 0, cfg.LeidenResolution, cfg.MaxClusterSize)

	result := &Result{}
	for _, g := range groups {
		result.Clusters = append(result.Clusters, buildModelCluster(g, invoices, payments, edges))
	}
	for _, i := range orphanInv {
		result.OrphanInvoices = append(result.OrphanInvoices, invoices[i])
	}
	for _, j := range orphanPay {
		result.OrphanPayments = append(result.OrphanPayments, payments[j])
	}
	return result, nil
}

// group is one retained community's membership, as indices into the
// original invoices/payments slices.
type group struct {
	invoiceIdxs []int
	paymentIdxs []int
}

// partitionRecursive runs one community-detection pass over the given
// node subset, discards invoice-only/payment-only communities as
// orphans, and recurses into any retained community that still
// exceeds maxClusterSize, under the r·2^(depth+1) resolution schedule,
// up to maxRepartitionDepth; beyond that depth an oversized community
// is passed through as a single group.
func partitionRecursive(invoiceIdxs, paymentIdxs []int, allEdges []candidateEdge, depth int, resolution float64, maxClusterSize int) ([]group, []int, []int) {
	if len(invoiceIdxs) == 0 && len(paymentIdxs) == 0 {
		return nil, nil, nil
	}

	localEdges, _, _ := localize(invoiceIdxs, paymentIdxs, allEdges)
	labels := detectCommunities(len(invoiceIdxs), len(paymentIdxs), localEdges, resolution)

	byLabel := make(map[int][]int) // label -> local node ids
	for localID, label := range labels {
		byLabel[label] = append(byLabel[label], localID)
	}

	var groups []group
	var orphanInv, orphanPay []int

	labelIDs := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labelIDs = append(labelIDs, l)
	}
	sort.Ints(labelIDs)

	numInvoices := len(invoiceIdxs)

	for _, l := range labelIDs {
		localIDs := byLabel[l]
		var gInv, gPay []int
		for _, id := range localIDs {
			if id < numInvoices {
				gInv = append(gInv, invoiceIdxs[id])
			} else {
				gPay = append(gPay, paymentIdxs[id-numInvoices])
			}
		}

		if len(gInv) == 0 || len(gPay) == 0 {
			orphanInv = append(orphanInv, gInv...)
			orphanPay = append(orphanPay, gPay...)
			continue
		}

		if len(gInv)+len(gPay) > maxClusterSize && depth < maxRepartitionDepth {
			subGroups, subOrphanInv, subOrphanPay := partitionRecursive(gInv, gPay, allEdges, depth+1, resolution*2, maxClusterSize)
			groups = append(groups, subGroups...)
			orphanInv = append(orphanInv, subOrphanInv...)
			orphanPay = append(orphanPay, subOrphanPay...)
			continue
		}

		groups = append(groups, group{invoiceIdxs: gInv, paymentIdxs: gPay})
	}

	return groups, orphanInv, orphanPay
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

// localize filters allEdges down to those touching the given node
// subset and rewrites endpoints as local indices into invoiceIdxs/
// paymentIdxs, as detectCommunities expects a dense [0,n) node space.
func localize(invoiceIdxs, paymentIdxs []int, allEdges []candidateEdge) ([]candidateEdge, map[int]int, map[int]int) {
	invLocal := make(map[int]int, len(invoiceIdxs))
	for li, gi := range invoiceIdxs {
		invLocal[gi] = li
	}
	payLocal := make(map[int]int, len(paymentIdxs))
	for lj, gj := range paymentIdxs {
		payLocal[gj] = lj
	}

	var out []candidateEdge
	for _, e := range allEdges {
		li, ok1 := invLocal[e.invoiceIdx]
		lj, ok2 := payLocal[e.paymentIdx]
		if ok1 && ok2 {
			out = append(out, candidateEdge{invoiceIdx: li, paymentIdx: lj, weight: e.weight})
		}
	}
	return out, invLocal, payLocal
}

// buildModelCluster materializes a group of original-slice indices
// into a models.Cluster with its own dense local adjacency, restoring
// the edges discovered during graph construction.
func buildModelCluster(g group, invoices []models.Invoice, payments []models.Payment, allEdges []candidateEdge) *models.Cluster {
	invSet := make(map[int]int, len(g.invoiceIdxs)) // global idx -> local idx
	clusterInvoices := make([]models.Invoice, len(g.invoiceIdxs))
	for li, gi := range g.invoiceIdxs {
		invSet[gi] = li
		clusterInvoices[li] = invoices[gi]
	}
	paySet := make(map[int]int, len(g.paymentIdxs))
	clusterPayments := make([]models.Payment, len(g.paymentIdxs))
	for lj, gj := range g.paymentIdxs {
		paySet[gj] = lj
		clusterPayments[lj] = payments[gj]
	}

	c := models.NewCluster(clusterInvoices, clusterPayments)
	for _, e := range allEdges {
		li, ok1 := invSet[e.invoiceIdx]
		lj, ok2 := paySet[e.paymentIdx]
		if ok1 && ok2 {
			c.AddEdge(li, lj, e.weight)
		}
	}
	return c
}

func rangeIdx(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
