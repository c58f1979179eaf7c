package cluster

import "sort"

// node ids are a flat space: [0, numInvoices) are invoice nodes,
// [numInvoices, numInvoices+numPayments) are payment nodes.

// adjacency is a dense neighbor-weight list per node, built once per
// detectCommunities call.
type adjacency struct {
	neighbors [][]int
	weights   [][]float64
	degree    []float64
}

func buildAdjacency(numNodes int, edges []candidateEdge, numInvoices int) *adjacency {
	adj := &adjacency{
		neighbors: make([][]int, numNodes),
		weights:   make([][]float64, numNodes),
		degree:    make([]float64, numNodes),
	}
	for _, e := range edges {
		u := e.invoiceIdx
		v := numInvoices + e.paymentIdx
		adj.neighbors[u] = append(adj.neighbors[u], v)
		adj.weights[u] = append(adj.weights[u], e.weight)
		adj.neighbors[v] = append(adj.neighbors[v], u)
		adj.weights[v] = append(adj.weights[v], e.weight)
		adj.degree[u] += e.weight
		adj.degree[v] += e.weight
	}
	return adj
}

const maxLocalMovingPasses = 50

// detectCommunities runs a deterministic, single-level Louvain local-
// moving pass: each node starts in its own community, then nodes are
// repeatedly offered to the neighboring community that maximizes
// modularity gain (scaled by resolution), in ascending node-id order,
// until a full pass produces no move. This is the Leiden-family
// procedure spec.md §4.C calls for, scoped to a single level since
// recursive re-partitioning (by resolution schedule) already supplies
// the multi-resolution behavior the full Leiden algorithm gets from
// refinement levels.
func detectCommunities(numInvoices, numPayments int, edges []candidateEdge, resolution float64) []int {
	numNodes := numInvoices + numPayments
	adj := buildAdjacency(numNodes, edges, numInvoices)

	var totalWeight float64
	for _, e := range edges {
		totalWeight += e.weight
	}
	if totalWeight == 0 {
		// No edges at all: every node is its own orphaned community.
		labels := make([]int, numNodes)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}
	twoM := 2 * totalWeight

	community := make([]int, numNodes)
	commTotalDegree := make([]float64, numNodes) // indexed by community id == initial node id
	for i := range community {
		community[i] = i
		commTotalDegree[i] = adj.degree[i]
	}

	order := make([]int, numNodes)
	for i := range order {
		order[i] = i
	}

	for pass := 0; pass < maxLocalMovingPasses; pass++ {
		moved := false

		for _, u := range order {
			oldComm := community[u]
			commTotalDegree[oldComm] -= adj.degree[u]

			// Weight from u into each neighboring community.
			neighborWeight := make(map[int]float64)
			for k, v := range adj.neighbors[u] {
				neighborWeight[community[v]] += adj.weights[u][k]
			}

			bestComm := oldComm
			bestGain := neighborWeight[oldComm] - resolution*commTotalDegree[oldComm]*adj.degree[u]/twoM

			candidateComms := make([]int, 0, len(neighborWeight))
			for c := range neighborWeight {
				candidateComms = append(candidateComms, c)
			}
			sort.Ints(candidateComms) // deterministic tie-break: lowest community id

			for _, c := range candidateComms {
				gain := neighborWeight[c] - resolution*commTotalDegree[c]*adj.degree[u]/twoM
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			community[u] = bestComm
			commTotalDegree[bestComm] += adj.degree[u]
			if bestComm != oldComm {
				moved = true
			}
		}

		if !moved {
			break
		}
	}

	return normalizeLabels(community)
}

// normalizeLabels remaps arbitrary community ids to a dense
// 0..k-1 range, preserving the ascending order of first appearance so
// results stay deterministic across runs with identical input.
func normalizeLabels(labels []int) []int {
	remap := make(map[int]int)
	out := make([]int, len(labels))
	next := 0
	for i, l := range labels {
		id, ok := remap[l]
		if !ok {
			id = next
			remap[l] = id
			next++
		}
		out[i] = id
	}
	return out
}
