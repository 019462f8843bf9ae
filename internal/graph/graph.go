// Package graph builds the 1-hop counterparty graph around a subject
// address. This is direct-neighbor analysis over the fetched history,
// not chain traversal: each counterparty becomes one node, weighted by
// how many transactions it shares with the subject.
package graph

import (
	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/features"
)

// DefaultLimit caps how many neighbors a graph carries unless the
// caller asks for fewer.
const DefaultLimit = 120

// Link is an undirected edge between two node addresses.
type Link struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Weight int    `json:"weight"` // shared transaction count
}

// Graph is the subject-centered neighborhood. Nodes[0] is always the
// subject; the rest are neighbors in descending weight order, ties
// broken by first appearance in the history.
type Graph struct {
	Nodes []string `json:"nodes"`
	Links []Link   `json:"links"`
}

// Center returns the subject address.
func (g *Graph) Center() string {
	if len(g.Nodes) == 0 {
		return ""
	}
	return g.Nodes[0]
}

// NeighborCount returns the number of neighbors (nodes minus center).
func (g *Graph) NeighborCount() int {
	if len(g.Nodes) == 0 {
		return 0
	}
	return len(g.Nodes) - 1
}

// Build constructs the neighborhood graph from raw history. subject
// must be normalized (lowercase). limit <= 0 means DefaultLimit; the
// heaviest neighbors survive truncation. An empty history yields a
// single-node graph.
func Build(txs []chain.Transaction, subject string, limit int) *Graph {
	if limit <= 0 {
		limit = DefaultLimit
	}

	counterparties := features.Counterparties(features.SortByTime(txs), subject)
	if len(counterparties) > limit {
		counterparties = counterparties[:limit]
	}

	g := &Graph{
		Nodes: make([]string, 0, len(counterparties)+1),
		Links: make([]Link, 0, len(counterparties)),
	}
	g.Nodes = append(g.Nodes, subject)
	for _, cp := range counterparties {
		g.Nodes = append(g.Nodes, cp.Address)
		g.Links = append(g.Links, Link{A: subject, B: cp.Address, Weight: cp.TxCount})
	}
	return g
}
