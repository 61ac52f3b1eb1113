package graph

import (
	"fmt"
	"sort"
)

// Neighbor pairs an adjacent node with the edge connecting it.
type Neighbor struct {
	Node   Node    `json:"node"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

// Neighbors returns the nodes adjacent to id, heaviest edge first, ties
// broken by neighbor id and kind. Passing relation kinds restricts the
// result to edges of those kinds; no kinds means no restriction. A known
// node without matching edges yields an empty slice.
func (g *Graph) Neighbors(id string, kinds ...string) ([]Neighbor, error) {
	wanted := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		if k != "" {
			wanted[k] = struct{}{}
		}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	out := []Neighbor{}
	for key, es := range g.edges {
		if len(wanted) > 0 {
			if _, ok := wanted[key.kind]; !ok {
				continue
			}
		}
		var other string
		switch id {
		case key.a:
			other = key.b
		case key.b:
			other = key.a
		default:
			continue
		}
		ns, ok := g.nodes[other]
		if !ok {
			continue
		}
		out = append(out, Neighbor{
			Node:   snapshotNode(other, ns),
			Kind:   key.kind,
			Weight: float64(len(es.docs)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].Node.ID != out[j].Node.ID {
			return out[i].Node.ID < out[j].Node.ID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// ShortestPath returns the edges along a shortest path between two nodes,
// walking edges of any kind. When several relation kinds join one hop's
// endpoint pair, the heaviest edge represents the hop, ties broken by kind.
// Paths longer than maxHops edges are not considered; when no path exists
// within the bound the result is nil without an error. The same node on
// both ends yields an empty slice. Unknown endpoints are errors.
func (g *Graph) ShortestPath(from, to string, maxHops int) ([]Edge, error) {
	if maxHops <= 0 {
		return nil, fmt.Errorf("%w: maxHops must be positive, got %d", ErrInvalidInput, maxHops)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[from]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, to)
	}
	if from == to {
		return []Edge{}, nil
	}

	// Build adjacency over distinct endpoint pairs, remembering per pair
	// the edge that will represent a hop through it. Neighbor lists are
	// sorted so that ties between equal-length paths resolve the same way
	// every run.
	neighbors := make(map[string][]string, len(g.nodes))
	best := make(map[[2]string]edgeKey, len(g.edges))
	for key, es := range g.edges {
		pair := [2]string{key.a, key.b}
		cur, ok := best[pair]
		if !ok {
			best[pair] = key
			neighbors[key.a] = append(neighbors[key.a], key.b)
			neighbors[key.b] = append(neighbors[key.b], key.a)
			continue
		}
		cw, nw := len(g.edges[cur].docs), len(es.docs)
		if nw > cw || (nw == cw && key.kind < cur.kind) {
			best[pair] = key
		}
	}
	for _, list := range neighbors {
		sort.Strings(list)
	}

	parent := map[string]string{from: ""}
	queue := []string{from}
	for depth := 0; depth < maxHops && len(queue) > 0; depth++ {
		var next []string
		for _, cur := range queue {
			for _, nb := range neighbors[cur] {
				if _, visited := parent[nb]; visited {
					continue
				}
				parent[nb] = cur
				if nb == to {
					return g.edgesAlong(parent, to, best), nil
				}
				next = append(next, nb)
			}
		}
		queue = next
	}
	return nil, nil
}

// edgesAlong walks the BFS parent chain back from to and snapshots the edge
// chosen for each hop. Caller holds at least a read lock.
func (g *Graph) edgesAlong(parent map[string]string, to string, best map[[2]string]edgeKey) []Edge {
	var nodes []string
	for cur := to; cur != ""; cur = parent[cur] {
		nodes = append(nodes, cur)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}

	edges := make([]Edge, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		a, b := nodes[i], nodes[i+1]
		if b < a {
			a, b = b, a
		}
		key := best[[2]string{a, b}]
		edges = append(edges, snapshotEdge(key, g.edges[key]))
	}
	return edges
}
