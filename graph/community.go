package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jbekkers/kennisgraaf/ner"
)

// Community is one detected cluster of nodes. Members are node ids in
// sorted order. Cohesion relates internal edge weight to the weight
// crossing the community boundary; an isolated singleton scores 0.
type Community struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Cohesion float64  `json:"cohesion"`
	Members  []string `json:"members"`
}

var communityLabels = map[string]string{
	ner.TypeOrganization: "Organisatienetwerk",
	ner.TypeLaw:          "Wettelijk kader",
	ner.TypeLocation:     "Geografisch cluster",
	ner.TypePolicy:       "Beleidsdomein",
}

const mixedCommunityLabel = "Thematisch cluster"

// DetectCommunities clusters the graph by greedy modularity merging: every
// node starts as its own community and the adjacent pair with the largest
// positive modularity gain is merged until no merge improves modularity or
// the iteration cap is reached. Equal gains resolve to the pair with the
// lowest node ids, so detection is deterministic for a given graph state.
//
// A resolution above 1.0 favors smaller communities; 0 falls back to the
// graph's configured default.
//
// Detection runs on a snapshot; queries proceed concurrently and the result
// is published atomically at the end. Cancelling ctx between merge steps
// abandons the run and leaves the previously published communities intact.
func (g *Graph) DetectCommunities(ctx context.Context, resolution float64) ([]Community, error) {
	g.mu.RLock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	adj := make(map[int]map[int]float64, len(ids))
	var total float64
	edgeCount := len(g.edges)
	for key, es := range g.edges {
		i, j := index[key.a], index[key.b]
		w := float64(len(es.docs))
		link(adj, i, j, w)
		link(adj, j, i, w)
		total += w
	}
	if resolution <= 0 {
		resolution = g.resolution
	}
	maxIterations := g.maxIterations
	g.mu.RUnlock()

	slog.Info("community: starting detection",
		"nodes", len(ids), "edges", edgeCount, "resolution", resolution)

	members := make(map[int][]int, len(ids))
	commDeg := make(map[int]float64, len(ids))
	internal := make(map[int]float64, len(ids))
	for i := range ids {
		members[i] = []int{i}
		for _, w := range adj[i] {
			commDeg[i] += w
		}
	}

	iterations := 0
	if total > 0 {
		for iterations < maxIterations {
			if err := ctx.Err(); err != nil {
				slog.Warn("community: detection cancelled", "iterations", iterations)
				return nil, err
			}
			a, b, gain := bestMerge(adj, commDeg, total, resolution)
			if a < 0 || gain <= 0 {
				break
			}
			internal[a] += internal[b] + adj[a][b]
			commDeg[a] += commDeg[b]
			members[a] = append(members[a], members[b]...)
			for k, w := range adj[b] {
				if k == a {
					continue
				}
				link(adj, a, k, w)
				link(adj, k, a, w)
				delete(adj[k], b)
			}
			delete(adj[a], b)
			delete(adj, b)
			delete(commDeg, b)
			delete(members, b)
			delete(internal, b)
			iterations++
		}
	}

	result := assemble(ids, members, internal, adj)

	g.mu.Lock()
	g.communities = copyCommunities(result)
	g.mu.Unlock()

	slog.Info("community: detection complete",
		"communities", len(result), "iterations", iterations)
	return result, nil
}

// Communities returns the most recently detected communities. Before the
// first detection run it returns an empty slice.
func (g *Graph) Communities() []Community {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyCommunities(g.communities)
}

func link(adj map[int]map[int]float64, from, to int, w float64) {
	m, ok := adj[from]
	if !ok {
		m = make(map[int]float64)
		adj[from] = m
	}
	m[to] += w
}

// bestMerge scans community pairs in ascending id order and returns the
// adjacent pair with the strictly largest modularity gain. The ascending
// scan with a strict comparison makes the lowest pair win ties.
func bestMerge(adj map[int]map[int]float64, commDeg map[int]float64, total, resolution float64) (int, int, float64) {
	commIDs := make([]int, 0, len(adj))
	for c := range adj {
		commIDs = append(commIDs, c)
	}
	sort.Ints(commIDs)

	bestA, bestB := -1, -1
	bestGain := 0.0
	for _, a := range commIDs {
		neighbors := make([]int, 0, len(adj[a]))
		for b := range adj[a] {
			if b > a {
				neighbors = append(neighbors, b)
			}
		}
		sort.Ints(neighbors)
		for _, b := range neighbors {
			gain := adj[a][b]/total - resolution*commDeg[a]*commDeg[b]/(2*total*total)
			if gain > bestGain {
				bestGain = gain
				bestA, bestB = a, b
			}
		}
	}
	return bestA, bestB, bestGain
}

func assemble(ids []string, members map[int][]int, internal map[int]float64, adj map[int]map[int]float64) []Community {
	keys := make([]int, 0, len(members))
	for c := range members {
		keys = append(keys, c)
	}
	sort.Ints(keys)

	type group struct {
		minIdx   int
		memberIs []int
		cohesion float64
	}
	groups := make([]group, 0, len(keys))
	for _, c := range keys {
		idxs := append([]int{}, members[c]...)
		sort.Ints(idxs)

		var external float64
		for _, w := range adj[c] {
			external += w
		}
		in := internal[c]
		cohesion := 0.0
		if denom := 2*in + external; denom > 0 {
			cohesion = 2 * in / denom
		}
		groups = append(groups, group{minIdx: idxs[0], memberIs: idxs, cohesion: cohesion})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].minIdx < groups[j].minIdx })

	out := make([]Community, 0, len(groups))
	for i, grp := range groups {
		memberIDs := make([]string, len(grp.memberIs))
		typeCounts := make(map[string]int)
		for k, idx := range grp.memberIs {
			memberIDs[k] = ids[idx]
			typeCounts[nodeType(ids[idx])]++
		}
		out = append(out, Community{
			ID:       fmt.Sprintf("community-%d", i+1),
			Label:    communityLabel(typeCounts),
			Cohesion: grp.cohesion,
			Members:  memberIDs,
		})
	}
	return out
}

// communityLabel names a community after its dominant member type. Ties and
// types without a dedicated label fall back to the mixed label.
func communityLabel(typeCounts map[string]int) string {
	types := make([]string, 0, len(typeCounts))
	for t := range typeCounts {
		types = append(types, t)
	}
	sort.Strings(types)

	best, bestN, tie := "", 0, false
	for _, t := range types {
		switch {
		case typeCounts[t] > bestN:
			best, bestN, tie = t, typeCounts[t], false
		case typeCounts[t] == bestN:
			tie = true
		}
	}
	if tie {
		return mixedCommunityLabel
	}
	if label, ok := communityLabels[best]; ok {
		return label
	}
	return mixedCommunityLabel
}

func copyCommunities(in []Community) []Community {
	out := make([]Community, len(in))
	for i, c := range in {
		c.Members = append([]string{}, c.Members...)
		out[i] = c
	}
	return out
}
