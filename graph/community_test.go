package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jbekkers/kennisgraaf/ner"
)

func triangle(a, b, c string) []ner.Mention {
	return []ner.Mention{
		mention(ner.TypePolicy, a, 0, 0.8),
		mention(ner.TypePolicy, b, 0, 0.8),
		mention(ner.TypePolicy, c, 0, 0.8),
	}
}

// twoClusterGraph builds two tightly linked triangles joined by a single
// weak bridge edge.
func twoClusterGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	mustIngest(t, g, "doc-1a", triangle("aa", "bb", "cc"))
	mustIngest(t, g, "doc-1b", triangle("aa", "bb", "cc"))
	mustIngest(t, g, "doc-2a", triangle("xx", "yy", "zz"))
	mustIngest(t, g, "doc-2b", triangle("xx", "yy", "zz"))
	mustIngest(t, g, "doc-brug", []ner.Mention{
		mention(ner.TypePolicy, "cc", 0, 0.8),
		mention(ner.TypePolicy, "xx", 0, 0.8),
	})
	return g
}

func TestDetectCommunitiesTwoClusters(t *testing.T) {
	g := twoClusterGraph(t)

	communities, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	if len(communities) != 2 {
		t.Fatalf("got %d communities, want 2: %+v", len(communities), communities)
	}

	first := communities[0]
	second := communities[1]
	if first.ID != "community-1" || second.ID != "community-2" {
		t.Errorf("ids = %s, %s, want community-1, community-2", first.ID, second.ID)
	}
	wantFirst := []string{policyID("aa"), policyID("bb"), policyID("cc")}
	wantSecond := []string{policyID("xx"), policyID("yy"), policyID("zz")}
	if !reflect.DeepEqual(first.Members, wantFirst) {
		t.Errorf("first members = %v, want %v", first.Members, wantFirst)
	}
	if !reflect.DeepEqual(second.Members, wantSecond) {
		t.Errorf("second members = %v, want %v", second.Members, wantSecond)
	}
	for _, c := range communities {
		if c.Label != "Beleidsdomein" {
			t.Errorf("label = %q, want Beleidsdomein for policy members", c.Label)
		}
		if c.Cohesion < 0.9 {
			t.Errorf("cohesion = %v, want > 0.9 for a tight triangle", c.Cohesion)
		}
	}
}

func TestDetectCommunitiesResolutionPerCall(t *testing.T) {
	g := twoClusterGraph(t)

	// At the default resolution the two triangles merge into two
	// communities; a high resolution makes every merge unprofitable.
	def, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	if len(def) != 2 {
		t.Fatalf("default resolution: got %d communities, want 2", len(def))
	}

	fine, err := g.DetectCommunities(context.Background(), 4.0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	if len(fine) != g.NodeCount() {
		t.Errorf("resolution 4.0: got %d communities, want %d singletons", len(fine), g.NodeCount())
	}

	// The per-call value does not stick: the next default run is unchanged.
	again, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	if !reflect.DeepEqual(def, again) {
		t.Errorf("default run after an override differs:\n%+v\n%+v", def, again)
	}
}

func TestDetectCommunitiesEveryNodeExactlyOnce(t *testing.T) {
	g := twoClusterGraph(t)
	communities, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	seen := map[string]int{}
	for _, c := range communities {
		for _, m := range c.Members {
			seen[m]++
		}
	}
	if len(seen) != g.NodeCount() {
		t.Errorf("covered %d nodes, graph has %d", len(seen), g.NodeCount())
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("node %s appears in %d communities", id, n)
		}
	}
}

func TestDetectCommunitiesDeterministic(t *testing.T) {
	g := twoClusterGraph(t)
	first, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := g.DetectCommunities(context.Background(), 0)
		if err != nil {
			t.Fatalf("DetectCommunities: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestDetectCommunitiesEmptyGraph(t *testing.T) {
	g := New()
	communities, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	if len(communities) != 0 {
		t.Errorf("got %+v, want none", communities)
	}
}

func TestDetectCommunitiesSingletons(t *testing.T) {
	g := New()
	mustIngest(t, g, "doc-1", []ner.Mention{
		mention(ner.TypeLaw, "Omgevingswet", 0, 0.98),
	})
	mustIngest(t, g, "doc-2", []ner.Mention{
		mention(ner.TypeOrganization, "Gemeente Almere", 0, 0.93),
	})

	communities, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	if len(communities) != 2 {
		t.Fatalf("got %d communities, want 2 singletons: %+v", len(communities), communities)
	}
	if communities[0].Label != "Wettelijk kader" || communities[1].Label != "Organisatienetwerk" {
		t.Errorf("labels = %q, %q", communities[0].Label, communities[1].Label)
	}
	for _, c := range communities {
		if c.Cohesion != 0 {
			t.Errorf("singleton cohesion = %v, want 0", c.Cohesion)
		}
		if len(c.Members) != 1 {
			t.Errorf("members = %v, want exactly one", c.Members)
		}
	}
}

func TestDetectCommunitiesCancelled(t *testing.T) {
	g := New()
	mustIngest(t, g, "doc-1", []ner.Mention{
		mention(ner.TypePolicy, "aa", 0, 0.8),
		mention(ner.TypePolicy, "bb", 0, 0.8),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.DetectCommunities(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := g.Communities(); len(got) != 0 {
		t.Errorf("cancelled run published %+v, want previous (empty) result kept", got)
	}
}

func TestDetectCommunitiesPublishes(t *testing.T) {
	g := twoClusterGraph(t)
	result, err := g.DetectCommunities(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectCommunities: %v", err)
	}
	published := g.Communities()
	if !reflect.DeepEqual(result, published) {
		t.Fatalf("published %+v, detection returned %+v", published, result)
	}
	if st := g.Stats(); st.Communities != len(result) {
		t.Errorf("Stats.Communities = %d, want %d", st.Communities, len(result))
	}

	result[0].Members[0] = "aangepast"
	if g.Communities()[0].Members[0] == "aangepast" {
		t.Error("mutating the returned slice changed the published state")
	}
}

func TestCommunityLabel(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int
		want   string
	}{
		{"dominant organizations", map[string]int{ner.TypeOrganization: 3, ner.TypeLaw: 1}, "Organisatienetwerk"},
		{"dominant laws", map[string]int{ner.TypeLaw: 2}, "Wettelijk kader"},
		{"dominant locations", map[string]int{ner.TypeLocation: 2, ner.TypePolicy: 1}, "Geografisch cluster"},
		{"dominant policy", map[string]int{ner.TypePolicy: 4, ner.TypeOrganization: 2}, "Beleidsdomein"},
		{"tie falls back", map[string]int{ner.TypeOrganization: 2, ner.TypeLaw: 2}, "Thematisch cluster"},
		{"unlabeled type falls back", map[string]int{ner.TypePerson: 3}, "Thematisch cluster"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := communityLabel(tt.counts); got != tt.want {
				t.Errorf("communityLabel(%v) = %q, want %q", tt.counts, got, tt.want)
			}
		})
	}
}
