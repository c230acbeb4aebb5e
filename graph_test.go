package allhic

import "testing"

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.EdgeThreshold = 0.1
	cfg.AlphaRatio = 0.1
	cfg.BetaRatio = 0.7
	cfg.GammaRatio = 0.1
	cfg.TransitiveTau = 1.0
	cfg.WeakEdgeDelta = 1e-6
	return cfg
}

// checkMatedArcInvariant verifies spec property 4: every active or
// removed arc u->v still has a mate v^1->u^1 with identical weight and
// paired_id, and Removed flags always agree between mates.
func checkMatedArcInvariant(t *testing.T, g *ScaffoldGraph) {
	t.Helper()
	byPair := make(map[int][]Arc)
	for _, a := range g.Arcs {
		byPair[a.PairedID] = append(byPair[a.PairedID], a)
	}
	for pid, arcs := range byPair {
		if len(arcs) != 2 {
			t.Fatalf("paired_id %d has %d arcs, want 2", pid, len(arcs))
		}
		a, b := arcs[0], arcs[1]
		if a.From != b.To.Mate() || a.To != b.From.Mate() {
			t.Errorf("paired_id %d: arcs %+v / %+v are not mates", pid, a, b)
		}
		if a.Weight != b.Weight {
			t.Errorf("paired_id %d: mated arcs have different weights %v vs %v", pid, a.Weight, b.Weight)
		}
		if a.Removed != b.Removed {
			t.Errorf("paired_id %d: mated arcs disagree on Removed", pid)
		}
	}
}

func makeInterEntry(score float64) *InterEntry {
	e := &InterEntry{}
	e[bucketIndex(End3, End5)] = InterBucket{Count: score, Denom: 1, Score: score}
	return e
}

// TestGraphMatedArcInvariantAcrossConstruction checks property 4 holds
// right after construction, before any pruning.
func TestGraphMatedArcInvariantAcrossConstruction(t *testing.T) {
	cfg := testConfig()
	inter := map[ScaffoldPair]*InterEntry{
		{A: 0, B: 1}: makeInterEntry(5.0),
		{A: 1, B: 2}: makeInterEntry(4.0),
	}
	g := NewScaffoldGraph(3, inter, 0, cfg)
	checkMatedArcInvariant(t, g)
	if len(g.Arcs) != 4 {
		t.Fatalf("len(Arcs) = %d, want 4 (two edges x two mated arcs)", len(g.Arcs))
	}
}

// TestGraphMatedArcInvariantAfterPrune checks property 4 still holds
// after the full pruning cascade removes arcs.
func TestGraphMatedArcInvariantAfterPrune(t *testing.T) {
	cfg := testConfig()
	inter := map[ScaffoldPair]*InterEntry{
		{A: 0, B: 1}: makeInterEntry(5.0),
		{A: 0, B: 2}: makeInterEntry(0.2), // weak spurious edge off scaffold 0's same end
	}
	g := NewScaffoldGraph(3, inter, 0, cfg)
	g.Prune()
	checkMatedArcInvariant(t, g)
}

// TestExtractPathsCoversEveryScaffoldOnce checks spec property 5: a
// simple three-scaffold chain (0-1-2) produces one path containing every
// scaffold id exactly once.
func TestExtractPathsCoversEveryScaffoldOnce(t *testing.T) {
	cfg := testConfig()
	inter := map[ScaffoldPair]*InterEntry{
		{A: 0, B: 1}: makeInterEntry(10.0),
		{A: 1, B: 2}: makeInterEntry(9.0),
	}
	g := NewScaffoldGraph(3, inter, 0, cfg)
	g.Prune()
	paths := g.ExtractPaths()

	seen := make(map[uint32]int)
	for _, path := range paths {
		for _, step := range path {
			seen[step.ScaffoldID]++
		}
	}
	for sid := uint32(0); sid < 3; sid++ {
		if seen[sid] != 1 {
			t.Errorf("scaffold %d appears %d times across paths, want exactly 1", sid, seen[sid])
		}
	}
}

// TestExtractPathsHandlesIsolatedScaffold checks that a scaffold with no
// surviving arcs still appears in its own singleton path, untouched and
// in its original forward orientation (no arc ever justified flipping
// it).
func TestExtractPathsHandlesIsolatedScaffold(t *testing.T) {
	cfg := testConfig()
	g := NewScaffoldGraph(2, map[ScaffoldPair]*InterEntry{}, 0, cfg)
	paths := g.ExtractPaths()
	seen := make(map[uint32]byte)
	for _, path := range paths {
		for _, step := range path {
			seen[step.ScaffoldID] = step.Orientation
		}
	}
	orient0, ok0 := seen[0]
	orient1, ok1 := seen[1]
	if !ok0 || !ok1 {
		t.Fatalf("isolated scaffolds missing from path cover: seen=%v", seen)
	}
	if orient0 != '+' || orient1 != '+' {
		t.Errorf("isolated scaffold orientations = %c/%c, want +/+ (no arc ever touched them)", orient0, orient1)
	}
}

// TestSimpleFilterDropsSpuriousWeakEdge mirrors scenario S2: a weak
// cross edge between two scaffolds that are already strongly joined
// elsewhere should be pruned by the alpha-ratio test.
func TestSimpleFilterDropsSpuriousWeakEdge(t *testing.T) {
	cfg := testConfig()
	// Scaffold 0's Side3 end has a strong edge to scaffold 1, and a weak
	// spurious edge (< alpha * wmax) to scaffold 2 from the same end.
	inter := map[ScaffoldPair]*InterEntry{}
	e01 := &InterEntry{}
	e01[bucketIndex(End3, End5)] = InterBucket{Count: 100, Denom: 1, Score: 100}
	inter[ScaffoldPair{A: 0, B: 1}] = e01
	e02 := &InterEntry{}
	e02[bucketIndex(End3, End5)] = InterBucket{Count: 1, Denom: 1, Score: 1}
	inter[ScaffoldPair{A: 0, B: 2}] = e02

	g := NewScaffoldGraph(3, inter, 0, cfg)
	g.simpleFilter()

	u := NewEnd(0, Side3)
	for _, i := range g.activeArcs(u) {
		if g.Arcs[i].To.Scaffold() == 2 {
			t.Errorf("weak spurious arc to scaffold 2 survived simpleFilter")
		}
	}
}
