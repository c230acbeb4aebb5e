/*
 * Filename: /Users/bao/code/allhic/graph.go
 * Path: /Users/bao/code/allhic
 * Created Date: Monday, June 4th 2018, 11:37:27 pm
 * Author: bao
 *
 * Copyright (c) 2018 Haibao Tang
 */

package allhic

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// End is an oriented scaffold end, encoded as scaffoldID<<1 | sideBit,
// per spec §3 ("nodes are oriented scaffold ends"). Side5 is the
// scaffold's start (5'), Side3 its end (3') -- the Left/Right Node split
// the teacher modeled with a *Node/sister pointer pair.
type End uint32

const (
	Side5 = 0
	Side3 = 1
)

// NewEnd builds an End from a scaffold id and side bit.
func NewEnd(scaffold uint32, side int) End { return End(scaffold<<1) | End(side) }

// Scaffold returns the scaffold id this end belongs to.
func (e End) Scaffold() uint32 { return uint32(e) >> 1 }

// Side returns 0 (5') or 1 (3').
func (e End) Side() int { return int(e) & 1 }

// Mate returns complement(e) = e XOR 1, the other end of the same
// scaffold -- the teacher's Node.sister, made an arithmetic operation
// now that nodes are ids instead of pointers.
func (e End) Mate() End { return e ^ 1 }

// Arc is one directed half of a bidirected scoring edge (spec §3). Arcs
// sharing a PairedID are mates and must always be flipped together.
type Arc struct {
	From, To End
	PairedID int
	Removed  bool
	Weight   float64
}

// ScaffoldGraph is the bidirected graph over oriented scaffold ends
// (spec §4.6): construction, the pruning filter cascade, and path
// extraction. It replaces the teacher's Graph (map[*Node]map[*Node]
// float64) with a sorted arc store plus range index, matching spec §3's
// storage layout; a gonum graph is mirrored alongside for the topology
// queries (connected components, cycle detection) the extra cascade
// steps need beyond the teacher's single confidence pass.
type ScaffoldGraph struct {
	NumScaffolds int
	Arcs         []Arc
	Config       *Config

	arcRange map[End][]int // node -> indices into Arcs with From == node
}

// NewScaffoldGraph constructs the graph from the inter-scaffold matrix,
// per spec §4.6 "Construction": for each pair, every oriented bucket
// scoring above both the edge floor and the quality-limited threshold
// qla becomes a bidirected edge between the implied oriented ends. This
// takes the place of the teacher's makeGraph, which built edges from raw
// link lists instead of a normalized matrix.
func NewScaffoldGraph(numScaffolds int, inter map[ScaffoldPair]*InterEntry, qla float64, cfg *Config) *ScaffoldGraph {
	g := &ScaffoldGraph{NumScaffolds: numScaffolds, Config: cfg}
	pairedID := 0

	pairs := make([]ScaffoldPair, 0, len(inter))
	for p := range inter {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})

	for _, pair := range pairs {
		entry := inter[pair]
		type scored struct {
			endA, endB InterEnd
			score      float64
		}
		var candidates []scored
		for endA := End5; endA <= End3; endA++ {
			for endB := End5; endB <= End3; endB++ {
				b := entry[bucketIndex(endA, endB)]
				if b.Score >= cfg.EdgeThreshold && b.Score >= qla {
					candidates = append(candidates, scored{endA, endB, b.Score})
				}
			}
		}
		// Every qualifying bucket becomes an edge; candidates are added
		// in lexicographic (endA, endB) order so arc order and paired ids
		// are deterministic. Buckets with tied scores are not reduced to
		// a single orientation here.
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].endA != candidates[j].endA {
				return candidates[i].endA < candidates[j].endA
			}
			return candidates[i].endB < candidates[j].endB
		})
		for _, c := range candidates {
			uA := interEndToEnd(pair.A, c.endA)
			uB := interEndToEnd(pair.B, c.endB)
			g.addEdge(uA, uB, c.score, &pairedID)
		}
	}
	g.reindex()
	log.Infof("Scaffold graph built: %d scaffolds, %d arcs", numScaffolds, len(g.Arcs))
	return g
}

// interEndToEnd maps an inter-matrix bucket side (5'/3') for a scaffold
// to the graph's End node for that side.
func interEndToEnd(scaffold uint32, e InterEnd) End {
	if e == End5 {
		return NewEnd(scaffold, Side5)
	}
	return NewEnd(scaffold, Side3)
}

// addEdge records one undirected scoring edge as two mated directed
// arcs: u->v and complement(v)->complement(u), sharing pairedID (the
// invariant spec §8 property 4 tests) -- the generalization of the
// teacher's insertEdge(G,a,b); insertEdge(G,b,a) pair.
func (g *ScaffoldGraph) addEdge(u, v End, weight float64, pairedID *int) {
	id := *pairedID
	*pairedID++
	g.Arcs = append(g.Arcs,
		Arc{From: u, To: v, PairedID: id, Weight: weight},
		Arc{From: v.Mate(), To: u.Mate(), PairedID: id, Weight: weight},
	)
}

// reindex sorts Arcs by From and rebuilds arc_range, per spec §3 ("arcs
// are sorted by from; an index array gives arc_range[u] = [lo, hi)").
func (g *ScaffoldGraph) reindex() {
	sort.SliceStable(g.Arcs, func(i, j int) bool { return g.Arcs[i].From < g.Arcs[j].From })
	g.arcRange = make(map[End][]int)
	for i, a := range g.Arcs {
		g.arcRange[a.From] = append(g.arcRange[a.From], i)
	}
}

// mateIndex finds the arc sharing pairedID with the arc at skip.
func (g *ScaffoldGraph) mateIndex(pairedID int, skip int) int {
	for i, a := range g.Arcs {
		if i != skip && a.PairedID == pairedID {
			return i
		}
	}
	return -1
}

// removeArc flips the removed bit on arc i and its mate, preserving the
// mated-arc invariant.
func (g *ScaffoldGraph) removeArc(i int) {
	if g.Arcs[i].Removed {
		return
	}
	g.Arcs[i].Removed = true
	if m := g.mateIndex(g.Arcs[i].PairedID, i); m >= 0 {
		g.Arcs[m].Removed = true
	}
}

// activeArcs returns the indices of non-removed arcs leaving u.
func (g *ScaffoldGraph) activeArcs(u End) []int {
	var out []int
	for _, i := range g.arcRange[u] {
		if !g.Arcs[i].Removed {
			out = append(out, i)
		}
	}
	return out
}

// degree counts active arcs touching u, either leaving or entering.
func (g *ScaffoldGraph) degree(u End) int {
	n := len(g.activeArcs(u))
	for _, a := range g.Arcs {
		if !a.Removed && a.To == u {
			n++
		}
	}
	return n
}

// ActiveArcCount reports the number of currently active arcs; Prune uses
// it to detect cascade convergence.
func (g *ScaffoldGraph) ActiveArcCount() int {
	n := 0
	for _, a := range g.Arcs {
		if !a.Removed {
			n++
		}
	}
	return n
}

// Prune runs the filter cascade to a fixed point, then applies the
// ambiguous-edge trim once, per spec §4.6. This replaces the teacher's
// single makeConfidenceGraph pass (second-largest-edge ratio only) with
// the full eight-step cascade spec §4.6 specifies.
func (g *ScaffoldGraph) Prune() {
	for {
		before := g.ActiveArcCount()
		g.simpleFilter()
		g.tipTrim()
		g.bluntTrim()
		g.repeatTrim()
		g.transitiveReduction()
		g.bubblePop()
		g.weakEdgeTrim()
		g.selfLoopTrim()
		if g.ActiveArcCount() == before {
			break
		}
	}
	g.ambiguousEdgeTrim()
	g.reindex()
	log.Infof("Graph pruned to %d active arcs", g.ActiveArcCount())
}

// simpleFilter is cascade step 1: at each node, drop arcs weaker than
// alpha*w_max, drop arcs where either endpoint's second-best/best ratio
// exceeds beta, and drop arcs dominated by a stronger alternative path
// (spec §4.6). This generalizes the teacher's getSecondLargest
// confidence ratio into a per-arc, per-endpoint test.
func (g *ScaffoldGraph) simpleFilter() {
	cfg := g.Config
	best := make(map[End]float64)
	second := make(map[End]float64)
	for u := range g.arcRange {
		for _, i := range g.activeArcs(u) {
			w := g.Arcs[i].Weight
			if w > best[u] {
				best[u], second[u] = w, best[u]
			} else if w > second[u] {
				second[u] = w
			}
		}
	}
	for u := range g.arcRange {
		wmax := best[u]
		if wmax <= 0 {
			continue
		}
		for _, i := range g.activeArcs(u) {
			a := g.Arcs[i]
			if a.Weight < cfg.AlphaRatio*wmax {
				g.removeArc(i)
				continue
			}
			if best[u] > 0 && second[u]/best[u] > cfg.BetaRatio && a.Weight < best[u] {
				g.removeArc(i)
				continue
			}
			if best[a.To] > 0 && second[a.To]/best[a.To] > cfg.BetaRatio && a.Weight < best[a.To] {
				g.removeArc(i)
				continue
			}
			if alt := alternativePathWeight(g, a); alt > a.Weight*(1+cfg.GammaRatio) {
				g.removeArc(i)
			}
		}
	}
}

// alternativePathWeight looks for a competing arc out of a.From's own
// mate end (i.e. "enter this scaffold from the other side") that lands
// on a different scaffold than a's target, used by the "alternative
// paths have significantly higher cumulative weight" check.
func alternativePathWeight(g *ScaffoldGraph, a Arc) float64 {
	var best float64
	for _, i := range g.activeArcs(a.From.Mate()) {
		alt := g.Arcs[i]
		if alt.To.Scaffold() == a.To.Scaffold() {
			continue
		}
		if alt.Weight > best {
			best = alt.Weight
		}
	}
	return best
}

// tipTrim is cascade step 2: a degree-1 node whose single arc leads into
// a higher-degree component is pruned along with that arc. Grounded on
// gonum's topo.ConnectedComponents (kortschak-loopy/cmd/press/press.go)
// to size the far endpoint's component.
func (g *ScaffoldGraph) tipTrim() {
	ug := g.undirectedMirror()
	components := topo.ConnectedComponents(ug)
	sizeOf := make(map[int64]int)
	for _, comp := range components {
		for _, n := range comp {
			sizeOf[n.ID()] = len(comp)
		}
	}
	for u := range g.arcRange {
		arcs := g.activeArcs(u)
		if g.degree(u) != 1 || len(arcs) != 1 {
			continue
		}
		i := arcs[0]
		far := g.Arcs[i].To
		if sizeOf[int64(far)] > 2 {
			g.removeArc(i)
		}
	}
}

// bluntTrim is cascade step 3: when one side of an arc is a dead end
// (its scaffold's other end carries no arcs at all) but the other side
// continues on, the arc is dropped rather than treated as a real join.
func (g *ScaffoldGraph) bluntTrim() {
	for u := range g.arcRange {
		uTerminal := g.degree(u.Mate()) == 0
		for _, i := range g.activeArcs(u) {
			a := g.Arcs[i]
			vTerminal := g.degree(a.To.Mate()) == 0
			if uTerminal != vTerminal {
				g.removeArc(i)
			}
		}
	}
}

// repeatTrim is cascade step 4: a node with combined degree > 2 and no
// arc dominating the runner-up by beta is flagged as a repeat junction;
// all of its arcs are removed.
func (g *ScaffoldGraph) repeatTrim() {
	for u := range g.arcRange {
		if g.degree(u) <= 2 {
			continue
		}
		var wmax, wsecond float64
		for _, i := range g.activeArcs(u) {
			w := g.Arcs[i].Weight
			if w > wmax {
				wmax, wsecond = w, wmax
			} else if w > wsecond {
				wsecond = w
			}
		}
		if wmax <= 0 {
			continue
		}
		if wsecond/wmax > g.Config.BetaRatio {
			for _, i := range g.activeArcs(u) {
				g.removeArc(i)
			}
		}
	}
}

// transitiveReduction is cascade step 5: if u->v, v->w (via v's mate, a
// pass-through), and u->w all exist, and weight(u->w) does not exceed
// tau times the weaker of the two hops, u->w is redundant and dropped.
func (g *ScaffoldGraph) transitiveReduction() {
	type key struct{ from, to End }
	direct := make(map[key]int)
	for i, a := range g.Arcs {
		if !a.Removed {
			direct[key{a.From, a.To}] = i
		}
	}
	for u := range g.arcRange {
		for _, iUV := range g.activeArcs(u) {
			v := g.Arcs[iUV].To
			for _, iVW := range g.activeArcs(v.Mate()) {
				w := g.Arcs[iVW].To
				iUW, ok := direct[key{u, w}]
				if !ok || g.Arcs[iUW].Removed {
					continue
				}
				threshold := minF(g.Arcs[iUV].Weight, g.Arcs[iVW].Weight) * g.Config.TransitiveTau
				if g.Arcs[iUW].Weight <= threshold {
					g.removeArc(iUW)
				}
			}
		}
	}
}

// bubblePop is cascade step 6: when u reaches the same end w via two or
// more distinct pass-through scaffolds, only the heaviest of the
// parallel two-hop paths survives.
func (g *ScaffoldGraph) bubblePop() {
	type key struct{ from, to End }
	paths := make(map[key][]int) // arc index of the u->mid leg, per (u, w)
	for u := range g.arcRange {
		for _, i := range g.activeArcs(u) {
			mid := g.Arcs[i].To
			for _, j := range g.activeArcs(mid.Mate()) {
				w := g.Arcs[j].To
				paths[key{u, w}] = append(paths[key{u, w}], i)
			}
		}
	}
	for _, legs := range paths {
		if len(legs) < 2 {
			continue
		}
		bestI, bestW := -1, -1.0
		for _, i := range legs {
			if !g.Arcs[i].Removed && g.Arcs[i].Weight > bestW {
				bestI, bestW = i, g.Arcs[i].Weight
			}
		}
		for _, i := range legs {
			if i != bestI {
				g.removeArc(i)
			}
		}
	}
}

// weakEdgeTrim is cascade step 7: arcs with absolute weight below delta
// are dropped outright regardless of local ranking.
func (g *ScaffoldGraph) weakEdgeTrim() {
	for i, a := range g.Arcs {
		if !a.Removed && a.Weight < g.Config.WeakEdgeDelta {
			g.removeArc(i)
		}
	}
}

// selfLoopTrim is cascade step 8: an arc from a scaffold end back to its
// own mate (a degenerate self-join) is dropped.
func (g *ScaffoldGraph) selfLoopTrim() {
	for i, a := range g.Arcs {
		if !a.Removed && a.To == a.From.Mate() {
			g.removeArc(i)
		}
	}
}

// ambiguousEdgeTrim runs once after the cascade converges: any node that
// still carries two or more outgoing arcs keeps only the single one that
// dominates the rest by beta; if none dominates, all are dropped rather
// than guess.
func (g *ScaffoldGraph) ambiguousEdgeTrim() {
	for u := range g.arcRange {
		arcs := g.activeArcs(u)
		if len(arcs) < 2 {
			continue
		}
		wmax := 0.0
		dominant := -1
		for _, i := range arcs {
			if g.Arcs[i].Weight > wmax {
				wmax, dominant = g.Arcs[i].Weight, i
			}
		}
		ambiguous := wmax == 0
		if !ambiguous {
			for _, i := range arcs {
				if i == dominant {
					continue
				}
				if g.Arcs[i].Weight/wmax >= g.Config.BetaRatio {
					ambiguous = true
					break
				}
			}
		}
		if ambiguous {
			for _, i := range arcs {
				g.removeArc(i)
			}
			continue
		}
		for _, i := range arcs {
			if i != dominant {
				g.removeArc(i)
			}
		}
	}
}

// undirectedMirror builds a gonum simple.UndirectedGraph over active
// arcs, used by tip trim's component-size query.
func (g *ScaffoldGraph) undirectedMirror() graph.Undirected {
	ug := simple.NewUndirectedGraph()
	for u := range g.arcRange {
		if !ug.HasNode(int64(u)) {
			ug.AddNode(simple.Node(u))
		}
	}
	for _, a := range g.Arcs {
		if a.Removed {
			continue
		}
		if !ug.HasNode(int64(a.From)) {
			ug.AddNode(simple.Node(a.From))
		}
		if !ug.HasNode(int64(a.To)) {
			ug.AddNode(simple.Node(a.To))
		}
		ug.SetEdge(simple.Edge{F: simple.Node(a.From), T: simple.Node(a.To)})
	}
	return ug
}

// directedMirror builds a gonum simple.DirectedGraph over active arcs,
// used for the residual-cycle check before path extraction.
func (g *ScaffoldGraph) directedMirror() graph.Directed {
	dg := simple.NewDirectedGraph()
	for _, a := range g.Arcs {
		if a.Removed {
			continue
		}
		if !dg.HasNode(int64(a.From)) {
			dg.AddNode(simple.Node(a.From))
		}
		if !dg.HasNode(int64(a.To)) {
			dg.AddNode(simple.Node(a.To))
		}
		dg.SetEdge(simple.Edge{F: simple.Node(a.From), T: simple.Node(a.To)})
	}
	return dg
}

// HasResidualCycle reports whether the pruned graph still contains a
// directed cycle, via gonum's topo.Cyclic. Extraction below handles
// residual cycles itself by breaking at the weakest arc; this is kept as
// an independent check a caller can log against.
func (g *ScaffoldGraph) HasResidualCycle() bool {
	return topo.Cyclic(g.directedMirror())
}

// PathStep is one oriented scaffold placed into an output path.
type PathStep struct {
	ScaffoldID  uint32
	Orientation byte // '+' as stored, '-' reversed
}

// arcStep is one edge of a graph walk: either a real scoring arc
// (Sister == false) or the implicit pass-through hop from one end of a
// scaffold to its mate (Sister == true, Weight == 0) -- the generalized
// equivalent of the teacher's Edge{a, b, weight} with isSister().
type arcStep struct {
	From, To End
	Weight   float64
	Sister   bool
}

// ExtractPaths walks every connected component of the pruned graph into
// an ordered, oriented scaffold path, per spec §4.6 "Path extraction".
// Every scaffold appears in exactly one output path (spec §8 property
// 5); residual cycles are broken at their weakest cross arc. This is the
// direct generalization of the teacher's generatePathAndCycle/dfs/
// mergePath/reversePath/breakCycle, operating over End ids and Arc
// indices instead of *Node pointers and a map-of-maps Graph.
func (g *ScaffoldGraph) ExtractPaths() [][]PathStep {
	visited := make(map[End]bool, 2*g.NumScaffolds)
	var paths [][]PathStep
	for sid := uint32(0); sid < uint32(g.NumScaffolds); sid++ {
		a := NewEnd(sid, Side5)
		if visited[a] {
			continue
		}
		b := a.Mate()
		if g.degree(a) == 0 && g.degree(b) == 0 {
			// Untouched by any arc on either end: the teacher's
			// generatePathAndCycle never walks singleton contigs at all,
			// so they keep their pre-existing identity orientation
			// instead of going through the sister-hop stitch below
			// (which, for a degree-0 node, spuriously reverses it).
			visited[a], visited[b] = true, true
			paths = append(paths, []PathStep{{ScaffoldID: sid, Orientation: '+'}})
			continue
		}
		upstream, isCycle := g.dfs(a, nil, visited, true)
		var full []arcStep
		if isCycle {
			full = breakCycle(upstream)
		} else { // upstream search returns a path, stitch the downstream walk on
			delete(visited, a)
			downstream, _ := g.dfs(a, nil, visited, false)
			full = append(reversePath(upstream), downstream...)
		}
		if path := mergePath(full); len(path) > 0 {
			paths = append(paths, path)
		}
	}
	log.Infof("Extracted %d paths covering %d scaffolds", len(paths), g.NumScaffolds)
	return paths
}

// dfs visits nodes in DFS order, alternating between a pass-through
// (sister) hop and a real scoring arc, starting in sister mode when
// visitSister is true. Returns the walked steps and whether a node
// already on the path was revisited (a residual cycle).
func (g *ScaffoldGraph) dfs(a End, path []arcStep, visited map[End]bool, visitSister bool) ([]arcStep, bool) {
	if visited[a] {
		return path, true
	}
	visited[a] = true
	if visitSister {
		path = append(path, arcStep{From: a, To: a.Mate(), Sister: true})
		return g.dfs(a.Mate(), path, visited, false)
	}
	arcs := g.activeArcs(a)
	if len(arcs) == 0 {
		return path, false
	}
	nb := g.Arcs[arcs[0]]
	path = append(path, arcStep{From: a, To: nb.To, Weight: nb.Weight})
	return g.dfs(nb.To, path, visited, true)
}

// reversePath reverses step order and swaps each step's From/To, used to
// stitch the upstream half of a walk ahead of the downstream half.
func reversePath(path []arcStep) []arcStep {
	out := make([]arcStep, len(path))
	for i, s := range path {
		out[len(path)-1-i] = arcStep{From: s.To, To: s.From, Weight: s.Weight, Sister: s.Sister}
	}
	return out
}

// breakCycle cuts a cyclic walk at its weakest cross (non-sister) arc
// and rotates the path to start just after the cut, per spec §4.6
// "remaining cycles are broken at the weakest arc".
func breakCycle(path []arcStep) []arcStep {
	weakest, weakestW := -1, -1.0
	for i, s := range path {
		if s.Sister {
			continue
		}
		if weakest < 0 || s.Weight < weakestW {
			weakest, weakestW = i, s.Weight
		}
	}
	if weakest < 0 {
		return path
	}
	return append(append([]arcStep{}, path[weakest+1:]...), path[:weakest+1]...)
}

// mergePath collapses a walk's sister steps into the ordered, oriented
// scaffold path it represents: entering a scaffold at its 5' end means
// forward orientation, entering at its 3' end means reversed.
func mergePath(path []arcStep) []PathStep {
	var out []PathStep
	for _, s := range path {
		if !s.Sister {
			continue
		}
		orient := byte('+')
		if s.From.Side() == Side3 {
			orient = '-'
		}
		out = append(out, PathStep{ScaffoldID: s.From.Scaffold(), Orientation: orient})
	}
	return out
}
