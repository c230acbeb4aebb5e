package allhic

import "gonum.org/v1/gonum/stat"

// BreakKind distinguishes a contig-internal break from one detected at an
// existing scaffold join (spec §3 Break Point).
type BreakKind int

const (
	BreakInternal BreakKind = iota
	BreakJointLocal
)

// BreakPoint is a candidate mis-join location, in source-contig
// coordinates (spec §3).
type BreakPoint struct {
	ContigID uint32
	Pos      uint32
	Kind     BreakKind
	// Dual marks a break produced by coalescing two symmetric drops that
	// flank a candidate; both sides are cut.
	Dual bool
}

// BreakDetector finds mis-assembly signals from the intra matrix, per
// spec §4.5. Both modes share the same window (D) and drop-ratio
// threshold.
type BreakDetector struct {
	Layout *Layout
	Norm   *NormCurve
	Config *Config
}

// NewBreakDetector binds a detector to the current round's layout and
// fitted normalization curve.
func NewBreakDetector(layout *Layout, norm *NormCurve, cfg *Config) *BreakDetector {
	return &BreakDetector{Layout: layout, Norm: norm, Config: cfg}
}

// DetectInternal runs the contig-internal break mode over every
// scaffold's intra matrix, per spec §4.5: for each bin i, L(i) is the
// ratio of observed local link support to expected local link support
// summed over a window of k = 1..Band; a break candidate is a local
// minimum where L drops below rho * running_mean, with adjacent
// candidates merged and symmetric pairs coalesced into dual breaks.
func (d *BreakDetector) DetectInternal(intra map[uint32]*BandedMatrix, resolution int) []BreakPoint {
	var breaks []BreakPoint
	for sid, m := range intra {
		ls := localSupportProfile(m, d.Norm)
		candidates := dropCandidates(ls, d.Config.DropRatio)
		// The first and last bins have no k-window inside the scaffold, so
		// their L is 0 by construction rather than a drop in support.
		inner := candidates[:0]
		for _, c := range candidates {
			if c.bin > 0 && c.bin < m.Dim-1 {
				inner = append(inner, c)
			}
		}
		candidates = mergeAdjacent(innercandidates, d.Config.MergeThresh/resolution)
		candidates = coalesceDual(candidates, d.Config.DualBreakThresh/resolution)
		for _, c := range candidates {
			pos := uint32(c.bin*resolution) + uint32(resolution/2)
			cid, cpos, ok := d.Layout.ReverseAt(sid, pos)
			if !ok {
				continue
			}
			breaks = append(breaks, BreakPoint{ContigID: cid, Pos: cpos, Kind: BreakInternal, Dual: c.dual})
		}
	}
	return breaks
}

// localSupportProfile computes L(i) = sum_k count(i-k,i+k) / sum_k
// E[2k] for k = 1..Band, per scaffold bin.
func localSupportProfile(m *BandedMatrix, norm *NormCurve) []float64 {
	l := make([]float64, m.Dim)
	for i := 0; i < m.Dim; i++ {
		var obs, exp float64
		for k := 1; k <= m.Band; k++ {
			lo, hi := i-k, i+k
			if lo < 0 || hi >= m.Dim {
				continue
			}
			obs += m.Get(lo, i) + m.Get(i, hi)
			exp += 2 * norm.At(2 * k)
		}
		if exp > 0 {
			l[i] = obs / exp
		}
	}
	return l
}

type candidate struct {
	bin  int
	dual bool
}

// dropCandidates finds local minima of ls that fall below rho times the
// running mean of ls up to that point.
func dropCandidates(ls []float64, rho float64) []candidate {
	var out []candidate
	var runningSum float64
	for i, v := range ls {
		runningSum += v
		runningMean := runningSum / float64(i+1)
		if runningMean <= 0 {
			continue
		}
		if v >= rho*runningMean {
			continue
		}
		if !isLocalMin(ls, i) {
			continue
		}
		out = append(out, candidate{bin: i})
	}
	return out
}

func isLocalMin(ls []float64, i int) bool {
	if i > 0 && ls[i-1] < ls[i] {
		return false
	}
	if i < len(ls)-1 && ls[i+1] < ls[i] {
		return false
	}
	return true
}

// mergeAdjacent coalesces candidates within mergeThresh bins of the last
// kept candidate into that candidate, so the earliest bin of each run
// survives; drop depth is not compared.
func mergeAdjacent(cands []candidate, mergeThresh int) []candidate {
	if len(cands) == 0 {
		return cands
	}
	out := []candidate{cands[0]}
	for _, c := range cands[1:] {
		last := &out[len(out)-1]
		if c.bin-last.bin <= mergeThresh {
			continue
		}
		out = append(out, c)
	}
	return out
}

// coalesceDual marks two consecutive candidates within dualThresh bins of
// each other as a dual pair: both stay in the output, each flagged dual,
// so both flanking positions are cut.
func coalesceDual(cands []candidate, dualThresh int) []candidate {
	var out []candidate
	i := 0
	for i < len(cands) {
		if i+1 < len(cands) && cands[i+1].bin-cands[i].bin <= dualThresh {
			out = append(out, candidate{bin: cands[i].bin, dual: true}, candidate{bin: cands[i+1].bin, dual: true})
			i += 2
			continue
		}
		out = append(out, cands[i])
		i++
	}
	return out
}

// DetectScaffoldJoints runs the scaffold-joint break mode, per spec
// §4.5: only existing segment-join positions are considered. For each
// join, the link support within flanks of width F across the join is
// compared to within-segment control support; a cut is emitted when
// support is below rho * control.
func (d *BreakDetector) DetectScaffoldJoints(intra map[uint32]*BandedMatrix, resolution int) []BreakPoint {
	var breaks []BreakPoint
	flankBins := ceilDiv(d.Config.FlankWindow, resolution)
	for sid, m := range intra {
		for _, join := range d.Layout.JoinPositions(uint32(sid)) {
			joinBin := int(join) / resolution
			support := crossSupport(m, joinBin, flankBins)
			control := controlSupport(m, joinBin, flankBins)
			if control <= 0 {
				continue
			}
			if support >= d.Config.DropRatio*control {
				continue
			}
			cid, cpos, ok := d.Layout.ReverseAt(uint32(sid), join)
			if !ok {
				continue
			}
			breaks = append(breaks, BreakPoint{ContigID: cid, Pos: cpos, Kind: BreakJointLocal})
		}
	}
	return breaks
}

// crossSupport sums observed link counts between bins straddling
// joinBin within flankBins on each side.
func crossSupport(m *BandedMatrix, joinBin, flankBins int) float64 {
	var sum float64
	for i := joinBin - flankBins; i < joinBin; i++ {
		if i < 0 {
			continue
		}
		for j := joinBin; j < joinBin+flankBins && j < m.Dim; j++ {
			sum += m.Get(i, j)
		}
	}
	return sum
}

// controlSupport sums observed link counts entirely within one side's
// flank window (same-segment control), averaged over the two sides.
func controlSupport(m *BandedMatrix, joinBin, flankBins int) float64 {
	var left, right []float64
	for i := joinBin - flankBins; i < joinBin; i++ {
		for j := i + 1; j < joinBin; j++ {
			if i < 0 {
				continue
			}
			left = append(left, m.Get(i, j))
		}
	}
	for i := joinBin; i < joinBin+flankBins && i < m.Dim; i++ {
		for j := i + 1; j < joinBin+flankBins && j < m.Dim; j++ {
			right = append(right, m.Get(i, j))
		}
	}
	lm, rm := stat.Mean(left, nil), stat.Mean(right, nil)
	return (lm + rm) / 2 * float64(flankBins)
}
