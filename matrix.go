package allhic

import (
	"io"
)

// cellSize approximates sizeof(cell) in bytes for the memory estimator:
// one float64 count plus one float64 denominator.
const cellSize = 16

// BandedMatrix is the Intra Link Matrix for one scaffold: a triangular
// band over bins of width r, storing only cells with bin-distance <=
// Band (spec §3). Storage is diagonal: row i, column k holds cell
// (i, i+k).
type BandedMatrix struct {
	Dim    int // number of bins, B_s = ceil(L/r)
	Band   int // D/r, max stored bin-distance
	Counts [][]float64
	Denom  [][]float64
}

func newBandedMatrix(dim, band int) *BandedMatrix {
	if band >= dim {
		band = dim - 1
	}
	if band < 0 {
		band = 0
	}
	return &BandedMatrix{
		Dim:    dim,
		Band:   band,
		Counts: Make2DFloatSlice(dim, band+1),
		Denom:  Make2DFloatSlice(dim, band+1),
	}
}

// Add accumulates one pair count into cell (i, j), storing canonically
// with i <= j. Pairs outside the band are dropped.
func (m *BandedMatrix) Add(i, j int, v float64) {
	if i > j {
		i, j = j, i
	}
	k := j - i
	if k > m.Band {
		return
	}
	m.Counts[i][k] += v
}

// addDenom accumulates into the parallel denominator matrix.
func (m *BandedMatrix) addDenom(i, j int, v float64) {
	if i > j {
		i, j = j, i
	}
	k := j - i
	if k > m.Band {
		return
	}
	m.Denom[i][k] += v
}

// Get queries cell (i, j) symmetrically (spec §8 property 3: "intra[i][j]
// = intra[j][i] always").
func (m *BandedMatrix) Get(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	k := j - i
	if k > m.Band || i >= m.Dim {
		return 0
	}
	return m.Counts[i][k]
}

// MatrixBuilder builds intra and inter link matrices by scanning the
// Link Store once per mode, per spec §4.3.
type MatrixBuilder struct {
	Dict   *Dictionary
	Layout *Layout
	Oracle RestrictionSiteOracle
	Config *Config
}

// NewMatrixBuilder constructs a builder bound to the current round's
// dictionary, layout, and restriction-site oracle.
func NewMatrixBuilder(dict *Dictionary, layout *Layout, oracle RestrictionSiteOracle, cfg *Config) *MatrixBuilder {
	if oracle == nil {
		oracle = NoEnzymeOracle{}
	}
	return &MatrixBuilder{Dict: dict, Layout: layout, Oracle: oracle, Config: cfg}
}

// EstimateIntraBytes reports the conservative upper-bound byte cost of
// building intra matrices at the given resolution (spec §4.3 memory
// estimate: sum_s B_s x D/r x sizeof(cell)).
func (b *MatrixBuilder) EstimateIntraBytes(resolution int) int64 {
	band := b.Config.BandMax / resolution
	var total int64
	for _, s := range b.Layout.Scaffolds {
		bs := int64(ceilDiv(int(s.Length), resolution))
		bandEff := int64(band)
		if bandEff > bs {
			bandEff = bs
		}
		total += bs * (bandEff + 1) * cellSize
	}
	return total
}

// EstimateInterBytes reports the sparsified upper bound N x N x 4 x
// sizeof(cell) for the inter matrix (spec §4.3).
func (b *MatrixBuilder) EstimateInterBytes() int64 {
	n := int64(len(b.Layout.Scaffolds))
	return n * n * 4 * cellSize
}

func ceilDiv(a, r int) int {
	if r <= 0 {
		return 0
	}
	return (a + r - 1) / r
}

// BuildIntra scans r for records entirely inside a single scaffold,
// accumulating the banded count and normalization-denominator matrices
// for every scaffold, per spec §4.3 "Intra build".
func (b *MatrixBuilder) BuildIntra(store *LinkStore, r io.Reader, resolution int) (map[uint32]*BandedMatrix, error) {
	cfg := b.Config
	band := cfg.BandMax / resolution
	matrices := make(map[uint32]*BandedMatrix, len(b.Layout.Scaffolds))
	for sid, s := range b.Layout.Scaffolds {
		dim := ceilDiv(int(s.Length), resolution)
		matrices[uint32(sid)] = newBandedMatrix(dim, band)
	}

	for sid := range matrices {
		eff, cuts := b.binEffectiveAndCuts(uint32(sid), resolution)
		m := matrices[sid]
		for i := 0; i < m.Dim; i++ {
			for k := 0; k <= m.Band && i+k < m.Dim; k++ {
				j := i + k
				var denom float64
				if len(cfg.Enzymes) > 0 {
					denom = minF(float64(cuts[i]), float64(cuts[j]))
				} else {
					denom = eff[i] * eff[j]
				}
				m.Denom[i][k] = denom
			}
		}
	}

	err := store.Scan(r, b.Layout, cfg.MinMapQ, func(rec MappedRecord) error {
		if rec.ScaffoldA != rec.ScaffoldB {
			return nil // intra build only: inter-scaffold pairs handled by BuildInter
		}
		m, ok := matrices[rec.ScaffoldA]
		if !ok {
			return nil
		}
		i := int(rec.PosA) / resolution
		j := int(rec.PosB) / resolution
		if i >= m.Dim || j >= m.Dim {
			return nil
		}
		m.Add(i, j, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matrices, nil
}

// binEffectiveAndCuts computes, for each bin of scaffold sid at the given
// resolution, the effective non-gap size and the restriction-site cut
// count, by walking the scaffold's segments and querying the oracle over
// each segment's overlap with each bin.
func (b *MatrixBuilder) binEffectiveAndCuts(sid uint32, resolution int) (eff []float64, cuts []int) {
	s := b.Layout.Scaffolds[sid]
	dim := ceilDiv(int(s.Length), resolution)
	eff = make([]float64, dim)
	cuts = make([]int, dim)

	for i := 0; i < dim; i++ {
		binStart := uint32(i * resolution)
		binEnd := binStart + uint32(resolution)
		if binEnd > s.Length {
			binEnd = s.Length
		}
		eff[i] = float64(binEnd - binStart)
	}

	for segIdx := 0; segIdx < s.SegCount; segIdx++ {
		seg := b.Layout.Segments[s.SegStart+segIdx]
		segBeg := seg.ScaffoldOffset
		segEnd := seg.ScaffoldOffset + seg.Length
		contigName := b.Dict.Entry(seg.ContigID).Name

		firstBin := int(segBeg) / resolution
		lastBin := int(segEnd-1) / resolution
		for i := firstBin; i <= lastBin && i < dim; i++ {
			binStart := uint32(i * resolution)
			binEnd := binStart + uint32(resolution)
			if binEnd > s.Length {
				binEnd = s.Length
			}
			overlapBeg := maxU32(binStart, segBeg)
			overlapEnd := minU32(binEnd, segEnd)
			if overlapEnd <= overlapBeg {
				continue
			}
			// Translate the scaffold-space overlap back to contig space.
			var contigBeg, contigLen uint32
			if seg.Orientation == '-' {
				off1 := segEnd - overlapEnd
				off2 := segEnd - overlapBeg
				contigBeg = seg.Start + off1
				contigLen = off2 - off1
			} else {
				contigBeg = seg.Start + (overlapBeg - segBeg)
				contigLen = overlapEnd - overlapBeg
			}
			cuts[i] += b.Oracle.CutSites(contigName, contigBeg, contigLen)
		}
	}
	return eff, cuts
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// InterEnd is '5' (0) or '3' (1), the two flank buckets a scaffold end
// can belong to.
type InterEnd int

const (
	End5 InterEnd = 0
	End3 InterEnd = 1
)

// ScaffoldPair is a canonical (s <= t) ordered pair of scaffolds with at
// least one non-trivial inter bucket.
type ScaffoldPair struct {
	A, B uint32
}

// InterBucket is one of the four end-combination buckets for a scaffold
// pair: raw pair count, its normalization denominator, and the resulting
// normalized score (spec §3 Inter Link Matrix).
type InterBucket struct {
	Count float64
	Denom float64
	Score float64
}

// InterEntry holds all four oriented buckets for one scaffold pair,
// indexed [endA*2+endB].
type InterEntry [4]InterBucket

func bucketIndex(endA, endB InterEnd) int { return int(endA)*2 + int(endB) }

// BuildInter scans r for cross-scaffold records inside each side's flank
// window, accumulating the four oriented buckets per scaffold pair and
// normalizing against the fitted curve, per spec §4.3 "Inter build".
func (b *MatrixBuilder) BuildInter(store *LinkStore, r io.Reader, resolution int, norm *NormCurve) (map[ScaffoldPair]*InterEntry, error) {
	cfg := b.Config
	flankBins := ceilDiv(cfg.FlankWindow, resolution)
	entries := make(map[ScaffoldPair]*InterEntry)

	err := store.Scan(r, b.Layout, cfg.MinMapQ, func(rec MappedRecord) error {
		if rec.ScaffoldA == rec.ScaffoldB {
			return nil
		}
		lenA := b.Layout.Scaffolds[rec.ScaffoldA].Length
		lenB := b.Layout.Scaffolds[rec.ScaffoldB].Length
		endsA := endSides(rec.PosA, lenA, uint32(cfg.FlankWindow))
		endsB := endSides(rec.PosB, lenB, uint32(cfg.FlankWindow))
		if len(endsA) == 0 || len(endsB) == 0 {
			return nil
		}
		pair := ScaffoldPair{A: rec.ScaffoldA, B: rec.ScaffoldB}
		e, ok := entries[pair]
		if !ok {
			e = &InterEntry{}
			entries[pair] = e
		}
		for _, endA := range endsA {
			for _, endB := range endsB {
				e[bucketIndex(endA, endB)].Count++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		for idx := range e {
			expected := expectedFlankSum(norm, flankBins)
			e[idx].Denom = expected
			if expected > 0 {
				e[idx].Score = e[idx].Count / expected
			}
		}
	}
	return entries, nil
}

// endSides reports every end of a scaffold (of the given length) that
// pos falls within flank bases of. Usually at most one (5' or 3'), but a
// scaffold shorter than 2*flank can have pos within flank of both ends
// at once, in which case the caller must count the record toward both
// bucket candidates rather than picking one arbitrarily.
func endSides(pos, length, flank uint32) []InterEnd {
	var ends []InterEnd
	if pos < flank {
		ends = append(ends, End5)
	}
	if length-pos <= flank {
		ends = append(ends, End3)
	}
	return ends
}

// expectedFlankSum sums E[d_eff] over every (i, j) bin pair inside two
// flank windows, under the hypothesis that the two scaffolds are joined
// end-to-end with zero gap at the boundary, so the implied bin distance
// between flank bin i (from one scaffold's chosen end) and flank bin j
// (from the other's) is i+j+1 (spec §4.3).
func expectedFlankSum(norm *NormCurve, flankBins int) float64 {
	var sum float64
	for i := 0; i < flankBins; i++ {
		for j := 0; j < flankBins; j++ {
			sum += norm.At(i + j + 1)
		}
	}
	return sum
}
