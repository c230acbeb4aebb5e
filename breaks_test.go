package allhic

import "testing"

// splitContigMatrix builds a two-segment scaffold's banded matrix where
// cross-segment cells (straddling the midpoint) carry far fewer counts
// than within-segment cells, mimicking scenario S3's mis-assembly cut
// profile.
func splitContigMatrix(dim, band, mid int) *BandedMatrix {
	m := newBandedMatrix(dim, band)
	for i := 0; i < dim; i++ {
		for k := 0; k <= band && i+k < dim; k++ {
			j := i + k
			m.Denom[i][k] = 1
			if (i < mid) != (j < mid) {
				m.Counts[i][k] = 0.01 // cross-join: almost no support
			} else {
				m.Counts[i][k] = 10 // within-segment: strong support
			}
		}
	}
	return m
}

func flatNorm(band int) *NormCurve {
	e := make([]float64, band+1)
	for i := range e {
		e[i] = 1
	}
	return &NormCurve{E: e, RMax: band, Floor: 1e-9, QLA: 1}
}

// TestDetectInternalFindsMisassemblyCut mirrors scenario S3: a single
// contig whose first and second half share almost no cross-pairs
// produces a break candidate near the midpoint.
func TestDetectInternalFindsMisassemblyCut(t *testing.T) {
	resolution := 10000
	dim, band, mid := 200, 20, 100

	d := NewDictionary(0)
	cA, _ := d.Put("A", dim*resolution)
	l := newLayout()
	l.addScaffold("scafA", []Segment{{ContigID: cA, Start: 0, Length: uint32(dim * resolution), Orientation: '+'}}, 0)
	l.index()

	cfg := DefaultConfig()
	cfg.DropRatio = 0.65
	cfg.MergeThresh = resolution
	cfg.DualBreakThresh = resolution

	intra := map[uint32]*BandedMatrix{0: splitContigMatrix(dim, band, mid)}
	detector := NewBreakDetector(l, flatNorm(band), cfg)
	breaks := detector.DetectInternal(intra, resolution)

	if len(breaks) == 0 {
		t.Fatalf("DetectInternal found no breaks, want a cut near bin %d", mid)
	}
	for _, b := range breaks {
		if b.ContigID != cA {
			t.Errorf("break on contig %d, want %d", b.ContigID, cA)
		}
		wantPos := uint32(mid * resolution)
		lo, hi := wantPos-uint32(5*resolution), wantPos+uint32(5*resolution)
		if b.Pos < lo || b.Pos > hi {
			t.Errorf("break at pos %d, want within [%d, %d] of midpoint %d", b.Pos, lo, hi, wantPos)
		}
	}
}

// TestMergeAdjacentCollapsesCloseCandidates checks that two candidates
// within mergeThresh bins collapse into one.
func TestMergeAdjacentCollapsesCloseCandidates(t *testing.T) {
	cands := []candidate{{bin: 10}, {bin: 12}, {bin: 50}}
	out := mergeAdjacent(cands, 5)
	if len(out) != 2 {
		t.Fatalf("mergeAdjacent(%v, 5) = %v, want 2 candidates", cands, out)
	}
	if out[0].bin != 10 || out[1].bin != 50 {
		t.Errorf("mergeAdjacent(%v, 5) = %v, want bins [10, 50]", cands, out)
	}
}

// TestCoalesceDualPairsSymmetricDrops checks that two candidates within
// dualThresh collapse into a marked dual pair rather than two separate
// single breaks.
func TestCoalesceDualPairsSymmetricDrops(t *testing.T) {
	cands := []candidate{{bin: 10}, {bin: 14}}
	out := coalesceDual(cands, 10)
	if len(out) != 2 || !out[0].dual || !out[1].dual {
		t.Errorf("coalesceDual(%v, 10) = %v, want both marked dual", cands, out)
	}
}

// TestDetectInternalIdempotentOnUniformProfile checks spec property 6's
// spirit at the detector level: a scaffold with no cut profile (uniform
// support throughout) yields zero break candidates, so re-running
// detection after a successful break application finds nothing further.
func TestDetectInternalIdempotentOnUniformProfile(t *testing.T) {
	resolution := 10000
	dim, band := 100, 10

	d := NewDictionary(0)
	cA, _ := d.Put("A", dim*resolution)
	l := newLayout()
	l.addScaffold("scafA", []Segment{{ContigID: cA, Start: 0, Length: uint32(dim * resolution), Orientation: '+'}}, 0)
	l.index()

	cfg := DefaultConfig()
	cfg.DropRatio = 0.5

	m := newBandedMatrix(dim, band)
	for i := 0; i < dim; i++ {
		for k := 0; k <= band && i+k < dim; k++ {
			m.Denom[i][k] = 1
			m.Counts[i][k] = 10
		}
	}
	detector := NewBreakDetector(l, flatNorm(band), cfg)
	breaks := detector.DetectInternal(map[uint32]*BandedMatrix{0: m}, resolution)
	if len(breaks) != 0 {
		t.Errorf("DetectInternal on a uniform profile found %d breaks, want 0", len(breaks))
	}
}
