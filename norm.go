package allhic

import (
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormCurve is the Normalization Model's fitted expected-count curve:
// E[d] for bin-distance d in [0, RMax], monotonically non-increasing
// (spec §3 invariant), plus the global no-data floor and the qla
// quality-limited threshold graph construction consults.
type NormCurve struct {
	E     []float64
	RMax  int
	Floor float64
	QLA   float64
}

// At returns E[d], clamping d into [0, RMax].
func (n *NormCurve) At(d int) float64 {
	if d < 0 {
		d = 0
	}
	if d > n.RMax {
		d = n.RMax
	}
	if len(n.E) == 0 {
		return 0
	}
	return n.E[d]
}

// FitNormalization fits E[d] from the intra matrices, per spec §4.4:
// bucket all cells with denominator > epsilon by integer bin-distance,
// trimmed-mean each bucket with >= MinBucketSamples, discard trailing
// under-sampled buckets, enforce monotonicity via isotonic regression,
// and compute qla.
func FitNormalization(intra map[uint32]*BandedMatrix, cfg *Config) (*NormCurve, error) {
	buckets := make(map[int][]float64)
	maxBand := 0
	for _, m := range intra {
		if m.Band > maxBand {
			maxBand = m.Band
		}
		for i := 0; i < m.Dim; i++ {
			for k := 0; k <= m.Band && i+k < m.Dim; k++ {
				denom := m.Denom[i][k]
				if denom <= cfg.DenominatorFloor {
					continue
				}
				count := m.Counts[i][k]
				buckets[k] = append(buckets[k], count/denom)
			}
		}
	}

	means := make([]float64, maxBand+1)
	retained := make([]bool, maxBand+1)
	rMax := -1
	for d := 0; d <= maxBand; d++ {
		samples := buckets[d]
		if len(samples) < cfg.MinBucketSamples {
			// Spec: discard the *last* buckets below K_min; a gap in the
			// middle still counts as the end of the retained run.
			break
		}
		means[d] = TrimmedMean(samples, 0.1)
		retained[d] = true
		rMax = d
	}
	if rMax < cfg.MinBands {
		return nil, newError(NoBands, "normalization curve", nil)
	}

	e := isotonicNonIncreasing(means[:rMax+1])

	var allVals []float64
	for d := 0; d <= rMax; d++ {
		for range buckets[d] {
			allVals = append(allVals, e[d])
		}
	}
	la := stat.Mean(allVals, nil)

	n0 := averageDenominator(intra, cfg)
	qla := la
	if n0 > 0 && la > 0 && la < 1 {
		b := distuv.Binomial{N: n0, P: la}
		qla = b.Quantile(0.99) / n0
	}

	return &NormCurve{E: e, RMax: rMax, Floor: cfg.DenominatorFloor, QLA: qla}, nil
}

// averageDenominator computes the mean per-cell normalization
// denominator over all valid intra cells, used as the Binomial trial
// count n0 in the qla computation.
func averageDenominator(intra map[uint32]*BandedMatrix, cfg *Config) float64 {
	var sum float64
	var n int
	for _, m := range intra {
		for i := 0; i < m.Dim; i++ {
			for k := 0; k <= m.Band && i+k < m.Dim; k++ {
				d := m.Denom[i][k]
				if d <= cfg.DenominatorFloor {
					continue
				}
				sum += d
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// isotonicNonIncreasing runs pool-adjacent-violators to produce the
// least-squares non-increasing fit of xs (pooled values may lie above or
// below individual inputs), by reversing, running the standard
// non-decreasing PAVA, and reversing back.
func isotonicNonIncreasing(xs []float64) []float64 {
	n := len(xs)
	rev := make([]float64, n)
	for i, x := range xs {
		rev[n-1-i] = x
	}
	pooled := pavaNonDecreasing(rev)
	out := make([]float64, n)
	for i, x := range pooled {
		out[n-1-i] = x
	}
	return out
}

// pavaNonDecreasing is the classic pool-adjacent-violators algorithm: the
// weighted-mean stack merge that produces the isotonic (non-decreasing)
// regression of xs under squared-error loss. No gonum package implements
// this (see DESIGN.md); it's a small, self-contained stack pass specific
// to this monotonicity invariant.
func pavaNonDecreasing(xs []float64) []float64 {
	type block struct {
		sum    float64
		weight float64
		count  int
	}
	var blocks []block
	for _, x := range xs {
		b := block{sum: x, weight: 1, count: 1}
		blocks = append(blocks, b)
		for len(blocks) > 1 && blocks[len(blocks)-2].sum/blocks[len(blocks)-2].weight > blocks[len(blocks)-1].sum/blocks[len(blocks)-1].weight {
			last := blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			blocks[len(blocks)-1].sum += last.sum
			blocks[len(blocks)-1].weight += last.weight
			blocks[len(blocks)-1].count += last.count
		}
	}
	out := make([]float64, 0, len(xs))
	for _, b := range blocks {
		mean := b.sum / b.weight
		for i := 0; i < b.count; i++ {
			out = append(out, mean)
		}
	}
	return out
}
