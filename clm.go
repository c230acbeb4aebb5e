/**
 * Filename: /Users/bao/code/allhic/allhic/clm.go
 * Path: /Users/bao/code/allhic/allhic
 * Created Date: Monday, January 1st 2018, 5:57:00 pm
 * Author: bao
 *
 * Copyright (c) 2018 Haibao Tang
 */

package allhic

import "math"

// DensityQC flags scaffolds whose inter-scaffold link density is a low
// outlier, adapted from the teacher's CLMFile.calculateDensities/
// pruneByDensity: the original scored per-contig CLM link counts against
// a robust log-density cutoff before tour search; here the same
// log10(links/min(length,500000)) idiom is applied per scaffold, sourced
// from the Inter Link Matrix, to flag scaffolds worth a closer look
// before break scanning (spec §4.5 is run regardless; this only informs
// diagnostics, it never removes a scaffold from scaffolding itself).
type DensityQC struct {
	Config *Config
}

// NewDensityQC binds a QC pass to the current round's configuration.
func NewDensityQC(cfg *Config) *DensityQC { return &DensityQC{Config: cfg} }

// Flag computes each scaffold's log10 link density and returns the set
// of scaffold ids below the robust lower outlier bound (utils.go's
// OutlierCutoff, itself adapted from this file's original pruneByDensity
// use of the same cutoff).
func (q *DensityQC) Flag(layout *Layout, inter map[ScaffoldPair]*InterEntry) map[uint32]bool {
	n := len(layout.Scaffolds)
	totalLinks := make([]float64, n)
	for pair, entry := range inter {
		var sum float64
		for _, b := range entry {
			sum += b.Count
		}
		totalLinks[pair.A] += sum
		totalLinks[pair.B] += sum
	}

	logDensities := make([]float64, n)
	for i, s := range layout.Scaffolds {
		size := float64(s.Length)
		if size > 500000 {
			size = 500000
		}
		if totalLinks[i] > 0 && size > 0 {
			logDensities[i] = math.Log10(totalLinks[i] / size)
		} else {
			logDensities[i] = math.Inf(-1)
		}
	}

	lb, ub := OutlierCutoff(logDensities)
	log.Infof("Log10(link_densities) ~ [%.5f, %.5f]", lb, ub)

	flagged := make(map[uint32]bool)
	for i, d := range logDensities {
		if d < lb {
			flagged[uint32(i)] = true
		}
	}
	log.Infof("Flagged %d/%d scaffolds as link-density outliers", len(flagged), n)
	return flagged
}
