package allhic

import (
	"fmt"
	"os"
	"sort"
)

// Driver is the Pipeline Driver state machine (spec §4.7): optional
// contig break, per-resolution scaffold rounds with NOMEM/NOBANDS
// handling, and finalization. It has no teacher analogue as a whole --
// the real ALLHiC's shell wrapper sequences the teacher's independent
// single-shot subcommands -- but its Run method follows the teacher
// Builder.Run/Build orchestration style: read, transform, write, one
// entry point per stage.
type Driver struct {
	Config *Config
	Dict   *Dictionary
	Oracle RestrictionSiteOracle
}

// NewDriver binds a driver to the dictionary and restriction-site oracle
// built for this run.
func NewDriver(cfg *Config, dict *Dictionary, oracle RestrictionSiteOracle) *Driver {
	if oracle == nil {
		oracle = NoEnzymeOracle{}
	}
	return &Driver{Config: cfg, Dict: dict, Oracle: oracle}
}

// openLinks reopens the link file for a fresh sequential scan; every
// stage gets its own reader per spec §5 ("input binary link files are
// read sequentially").
func openLinks(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(IOError, "opening "+path, err)
	}
	return f, nil
}

// Run executes the full state machine against linkPath, starting from
// seed (an identity layout, or one parsed from a seed AGP), and returns
// the final layout.
func (d *Driver) Run(linkPath string, seed *Layout) (*Layout, error) {
	store := NewLinkStore()
	layout := seed

	if d.Config.ContigBreak {
		var err error
		layout, err = d.runContigBreak(store, linkPath, layout)
		if err != nil {
			return nil, err
		}
	}

	terminated := false
	for _, resolution := range d.Config.Resolutions {
		next, status, err := d.runRound(store, linkPath, layout, resolution)
		switch status {
		case roundNOMEM:
			log.Warningf("NOMEM at resolution %d, advancing to next coarser resolution", resolution)
			continue
		case roundNOBANDS:
			log.Warningf("NOBANDS at resolution %d, terminating scaffolding early", resolution)
			terminated = true
		case roundOK:
			layout = next
		}
		if err != nil {
			return nil, err
		}
		if len(layout.Scaffolds) > d.Config.MaxScaffolds {
			return nil, newError(SeqLimit, fmt.Sprintf("scaffold count %d exceeds ceiling %d", len(layout.Scaffolds), d.Config.MaxScaffolds), nil)
		}
		if terminated {
			break
		}
	}

	return d.finalize(layout), nil
}

// runContigBreak is stage 1: iterate building the current layout's intra
// matrix at the finest configured resolution, detecting internal
// breaks, and applying them, until a round produces zero breaks (spec
// §4.7 step 1).
func (d *Driver) runContigBreak(store *LinkStore, linkPath string, layout *Layout) (*Layout, error) {
	ecResolution := d.Config.Resolutions[0]
	builder := NewMatrixBuilder(d.Dict, layout, d.Oracle, d.Config)

	for round := 0; ; round++ {
		f, err := openLinks(linkPath)
		if err != nil {
			return nil, err
		}
		intra, err := builder.BuildIntra(store, f, ecResolution)
		f.Close()
		if err != nil {
			return nil, err
		}

		norm, err := FitNormalization(intra, d.Config)
		if err != nil {
			log.Warningf("Contig-break round %d: %v, stopping contig break stage", round, err)
			return layout, nil
		}

		detector := NewBreakDetector(layout, norm, d.Config)
		breaks := detector.DetectInternal(intra, ecResolution)
		log.Infof("Contig-break round %d: %d candidate breaks", round, len(breaks))
		if len(breaks) == 0 {
			return layout, nil
		}
		layout = ApplyBreaks(layout, uint32(d.Config.GapSize), breaks)
		builder = NewMatrixBuilder(d.Dict, layout, d.Oracle, d.Config)

		if err := d.writeRoundAGP(layout, fmt.Sprintf("%s_ec%02d_break", d.Config.OutPrefix, round)); err != nil {
			return nil, err
		}
	}
}

type roundStatus int

const (
	roundOK roundStatus = iota
	roundNOMEM
	roundNOBANDS
)

// runRound is one scaffold round at a given resolution (spec §4.7 step
// 2): memory-check intra, fit norm, memory-check inter, build graph,
// prune, extract paths, write AGP, then optionally scaffold-joint break.
func (d *Driver) runRound(store *LinkStore, linkPath string, layout *Layout, resolution int) (*Layout, roundStatus, error) {
	builder := NewMatrixBuilder(d.Dict, layout, d.Oracle, d.Config)

	if d.Config.MemCheck && d.Config.RSSLimit > 0 {
		if est := builder.EstimateIntraBytes(resolution); est > d.Config.RSSLimit {
			log.Warningf("Intra estimate %d bytes exceeds RSS limit %d at resolution %d", est, d.Config.RSSLimit, resolution)
			return nil, roundNOMEM, nil
		}
	}

	f, err := openLinks(linkPath)
	if err != nil {
		return nil, roundOK, err
	}
	intra, err := builder.BuildIntra(store, f, resolution)
	f.Close()
	if err != nil {
		return nil, roundOK, err
	}

	norm, err := FitNormalization(intra, d.Config)
	if err != nil {
		if pe, ok := err.(*PipelineError); ok && pe.Kind == NoBands {
			return nil, roundNOBANDS, nil
		}
		return nil, roundOK, err
	}

	if d.Config.MemCheck && d.Config.RSSLimit > 0 {
		if est := builder.EstimateInterBytes(); est > d.Config.RSSLimit {
			log.Warningf("Inter estimate %d bytes exceeds RSS limit %d at resolution %d", est, d.Config.RSSLimit, resolution)
			return nil, roundNOMEM, nil
		}
	}

	f, err = openLinks(linkPath)
	if err != nil {
		return nil, roundOK, err
	}
	inter, err := builder.BuildInter(store, f, resolution, norm)
	f.Close()
	if err != nil {
		return nil, roundOK, err
	}

	qc := NewDensityQC(d.Config)
	qc.Flag(layout, inter)

	g := NewScaffoldGraph(len(layout.Scaffolds), inter, norm.QLA, d.Config)
	g.Prune()
	if g.HasResidualCycle() {
		log.Warningf("round %d: pruned graph still has a cycle, breaking weakest arc during path extraction", resolution)
	}
	paths := g.ExtractPaths()
	next := layoutFromPaths(layout, paths, uint32(d.Config.GapSize))

	label := fmt.Sprintf("%s_r%02d", d.Config.OutPrefix, resolution)
	if err := d.writeRoundAGP(next, label); err != nil {
		return nil, roundOK, err
	}

	if d.Config.ScaffoldBreak {
		f, err = openLinks(linkPath)
		if err != nil {
			return nil, roundOK, err
		}
		breakBuilder := NewMatrixBuilder(d.Dict, next, d.Oracle, d.Config)
		intra2, err := breakBuilder.BuildIntra(store, f, resolution)
		f.Close()
		if err != nil {
			return nil, roundOK, err
		}
		norm2, err := FitNormalization(intra2, d.Config)
		if err == nil {
			detector := NewBreakDetector(next, norm2, d.Config)
			breaks := detector.DetectScaffoldJoints(intra2, resolution)
			if len(breaks) > 0 {
				log.Infof("Scaffold-joint break at resolution %d: %d cuts", resolution, len(breaks))
				next = ApplyBreaks(next, uint32(d.Config.GapSize), breaks)
				if err := d.writeRoundAGP(next, label+"_break"); err != nil {
					return nil, roundOK, err
				}
			}
		}
	}

	return next, roundOK, nil
}

// layoutFromPaths rebuilds a Layout from the graph's extracted path
// cover, concatenating each path's scaffolds (and their segments) in
// order, flipping segments whose path orientation is '-'.
func layoutFromPaths(prev *Layout, paths [][]PathStep, gapSize uint32) *Layout {
	next := newLayout()
	for pi, path := range paths {
		name := fmt.Sprintf("scaffold_%d", pi+1)
		var segs []Segment
		for _, step := range path {
			s := prev.Scaffolds[step.ScaffoldID]
			for i := 0; i < s.SegCount; i++ {
				idx := i
				if step.Orientation == '-' {
					idx = s.SegCount - 1 - i
				}
				seg := prev.Segments[s.SegStart+idx]
				if step.Orientation == '-' {
					seg.Orientation = rr(seg.Orientation)
				}
				segs = append(segs, Segment{ContigID: seg.ContigID, Start: seg.Start, Length: seg.Length, Orientation: seg.Orientation})
			}
		}
		next.addScaffold(name, segs, gapSize)
	}
	next.index()
	return next
}

// ApplyBreaks splits every segment that contains a break point's
// source-contig position into two adjacent segments, preserving
// scaffold order and each segment's orientation (spec §4.5/§4.7: breaks
// are expressed in source-contig coordinates and applied before the
// next round).
func ApplyBreaks(old *Layout, gapSize uint32, breaks []BreakPoint) *Layout {
	byContig := make(map[uint32][]uint32)
	for _, b := range breaks {
		byContig[b.ContigID] = append(byContig[b.ContigID], b.Pos)
	}
	for cid := range byContig {
		sort.Slice(byContig[cid], func(i, j int) bool { return byContig[cid][i] < byContig[cid][j] })
	}

	next := newLayout()
	for _, s := range old.Scaffolds {
		var segs []Segment
		for i := 0; i < s.SegCount; i++ {
			seg := old.Segments[s.SegStart+i]
			var cuts []uint32
			for _, p := range byContig[seg.ContigID] {
				if p > seg.Start && p < seg.Start+seg.Length {
					cuts = append(cuts, p)
				}
			}
			if len(cuts) == 0 {
				segs = append(segs, Segment{ContigID: seg.ContigID, Start: seg.Start, Length: seg.Length, Orientation: seg.Orientation})
				continue
			}
			bounds := append([]uint32{seg.Start}, cuts...)
			bounds = append(bounds, seg.Start+seg.Length)
			var pieces []Segment
			for k := 0; k < len(bounds)-1; k++ {
				pieces = append(pieces, Segment{ContigID: seg.ContigID, Start: bounds[k], Length: bounds[k+1] - bounds[k], Orientation: seg.Orientation})
			}
			if seg.Orientation == '-' {
				for l, r := 0, len(pieces)-1; l < r; l, r = l+1, r-1 {
					pieces[l], pieces[r] = pieces[r], pieces[l]
				}
			}
			segs = append(segs, pieces...)
		}
		if len(segs) > 0 {
			next.addScaffold(s.Name, segs, gapSize)
		}
	}
	next.index()
	return next
}

// writeRoundAGP writes layout's AGP to "<label>.agp".
func (d *Driver) writeRoundAGP(layout *Layout, label string) error {
	b := NewBuilder(d.Config)
	return b.WriteAGP(layout, d.Dict, label+".agp")
}

// finalize is stage 3: merge back sequences excluded by MinContigLength
// as single-segment scaffolds, sort by length descending, and return the
// layout the driver writes as "<prefix>_scaffolds_final.agp" (spec §4.7
// step 3).
func (d *Driver) finalize(layout *Layout) *Layout {
	final := newLayout()
	for _, s := range layout.Scaffolds {
		segs := make([]Segment, s.SegCount)
		copy(segs, layout.Segments[s.SegStart:s.SegStart+s.SegCount])
		final.addScaffold(s.Name, segs, uint32(d.Config.GapSize))
	}
	for _, e := range d.Dict.Excluded() {
		cid := d.Dict.PutForce(e.Name, int(e.Length))
		final.addScaffold(e.Name, []Segment{{ContigID: cid, Start: 0, Length: e.Length, Orientation: '+'}}, 0)
	}
	sort.SliceStable(final.Scaffolds, func(i, j int) bool { return final.Scaffolds[i].Length > final.Scaffolds[j].Length })
	final.index()
	log.Infof("Finalized %d scaffolds", len(final.Scaffolds))
	return final
}
