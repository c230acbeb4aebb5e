package allhic

// Config gathers every tunable threshold the components need. One record
// is built by the CLI layer and passed by pointer into every component;
// there is no process-wide mutable configuration state.
type Config struct {
	// Resolutions are the bin widths (bp) for successive scaffold rounds,
	// ascending.
	Resolutions []int

	// MinContigLength excludes contigs shorter than this from scaffolding;
	// they are merged back at finalization.
	MinContigLength int

	// MinMapQ is the minimum mapq a link record must carry to count.
	MinMapQ uint8

	// Enzymes are the expanded restriction-site motifs (N already
	// expanded to A/C/G/T). Empty means no enzyme normalization.
	Enzymes []string

	// GapSize is the nominal zero-link gap length inserted between
	// segments in a scaffold (spec default: 100bp).
	GapSize int

	// BandMax (D) is the maximum bin-distance stored in the intra matrix
	// band, expressed as a distance in bases; cells with |i-j| > D/r are
	// not stored.
	BandMax int

	// FlankWindow (F) is the flank width, in bases, used for inter-matrix
	// end buckets and scaffold-joint break detection.
	FlankWindow int

	// DenominatorFloor (epsilon) marks a cell's normalization denominator
	// as no-data when below this value.
	DenominatorFloor float64

	// MinBucketSamples (K_min) is the minimum sample count a bin-distance
	// bucket needs to be retained when fitting the normalization curve.
	MinBucketSamples int

	// MinBands (r_min_bands) is the minimum number of retained distance
	// buckets; fewer signals NOBANDS.
	MinBands int

	// EdgeThreshold (theta_min) is the minimum normalized score an inter
	// edge needs to be added to the graph.
	EdgeThreshold float64

	// AlphaRatio (alpha) drops arcs weaker than alpha * w_max at a node.
	AlphaRatio float64

	// BetaRatio (beta) is the second-best/best ratio ambiguity threshold.
	BetaRatio float64

	// GammaRatio (gamma) gates the alternative-cumulative-path check in
	// the simple filter.
	GammaRatio float64

	// TransitiveTau (tau) is the transitive-reduction weight-ratio
	// tolerance.
	TransitiveTau float64

	// WeakEdgeDelta (delta) is the absolute-weight floor for weak-edge
	// trim.
	WeakEdgeDelta float64

	// MergeThresh coalesces adjacent contig-internal break candidates
	// within this many bases.
	MergeThresh int

	// DualBreakThresh merges two symmetric drops into one dual break when
	// within this many bases of each other.
	DualBreakThresh int

	// DropRatio (rho) is the break-candidate drop threshold relative to
	// the running mean.
	DropRatio float64

	// RSSLimit is the resident-set budget (bytes) a round's memory
	// estimate must not exceed; 0 disables the check.
	RSSLimit int64

	// MaxScaffolds is the hard ceiling on scaffold count (SEQ_LIMIT).
	MaxScaffolds int

	// ContigBreak/ScaffoldBreak enable the optional break stages.
	ContigBreak   bool
	ScaffoldBreak bool

	// MemCheck enables the NOMEM escalation path.
	MemCheck bool

	// OutPrefix is the output file prefix for round AGPs.
	OutPrefix string

	// Verbosity controls log level (0 = info and above, >0 = debug).
	Verbosity int
}

// DefaultConfig returns a Config populated with the spec's stated
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Resolutions:      []int{50000, 100000, 500000},
		MinContigLength:  10000,
		MinMapQ:          10,
		GapSize:          100,
		BandMax:          2000000,
		FlankWindow:      100000,
		DenominatorFloor: 1e-9,
		MinBucketSamples: 30,
		MinBands:         3,
		EdgeThreshold:    0.1,
		AlphaRatio:       0.1,
		BetaRatio:        0.7,
		GammaRatio:       0.1,
		TransitiveTau:    1.0,
		WeakEdgeDelta:    1e-6,
		MergeThresh:      50000,
		DualBreakThresh:  100000,
		DropRatio:        0.2,
		RSSLimit:         0,
		MaxScaffolds:     45000,
		ContigBreak:      true,
		ScaffoldBreak:    true,
		MemCheck:         true,
		OutPrefix:        "allhic",
		Verbosity:        0,
	}
}
