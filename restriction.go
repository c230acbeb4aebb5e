package allhic

import (
	"io"
	"sort"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

// ExpandMotifs turns a comma-separated enzyme motif string (alphabet
// {A,C,G,T,N}) into the set of concrete A/C/G/T motifs, expanding every
// N into four variants. This is the "pure pre-processing step" spec §9
// explicitly keeps in scope, independent of the raw-sequence scan.
func ExpandMotifs(spec string) []string {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	var out []string
	for _, motif := range strings.Split(spec, ",") {
		motif = strings.ToUpper(strings.TrimSpace(motif))
		if motif == "" {
			continue
		}
		out = append(out, expandOne(motif)...)
	}
	return out
}

func expandOne(motif string) []string {
	i := strings.IndexByte(motif, 'N')
	if i < 0 {
		return []string{motif}
	}
	var out []string
	for _, b := range []byte{'A', 'C', 'G', 'T'} {
		variant := motif[:i] + string(b) + motif[i+1:]
		out = append(out, expandOne(variant)...)
	}
	return out
}

// RestrictionSiteOracle answers how many restriction-enzyme cut sites
// fall within a contig's [start, start+length) window, the contract the
// Link Matrix Builder queries when enzyme normalization is configured
// (spec §4.3). The actual raw-sequence scan that produces these offsets
// is, per spec §1, an external collaborator; this interface is the core's
// side of that contract.
type RestrictionSiteOracle interface {
	// CutSites returns the number of motif occurrences whose start falls
	// within [start, start+length) on the named contig.
	CutSites(contig string, start, length uint32) int
}

// siteOracle is a reference RestrictionSiteOracle backed by a sorted
// per-contig offset list, built once by ScanRestrictionSites.
type siteOracle struct {
	sites map[string][]uint32
}

// CutSites implements RestrictionSiteOracle via binary search over the
// contig's sorted offset list.
func (o *siteOracle) CutSites(contig string, start, length uint32) int {
	offsets := o.sites[contig]
	if len(offsets) == 0 {
		return 0
	}
	end := start + length
	lo := sort.Search(len(offsets), func(i int) bool { return offsets[i] >= start })
	hi := sort.Search(len(offsets), func(i int) bool { return offsets[i] >= end })
	return hi - lo
}

// ScanRestrictionSites reads a contig FASTA and records, for every
// expanded motif, every 0-based start offset at which it occurs on the
// forward strand, returning a RestrictionSiteOracle over the result.
// Grounded on kortschak-loopy's biogo/biogo FASTA read loop
// (cmd/bilge/bilge.go, cmd/bundle/bundle.go):
// seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNA))).
func ScanRestrictionSites(r io.Reader, motifs []string) (RestrictionSiteOracle, error) {
	sites := make(map[string][]uint32)
	if len(motifs) == 0 {
		return &siteOracle{sites: sites}, nil
	}

	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNA)))
	for sc.Next() {
		s, ok := sc.Seq().(*linear.Seq)
		if !ok {
			continue
		}
		name := s.Name()
		raw := make([]byte, len(s.Seq))
		for i, l := range s.Seq {
			raw[i] = byte(l)
		}
		seqStr := strings.ToUpper(string(raw))
		var offsets []uint32
		for _, motif := range motifs {
			offsets = append(offsets, findAllOffsets(seqStr, motif)...)
		}
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
		sites[name] = offsets
	}
	if err := sc.Error(); err != nil {
		return nil, newError(InputInvalid, "scanning restriction sites", err)
	}
	return &siteOracle{sites: sites}, nil
}

// findAllOffsets returns every 0-based start offset of non-overlapping-
// free (i.e. overlapping allowed) occurrences of motif in s.
func findAllOffsets(s, motif string) []uint32 {
	var out []uint32
	if motif == "" {
		return out
	}
	start := 0
	for {
		i := strings.Index(s[start:], motif)
		if i < 0 {
			break
		}
		out = append(out, uint32(start+i))
		start += i + 1
		if start >= len(s) {
			break
		}
	}
	return out
}

// NoEnzymeOracle is a RestrictionSiteOracle that reports no sites
// anywhere, used when the driver has no enzyme configuration; the matrix
// builder then falls back to pure area normalization (spec §4.3).
type NoEnzymeOracle struct{}

// CutSites always returns 0.
func (NoEnzymeOracle) CutSites(contig string, start, length uint32) int { return 0 }
