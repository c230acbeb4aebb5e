package allhic

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// SeqEntry is one contig: a unique name, its length in bases, and its
// dense index. Once assigned an index never changes within a
// Dictionary's lifetime (spec §3 invariant).
type SeqEntry struct {
	Name   string
	Length uint32
	Index  uint32
}

// Dictionary maps contig names to dense ids [0, N) and back, per spec
// §4.1. The name->id container is a plain map (Design Note: "any robust
// implementation suffices").
type Dictionary struct {
	byName   map[string]uint32
	entries  []SeqEntry
	excluded []SeqEntry
	minLen   int
}

// NewDictionary constructs an empty dictionary with a minimum-length
// filter; contigs shorter than minLen are rejected by Put.
func NewDictionary(minLen int) *Dictionary {
	return &Dictionary{byName: make(map[string]uint32), minLen: minLen}
}

// Excluded returns every contig Put rejected for falling under the
// dictionary's minimum length, so the driver can merge them back into
// the final layout at finalization (spec §4.7 step 3).
func (d *Dictionary) Excluded() []SeqEntry { return d.excluded }

// Put registers name with the given length, returning its new index. A
// duplicate name is rejected. Contigs under the dictionary's minimum
// length are excluded from scaffolding but recorded for the
// finalization merge-back (spec §4.1).
func (d *Dictionary) Put(name string, length int) (uint32, bool) {
	if _, exists := d.byName[name]; exists {
		return 0, false
	}
	if length < d.minLen {
		d.excluded = append(d.excluded, SeqEntry{Name: name, Length: uint32(length)})
		return 0, false
	}
	return d.forcePut(name, length), true
}

// PutForce registers name unconditionally, bypassing the minimum-length
// filter. Used at finalization to assign a real dictionary index to a
// contig Excluded() recorded, so the final AGP can still name it (spec
// §4.7 step 3 merge-back).
func (d *Dictionary) PutForce(name string, length int) uint32 {
	if idx, exists := d.byName[name]; exists {
		return idx
	}
	return d.forcePut(name, length)
}

func (d *Dictionary) forcePut(name string, length int) uint32 {
	idx := uint32(len(d.entries))
	d.entries = append(d.entries, SeqEntry{Name: name, Length: uint32(length), Index: idx})
	d.byName[name] = idx
	return idx
}

// Get returns the index for name, or false if absent.
func (d *Dictionary) Get(name string) (uint32, bool) {
	idx, ok := d.byName[name]
	return idx, ok
}

// Len returns N, the number of registered contigs.
func (d *Dictionary) Len() int { return len(d.entries) }

// Entry returns the SeqEntry for a contig index.
func (d *Dictionary) Entry(idx uint32) SeqEntry { return d.entries[idx] }

// LoadFAI parses a whitespace-delimited FAI index (spec §6: columns
// name, length, offset, line_bases, line_width — only name and length
// are read) and populates the dictionary.
func LoadFAI(r io.Reader, d *Dictionary) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return newError(InputInvalid, fmt.Sprintf("fai line %d", lineNo),
				fmt.Errorf("expected at least 2 fields, got %d", len(fields)))
		}
		length, err := strconv.Atoi(fields[1])
		if err != nil {
			return newError(InputInvalid, fmt.Sprintf("fai line %d", lineNo), err)
		}
		if _, ok := d.Put(fields[0], length); !ok {
			if _, exists := d.byName[fields[0]]; exists {
				return newError(InputInvalid, fmt.Sprintf("fai line %d", lineNo),
					fmt.Errorf("duplicate contig name %q", fields[0]))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return newError(IOError, "reading fai", err)
	}
	return nil
}

// Segment is one oriented sub-interval of a contig placed inside a
// scaffold.
type Segment struct {
	ContigID    uint32
	Start       uint32 // zero-based, on the source contig
	Length      uint32
	Orientation byte // '+' or '-'

	ScaffoldID     uint32
	ScaffoldOffset uint32 // zero-based start within the scaffold
}

// ScaffoldEntry is an ordered, oriented sequence of segments: a scaffold.
type ScaffoldEntry struct {
	Name     string
	Length   uint32
	SegStart int // index into Layout.Segments
	SegCount int
}

// Layout is an Assembly / Scaffold Dictionary: the current arrangement
// of contigs into scaffolds, plus the coordinate-conversion oracle.
type Layout struct {
	Scaffolds []ScaffoldEntry
	Segments  []Segment

	scaffoldByName map[string]uint32
	byContig       map[uint32][]int // contig id -> indices into Segments, sorted by Start
}

// newLayout builds an empty layout; filling it (e.g. every contig as its
// own single-segment scaffold) is the caller's job via MakeLayout or
// IdentityLayout.
func newLayout() *Layout {
	return &Layout{
		scaffoldByName: make(map[string]uint32),
		byContig:       make(map[uint32][]int),
	}
}

// IdentityLayout builds a trivial layout where every dictionary contig is
// its own single-segment scaffold, used to seed the first round when no
// AGP is given.
func IdentityLayout(d *Dictionary) *Layout {
	l := newLayout()
	for _, e := range d.entries {
		l.addScaffold(e.Name, []Segment{{
			ContigID: e.Index, Start: 0, Length: e.Length, Orientation: '+',
		}}, 0)
	}
	l.index()
	return l
}

// addScaffold appends a new scaffold made of segs (already in scaffold
// order) separated by gapSize, returning its index.
func (l *Layout) addScaffold(name string, segs []Segment, gapSize uint32) uint32 {
	sid := uint32(len(l.Scaffolds))
	start := len(l.Segments)
	var length uint32
	for i := range segs {
		if i > 0 {
			length += gapSize
		}
		segs[i].ScaffoldID = sid
		segs[i].ScaffoldOffset = length
		length += segs[i].Length
		l.Segments = append(l.Segments, segs[i])
	}
	l.Scaffolds = append(l.Scaffolds, ScaffoldEntry{
		Name: name, Length: length, SegStart: start, SegCount: len(segs),
	})
	l.scaffoldByName[name] = sid
	return sid
}

// index rebuilds the per-contig sorted segment lookup used by
// CoordConvert. Must be called after all scaffolds are added.
func (l *Layout) index() {
	l.byContig = make(map[uint32][]int)
	for i, seg := range l.Segments {
		l.byContig[seg.ContigID] = append(l.byContig[seg.ContigID], i)
	}
	for cid, idxs := range l.byContig {
		sort.Slice(idxs, func(a, b int) bool {
			return l.Segments[idxs[a]].Start < l.Segments[idxs[b]].Start
		})
		l.byContig[cid] = idxs
	}
}

// ReverseAt maps a (scaffold_id, scaffold_pos) back to the source contig
// coordinate that produced it, the inverse of CoordConvert, used by the
// break detector to emit cuts in source-contig coordinates (spec §4.5).
func (l *Layout) ReverseAt(scaffoldID uint32, pos uint32) (contigID uint32, contigPos uint32, ok bool) {
	s := l.Scaffolds[scaffoldID]
	for i := 0; i < s.SegCount; i++ {
		seg := l.Segments[s.SegStart+i]
		if pos < seg.ScaffoldOffset || pos >= seg.ScaffoldOffset+seg.Length {
			continue
		}
		offset := pos - seg.ScaffoldOffset
		if seg.Orientation == '-' {
			offset = seg.Length - 1 - offset
		}
		return seg.ContigID, seg.Start + offset, true
	}
	return 0, 0, false
}

// JoinPositions returns the scaffold-space positions of every existing
// segment join in scaffold sid (the boundary between segment i and
// segment i+1), used by the scaffold-joint break mode (spec §4.5).
func (l *Layout) JoinPositions(sid uint32) []uint32 {
	s := l.Scaffolds[sid]
	if s.SegCount < 2 {
		return nil
	}
	joins := make([]uint32, 0, s.SegCount-1)
	for i := 0; i < s.SegCount-1; i++ {
		seg := l.Segments[s.SegStart+i]
		joins = append(joins, seg.ScaffoldOffset+seg.Length)
	}
	return joins
}

// ScaffoldIndex returns the index of a scaffold by name.
func (l *Layout) ScaffoldIndex(name string) (uint32, bool) {
	idx, ok := l.scaffoldByName[name]
	return idx, ok
}

// CoordConvert maps (contig_id, contig_pos) to (scaffold_id,
// scaffold_pos, orientation), or reports unmapped when pos falls outside
// every segment of that contig (e.g. excluded by a prior break), per
// spec §4.1. Runs in O(log #segments_of_that_contig) via binary search.
func (l *Layout) CoordConvert(contigID uint32, pos uint32) (scaffoldID uint32, scaffoldPos uint32, orientation byte, ok bool) {
	idxs := l.byContig[contigID]
	// Binary search for the last segment with Start <= pos.
	i := sort.Search(len(idxs), func(i int) bool {
		return l.Segments[idxs[i]].Start > pos
	})
	if i == 0 {
		return 0, 0, 0, false
	}
	seg := l.Segments[idxs[i-1]]
	if pos >= seg.Start+seg.Length {
		return 0, 0, 0, false
	}
	offset := pos - seg.Start
	if seg.Orientation == '-' {
		offset = seg.Length - 1 - offset
	}
	return seg.ScaffoldID, seg.ScaffoldOffset + offset, seg.Orientation, true
}

// MakeLayout builds a Layout from parsed AGP rows against the given
// dictionary. An AGP referencing an unknown contig name is rejected
// (spec §4.1 edge case). Segment lengths that don't sum to a declared
// scaffold length are reconciled by trusting the segment list (the
// ObjectEnd fields are not re-validated against the running total).
func MakeLayout(rows []AGPRow, d *Dictionary, gapSize uint32) (*Layout, error) {
	l := newLayout()
	var curName string
	var curSegs []Segment
	flush := func() {
		if curName != "" {
			l.addScaffold(curName, curSegs, gapSize)
		}
		curSegs = nil
	}
	for _, row := range rows {
		if row.Object != curName {
			flush()
			curName = row.Object
		}
		if row.IsGap() {
			continue // gaps are synthesized from addScaffold's gapSize, not carried per-row
		}
		cid, ok := d.Get(row.ComponentID)
		if !ok {
			return nil, newError(InputInvalid, "agp", fmt.Errorf("unknown contig %q", row.ComponentID))
		}
		length := uint32(row.ComponentEnd - row.ComponentBeg + 1)
		orient := row.Orientation
		if orient != '+' && orient != '-' {
			orient = '+'
		}
		curSegs = append(curSegs, Segment{
			ContigID:    cid,
			Start:       uint32(row.ComponentBeg - 1),
			Length:      length,
			Orientation: orient,
		})
	}
	flush()
	l.index()
	return l, nil
}

// ToAGP flattens the layout back into AGP rows, in scaffold order, the
// inverse of MakeLayout (minus the gap rows, which are re-synthesized
// from each scaffold's fixed GapSize).
func (l *Layout) ToAGP(d *Dictionary, gapSize int) []AGPRow {
	var rows []AGPRow
	for _, s := range l.Scaffolds {
		objectBeg := 1
		partNumber := 0
		for i := 0; i < s.SegCount; i++ {
			seg := l.Segments[s.SegStart+i]
			if i > 0 && gapSize > 0 {
				partNumber++
				objectEnd := objectBeg + gapSize - 1
				rows = append(rows, AGPRow{
					Object: s.Name, ObjectBeg: objectBeg, ObjectEnd: objectEnd,
					PartNumber: partNumber, ComponentType: AGPGapU,
					GapLength: gapSize, GapType: "scaffold", Linkage: "yes", Evidence: "map",
				})
				objectBeg += gapSize
			}
			partNumber++
			objectEnd := objectBeg + int(seg.Length) - 1
			rows = append(rows, AGPRow{
				Object: s.Name, ObjectBeg: objectBeg, ObjectEnd: objectEnd,
				PartNumber: partNumber, ComponentType: AGPSequence,
				ComponentID:  d.Entry(seg.ContigID).Name,
				ComponentBeg: int(seg.Start) + 1,
				ComponentEnd: int(seg.Start + seg.Length),
				Orientation:  seg.Orientation,
			})
			objectBeg += int(seg.Length)
		}
	}
	return rows
}
