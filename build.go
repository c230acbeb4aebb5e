/**
 * Filename: /Users/htang/code/allhic/build.go
 * Path: /Users/htang/code/allhic
 * Created Date: Saturday, January 27th 2018, 10:21:08 pm
 * Author: htang
 *
 * Copyright (c) 2018 Haibao Tang
 */

package allhic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/shenwei356/bio/seqio/fai"
)

// Builder reconstructs the genome release AGP and FASTA files from a
// Layout, per spec §4.1's Assembly Layout and §6's `build` subcommand.
type Builder struct {
	Config *Config
}

// NewBuilder binds a builder to the current configuration (gap size,
// output prefix).
func NewBuilder(cfg *Config) *Builder { return &Builder{Config: cfg} }

// LoadFastaSizes populates d with every sequence's name and length from
// a FASTA file, via its `.fai` index -- kept close to the teacher's
// OO.GetFastaSizes, generalized from a private size map to the shared
// Dictionary. Regenerates a stale index the same way the teacher did.
func (b *Builder) LoadFastaSizes(fastafile string, d *Dictionary) error {
	log.Infof("Parse FASTA file `%s`", fastafile)
	faifile := fastafile + ".fai"
	if !IsNewerFile(faifile, fastafile) {
		os.Remove(faifile)
	}
	faidx, err := fai.New(fastafile)
	if err != nil {
		return newError(IOError, "indexing "+fastafile, err)
	}
	defer faidx.Close()
	for name, rec := range faidx.Index {
		d.Put(name, rec.Length)
	}
	return nil
}

// OOLine is one contig placement in a legacy tour file: which scaffold
// it belongs to, its component id, size, and strand.
type OOLine struct {
	ScaffoldName string
	ComponentID  string
	Size         int
	Strand       byte
}

// OO is a parsed tour file: an ordered, oriented contig placement list,
// the alternate seed-layout input the `build` subcommand accepts
// alongside a driver-produced AGP (spec §6).
type OO struct {
	Entries []OOLine
}

// Add appends a placement.
func (oo *OO) Add(scaffold, ctg string, size int, strand byte) {
	oo.Entries = append(oo.Entries, OOLine{scaffold, ctg, size, strand})
}

// ParseTour reads a tour file of the form:
//
//	> name
//	contig1+ contig2- contig3?
//
// looking up each contig's size in d, per the teacher's OO.ParseTour.
func ParseTour(r io.Reader, d *Dictionary) (*OO, error) {
	oo := &OO{}
	scanner := bufio.NewScanner(r)
	name := ""
	for scanner.Scan() {
		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}
		if words[0][0] == '>' {
			name = words[0][1:]
			continue
		}
		for _, tig := range words {
			at, ao := tig[:len(tig)-1], tig[len(tig)-1]
			strand := byte('?')
			if ao == '+' || ao == '-' || ao == '?' {
				tig, strand = at, ao
			}
			idx, ok := d.Get(tig)
			size := 0
			if ok {
				size = int(d.Entry(idx).Length)
			}
			oo.Add(name, tig, size, strand)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, newError(IOError, "reading tour file", err)
	}
	return oo, nil
}

// ToLayout converts a parsed tour into a Layout, resolving each
// placement's contig id against d and separating segments by gapSize.
func (oo *OO) ToLayout(d *Dictionary, gapSize uint32) (*Layout, error) {
	l := newLayout()
	curName := ""
	var curSegs []Segment
	flush := func() {
		if curName != "" && len(curSegs) > 0 {
			l.addScaffold(curName, curSegs, gapSize)
		}
		curSegs = nil
	}
	for _, line := range oo.Entries {
		if line.ScaffoldName != curName {
			flush()
			curName = line.ScaffoldName
		}
		cid, ok := d.Get(line.ComponentID)
		if !ok {
			return nil, newError(InputInvalid, "tour", fmt.Errorf("unknown contig %q", line.ComponentID))
		}
		orient := line.Strand
		if orient != '+' && orient != '-' {
			orient = '+'
		}
		curSegs = append(curSegs, Segment{ContigID: cid, Start: 0, Length: uint32(line.Size), Orientation: orient})
	}
	flush()
	l.index()
	return l, nil
}

// WriteAGP writes layout as AGP rows to path, using agp.go's row writer.
func (b *Builder) WriteAGP(layout *Layout, d *Dictionary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return newError(IOError, "creating "+path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	rows := layout.ToAGP(d, b.Config.GapSize)
	for _, row := range rows {
		if err := WriteAGPRow(w, row); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return newError(IOError, "writing "+path, err)
	}
	log.Infof("A total of %d scaffolds written to `%s`", len(layout.Scaffolds), path)
	return nil
}

var complementTable = map[byte]byte{'A': 'T', 'T': 'A', 'C': 'G', 'G': 'C', 'N': 'N'}

// reverseComplement returns the reverse complement of an upper-case ACGTN
// sequence.
func reverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		c, ok := complementTable[b]
		if !ok {
			c = 'N'
		}
		out[len(seq)-1-i] = c
	}
	return out
}

// WriteFasta assembles the final per-scaffold sequences from the source
// contig FASTA and layout, inserting a run of N of length GapSize at
// every segment join, per spec §4.1 finalization. Grounded on
// kortschak-loopy's biogo/biogo FASTA read/write idiom (cmd/bilge,
// cmd/bundle), the same library restriction.go already depends on.
func (b *Builder) WriteFasta(layout *Layout, d *Dictionary, fastaPath, outPath string) error {
	in, err := os.Open(fastaPath)
	if err != nil {
		return newError(IOError, "opening "+fastaPath, err)
	}
	defer in.Close()

	contigs := make(map[string][]byte)
	sc := seqio.NewScanner(fasta.NewReader(in, linear.NewSeq("", nil, alphabet.DNA)))
	for sc.Next() {
		s, ok := sc.Seq().(*linear.Seq)
		if !ok {
			continue
		}
		raw := make([]byte, len(s.Seq))
		for i, l := range s.Seq {
			raw[i] = byte(l)
		}
		contigs[s.Name()] = []byte(strings.ToUpper(string(raw)))
	}
	if err := sc.Error(); err != nil {
		return newError(InputInvalid, "reading "+fastaPath, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return newError(IOError, "creating "+outPath, err)
	}
	defer out.Close()
	w := fasta.NewWriter(out, 60)

	gap := strings.Repeat("N", b.Config.GapSize)
	for _, s := range layout.Scaffolds {
		var sb strings.Builder
		for i := 0; i < s.SegCount; i++ {
			seg := layout.Segments[s.SegStart+i]
			if i > 0 && b.Config.GapSize > 0 {
				sb.WriteString(gap)
			}
			raw, ok := contigs[d.Entry(seg.ContigID).Name]
			if !ok {
				return newError(InputInvalid, "build", fmt.Errorf("contig %q not found in %s", d.Entry(seg.ContigID).Name, fastaPath))
			}
			piece := raw[seg.Start : seg.Start+seg.Length]
			if seg.Orientation == '-' {
				piece = reverseComplement(piece)
			}
			sb.Write(piece)
		}
		letters := alphabet.BytesToLetters(alphabet.DNA, []byte(sb.String()))
		record := linear.NewSeq(s.Name, letters, alphabet.DNA)
		if _, err := w.Write(record); err != nil {
			return newError(IOError, "writing "+outPath, err)
		}
	}
	log.Infof("A total of %d scaffolds written to `%s`", len(layout.Scaffolds), outPath)
	return nil
}
