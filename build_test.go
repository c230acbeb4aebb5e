package allhic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseTourAndToLayout(t *testing.T) {
	d := NewDictionary(0)
	d.Put("ctg1", 100)
	d.Put("ctg2", 200)

	tour := "> scaf1\nctg1+ ctg2-\n"
	oo, err := ParseTour(strings.NewReader(tour), d)
	if err != nil {
		t.Fatalf("ParseTour: %v", err)
	}
	if len(oo.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(oo.Entries))
	}
	if oo.Entries[0].Strand != '+' || oo.Entries[1].Strand != '-' {
		t.Errorf("strands = %c/%c, want +/-", oo.Entries[0].Strand, oo.Entries[1].Strand)
	}

	layout, err := oo.ToLayout(d, 100)
	if err != nil {
		t.Fatalf("ToLayout: %v", err)
	}
	if len(layout.Scaffolds) != 1 || layout.Scaffolds[0].Name != "scaf1" {
		t.Fatalf("layout scaffolds = %+v, want one scaffold named scaf1", layout.Scaffolds)
	}
	if layout.Scaffolds[0].SegCount != 2 {
		t.Errorf("SegCount = %d, want 2", layout.Scaffolds[0].SegCount)
	}
}

func TestParseTourRejectsUnknownContigAtLayoutTime(t *testing.T) {
	d := NewDictionary(0)
	oo := &OO{}
	oo.Add("scaf1", "ghost", 10, '+')
	if _, err := oo.ToLayout(d, 0); err == nil {
		t.Errorf("ToLayout with an unregistered contig succeeded, want error")
	}
}

func TestReverseComplement(t *testing.T) {
	got := reverseComplement([]byte("ACGTN"))
	want := "NACGT"
	if string(got) != want {
		t.Errorf("reverseComplement(ACGTN) = %q, want %q", got, want)
	}
}

// TestWriteFastaInsertsGapAndReverseComplements builds a two-contig
// layout with one segment reverse-oriented and checks the assembled
// scaffold sequence matches forward-ctg1 + NN-gap + revcomp(ctg2).
func TestWriteFastaInsertsGapAndReverseComplements(t *testing.T) {
	dir := t.TempDir()
	fastaPath := filepath.Join(dir, "contigs.fa")
	if err := os.WriteFile(fastaPath, []byte(">ctg1\nACGTACGT\n>ctg2\nTTTTAAAA\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDictionary(0)
	c1, _ := d.Put("ctg1", 8)
	c2, _ := d.Put("ctg2", 8)
	l := newLayout()
	l.addScaffold("scaf1", []Segment{
		{ContigID: c1, Start: 0, Length: 8, Orientation: '+'},
		{ContigID: c2, Start: 0, Length: 8, Orientation: '-'},
	}, 2)
	l.index()

	cfg := DefaultConfig()
	cfg.GapSize = 2
	b := NewBuilder(cfg)
	outPath := filepath.Join(dir, "out.fasta")
	if err := b.WriteFasta(l, d, fastaPath, outPath); err != nil {
		t.Fatalf("WriteFasta: %v", err)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	body := strings.Join(strings.Split(string(out), "\n")[1:], "")
	want := "ACGTACGT" + "NN" + "TTTTAAAA" // revcomp(TTTTAAAA) == TTTTAAAA (palindromic)
	if body != want {
		t.Errorf("assembled sequence = %q, want %q", body, want)
	}
}
