package allhic

import (
	"bytes"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// writeSyntheticBAM builds a two-reference BAM stream with a duplicate
// read-pair name (for dedup), one mate-unmapped record (for the skip
// path), and one well-formed pair, mirroring the fixtures DumpBAM's
// dedup/skip rules are grounded on.
func writeSyntheticBAM(t *testing.T) []byte {
	t.Helper()
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	chr2, err := sam.NewReference("chr2", "", "", 2000, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	if err != nil {
		t.Fatal(err)
	}

	newPair := func(name string, ref, mateRef *sam.Reference, pos, matePos int) *sam.Record {
		r, err := sam.NewRecord(name, ref, mateRef, pos, matePos, 0, 30, nil, nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		r.Flags = sam.Paired | sam.ProperPair
		return r
	}

	var buf bytes.Buffer
	w, err := bam.NewWriter(&buf, header, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Well-formed pair.
	if err := w.Write(newPair("read1", chr1, chr2, 10, 20)); err != nil {
		t.Fatal(err)
	}
	// Same name again: must be deduplicated away.
	if err := w.Write(newPair("read1", chr1, chr2, 11, 21)); err != nil {
		t.Fatal(err)
	}
	// Mate unmapped: must be skipped.
	if err := w.Write(newPair("read2", chr1, nil, 15, -1)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDumpBAMDedupsByNameAndSkipsUnmapped(t *testing.T) {
	raw := writeSyntheticBAM(t)

	var out bytes.Buffer
	n, err := DumpBAM(bytes.NewReader(raw), &out)
	if err != nil {
		t.Fatalf("DumpBAM: %v", err)
	}
	if n != 1 {
		t.Fatalf("DumpBAM wrote %d records, want 1 (dedup + mate-unmapped skip)", n)
	}
	if out.Len() != recordSize {
		t.Errorf("output buffer holds %d bytes, want exactly one record (%d bytes)", out.Len(), recordSize)
	}

	rec, err := readRecord(&out)
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if rec.PosA != 10 || rec.PosB != 20 {
		t.Errorf("kept record = %+v, want the first-seen read1 (pos 10/20)", rec)
	}
}

func TestReferenceNamesReturnsHeaderOrder(t *testing.T) {
	raw := writeSyntheticBAM(t)
	names, err := ReferenceNames(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReferenceNames: %v", err)
	}
	if len(names) != 2 || names[0] != "chr1" || names[1] != "chr2" {
		t.Errorf("ReferenceNames = %v, want [chr1 chr2]", names)
	}
}
