package allhic

import (
	"bytes"
	"testing"
)

func twoContigLayout(t *testing.T) (*Layout, *Dictionary) {
	t.Helper()
	d := NewDictionary(0)
	cA, _ := d.Put("A", 1000)
	cB, _ := d.Put("B", 1000)
	l := newLayout()
	l.addScaffold("scafA", []Segment{{ContigID: cA, Start: 0, Length: 1000, Orientation: '+'}}, 0)
	l.addScaffold("scafB", []Segment{{ContigID: cB, Start: 0, Length: 1000, Orientation: '+'}}, 0)
	l.index()
	return l, d
}

// TestLinkStoreScanAppliesMapQFloorAndCanonicalOrder checks that Scan
// drops records below the mapq floor and always yields scaffoldA <=
// scaffoldB, swapping both positions and orientations together.
func TestLinkStoreScanAppliesMapQFloorAndCanonicalOrder(t *testing.T) {
	l, d := twoContigLayout(t)
	cB, _ := d.Get("B")
	cA, _ := d.Get("A")

	var buf bytes.Buffer
	// Below the floor: must be dropped.
	if err := WriteRecord(&buf, Record{RefA: cA, PosA: 10, RefB: cA, PosB: 20, MapQ: 5}); err != nil {
		t.Fatal(err)
	}
	// B -> A: must be canonicalized to A <= B (scafA id 0, scafB id 1).
	if err := WriteRecord(&buf, Record{RefA: cB, PosA: 50, RefB: cA, PosB: 60, MapQ: 30}); err != nil {
		t.Fatal(err)
	}

	store := NewLinkStore()
	var got []MappedRecord
	err := store.Scan(&buf, l, 10, func(m MappedRecord) error {
		got = append(got, m)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1 (the low-mapq record must be dropped)", len(got))
	}
	rec := got[0]
	if rec.ScaffoldA != 0 || rec.ScaffoldB != 1 {
		t.Fatalf("ScaffoldA/B = %d/%d, want 0/1 (canonical order)", rec.ScaffoldA, rec.ScaffoldB)
	}
	if rec.PosA != 60 || rec.PosB != 50 {
		t.Errorf("positions were not swapped along with scaffold order: PosA=%d PosB=%d, want 60/50", rec.PosA, rec.PosB)
	}
}

// TestLinkStoreScanDropsUnmappedEnds checks that a record whose position
// falls outside every segment of its contig is skipped rather than
// erroring.
func TestLinkStoreScanDropsUnmappedEnds(t *testing.T) {
	l, d := twoContigLayout(t)
	cA, _ := d.Get("A")

	var buf bytes.Buffer
	if err := WriteRecord(&buf, Record{RefA: cA, PosA: 5000, RefB: cA, PosB: 10, MapQ: 30}); err != nil {
		t.Fatal(err)
	}
	store := NewLinkStore()
	n := 0
	err := store.Scan(&buf, l, 0, func(m MappedRecord) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d records, want 0 (out-of-range position must be unmapped)", n)
	}
}

// TestReadRecordRejectsTruncatedRecord checks that a partial trailing
// record is reported as a fatal error, not silently ignored.
func TestReadRecordRejectsTruncatedRecord(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, recordSize-1))
	if _, err := readRecord(buf); err == nil {
		t.Errorf("readRecord on a truncated buffer succeeded, want error")
	}
}
