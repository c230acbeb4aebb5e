package allhic

import (
	"bytes"
	"testing"
)

// TestBandedMatrixSymmetry checks spec property 3: Get(i, j) == Get(j, i)
// regardless of insertion order, since cells are stored canonically with
// i <= j.
func TestBandedMatrixSymmetry(t *testing.T) {
	m := newBandedMatrix(10, 4)
	m.Add(2, 5, 3)
	m.Add(7, 6, 2) // inserted with i > j, must still land canonically

	if got, want := m.Get(2, 5), 3.0; got != want {
		t.Errorf("Get(2,5) = %v, want %v", got, want)
	}
	if got, want := m.Get(5, 2), 3.0; got != want {
		t.Errorf("Get(5,2) = %v, want %v (symmetry)", got, want)
	}
	if got, want := m.Get(6, 7), 2.0; got != want {
		t.Errorf("Get(6,7) = %v, want %v", got, want)
	}
	if got, want := m.Get(7, 6), 2.0; got != want {
		t.Errorf("Get(7,6) = %v, want %v (symmetry)", got, want)
	}
}

// TestBandedMatrixDropsOutOfBandPairs checks that cells beyond the
// configured band are not stored (and so read back as zero).
func TestBandedMatrixDropsOutOfBandPairs(t *testing.T) {
	m := newBandedMatrix(10, 2)
	m.Add(0, 9, 5) // distance 9 >> band 2
	if got := m.Get(0, 9); got != 0 {
		t.Errorf("Get(0,9) = %v, want 0 (out of band)", got)
	}
}

// TestEstimateIntraBytesScalesWithResolution checks that a finer
// (smaller) resolution produces a larger byte estimate than a coarser
// one, the monotonicity the NOMEM escalation path (scenario S4) depends
// on.
func TestEstimateIntraBytesScalesWithResolution(t *testing.T) {
	d := NewDictionary(0)
	cA, _ := d.Put("A", 5_000_000)
	l := newLayout()
	l.addScaffold("scafA", []Segment{{ContigID: cA, Start: 0, Length: 5_000_000, Orientation: '+'}}, 0)
	l.index()

	cfg := DefaultConfig()
	b := NewMatrixBuilder(d, l, nil, cfg)

	fine := b.EstimateIntraBytes(50_000)
	coarse := b.EstimateIntraBytes(500_000)
	if fine <= coarse {
		t.Errorf("EstimateIntraBytes(50000) = %d, want > EstimateIntraBytes(500000) = %d", fine, coarse)
	}
}

// TestBuildInterCountsBothEndsForShortScaffold checks that a scaffold
// shorter than 2*FlankWindow has a link counted toward both its 5' and
// 3' buckets when a position falls within flank of both ends at once,
// instead of only the first end checked.
func TestBuildInterCountsBothEndsForShortScaffold(t *testing.T) {
	d := NewDictionary(0)
	cShort, _ := d.Put("short", 150)
	cLong, _ := d.Put("long", 1000)
	l := newLayout()
	l.addScaffold("scafShort", []Segment{{ContigID: cShort, Start: 0, Length: 150, Orientation: '+'}}, 0)
	l.addScaffold("scafLong", []Segment{{ContigID: cLong, Start: 0, Length: 1000, Orientation: '+'}}, 0)
	l.index()

	cfg := DefaultConfig()
	cfg.FlankWindow = 100 // 2*F = 200 > scafShort's 150 bases
	cfg.MinMapQ = 0

	var buf bytes.Buffer
	// Position 75 on scafShort is within 100 of both the start (75 < 100)
	// and the end (150-75 = 75 <= 100). Position 10 on scafLong is within
	// flank of its 5' end only.
	if err := WriteRecord(&buf, Record{RefA: cShort, PosA: 75, RefB: cLong, PosB: 10, MapQ: 30}); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	store := NewLinkStore()
	norm := &NormCurve{E: make([]float64, 10), RMax: 9, Floor: 1e-9}
	b := NewMatrixBuilder(d, l, nil, cfg)
	entries, err := b.BuildInter(store, &buf, 1000, norm)
	if err != nil {
		t.Fatalf("BuildInter returned error: %v", err)
	}

	sidShort, _ := l.ScaffoldIndex("scafShort")
	sidLong, _ := l.ScaffoldIndex("scafLong")
	e, ok := entries[ScaffoldPair{A: sidShort, B: sidLong}]
	if !ok {
		t.Fatalf("no inter entry for pair (short=%d, long=%d)", sidShort, sidLong)
	}

	if got := e[bucketIndex(End5, End5)].Count; got != 1 {
		t.Errorf("(End5,End5).Count = %v, want 1", got)
	}
	if got := e[bucketIndex(End3, End5)].Count; got != 1 {
		t.Errorf("(End3,End5).Count = %v, want 1 (short scaffold's 3' end also within flank)", got)
	}
	if got := e[bucketIndex(End5, End3)].Count; got != 0 {
		t.Errorf("(End5,End3).Count = %v, want 0", got)
	}
	if got := e[bucketIndex(End3, End3)].Count; got != 0 {
		t.Errorf("(End3,End3).Count = %v, want 0", got)
	}
}
