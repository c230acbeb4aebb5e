package allhic

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// recordSize is the fixed on-disk width of a Link Record: u32 ref_a, u32
// pos_a, u32 ref_b, u32 pos_b, u8 mapq (spec §3/§6).
const recordSize = 4 + 4 + 4 + 4 + 1

// Record is one on-disk Hi-C pair, little-endian fixed-width.
type Record struct {
	RefA uint32
	PosA uint32
	RefB uint32
	PosB uint32
	MapQ uint8
}

// WriteRecord appends one Record to w in the on-disk binary format.
func WriteRecord(w io.Writer, r Record) error {
	var buf [recordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.RefA)
	binary.LittleEndian.PutUint32(buf[4:8], r.PosA)
	binary.LittleEndian.PutUint32(buf[8:12], r.RefB)
	binary.LittleEndian.PutUint32(buf[12:16], r.PosB)
	buf[16] = r.MapQ
	_, err := w.Write(buf[:])
	return err
}

// readRecord reads one fixed-width Record from r. io.EOF signals a clean
// end of stream; any other error (including a short, truncated final
// record) is fatal for the round per spec §4.2.
func readRecord(r io.Reader) (Record, error) {
	var buf [recordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, newError(InputInvalid, "link record", fmt.Errorf("truncated record"))
		}
		return Record{}, err
	}
	return Record{
		RefA: binary.LittleEndian.Uint32(buf[0:4]),
		PosA: binary.LittleEndian.Uint32(buf[4:8]),
		RefB: binary.LittleEndian.Uint32(buf[8:12]),
		PosB: binary.LittleEndian.Uint32(buf[12:16]),
		MapQ: buf[16],
	}, nil
}

// LinkStore provides a forward-only scan over a binary link dump,
// applying the layout's coord_convert and the mapq floor, per spec §4.2.
// The store holds no file handle of its own; each Scan call takes a
// fresh reader, since the driver reopens the link file once per stage
// (spec §5: "input binary link files are read sequentially").
type LinkStore struct{}

// NewLinkStore constructs a scanner. It carries no state of its own.
func NewLinkStore() *LinkStore {
	return &LinkStore{}
}

// MappedRecord is one link after layout coordinate conversion: both
// scaffold-space positions, with scaffold_id_a <= scaffold_id_b and a
// stable tie-break on position.
type MappedRecord struct {
	ScaffoldA uint32
	PosA      uint32
	OrientA   byte
	ScaffoldB uint32
	PosB      uint32
	OrientB   byte
}

// Scan reads records from r (typically an *os.File opened by the
// caller), applies the mapq filter, maps both ends through layout, drops
// unmapped-end records, and invokes yield for each surviving mapped
// record. Scan returns the first error yield returns, or a fatal I/O /
// INPUT_INVALID error from the stream itself.
func (s *LinkStore) Scan(r io.Reader, layout *Layout, minMapQ uint8, yield func(MappedRecord) error) error {
	br := bufio.NewReaderSize(r, 1<<20)
	for {
		rec, err := readRecord(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.MapQ < minMapQ {
			continue
		}
		sa, pa, oa, ok := layout.CoordConvert(rec.RefA, rec.PosA)
		if !ok {
			continue
		}
		sb, pb, ob, ok := layout.CoordConvert(rec.RefB, rec.PosB)
		if !ok {
			continue
		}
		m := MappedRecord{ScaffoldA: sa, PosA: pa, OrientA: oa, ScaffoldB: sb, PosB: pb, OrientB: ob}
		if m.ScaffoldA > m.ScaffoldB || (m.ScaffoldA == m.ScaffoldB && m.PosA > m.PosB) {
			m.ScaffoldA, m.ScaffoldB = m.ScaffoldB, m.ScaffoldA
			m.PosA, m.PosB = m.PosB, m.PosA
			m.OrientA, m.OrientB = m.OrientB, m.OrientA
		}
		if err := yield(m); err != nil {
			return err
		}
	}
}
