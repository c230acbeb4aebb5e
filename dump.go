package allhic

import (
	"io"

	"github.com/biogo/hts/bam"
)

// DumpBAM scans a BAM stream of Hi-C alignments and writes the Link
// Store's binary format to w, filling the "BAM/BED-to-binary link-dump"
// role spec.md §1 treats as an external collaborator. Grounded on
// kortschak-loopy's biogo/hts/bam read loop (cmd/broadside, cmd/reefer).
//
// Records are deduplicated by read name within the scan (spec §3: "one
// record per read pair"): only the first alignment seen per name is kept,
// and unpaired or unmapped records (MateRef == nil, RefID < 0) are
// skipped.
func DumpBAM(r io.Reader, w io.Writer) (written int, err error) {
	br, err := bam.NewReader(r, 0)
	if err != nil {
		return 0, newError(IOError, "opening bam stream", err)
	}
	defer br.Close()

	seen := make(map[string]bool)
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, newError(InputInvalid, "reading bam record", err)
		}
		if rec.Ref == nil || rec.MateRef == nil {
			continue
		}
		if rec.Ref.ID() < 0 || rec.MateRef.ID() < 0 {
			continue
		}
		if seen[rec.Name] {
			continue
		}
		seen[rec.Name] = true

		link := Record{
			RefA: uint32(rec.Ref.ID()),
			PosA: uint32(rec.Pos),
			RefB: uint32(rec.MateRef.ID()),
			PosB: uint32(rec.MatePos),
			MapQ: uint8(rec.MapQ),
		}
		if err := WriteRecord(w, link); err != nil {
			return written, newError(IOError, "writing link record", err)
		}
		written++
	}
	return written, nil
}

// ReferenceNames returns the BAM header's reference names in header
// order, which a caller uses to seed a Dictionary with matching contig
// ids (ref ID in the dump must agree with the Dictionary's contig index).
func ReferenceNames(r io.Reader) ([]string, error) {
	br, err := bam.NewReader(r, 0)
	if err != nil {
		return nil, newError(IOError, "opening bam stream", err)
	}
	defer br.Close()
	refs := br.Header().Refs()
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name()
	}
	return names, nil
}
