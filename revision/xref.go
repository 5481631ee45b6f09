package revision

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
)

// writeXrefTable writes a classic cross-reference section followed by the
// trailer dictionary.
func (w *Writer) writeXrefTable(id0, id1 []byte) error {
	xrefStart := w.offset

	var b bytes.Buffer
	b.WriteString("xref\n")
	for _, section := range w.subsections() {
		fmt.Fprintf(&b, "%d %d\n", section[0].ref.ID, len(section))
		for _, e := range section {
			// Each entry is exactly 20 bytes.
			fmt.Fprintf(&b, "%010d %05d n\r\n", e.offset, e.ref.Gen)
		}
	}

	b.WriteString("trailer\n")
	b.WriteString("<<\n")
	fmt.Fprintf(&b, "  /Size %d\n", w.size())
	fmt.Fprintf(&b, "  /Root %s\n", w.root)
	if !w.info.IsZero() {
		fmt.Fprintf(&b, "  /Info %s\n", w.info)
	}
	fmt.Fprintf(&b, "  /Prev %d\n", w.prevXref)
	writeID(&b, id0, id1)
	b.WriteString(">>\n")

	writeStartXref(&b, xrefStart)
	if err := w.write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write xref table: %w", err)
	}
	return nil
}

// writeXrefStream writes a cross-reference stream object which also carries
// the trailer entries.
func (w *Writer) writeXrefStream(id0, id1 []byte) error {
	self := w.Reserve()
	xrefStart := w.offset
	w.entries = append(w.entries, xrefEntry{ref: self, offset: xrefStart})

	var rows bytes.Buffer
	var index []string
	for _, section := range w.subsections() {
		index = append(index, strconv.FormatUint(uint64(section[0].ref.ID), 10), strconv.Itoa(len(section)))
		for _, e := range section {
			writeXrefStreamLine(&rows, 1, e.offset, e.ref.Gen)
		}
	}

	data, err := deflate(rows.Bytes())
	if err != nil {
		return fmt.Errorf("failed to encode xref stream: %w", err)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%d %d obj\n", self.ID, self.Gen)
	b.WriteString("<< /Type /XRef\n")
	fmt.Fprintf(&b, "  /Length %d\n", len(data))
	b.WriteString("  /Filter /FlateDecode\n")
	b.WriteString("  /W [ 1 4 2 ]\n")
	fmt.Fprintf(&b, "  /Size %d\n", w.size())
	b.WriteString("  /Index [")
	for _, idx := range index {
		b.WriteString(" " + idx)
	}
	b.WriteString(" ]\n")
	fmt.Fprintf(&b, "  /Prev %d\n", w.prevXref)
	fmt.Fprintf(&b, "  /Root %s\n", w.root)
	if !w.info.IsZero() {
		fmt.Fprintf(&b, "  /Info %s\n", w.info)
	}
	writeID(&b, id0, id1)
	b.WriteString(">>\n")
	b.WriteString("stream\n")
	b.Write(data)
	b.WriteString("\nendstream\nendobj\n")

	writeStartXref(&b, xrefStart)
	if err := w.write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write xref stream: %w", err)
	}
	w.offsets[self.ID] = xrefStart
	return nil
}

func writeID(b *bytes.Buffer, id0, id1 []byte) {
	fmt.Fprintf(b, "  /ID [<%s><%s>]\n", hex.EncodeToString(id0), hex.EncodeToString(id1))
}

func writeStartXref(b *bytes.Buffer, start int64) {
	b.WriteString("startxref\n")
	b.WriteString(strconv.FormatInt(start, 10) + "\n")
	b.WriteString("%%EOF\n")
}

// writeXrefStreamLine writes one row: type (1 byte), offset (4 bytes) and
// generation (2 bytes).
func writeXrefStreamLine(b *bytes.Buffer, xreftype byte, offset int64, gen uint16) {
	b.WriteByte(xreftype)

	var field [4]byte
	binary.BigEndian.PutUint32(field[:], uint32(offset))
	b.Write(field[:])

	var genField [2]byte
	binary.BigEndian.PutUint16(genField[:], gen)
	b.Write(genField[:])
}

func deflate(data []byte) ([]byte, error) {
	var b bytes.Buffer
	zw := zlib.NewWriter(&b)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
