// Package revision appends an incremental update to a PDF document: new or
// replaced objects, a cross-reference section and a trailer that chains to
// the previous one. Bytes of earlier revisions are never rewritten.
package revision

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/digitorus/pdf"
	"github.com/google/uuid"
)

var (
	// ErrEncrypted is returned for documents with an /Encrypt dictionary.
	ErrEncrypted = errors.New("encrypted documents cannot be updated")
	// ErrNoStartXref is returned when the last startxref cannot be found.
	ErrNoStartXref = errors.New("could not find startxref")
	// ErrNoRoot is returned when the trailer has no usable /Root reference.
	ErrNoRoot = errors.New("trailer has no /Root reference")
)

// Ref identifies an indirect object.
type Ref struct {
	ID  uint32
	Gen uint16
}

func (r Ref) String() string {
	return strconv.FormatUint(uint64(r.ID), 10) + " " + strconv.FormatUint(uint64(r.Gen), 10) + " R"
}

// IsZero reports whether r refers to no object.
func (r Ref) IsZero() bool {
	return r.ID == 0
}

// RefOf returns the object a value was read from.
func RefOf(v pdf.Value) Ref {
	ptr := v.GetPtr()
	return Ref{ID: uint32(ptr.GetID()), Gen: uint16(ptr.GetGen())}
}

type xrefEntry struct {
	ref    Ref
	offset int64
}

// Writer collects the objects of one incremental update. The input document
// must already be copied into out; base is the number of bytes written to out
// so far. All further output is appended.
type Writer struct {
	rdr *pdf.Reader
	out io.Writer

	offset     int64
	prevXref   int64
	xrefStream bool
	nextID     uint32
	entries    []xrefEntry
	offsets    map[uint32]int64

	root        Ref
	info        Ref
	hasInfo     bool
	infoWritten bool
	infoDirect  bool
}

// New prepares an incremental update of the document read by rdr. src and
// size describe the original bytes, which are scanned for the last startxref.
func New(rdr *pdf.Reader, src io.ReaderAt, size int64, out io.Writer, base int64) (*Writer, error) {
	trailer := rdr.Trailer()
	if !trailer.Key("Encrypt").IsNull() {
		return nil, ErrEncrypted
	}

	prev, isStream, err := findStartXref(src, size)
	if err != nil {
		return nil, err
	}

	root := trailer.Key("Root")
	if root.Kind() != pdf.Dict {
		return nil, ErrNoRoot
	}

	w := &Writer{
		rdr:        rdr,
		out:        out,
		offset:     base,
		prevXref:   prev,
		xrefStream: isStream,
		offsets:    make(map[uint32]int64),
		root:       RefOf(root),
	}
	if w.root.IsZero() {
		return nil, ErrNoRoot
	}

	if info := trailer.Key("Info"); info.Kind() == pdf.Dict {
		w.hasInfo = true
		w.info = RefOf(info)
		w.infoDirect = w.info.IsZero()
	}

	size64 := trailer.Key("Size").Int64()
	if size64 < 1 {
		size64 = 1
	}
	w.nextID = uint32(size64)
	return w, nil
}

// Reader returns the reader of the original document.
func (w *Writer) Reader() *pdf.Reader {
	return w.rdr
}

// Root returns the catalog reference the trailer will point to.
func (w *Writer) Root() Ref {
	return w.root
}

// Offset returns the position at which the next byte will be written.
func (w *Writer) Offset() int64 {
	return w.offset
}

// ObjectOffset returns the position of an object written in this update.
func (w *Writer) ObjectOffset(id uint32) (int64, bool) {
	off, ok := w.offsets[id]
	return off, ok
}

// Reserve allocates a new object number without writing anything.
func (w *Writer) Reserve() Ref {
	ref := Ref{ID: w.nextID}
	w.nextID++
	return ref
}

// AddObject writes body as a new object and returns its reference.
func (w *Writer) AddObject(body []byte) (Ref, error) {
	ref := w.Reserve()
	return ref, w.WriteObject(ref, body)
}

// WriteObject writes body under ref. ref is either reserved in this update or
// an existing object that is being replaced.
func (w *Writer) WriteObject(ref Ref, body []byte) error {
	if _, done := w.offsets[ref.ID]; done {
		return fmt.Errorf("object %d written twice", ref.ID)
	}
	start := w.offset

	var b bytes.Buffer
	fmt.Fprintf(&b, "%d %d obj\n", ref.ID, ref.Gen)
	b.Write(body)
	b.WriteString("\nendobj\n")
	if err := w.write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write object %d: %w", ref.ID, err)
	}

	w.offsets[ref.ID] = start
	w.entries = append(w.entries, xrefEntry{ref: ref, offset: start})
	return nil
}

// SetRoot makes ref the catalog of the updated document.
func (w *Writer) SetRoot(ref Ref) {
	w.root = ref
}

// SetInfo writes a new document information dictionary and points the
// trailer to it. ModDate is always set to now.
func (w *Writer) SetInfo(values map[string]string, now time.Time) error {
	body := w.infoDictionary(values, now)
	ref := w.info
	if ref.IsZero() || w.infoDirect {
		ref = w.Reserve()
	}
	if err := w.WriteObject(ref, body); err != nil {
		return err
	}
	w.info = ref
	w.hasInfo = true
	w.infoDirect = false
	w.infoWritten = true
	return nil
}

// Close refreshes the document information dictionary if the update did not
// replace it, then writes the cross-reference section and the trailer.
func (w *Writer) Close(now time.Time) error {
	if w.hasInfo && !w.infoWritten {
		if err := w.SetInfo(InfoValues(w.rdr.Trailer().Key("Info")), now); err != nil {
			return fmt.Errorf("failed to refresh info: %w", err)
		}
	}

	id0, id1 := w.documentID()

	if w.xrefStream {
		return w.writeXrefStream(id0, id1)
	}
	return w.writeXrefTable(id0, id1)
}

func (w *Writer) size() uint32 {
	return w.nextID
}

// documentID keeps the permanent identifier and regenerates the changing one.
func (w *Writer) documentID() ([]byte, []byte) {
	changing := uuid.New()
	var permanent []byte
	if id := w.rdr.Trailer().Key("ID"); id.Kind() == pdf.Array && id.Len() > 0 {
		permanent = []byte(id.Index(0).RawString())
	}
	if len(permanent) == 0 {
		fresh := uuid.New()
		permanent = fresh[:]
	}
	return permanent, changing[:]
}

// subsections groups the entries into runs of consecutive object numbers.
func (w *Writer) subsections() [][]xrefEntry {
	sorted := append([]xrefEntry(nil), w.entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ref.ID < sorted[j].ref.ID })

	var sections [][]xrefEntry
	for i, e := range sorted {
		if i == 0 || e.ref.ID != sorted[i-1].ref.ID+1 {
			sections = append(sections, nil)
		}
		sections[len(sections)-1] = append(sections[len(sections)-1], e)
	}
	return sections
}

func (w *Writer) write(p []byte) error {
	n, err := w.out.Write(p)
	w.offset += int64(n)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

var startXrefPattern = regexp.MustCompile(`startxref\s+(\d+)`)

// findStartXref reads the tail of the document for the offset of the last
// cross-reference section and reports whether that section is a stream.
func findStartXref(src io.ReaderAt, size int64) (int64, bool, error) {
	const tail = 2048
	start := size - tail
	if start < 0 {
		start = 0
	}
	buf := make([]byte, size-start)
	if _, err := src.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
		return 0, false, fmt.Errorf("failed to read document tail: %w", err)
	}

	matches := startXrefPattern.FindAllSubmatch(buf, -1)
	if len(matches) == 0 {
		return 0, false, ErrNoStartXref
	}
	offset, err := strconv.ParseInt(string(matches[len(matches)-1][1]), 10, 64)
	if err != nil || offset <= 0 || offset >= size {
		return 0, false, ErrNoStartXref
	}

	head := make([]byte, 16)
	n, err := src.ReadAt(head, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, false, fmt.Errorf("failed to read xref section: %w", err)
	}
	isTable := bytes.HasPrefix(bytes.TrimLeft(head[:n], " \r\n\t"), []byte("xref"))
	return offset, !isTable, nil
}
