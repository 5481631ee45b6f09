// Package document opens input PDF documents for reading.
package document

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/digitorus/pdf"

	"github.com/digitorus/pdfmu/operation"
	"github.com/digitorus/pdfmu/revision"
	"github.com/digitorus/pdfmu/version"
)

// SignatureInfo describes a signature field found in the document.
type SignatureInfo struct {
	Name     string
	Reason   string
	Location string
	Contact  string
	Date     time.Time

	// SubFilter of the signature dictionary, empty for unsigned fields.
	Filter string
	Signed bool
}

// Handle owns the input file and the parsed document model.
type Handle struct {
	path   string
	file   *os.File
	size   int64
	rdr    *pdf.Reader
	header version.Version
}

// Open opens path and parses it as a PDF document.
func Open(path string) (*Handle, error) {
	arg := operation.A("inputFile", path)
	log.Printf("Input PDF document: %s", path)

	fi, err := os.Stat(path)
	if err != nil {
		return nil, operation.New(operation.InputNotFound, err, arg)
	}
	if fi.IsDir() {
		return nil, operation.New(operation.InputNotFound, fmt.Errorf("%s is a directory", path), arg)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, operation.New(operation.InputNotFound, err, arg)
	}

	h := &Handle{path: path, file: file, size: fi.Size()}
	if err := h.parse(); err != nil {
		_ = file.Close()
		return nil, operation.New(operation.InputNotValidFormat, err, arg)
	}
	return h, nil
}

func (h *Handle) parse() (err error) {
	// The reader panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	head := make([]byte, 1024)
	n, err := h.file.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	literal, ok := revision.HeaderVersion(head[:n])
	if !ok {
		return errors.New("missing %PDF- header")
	}
	if h.header, err = version.Parse(literal); err != nil {
		return err
	}

	rdr, err := pdf.NewReader(h.file, h.size)
	if err != nil {
		return err
	}
	if rdr.Trailer().Key("Root").Kind() != pdf.Dict {
		return errors.New("document has no catalog")
	}
	h.rdr = rdr
	return nil
}

// Path returns the path the document was opened from.
func (h *Handle) Path() string {
	return h.path
}

// Size returns the size of the input in bytes.
func (h *Handle) Size() int64 {
	return h.size
}

// Reader returns the parsed document.
func (h *Handle) Reader() *pdf.Reader {
	return h.rdr
}

// Source returns the input file.
func (h *Handle) Source() io.ReadSeeker {
	return h.file
}

// ReaderAt returns the input file for random access.
func (h *Handle) ReaderAt() io.ReaderAt {
	return h.file
}

// CopyTo writes the complete input to w.
func (h *Handle) CopyTo(w io.Writer) (int64, error) {
	return io.Copy(w, io.NewSectionReader(h.file, 0, h.size))
}

// HeaderVersion returns the version declared in the %PDF- header.
func (h *Handle) HeaderVersion() version.Version {
	return h.header
}

// Version returns the effective version: the catalog /Version entry
// overrides the header when it is higher.
func (h *Handle) Version() version.Version {
	v := h.header
	if h.rdr == nil {
		return v
	}
	literal := h.rdr.Trailer().Key("Root").Key("Version")
	if literal.Kind() != pdf.Name {
		return v
	}
	if cv, err := version.Parse(literal.Name()); err == nil {
		v = version.Max(v, cv)
	}
	return v
}

// Info returns the textual entries of the document information dictionary.
func (h *Handle) Info() map[string]string {
	if h.rdr == nil {
		return map[string]string{}
	}
	return revision.InfoValues(h.rdr.Trailer().Key("Info"))
}

// Encrypted reports whether the document carries an /Encrypt dictionary.
func (h *Handle) Encrypted() bool {
	return h.rdr != nil && !h.rdr.Trailer().Key("Encrypt").IsNull()
}

// Signatures lists the signature fields of the interactive form.
func (h *Handle) Signatures() []SignatureInfo {
	if h.rdr == nil {
		return nil
	}
	var sigs []SignatureInfo
	fields := h.rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	for i := 0; i < fields.Len(); i++ {
		sigs = collectSignatures(sigs, fields.Index(i), "", 0)
	}
	return sigs
}

// FieldNames returns the fully qualified names of all form fields.
func (h *Handle) FieldNames() map[string]bool {
	names := make(map[string]bool)
	if h.rdr == nil {
		return names
	}
	fields := h.rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	for i := 0; i < fields.Len(); i++ {
		collectNames(names, fields.Index(i), "", 0)
	}
	return names
}

// Close closes the input file. It is safe to call more than once.
func (h *Handle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	h.rdr = nil
	return err
}

// maxFieldDepth limits the walk through the field tree.
const maxFieldDepth = 32

func qualifiedName(parent string, field pdf.Value) string {
	name := field.Key("T").Text()
	switch {
	case parent == "":
		return name
	case name == "":
		return parent
	}
	return parent + "." + name
}

func collectNames(names map[string]bool, field pdf.Value, parent string, depth int) {
	if depth > maxFieldDepth || field.Kind() != pdf.Dict {
		return
	}
	name := qualifiedName(parent, field)
	if name != "" {
		names[name] = true
	}
	kids := field.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		collectNames(names, kids.Index(i), name, depth+1)
	}
}

func collectSignatures(sigs []SignatureInfo, field pdf.Value, parent string, depth int) []SignatureInfo {
	if depth > maxFieldDepth || field.Kind() != pdf.Dict {
		return sigs
	}
	name := qualifiedName(parent, field)

	if field.Key("FT").Name() == "Sig" {
		info := SignatureInfo{Name: name}
		if v := field.Key("V"); v.Kind() == pdf.Dict {
			info.Signed = true
			info.Filter = v.Key("SubFilter").Name()
			info.Reason = v.Key("Reason").Text()
			info.Location = v.Key("Location").Text()
			info.Contact = v.Key("ContactInfo").Text()
			if m := v.Key("M").Text(); m != "" {
				if t, err := revision.ParseDateTime(m); err == nil {
					info.Date = t
				}
			}
		}
		sigs = append(sigs, info)
	}

	kids := field.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		sigs = collectSignatures(sigs, kids.Index(i), name, depth+1)
	}
	return sigs
}

// NextSignatureName returns the first unused field name of the form
// Signature<n>.
func (h *Handle) NextSignatureName() string {
	names := h.FieldNames()
	for n := 1; ; n++ {
		name := "Signature" + strconv.Itoa(n)
		if !names[name] {
			return name
		}
	}
}
