// Package testpdf builds small PDF documents for tests.
package testpdf

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Options control the generated document.
type Options struct {
	// Header is the version in the %PDF- header. Defaults to 1.4, or 1.5
	// when XrefStream is set.
	Header string
	// CatalogVersion adds a /Version entry to the catalog when set.
	CatalogVersion string
	// Info entries. No information dictionary is written when nil.
	Info map[string]string
	// XrefStream writes a cross-reference stream instead of a table.
	XrefStream bool
	// Form adds an AcroForm with one text field.
	Form bool
	// Encrypt adds an /Encrypt entry for the empty user password to the
	// trailer. Strings are not actually encrypted, so Info is unreadable.
	Encrypt bool
}

// Build returns the bytes of a one page document.
func Build(opts Options) []byte {
	header := opts.Header
	if header == "" {
		header = "1.4"
		if opts.XrefStream {
			header = "1.5"
		}
	}

	var objects []string
	add := func(body string) int {
		objects = append(objects, body)
		return len(objects)
	}

	catalog := add("") // filled in below
	pages := add("")
	page := add("")
	objects[pages-1] = fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page)

	var annots, acroForm string
	if opts.Form {
		field := add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /T (Name) /Rect [50 700 250 720] /P %d 0 R >>", page))
		annots = fmt.Sprintf(" /Annots [%d 0 R]", field)
		acroForm = fmt.Sprintf(" /AcroForm << /Fields [%d 0 R] >>", field)
	}
	objects[page-1] = fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792]%s >>", pages, annots)

	catalogVersion := ""
	if opts.CatalogVersion != "" {
		catalogVersion = " /Version /" + opts.CatalogVersion
	}
	objects[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R%s%s >>", pages, catalogVersion, acroForm)

	info := 0
	if opts.Info != nil {
		info = add(infoDictionary(opts.Info))
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", header)

	offsets := make([]int, len(objects)+1)
	for i, body := range objects {
		offsets[i+1] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	trailer := fmt.Sprintf("/Root %d 0 R", catalog)
	if info != 0 {
		trailer += fmt.Sprintf(" /Info %d 0 R", info)
	}
	trailer += fmt.Sprintf(" /ID [<%X><%X>]", documentID, documentID)
	if opts.Encrypt {
		trailer += fmt.Sprintf(" /Encrypt << /Filter /Standard /V 1 /R 2 /O <%X> /U <%X> /P %d >>",
			ownerEntry, userEntry(), permissions)
	}

	xrefStart := b.Len()
	if opts.XrefStream {
		self := len(objects) + 1
		size := self + 1
		offsets = append(offsets, xrefStart)

		var rows bytes.Buffer
		for id := 0; id < size; id++ {
			typ, off, gen := byte(1), uint32(offsets[id]), uint16(0)
			if id == 0 {
				typ, off, gen = 0, 0, 65535
			}
			rows.WriteByte(typ)
			_ = binary.Write(&rows, binary.BigEndian, off)
			_ = binary.Write(&rows, binary.BigEndian, gen)
		}
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Length %d %s >>\nstream\n", self, size, rows.Len(), trailer)
		b.Write(rows.Bytes())
		b.WriteString("\nendstream\nendobj\n")
	} else {
		size := len(objects) + 1
		fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f\r\n", size)
		for id := 1; id < size; id++ {
			fmt.Fprintf(&b, "%010d 00000 n\r\n", offsets[id])
		}
		fmt.Fprintf(&b, "trailer\n<< /Size %d %s >>\n", size, trailer)
	}
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefStart)
	return b.Bytes()
}

// Write builds a document and stores it as name in dir.
func Write(t testing.TB, dir, name string, opts Options) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(opts), 0o644); err != nil {
		t.Fatalf("failed to write test document: %v", err)
	}
	return path
}

var (
	documentID = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	ownerEntry = bytes.Repeat([]byte{0x5a}, 32)
	padding    = []byte{
		0x28, 0xbf, 0x4e, 0x5e, 0x4e, 0x75, 0x8a, 0x41, 0x64, 0x00, 0x4e, 0x56, 0xff, 0xfa, 0x01, 0x08,
		0x2e, 0x2e, 0x00, 0xb6, 0xd0, 0x68, 0x3e, 0x80, 0x2f, 0x0c, 0xa9, 0xfe, 0x64, 0x53, 0x69, 0x7a,
	}
)

const permissions int32 = -4

// userEntry computes the /U entry of revision 2 of the standard security
// handler for the empty user password, so that readers can open the
// document without a password.
func userEntry() []byte {
	h := md5.New()
	h.Write(padding)
	h.Write(ownerEntry)
	_ = binary.Write(h, binary.LittleEndian, permissions)
	h.Write(documentID)
	key := h.Sum(nil)[:5]

	c, err := rc4.NewCipher(key)
	if err != nil {
		panic(err)
	}
	u := make([]byte, len(padding))
	c.XORKeyStream(u, padding)
	return u
}

func infoDictionary(info map[string]string) string {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<<")
	for _, k := range keys {
		fmt.Fprintf(&b, " /%s (%s)", k, escape(info[k]))
	}
	b.WriteString(" >>")
	return b.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "(", "\\(")
	return strings.ReplaceAll(s, ")", "\\)")
}
