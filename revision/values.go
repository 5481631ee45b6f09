package revision

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/digitorus/pdf"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Serialize writes an object read from the document back in PDF syntax.
// Objects it refers to indirectly are written as references, everything
// stored directly inside it is written inline. Streams are not supported.
func Serialize(v pdf.Value) []byte {
	var b bytes.Buffer
	writeValue(&b, v, RefOf(v), true)
	return b.Bytes()
}

func writeValue(b *bytes.Buffer, v pdf.Value, owner Ref, top bool) {
	if !top {
		if ref := RefOf(v); ref != owner && !ref.IsZero() {
			b.WriteString(ref.String())
			return
		}
	}

	switch v.Kind() {
	case pdf.Null:
		b.WriteString("null")
	case pdf.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		b.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		b.WriteString(formatReal(v.Float64()))
	case pdf.String:
		b.WriteString("<" + hex.EncodeToString([]byte(v.RawString())) + ">")
	case pdf.Name:
		b.WriteString(Name(v.Name()))
	case pdf.Array:
		b.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteString(" ")
			}
			writeValue(b, v.Index(i), owner, false)
		}
		b.WriteString("]")
	case pdf.Dict:
		b.WriteString("<<")
		for _, key := range v.Keys() {
			b.WriteString(" " + Name(key) + " ")
			writeValue(b, v.Key(key), owner, false)
		}
		b.WriteString(" >>")
	default:
		b.WriteString("null")
	}
}

// Dict writes the dictionary v with the entries of set added or replaced and
// the keys in drop removed. Values in set are already in PDF syntax.
func Dict(v pdf.Value, set map[string]string, drop ...string) []byte {
	owner := RefOf(v)
	skip := make(map[string]bool, len(set)+len(drop))
	for _, k := range drop {
		skip[k] = true
	}
	for k := range set {
		skip[k] = true
	}

	var b bytes.Buffer
	b.WriteString("<<")
	if v.Kind() == pdf.Dict {
		for _, key := range v.Keys() {
			if skip[key] {
				continue
			}
			b.WriteString("\n  " + Name(key) + " ")
			writeValue(&b, v.Key(key), owner, false)
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n  " + Name(k) + " " + set[k])
	}
	b.WriteString("\n>>")
	return b.Bytes()
}

// Array writes the elements of the array v followed by extra, which are
// already in PDF syntax. A v that is not an array contributes nothing.
func Array(v pdf.Value, extra ...string) string {
	owner := RefOf(v)
	var b bytes.Buffer
	b.WriteString("[")
	n := 0
	if v.Kind() == pdf.Array {
		for i := 0; i < v.Len(); i++ {
			if n > 0 {
				b.WriteString(" ")
			}
			writeValue(&b, v.Index(i), owner, false)
			n++
		}
	}
	for _, e := range extra {
		if n > 0 {
			b.WriteString(" ")
		}
		b.WriteString(e)
		n++
	}
	b.WriteString("]")
	return b.String()
}

// Name returns key as a PDF name, escaping delimiters and non-printable bytes.
func Name(key string) string {
	var b strings.Builder
	b.WriteByte('/')
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < '!' || c > '~' || strings.IndexByte("()<>[]{}/%#", c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Text returns the textual form of a simple value, as used for document
// information entries.
func Text(v pdf.Value) string {
	switch v.Kind() {
	case pdf.String:
		return v.Text()
	case pdf.Name:
		return v.Name()
	case pdf.Integer:
		return strconv.FormatInt(v.Int64(), 10)
	case pdf.Real:
		return formatReal(v.Float64())
	case pdf.Bool:
		return strconv.FormatBool(v.Bool())
	}
	return ""
}

// InfoValues returns the entries of a document information dictionary.
func InfoValues(info pdf.Value) map[string]string {
	values := make(map[string]string)
	if info.Kind() != pdf.Dict {
		return values
	}
	for _, key := range info.Keys() {
		if s := Text(info.Key(key)); s != "" {
			values[key] = s
		}
	}
	return values
}

// infoDictionary encodes values as an information dictionary. Entries that
// are unchanged and were not strings in the document keep their original
// type. ModDate is replaced by now.
func (w *Writer) infoDictionary(values map[string]string, now time.Time) []byte {
	original := w.rdr.Trailer().Key("Info")

	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "ModDate" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString("<<")
	for _, k := range keys {
		value := values[k]
		if value == "" {
			continue
		}
		b.WriteString("\n  " + Name(k) + " ")
		if old := original.Key(k); old.Kind() != pdf.String && old.Kind() != pdf.Null && Text(old) == value {
			writeValue(&b, old, RefOf(original), false)
			continue
		}
		b.WriteString(String(value))
	}
	b.WriteString("\n  /ModDate " + DateTime(now))
	b.WriteString("\n>>")
	return b.Bytes()
}

// String encodes text as a PDF string. ASCII text is written as a literal
// string, anything else as UTF-16BE with a byte order mark.
func String(text string) string {
	if !isASCII(text) {
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
		res, _, err := transform.String(enc, text)
		if err == nil {
			return "<" + strings.ToUpper(hex.EncodeToString([]byte(res))) + ">"
		}
	}

	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ")", "\\)")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, "\r", "\\r")
	text = strings.ReplaceAll(text, "\n", "\\n")
	return "(" + text + ")"
}

// DateTime encodes date in the PDF date format, for example
// (D:20240102150405+01'00').
func DateTime(date time.Time) string {
	_, originalOffset := date.Zone()
	offset := originalOffset
	if offset < 0 {
		offset = -offset
	}

	offsetDuration := time.Duration(offset) * time.Second
	hours := int(math.Floor(offsetDuration.Hours()))
	minutes := int(math.Floor(offsetDuration.Minutes())) - hours*60

	sign := "+"
	if originalOffset < 0 {
		sign = "-"
	}
	return String(fmt.Sprintf("D:%s%s%02d'%02d'", date.Format("20060102150405"), sign, hours, minutes))
}

var dateTimePattern = regexp.MustCompile(`^D:(\d{4})(\d{2})?(\d{2})?(\d{2})?(\d{2})?(\d{2})?([Zz+\-])?(\d{2})?'?(\d{2})?'?$`)

// ParseDateTime parses a PDF date string. Missing fields default to their
// lowest value, a missing zone means UTC.
func ParseDateTime(s string) (time.Time, error) {
	m := dateTimePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("malformed date %q", s)
	}
	field := func(i, def int) int {
		if m[i] == "" {
			return def
		}
		n, _ := strconv.Atoi(m[i])
		return n
	}

	loc := time.UTC
	if m[7] == "+" || m[7] == "-" {
		offset := field(8, 0)*3600 + field(9, 0)*60
		if m[7] == "-" {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}
	return time.Date(field(1, 0), time.Month(field(2, 1)), field(3, 1),
		field(4, 0), field(5, 0), field(6, 0), 0, loc), nil
}

var headerPattern = regexp.MustCompile(`%PDF-(\d\.\d)`)

// HeaderVersion returns the version of the %PDF- header found at the start
// of the document.
func HeaderVersion(head []byte) (string, bool) {
	m := headerPattern.FindSubmatch(head)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// PatchHeader replaces the version in the %PDF- header of b in place. The
// version literal must have the same width as the one it replaces.
func PatchHeader(b []byte, version string) bool {
	limit := len(b)
	if limit > 1024 {
		limit = 1024
	}
	loc := headerPattern.FindSubmatchIndex(b[:limit])
	if loc == nil || loc[3]-loc[2] != len(version) {
		return false
	}
	copy(b[loc[2]:loc[3]], version)
	return true
}

func formatReal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > '\u007F' {
			return false
		}
	}
	return true
}
