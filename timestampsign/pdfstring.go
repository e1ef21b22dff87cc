package timestampsign

import (
	"bytes"
	"fmt"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// PDFDateTime formats t as a PDF date string (D:YYYYMMDDHHmmSS+HH'mm').
// Go's reference layout cannot express the primed timezone form, so the
// offset is rendered by hand.
func PDFDateTime(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	return fmt.Sprintf("D:%s%s%02d'%02d'", t.Format("20060102150405"), sign, hours, minutes)
}

// pdfTextString serializes s as a PDF text string. Pure ASCII goes out
// as an escaped literal string; anything else is re-encoded to UTF-16BE
// with a byte order mark and written as a hex string, which every PDF
// reader accepts regardless of its PDFDocEncoding support.
func pdfTextString(s string) string {
	if isASCII(s) {
		return pdfLiteralString(s)
	}

	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.String(s)
	if err != nil {
		// Unencodable input degrades to an escaped literal rather than
		// failing the whole preparation over a metadata string.
		return pdfLiteralString(s)
	}

	var buf bytes.Buffer
	buf.WriteByte('<')
	for i := 0; i < len(encoded); i++ {
		fmt.Fprintf(&buf, "%02X", encoded[i])
	}
	buf.WriteByte('>')
	return buf.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7e || s[i] < 0x20 {
			return false
		}
	}
	return true
}

func pdfLiteralString(s string) string {
	var buf bytes.Buffer
	buf.WriteByte('(')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(s[i])
		default:
			buf.WriteByte(s[i])
		}
	}
	buf.WriteByte(')')
	return buf.String()
}
