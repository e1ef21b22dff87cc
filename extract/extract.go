// Package extract walks the AcroForm field tree of a PDF and surfaces
// its signature dictionaries, with a narrowed iterator for the
// ETSI.RFC3161 document timestamps the rest of this module operates on.
package extract

import (
	"errors"
	"io"
	"iter"

	pdflib "github.com/digitorus/pdf"
)

// Signature is one signature dictionary found under AcroForm.Fields,
// together with the file it was read from so ByteRange regions can be
// sliced back out.
type Signature struct {
	dict pdflib.Value
	file io.ReaderAt
}

// Object returns the underlying signature dictionary value.
func (s *Signature) Object() pdflib.Value { return s.dict }

// Filter returns the signature handler name (normally Adobe.PPKLite).
func (s *Signature) Filter() string { return s.dict.Key("Filter").Name() }

// SubFilter returns the signature encoding name; document timestamps
// carry ETSI.RFC3161 here.
func (s *Signature) SubFilter() string { return s.dict.Key("SubFilter").Name() }

// Contents returns the decoded bytes of the Contents hex literal,
// including any trailing zero padding left over from the reserved
// placeholder. Callers that want only the DER token should trim the
// padding; callers computing a VRI key must not.
func (s *Signature) Contents() []byte {
	return []byte(s.dict.Key("Contents").RawString())
}

// ByteRange returns the ByteRange array as int64 offsets/lengths, or nil
// when the entry is missing or empty.
func (s *Signature) ByteRange() []int64 {
	br := s.dict.Key("ByteRange")
	if br.IsNull() || br.Len() == 0 {
		return nil
	}
	out := make([]int64, br.Len())
	for i := range out {
		out[i] = br.Index(i).Int64()
	}
	return out
}

// CoveredBytes reads and concatenates the regions named by ByteRange:
// for the usual [0 b c d] shape that is file[0..b] followed by
// file[c..c+d], the exact input of the timestamp's message imprint.
func (s *Signature) CoveredBytes() ([]byte, error) {
	ranges := s.ByteRange()
	if len(ranges) == 0 || len(ranges)%2 != 0 {
		return nil, errors.New("extract: invalid or missing ByteRange")
	}

	var total int64
	for i := 1; i < len(ranges); i += 2 {
		total += ranges[i]
	}

	out := make([]byte, 0, total)
	buf := make([]byte, 32*1024)
	for i := 0; i < len(ranges); i += 2 {
		offset, length := ranges[i], ranges[i+1]
		var done int64
		for done < length {
			n := int64(len(buf))
			if length-done < n {
				n = length - done
			}
			read, err := s.file.ReadAt(buf[:n], offset+done)
			out = append(out, buf[:read]...)
			done += int64(read)
			if err != nil {
				if err == io.EOF && done == length {
					break
				}
				return nil, err
			}
		}
	}
	return out, nil
}

// Iter yields every signature dictionary reachable from
// Catalog.AcroForm.Fields, descending into Kids. Fields whose value is
// neither typed (/Sig, /DocTimeStamp) nor carrying Filter+Contents are
// skipped: an unfilled signature field is not a signature.
func Iter(rdr *pdflib.Reader, file io.ReaderAt) iter.Seq2[*Signature, error] {
	return func(yield func(*Signature, error) bool) {
		acroForm := rdr.Trailer().Key("Root").Key("AcroForm")
		if acroForm.Key("SigFlags").IsNull() {
			return
		}
		walkFields(acroForm.Key("Fields"), file, yield)
	}
}

func walkFields(fields pdflib.Value, file io.ReaderAt, yield func(*Signature, error) bool) bool {
	if fields.IsNull() || fields.Kind() != pdflib.Array {
		return true
	}
	for i := 0; i < fields.Len(); i++ {
		field := fields.Index(i)

		if field.Key("FT").Name() == "Sig" {
			v := field.Key("V")
			if isSignatureValue(v) {
				if !yield(&Signature{dict: v, file: file}, nil) {
					return false
				}
			}
		}

		if kids := field.Key("Kids"); !kids.IsNull() {
			if !walkFields(kids, file, yield) {
				return false
			}
		}
	}
	return true
}

func isSignatureValue(v pdflib.Value) bool {
	switch v.Key("Type").Name() {
	case "Sig", "DocTimeStamp":
		return true
	}
	return !v.Key("Filter").IsNull() && !v.Key("Contents").IsNull()
}
