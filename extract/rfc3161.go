package extract

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	pdflib "github.com/digitorus/pdf"
)

// State tracks where a timestamp signature is in its lifecycle: a
// reserved-but-unfilled placeholder, an embedded token, or an embedded
// token that has been through cryptographic verification. Only
// StateVerifiedOK implies integrity.
type State int

const (
	StatePlaceholder State = iota
	StateEmbedded
	StateVerifiedOK
	StateVerifiedFail
)

func (s State) String() string {
	switch s {
	case StatePlaceholder:
		return "placeholder"
	case StateEmbedded:
		return "embedded"
	case StateVerifiedOK:
		return "verified-ok"
	case StateVerifiedFail:
		return "verified-fail"
	}
	return "unknown"
}

// TimestampSignature is a Signature narrowed to the RFC3161-only
// contract: SubFilter must name ETSI.RFC3161, Contents decodes to a
// non-empty, non-all-zero token, and the metadata entries a timestamp
// dictionary may carry are surfaced as Go values.
type TimestampSignature struct {
	*Signature

	Token               []byte
	State               State
	CoversWholeDocument bool
	ModificationTime    *time.Time
	Reason              string
	Location            string
	ContactInfo         string
}

// MarkVerified records the outcome of a verification pass.
func (ts *TimestampSignature) MarkVerified(ok bool) {
	if ok {
		ts.State = StateVerifiedOK
	} else {
		ts.State = StateVerifiedFail
	}
}

// IsRFC3161 reports whether s's SubFilter names the ETSI.RFC3161 document
// timestamp handler, as opposed to a plain PKCS#7 signature.
func (s *Signature) IsRFC3161() bool {
	return bytes.Contains([]byte(s.SubFilter()), []byte("ETSI.RFC3161"))
}

// IterRFC3161 walks the same field tree as Iter but yields only document
// timestamp signatures, already decoded and validated per §4.8: the hex
// Contents must decode cleanly and must not be the all-zero placeholder
// left behind by an aborted preparation.
func IterRFC3161(rdr *pdflib.Reader, file io.ReaderAt, fileSize int64) iter.Seq2[*TimestampSignature, error] {
	return func(yield func(*TimestampSignature, error) bool) {
		for sig, err := range Iter(rdr, file) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !sig.IsRFC3161() {
				continue
			}

			ts, terr := decodeRFC3161(sig, fileSize)
			if !yield(ts, terr) {
				return
			}
		}
	}
}

func decodeRFC3161(sig *Signature, fileSize int64) (*TimestampSignature, error) {
	// Contents arrives already hex-decoded from the PDF reader; the tail
	// is the zero padding left over from the reserved placeholder.
	token := bytes.TrimRight(sig.Contents(), "\x00")
	if allZero(token) {
		return nil, fmt.Errorf("extract: Contents is an unfilled placeholder")
	}

	br := sig.ByteRange()
	covers := false
	if len(br) == 4 {
		covers = br[2]+br[3] == fileSize
	}

	ts := &TimestampSignature{
		Signature:           sig,
		Token:               token,
		State:               StateEmbedded,
		CoversWholeDocument: covers,
	}

	obj := sig.Object()
	if m := obj.Key("M"); !m.IsNull() {
		if t, perr := parsePDFDate(m.Text()); perr == nil {
			ts.ModificationTime = &t
		}
	}
	ts.Reason = obj.Key("Reason").Text()
	ts.Location = obj.Key("Location").Text()
	ts.ContactInfo = obj.Key("ContactInfo").Text()

	return ts, nil
}

func allZero(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// parsePDFDate parses the PDF date format D:YYYYMMDDHHmmSS±HH'mm' (or a
// trailing Z for UTC) into a UTC time.Time.
func parsePDFDate(v string) (time.Time, error) {
	s := strings.ReplaceAll(v, "'", "")
	if i := strings.IndexByte(s, 'Z'); i >= 0 {
		s = s[:i+1]
	} else if i := strings.LastIndexAny(s, "+-"); i >= 0 && len(s)-i == 3 {
		s += "00"
	}
	t, err := time.Parse("D:20060102150405Z0700", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
