// Package timestampsign prepares a PDF with a reserved signature-dictionary
// placeholder (C3), embeds the TSA token into it once available (C4), and
// extracts the bytes that must be hashed to produce the TSA request (C5).
package timestampsign

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"time"

	pdflib "github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/internal/errs"
	"github.com/vaultstamp/tspdf/internal/pdfstruct"
)

// placeholderDigits is the hex digit the Contents placeholder is filled
// with; 2*S of them are reserved for a signature size of S bytes.
const placeholderDigits = "0"

// byteRangePlaceholder is written verbatim into the signature dict and later
// patched in place with the real, shorter ByteRange text, padded with
// trailing spaces out to this exact length so the file's total size never
// changes between preparation and patching.
const byteRangePlaceholder = "/ByteRange[0 ********** ********** **********]"

// Opts configures placeholder preparation.
type Opts struct {
	SignatureSize         int // S, in bytes; Contents reserves 2*S hex digits
	FieldName             string
	Reason                string
	Location              string
	ContactInfo           string
	OmitModificationTime  bool
	ModificationTimeValue string // pre-formatted PDF date string, e.g. from PDFDateTime(time.Now())
}

// Prepared is the result of PreparePlaceholder: a new incremental revision
// whose signature dictionary carries a correctly-sized, zero-filled
// Contents placeholder and a final (already patched) ByteRange.
type Prepared struct {
	Bytes                     []byte
	ByteRange                 [4]int64
	ContentsOffset            int64 // offset of the first hex digit inside Contents
	ContentsPlaceholderLength int   // 2*S
	SigObjNum                 uint32
}

var contentsPlaceholderRe = regexp.MustCompile(`/Contents\s*<(0+)>`)

// PreparePlaceholder implements the C3 contract from the component design:
// it loads image, lifts the object counter, builds a signature dictionary
// with a zero-filled hex placeholder, wires it into the AcroForm/page/
// catalog, saves incrementally, locates the placeholder (tail first), and
// patches the final ByteRange in place.
func PreparePlaceholder(image []byte, opts Opts) (*Prepared, error) {
	if opts.SignatureSize <= 0 {
		return nil, errs.New(errs.PdfError, "signature size must be positive")
	}
	if opts.FieldName == "" {
		opts.FieldName = "Timestamp"
	}

	rdr, err := pdflib.NewReader(bytes.NewReader(image), int64(len(image)))
	if err != nil {
		return nil, errs.Wrap(errs.PdfError, "failed to parse input PDF", err)
	}

	ctx, err := pdfstruct.Open(image)
	if err != nil {
		return nil, errs.Wrap(errs.PdfError, "failed to open PDF for incremental update", err)
	}

	sigObjNum := ctx.NewObjectNum()
	widgetObjNum := ctx.NewObjectNum()

	contentsHex := bytes.Repeat([]byte(placeholderDigits), 2*opts.SignatureSize)

	var sigDict bytes.Buffer
	sigDict.WriteString("<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /ETSI.RFC3161")
	fmt.Fprintf(&sigDict, " %s", byteRangePlaceholder)
	fmt.Fprintf(&sigDict, " /Contents <%s>", contentsHex)
	if !opts.OmitModificationTime {
		if opts.ModificationTimeValue == "" {
			opts.ModificationTimeValue = PDFDateTime(time.Now())
		}
		fmt.Fprintf(&sigDict, " /M %s", pdfLiteralString(opts.ModificationTimeValue))
	}
	if opts.Reason != "" {
		fmt.Fprintf(&sigDict, " /Reason %s", pdfTextString(opts.Reason))
	}
	if opts.Location != "" {
		fmt.Fprintf(&sigDict, " /Location %s", pdfTextString(opts.Location))
	}
	if opts.ContactInfo != "" {
		fmt.Fprintf(&sigDict, " /ContactInfo %s", pdfTextString(opts.ContactInfo))
	}
	sigDict.WriteString(" >>")
	ctx.UpdateObject(sigObjNum, sigDict.Bytes())

	pageValue, pageNum, pageErr := firstPage(rdr)
	if pageErr != nil {
		return nil, errs.Wrap(errs.PdfError, "failed to locate first page", pageErr)
	}

	var widgetDict bytes.Buffer
	fmt.Fprintf(&widgetDict, "<< /Type /Annot /Subtype /Widget /FT /Sig /Rect [0 0 0 0] /F 132 /T %s /V %d 0 R /P %d 0 R >>",
		pdfTextString(opts.FieldName), sigObjNum, pageNum)
	ctx.UpdateObject(widgetObjNum, widgetDict.Bytes())

	root := rdr.Trailer().Key("Root")
	acroForm := root.Key("AcroForm")

	var fieldsRefs []string
	if !acroForm.IsNull() {
		fields := acroForm.Key("Fields")
		for i := 0; i < fields.Len(); i++ {
			if ptr := fields.Index(i).GetPtr(); ptr.GetID() != 0 {
				fieldsRefs = append(fieldsRefs, fmt.Sprintf("%d %d R", ptr.GetID(), ptr.GetGen()))
			}
		}
	}
	fieldsRefs = append(fieldsRefs, fmt.Sprintf("%d 0 R", widgetObjNum))

	var acroFormObjNum uint32
	if !acroForm.IsNull() {
		if ptr := acroForm.GetPtr(); ptr.GetID() != 0 {
			acroFormObjNum = ptr.GetID()
		}
	}
	if acroFormObjNum == 0 {
		acroFormObjNum = ctx.NewObjectNum()
	}

	var acroFormDict bytes.Buffer
	acroFormDict.WriteString("<< /SigFlags 3 /Fields [")
	for i, ref := range fieldsRefs {
		if i > 0 {
			acroFormDict.WriteString(" ")
		}
		acroFormDict.WriteString(ref)
	}
	acroFormDict.WriteString("] >>")
	ctx.UpdateObject(acroFormObjNum, acroFormDict.Bytes())

	if err := appendToPageAnnots(ctx, pageValue, pageNum, widgetObjNum); err != nil {
		return nil, errs.Wrap(errs.PdfError, "failed to update page Annots", err)
	}

	var catalog bytes.Buffer
	catalog.WriteString("<<")
	for _, k := range root.Keys() {
		if k == "AcroForm" {
			continue
		}
		fmt.Fprintf(&catalog, " /%s ", k)
		if err := pdfstruct.SerializeValue(&catalog, ctx.RootNum, root.Key(k)); err != nil {
			return nil, errs.Wrap(errs.PdfError, "failed to serialize catalog entry "+k, err)
		}
	}
	fmt.Fprintf(&catalog, " /AcroForm %d 0 R >>", acroFormObjNum)
	ctx.UpdateObject(ctx.RootNum, catalog.Bytes())

	candidate, err := ctx.Finish(nil)
	if err != nil {
		return nil, errs.Wrap(errs.PdfError, "failed to finalize incremental revision", err)
	}

	contentsOffset, byteRangeTextStart, err := locatePlaceholder(candidate, opts.SignatureSize)
	if err != nil {
		return nil, err
	}

	totalLen := int64(len(candidate))
	a := int64(0)
	b := contentsOffset - 1 // offset of '<'
	c := b + int64(2*opts.SignatureSize) + 2
	d := totalLen - c

	compact := fmt.Sprintf("/ByteRange[0 %d %d %d]", b, c, d)
	if len(compact) > len(byteRangePlaceholder) {
		return nil, errs.New(errs.PdfError, "ByteRange placeholder too small")
	}
	padded := compact + spaces(len(byteRangePlaceholder)-len(compact))

	patched := make([]byte, len(candidate))
	copy(patched, candidate)
	copy(patched[byteRangeTextStart:byteRangeTextStart+int64(len(byteRangePlaceholder))], padded)

	return &Prepared{
		Bytes:                     patched,
		ByteRange:                 [4]int64{a, b, c, d},
		ContentsOffset:            contentsOffset,
		ContentsPlaceholderLength: 2 * opts.SignatureSize,
		SigObjNum:                 sigObjNum,
	}, nil
}

// locatePlaceholder finds the Contents hex placeholder, searching the tail
// of the file first and falling back to a whole-file scan, per the
// tail-then-whole-file strategy: search the tail of size
// max(50KiB, 2S+4KiB) for the placeholder pattern; take the last match if
// several are present; fall back to scanning the entire file if the tail
// search comes up empty. It returns the offset of the first hex digit and
// the offset where "/ByteRange[" begins so the caller can patch it in
// place.
func locatePlaceholder(data []byte, signatureSize int) (contentsOffset int64, byteRangeStart int64, err error) {
	tailSize := 50 * 1024
	if alt := 2*signatureSize + 4*1024; alt > tailSize {
		tailSize = alt
	}
	start := len(data) - tailSize
	if start < 0 {
		start = 0
	}

	loc := findLastContentsMatch(data[start:], signatureSize)
	base := start
	if loc == nil {
		loc = findLastContentsMatch(data, signatureSize)
		base = 0
		if loc == nil {
			return 0, 0, errs.New(errs.PdfError, "placeholder not found")
		}
	}

	hexStart := int64(base) + int64(loc[2]) // start of capture group (the zero run)
	dictStart := walkBackToDictStart(data, int64(base)+int64(loc[0]))
	brIdx := bytes.LastIndex(data[dictStart:int64(base)+int64(loc[0])], []byte("/ByteRange["))
	if brIdx < 0 {
		return 0, 0, errs.New(errs.PdfError, "placeholder not found")
	}

	return hexStart, dictStart + int64(brIdx), nil
}

func findLastContentsMatch(window []byte, signatureSize int) []int {
	matches := contentsPlaceholderRe.FindAllSubmatchIndex(window, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m[3]-m[2] == 2*signatureSize {
			return m
		}
	}
	return nil
}

// walkBackToDictStart walks backward from pos balancing << and >> tokens to
// find the enclosing dictionary's opening "<<".
func walkBackToDictStart(data []byte, pos int64) int64 {
	depth := 0
	for i := pos - 1; i >= 1; i-- {
		if data[i] == '<' && data[i-1] == '<' {
			if depth == 0 {
				return i - 1
			}
			depth--
			i--
			continue
		}
		if data[i] == '>' && data[i-1] == '>' {
			depth++
			i--
			continue
		}
	}
	return 0
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func firstPage(rdr *pdflib.Reader) (pdflib.Value, uint32, error) {
	pages := rdr.Trailer().Key("Root").Key("Pages")
	kids := pages.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		if kid.Key("Type").Name() == "Pages" {
			inner := kid.Key("Kids")
			if inner.Len() > 0 {
				leaf := inner.Index(0)
				if ptr := leaf.GetPtr(); ptr.GetID() != 0 {
					return leaf, ptr.GetID(), nil
				}
			}
			continue
		}
		if ptr := kid.GetPtr(); ptr.GetID() != 0 {
			return kid, ptr.GetID(), nil
		}
	}
	return pdflib.Value{}, 0, fmt.Errorf("no page found")
}

func appendToPageAnnots(ctx *pdfstruct.Context, page pdflib.Value, pageNum uint32, widgetObjNum uint32) error {
	var annots bytes.Buffer
	annots.WriteString("<<")
	for _, k := range page.Keys() {
		if k == "Annots" {
			continue
		}
		fmt.Fprintf(&annots, " /%s ", k)
		if err := pdfstruct.SerializeValue(&annots, pageNum, page.Key(k)); err != nil {
			return err
		}
	}
	annots.WriteString(" /Annots [")
	existing := page.Key("Annots")
	for i := 0; i < existing.Len(); i++ {
		if i > 0 {
			annots.WriteString(" ")
		}
		if ptr := existing.Index(i).GetPtr(); ptr.GetID() != 0 {
			fmt.Fprintf(&annots, "%d %d R", ptr.GetID(), ptr.GetGen())
		}
	}
	if existing.Len() > 0 {
		annots.WriteString(" ")
	}
	fmt.Fprintf(&annots, "%d 0 R] >>", widgetObjNum)

	ctx.UpdateObject(pageNum, annots.Bytes())
	return nil
}

// parseByteRangeText parses the four integers of the first
// /ByteRange[...] array found in text.
func parseByteRangeText(text string) ([4]int64, error) {
	re := regexp.MustCompile(`/ByteRange\s*\[\s*(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s*\]`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return [4]int64{}, fmt.Errorf("no ByteRange found")
	}
	var out [4]int64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return [4]int64{}, err
		}
		out[i] = v
	}
	return out, nil
}
