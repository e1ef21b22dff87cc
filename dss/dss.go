// Package dss builds the Document Security Store and VRI dictionaries
// that make a timestamped PDF long-term-validatable: certificates,
// CRLs, and OCSP responses are each written as a PDF stream object, the
// DSS dictionary collects references to them, and an optional VRI
// sub-dictionary binds a specific signature's Contents hash to the
// subset of artifacts that validate it. The whole thing lands in the
// catalog via a second incremental revision, built the same way
// timestampsign builds its first one.
package dss

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	pdflib "github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/internal/errs"
	"github.com/vaultstamp/tspdf/internal/pdfstruct"
)

// VRIEntry is the per-signature subset of DSS artifacts, keyed by the
// uppercase hex hash of that signature's Contents bytes.
type VRIEntry struct {
	Key  string // uppercase hex, written as given; callers compute it with ContentsVRIKey
	Cert [][]byte
	CRL  [][]byte
	OCSP [][]byte
}

// Artifacts is everything WriteDSS needs to embed: the full set of
// DER-encoded certs/CRLs/OCSP responses collected across every
// signature (deduplicated by the caller if desired), plus zero or more
// per-signature VRI entries.
type Artifacts struct {
	Certs [][]byte
	CRLs  [][]byte
	OCSPs [][]byte
	VRI   []VRIEntry
}

// ContentsVRIKey hashes a signature's Contents value into its VRI
// dictionary key: SHA-1 for PDF 1.x documents, SHA-256 when useSHA256
// selects PDF 2.0 mode. The key is always uppercase hex.
func ContentsVRIKey(contents []byte, useSHA256 bool) string {
	if useSHA256 {
		sum := sha256.Sum256(contents)
		return strings.ToUpper(hex.EncodeToString(sum[:]))
	}
	sum := sha1.Sum(contents)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// WriteDSS appends a DSS-carrying incremental revision to pdfBytes.
// pdfBytes must already contain every signature the VRI entries
// reference (normally the output of an LTV-enabled timestamp or
// archive pass). It always loads a fresh pdfstruct.Context from the
// current bytes rather than reusing one from an earlier step, since
// reusing a stale snapshot across a timestamp-then-DSS pair corrupts
// the object counter.
func WriteDSS(pdfBytes []byte, artifacts Artifacts) ([]byte, error) {
	rdr, err := pdflib.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, errs.Wrap(errs.LtvError, "failed to parse PDF for DSS write", err)
	}

	ctx, err := pdfstruct.Open(pdfBytes)
	if err != nil {
		return nil, errs.Wrap(errs.LtvError, "failed to open PDF for DSS incremental update", err)
	}

	certRefs := registerStreams(ctx, artifacts.Certs)
	crlRefs := registerStreams(ctx, artifacts.CRLs)
	ocspRefs := registerStreams(ctx, artifacts.OCSPs)

	byDER := func(all [][]byte, refs []uint32, der []byte) (uint32, bool) {
		for i, a := range all {
			if bytes.Equal(a, der) {
				return refs[i], true
			}
		}
		return 0, false
	}

	vriDictNums := make(map[string]uint32)
	for _, v := range artifacts.VRI {
		key := v.Key
		var vriDict bytes.Buffer
		vriDict.WriteString("<<")

		if len(v.Cert) > 0 {
			vriDict.WriteString(" /Cert [")
			for i, c := range v.Cert {
				if ref, ok := byDER(artifacts.Certs, certRefs, c); ok {
					if i > 0 {
						vriDict.WriteString(" ")
					}
					fmt.Fprintf(&vriDict, "%d 0 R", ref)
				}
			}
			vriDict.WriteString("]")
		}
		if len(v.CRL) > 0 {
			vriDict.WriteString(" /CRL [")
			for i, c := range v.CRL {
				if ref, ok := byDER(artifacts.CRLs, crlRefs, c); ok {
					if i > 0 {
						vriDict.WriteString(" ")
					}
					fmt.Fprintf(&vriDict, "%d 0 R", ref)
				}
			}
			vriDict.WriteString("]")
		}
		if len(v.OCSP) > 0 {
			vriDict.WriteString(" /OCSP [")
			for i, c := range v.OCSP {
				if ref, ok := byDER(artifacts.OCSPs, ocspRefs, c); ok {
					if i > 0 {
						vriDict.WriteString(" ")
					}
					fmt.Fprintf(&vriDict, "%d 0 R", ref)
				}
			}
			vriDict.WriteString("]")
		}
		vriDict.WriteString(" >>")

		num := ctx.RegisterObject(vriDict.Bytes())
		vriDictNums[key] = num
	}

	var dssDict bytes.Buffer
	dssDict.WriteString("<<")
	writeRefArray(&dssDict, "Certs", certRefs)
	writeRefArray(&dssDict, "CRLs", crlRefs)
	writeRefArray(&dssDict, "OCSPs", ocspRefs)
	if len(vriDictNums) > 0 {
		dssDict.WriteString(" /VRI <<")
		for key, num := range vriDictNums {
			fmt.Fprintf(&dssDict, " /%s %d 0 R", key, num)
		}
		dssDict.WriteString(" >>")
	}
	dssDict.WriteString(" >>")
	dssObjNum := ctx.RegisterObject(dssDict.Bytes())

	root := rdr.Trailer().Key("Root")
	var catalog bytes.Buffer
	catalog.WriteString("<<")
	for _, k := range root.Keys() {
		if k == "DSS" {
			continue
		}
		fmt.Fprintf(&catalog, " /%s ", k)
		if err := pdfstruct.SerializeValue(&catalog, ctx.RootNum, root.Key(k)); err != nil {
			return nil, errs.Wrap(errs.LtvError, "failed to serialize catalog entry "+k, err)
		}
	}
	fmt.Fprintf(&catalog, " /DSS %d 0 R >>", dssObjNum)
	ctx.UpdateObject(ctx.RootNum, catalog.Bytes())

	out, err := ctx.Finish(nil)
	if err != nil {
		return nil, errs.Wrap(errs.LtvError, "failed to finalize DSS incremental revision", err)
	}
	return out, nil
}

// registerStreams writes each DER blob as its own PDF stream object and
// returns the assigned object numbers in the same order.
func registerStreams(ctx *pdfstruct.Context, blobs [][]byte) []uint32 {
	refs := make([]uint32, 0, len(blobs))
	for _, b := range blobs {
		var body bytes.Buffer
		fmt.Fprintf(&body, "<< /Length %d >>\nstream\n", len(b))
		body.Write(b)
		body.WriteString("\nendstream")
		refs = append(refs, ctx.RegisterObject(body.Bytes()))
	}
	return refs
}

func writeRefArray(w *bytes.Buffer, name string, refs []uint32) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(w, " /%s [", name)
	for i, r := range refs {
		if i > 0 {
			w.WriteString(" ")
		}
		fmt.Fprintf(w, "%d 0 R", r)
	}
	w.WriteString("]")
}
