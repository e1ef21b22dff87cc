package dss_test

import (
	"bytes"
	"strings"
	"testing"

	pdflib "github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/dss"
	"github.com/vaultstamp/tspdf/internal/testpki"
)

func TestContentsVRIKeyMatchesHashChoice(t *testing.T) {
	contents := []byte("signature bytes")

	sha1Key := dss.ContentsVRIKey(contents, false)
	sha256Key := dss.ContentsVRIKey(contents, true)

	if len(sha1Key) != 40 {
		t.Errorf("SHA-1 key length = %d, want 40 hex chars", len(sha1Key))
	}
	if len(sha256Key) != 64 {
		t.Errorf("SHA-256 key length = %d, want 64 hex chars", len(sha256Key))
	}
	if sha1Key == sha256Key {
		t.Error("SHA-1 and SHA-256 keys must differ")
	}
	if sha1Key != strings.ToUpper(sha1Key) {
		t.Error("ContentsVRIKey must return uppercase hex")
	}
}

func TestWriteDSSAddsCatalogEntryAndArtifacts(t *testing.T) {
	image := testpki.MinimalPDF()

	cert := []byte("fake DER certificate bytes")
	crl := []byte("fake DER CRL bytes")
	ocsp := []byte("fake DER OCSP response bytes")

	artifacts := dss.Artifacts{
		Certs: [][]byte{cert},
		CRLs:  [][]byte{crl},
		OCSPs: [][]byte{ocsp},
		VRI: []dss.VRIEntry{
			{
				Key:  dss.ContentsVRIKey([]byte("some signature contents"), false),
				Cert: [][]byte{cert},
				CRL:  [][]byte{crl},
				OCSP: [][]byte{ocsp},
			},
		},
	}

	out, err := dss.WriteDSS(image, artifacts)
	if err != nil {
		t.Fatalf("WriteDSS: %v", err)
	}

	rdr, err := pdflib.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("output failed to reparse: %v", err)
	}

	root := rdr.Trailer().Key("Root")
	dssDict := root.Key("DSS")
	if dssDict.IsNull() {
		t.Fatal("catalog has no /DSS entry")
	}

	if dssDict.Key("Certs").Len() != 1 {
		t.Errorf("DSS/Certs has %d entries, want 1", dssDict.Key("Certs").Len())
	}
	if dssDict.Key("CRLs").Len() != 1 {
		t.Errorf("DSS/CRLs has %d entries, want 1", dssDict.Key("CRLs").Len())
	}
	if dssDict.Key("OCSPs").Len() != 1 {
		t.Errorf("DSS/OCSPs has %d entries, want 1", dssDict.Key("OCSPs").Len())
	}
	if len(dssDict.Key("VRI").Keys()) != 1 {
		t.Errorf("DSS/VRI has %d entries, want 1", len(dssDict.Key("VRI").Keys()))
	}
}

func TestWriteDSSWithNoArtifactsStillAddsEmptyDSS(t *testing.T) {
	image := testpki.MinimalPDF()

	out, err := dss.WriteDSS(image, dss.Artifacts{})
	if err != nil {
		t.Fatalf("WriteDSS: %v", err)
	}

	rdr, err := pdflib.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("output failed to reparse: %v", err)
	}
	if rdr.Trailer().Key("Root").Key("DSS").IsNull() {
		t.Error("catalog has no /DSS entry even with empty artifacts")
	}
}
