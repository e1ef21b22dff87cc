package extract_test

import (
	"context"
	"crypto"
	"testing"

	pdflib "github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/extract"
	"github.com/vaultstamp/tspdf/internal/testpki"
	"github.com/vaultstamp/tspdf/timestampsign"
	"github.com/vaultstamp/tspdf/tsaclient"
)

// timestampedFixture builds a minimal PDF, reserves a DocTimeStamp
// placeholder, requests a token from a fake TSA, and embeds it, returning
// the final document bytes ready for extraction.
func timestampedFixture(t *testing.T) []byte {
	t.Helper()

	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	signerKey, signerCert := pki.IssueTSASigner("Test TSA")
	tsa := pki.StartFakeTSA(signerKey, signerCert)
	defer tsa.Close()

	image := testpki.MinimalPDF()

	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{
		SignatureSize: 4096,
		FieldName:     "Timestamp",
		Reason:        "Archival",
		Location:      "Test Suite",
		ContactInfo:   "qa@example.invalid",
	})
	if err != nil {
		t.Fatalf("PreparePlaceholder: %v", err)
	}

	digest, err := timestampsign.HashImprint(prepared, crypto.SHA256)
	if err != nil {
		t.Fatalf("HashImprint: %v", err)
	}

	result, err := tsaclient.New().Request(context.Background(), digest, tsaclient.Opts{
		URL:  tsa.URL,
		Hash: crypto.SHA256,
	})
	if err != nil {
		t.Fatalf("tsaclient.Request: %v", err)
	}
	if !result.Granted {
		t.Fatalf("fake TSA did not grant the request: %s", result.Status)
	}

	final, err := timestampsign.EmbedToken(prepared, result.RawToken)
	if err != nil {
		t.Fatalf("EmbedToken: %v", err)
	}
	return final
}

func TestIterFindsTimestampSignature(t *testing.T) {
	final := timestampedFixture(t)

	rdr, err := pdflib.NewReader(testpki.NewBytesReader(final), int64(len(final)))
	if err != nil {
		t.Fatalf("failed to reopen timestamped document: %v", err)
	}

	found := false
	for sig, err := range extract.Iter(rdr, testpki.NewBytesReader(final)) {
		if err != nil {
			t.Fatalf("Iter error: %v", err)
		}
		found = true

		if sig.Filter() != "Adobe.PPKLite" {
			t.Errorf("Filter() = %q, want Adobe.PPKLite", sig.Filter())
		}
		if !sig.IsRFC3161() {
			t.Errorf("IsRFC3161() = false, want true for SubFilter %q", sig.SubFilter())
		}
		if len(sig.Contents()) == 0 {
			t.Error("Contents() is empty")
		}
		if len(sig.ByteRange()) != 4 {
			t.Errorf("ByteRange() has %d entries, want 4", len(sig.ByteRange()))
		}

		data, err := sig.CoveredBytes()
		if err != nil {
			t.Fatalf("CoveredBytes: %v", err)
		}
		if len(data) == 0 {
			t.Error("CoveredBytes returned no bytes")
		}
	}

	if !found {
		t.Fatal("no signature fields found")
	}
}

func TestIterRFC3161DecodesToken(t *testing.T) {
	final := timestampedFixture(t)

	rdr, err := pdflib.NewReader(testpki.NewBytesReader(final), int64(len(final)))
	if err != nil {
		t.Fatalf("failed to reopen timestamped document: %v", err)
	}

	found := false
	for ts, err := range extract.IterRFC3161(rdr, testpki.NewBytesReader(final), int64(len(final))) {
		if err != nil {
			t.Fatalf("IterRFC3161 error: %v", err)
		}
		found = true

		if len(ts.Token) == 0 {
			t.Error("Token is empty")
		}
		if !ts.CoversWholeDocument {
			t.Error("CoversWholeDocument = false, want true")
		}
		if ts.Reason != "Archival" {
			t.Errorf("Reason = %q, want Archival", ts.Reason)
		}
		if ts.Location != "Test Suite" {
			t.Errorf("Location = %q, want Test Suite", ts.Location)
		}
	}

	if !found {
		t.Fatal("no RFC3161 timestamp signatures found")
	}
}
