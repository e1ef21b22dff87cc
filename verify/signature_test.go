package verify

import (
	"context"
	"crypto"
	"crypto/x509"
	"strings"
	"testing"

	"github.com/vaultstamp/tspdf/extract"
	"github.com/vaultstamp/tspdf/internal/testpki"
	"github.com/vaultstamp/tspdf/timestampsign"
	"github.com/vaultstamp/tspdf/tsaclient"
)

// verifyFixture builds a timestamped PDF and returns it together with
// the PKI that minted the token, so tests can anchor trust to it.
func verifyFixture(t *testing.T) ([]byte, *testpki.TestPKI) {
	t.Helper()

	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	t.Cleanup(pki.Close)

	signerKey, signerCert := pki.IssueTSASigner("Verify Test TSA")
	tsa := pki.StartFakeTSA(signerKey, signerCert)
	t.Cleanup(tsa.Close)

	image := testpki.MinimalPDF()
	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{
		SignatureSize: 4096,
		FieldName:     "Timestamp",
		Reason:        "Verification test",
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
	return final, pki
}

func verifyWith(t *testing.T, pdfBytes []byte, options *VerifyOptions) *Response {
	t.Helper()
	resp, err := VerifyReader(testpki.NewBytesReader(pdfBytes), int64(len(pdfBytes)), options)
	if err != nil {
		t.Fatalf("VerifyReader: %v", err)
	}
	if len(resp.Signatures) != 1 {
		t.Fatalf("got %d signatures, want 1", len(resp.Signatures))
	}
	return resp
}

func TestVerifyTimestampedDocument(t *testing.T) {
	pdfBytes, pki := verifyFixture(t)

	options := DefaultVerifyOptions()
	options.TrustStore = trustPool(pki)

	sig := verifyWith(t, pdfBytes, options).Signatures[0]

	if !sig.Validation.ValidSignature {
		t.Errorf("ValidSignature = false; errors: %v", sig.Validation.Errors)
	}
	if !sig.Validation.TrustedIssuer {
		t.Error("TrustedIssuer = false with the minting PKI as trust store")
	}
	if sig.Validation.RevokedCertificate {
		t.Error("RevokedCertificate = true for a fresh test chain")
	}
	if sig.Validation.State != extract.StateVerifiedOK.String() {
		t.Errorf("State = %q, want %q", sig.Validation.State, extract.StateVerifiedOK)
	}
	if !sig.Info.CoversWholeDocument {
		t.Error("CoversWholeDocument = false for the only timestamp in the file")
	}
	if sig.Info.TimeStamp == nil || sig.Info.TimeStamp.Time.IsZero() {
		t.Error("no genTime surfaced")
	}
}

func TestVerifyDetectsTamperedDocument(t *testing.T) {
	pdfBytes, pki := verifyFixture(t)

	// Flip a byte well inside the first covered region.
	tampered := make([]byte, len(pdfBytes))
	copy(tampered, pdfBytes)
	tampered[64] ^= 0xff

	options := DefaultVerifyOptions()
	options.TrustStore = trustPool(pki)

	sig := verifyWith(t, tampered, options).Signatures[0]

	if sig.Validation.State != extract.StateVerifiedFail.String() {
		t.Errorf("State = %q, want %q", sig.Validation.State, extract.StateVerifiedFail)
	}
	foundMismatch := false
	for _, e := range sig.Validation.Errors {
		if strings.Contains(e, "hash mismatch") {
			foundMismatch = true
		}
	}
	if !foundMismatch {
		t.Errorf("errors %v do not mention the document hash mismatch", sig.Validation.Errors)
	}
}

func TestVerifyStrictESSAccepted(t *testing.T) {
	pdfBytes, pki := verifyFixture(t)

	options := DefaultVerifyOptions()
	options.TrustStore = trustPool(pki)
	options.StrictESSValidation = true

	sig := verifyWith(t, pdfBytes, options).Signatures[0]

	// Tokens from digitorus/timestamp carry the ESS signing-certificate-v2
	// attribute, so strict mode must not reject them.
	if sig.Validation.State != extract.StateVerifiedOK.String() {
		t.Errorf("State = %q under strict ESS, errors: %v", sig.Validation.State, sig.Validation.Errors)
	}
}

func TestVerifyUntrustedStoreFails(t *testing.T) {
	pdfBytes, _ := verifyFixture(t)

	otherPKI := testpki.NewTestPKI(t)
	pool := x509.NewCertPool()
	for _, c := range otherPKI.Chain() {
		pool.AddCert(c)
	}

	options := DefaultVerifyOptions()
	options.TrustStore = pool

	sig := verifyWith(t, pdfBytes, options).Signatures[0]

	if sig.Validation.State != extract.StateVerifiedFail.String() {
		t.Errorf("State = %q against an unrelated trust store, want %q", sig.Validation.State, extract.StateVerifiedFail)
	}
}

func TestVerifySkipDocumentHashCheck(t *testing.T) {
	pdfBytes, pki := verifyFixture(t)

	tampered := make([]byte, len(pdfBytes))
	copy(tampered, pdfBytes)
	tampered[64] ^= 0xff

	options := DefaultVerifyOptions()
	options.TrustStore = trustPool(pki)
	options.SkipDocumentHashCheck = true

	sig := verifyWith(t, tampered, options).Signatures[0]

	for _, e := range sig.Validation.Errors {
		if strings.Contains(e, "hash mismatch") {
			t.Errorf("hash check ran despite SkipDocumentHashCheck: %v", e)
		}
	}
}
