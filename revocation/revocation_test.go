package revocation

import (
	"crypto/rand"
	"crypto/x509"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/vaultstamp/tspdf/internal/testpki"
)

func TestFetchCRL(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	_, leaf := pki.IssueLeaf("crl-fetch-test")

	body, err := FetchCRL(pki.Server.Client(), leaf)
	if err != nil {
		t.Fatalf("FetchCRL: %v", err)
	}

	crl, err := x509.ParseRevocationList(body)
	if err != nil {
		t.Fatalf("returned CRL does not parse: %v", err)
	}
	if len(crl.RevokedCertificateEntries) == 0 {
		t.Error("test CRL lists no revoked entries")
	}
	if pki.Requests == 0 {
		t.Error("no HTTP request reached the CRL server")
	}
}

func TestFetchCRLNoDistributionPoint(t *testing.T) {
	cert := &x509.Certificate{}
	if _, err := FetchCRL(nil, cert); err == nil {
		t.Fatal("FetchCRL succeeded for a certificate with no distribution point")
	}
}

func TestFetchOCSP(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	_, leaf := pki.IssueLeaf("ocsp-fetch-test")
	issuer := pki.IntermediateCerts[len(pki.IntermediateCerts)-1]

	body, err := FetchOCSP(pki.Server.Client(), leaf, issuer)
	if err != nil {
		t.Fatalf("FetchOCSP: %v", err)
	}

	resp, err := ocsp.ParseResponseForCert(body, leaf, issuer)
	if err != nil {
		t.Fatalf("returned OCSP response does not parse: %v", err)
	}
	if resp.Status != ocsp.Good {
		t.Errorf("Status = %d, want Good", resp.Status)
	}
	if pki.OCSPRequests == 0 {
		t.Error("no OCSP request reached the responder")
	}
}

func TestFetchFallsBackToCRL(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	pki.FailOCSP = true
	_, leaf := pki.IssueLeaf("fallback-test")
	issuer := pki.IntermediateCerts[len(pki.IntermediateCerts)-1]

	info, err := Fetch(pki.Server.Client(), leaf, issuer)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(info.OCSP) != 0 {
		t.Error("OCSP evidence present although the responder failed")
	}
	if len(info.CRL) != 1 {
		t.Fatalf("got %d CRLs, want 1 from the fallback", len(info.CRL))
	}
}

func TestInfoArchivalIsRevoked(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	_, leaf := pki.IssueLeaf("revoked-lookup-test")

	issuerIdx := len(pki.IntermediateCerts) - 1
	crlDER, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:     big.NewInt(2),
		ThisUpdate: time.Now(),
		NextUpdate: time.Now().Add(time.Hour),
		RevokedCertificateEntries: []x509.RevocationListEntry{
			{SerialNumber: leaf.SerialNumber, RevocationTime: time.Now()},
		},
	}, pki.IntermediateCerts[issuerIdx], pki.IntermediateKeys[issuerIdx])
	if err != nil {
		t.Fatalf("CreateRevocationList: %v", err)
	}

	var info InfoArchival
	if err := info.AddCRL(crlDER); err != nil {
		t.Fatal(err)
	}

	if !info.IsRevoked(leaf) {
		t.Error("IsRevoked = false for a serial the embedded CRL lists")
	}

	_, other := pki.IssueLeaf("still-good-test")
	if info.IsRevoked(other) {
		t.Error("IsRevoked = true for a serial the embedded CRL does not list")
	}
}

func TestInfoArchivalSkipsGarbage(t *testing.T) {
	var info InfoArchival
	if err := info.AddCRL([]byte{0xde, 0xad, 0xbe, 0xef}); err != nil {
		t.Fatal(err)
	}
	if err := info.AddOCSP([]byte{0xca, 0xfe}); err != nil {
		t.Fatal(err)
	}

	if info.IsRevoked(&x509.Certificate{SerialNumber: big.NewInt(1)}) {
		t.Error("garbage evidence reported a revocation")
	}
}

func TestDiscoveryFromCertificateExtensions(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	_, leaf := pki.IssueLeaf("discovery-test")

	uri, err := GetOCSPURI(leaf)
	if err != nil {
		t.Fatalf("GetOCSPURI: %v", err)
	}
	if uri != leaf.OCSPServer[0] {
		t.Errorf("GetOCSPURI = %q, want %q", uri, leaf.OCSPServer[0])
	}

	issuers := GetCAIssuers(leaf)
	if len(issuers) != 1 {
		t.Fatalf("GetCAIssuers returned %d URIs, want 1", len(issuers))
	}

	points := GetCRLDistributionPoints(leaf)
	if len(points) != 1 {
		t.Fatalf("GetCRLDistributionPoints returned %d URIs, want 1", len(points))
	}

	if _, err := GetOCSPURI(&x509.Certificate{}); err == nil {
		t.Error("GetOCSPURI succeeded for a certificate without AIA")
	}
}

func TestIsDeltaCRL(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	base, err := x509.ParseRevocationList(pki.CRLBytes)
	if err != nil {
		t.Fatalf("ParseRevocationList: %v", err)
	}
	if IsDeltaCRL(base) {
		t.Error("IsDeltaCRL = true for a complete CRL")
	}
}
