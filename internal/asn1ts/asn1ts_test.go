package asn1ts

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/vaultstamp/tspdf/internal/errs"
)

func TestCheckOCSPResponseStatusSuccessful(t *testing.T) {
	// OCSPResponse { responseStatus successful(0) }
	if err := CheckOCSPResponseStatus([]byte{0x30, 0x03, 0x0a, 0x01, 0x00}); err != nil {
		t.Fatalf("successful status rejected: %v", err)
	}
}

func TestCheckOCSPResponseStatusInternalError(t *testing.T) {
	// OCSPResponse { responseStatus internalError(2) }
	err := CheckOCSPResponseStatus([]byte{0x30, 0x03, 0x0a, 0x01, 0x02})
	if err == nil {
		t.Fatal("internalError status accepted")
	}
	if !errs.Is(err, errs.InvalidResponse) {
		t.Errorf("error kind is not InvalidResponse: %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "Internal Error") || !strings.Contains(msg, "code: 2") {
		t.Errorf("message %q does not name the status and code", msg)
	}
}

func TestCheckOCSPResponseStatusMalformedDER(t *testing.T) {
	err := CheckOCSPResponseStatus([]byte{0xde, 0xad})
	if err == nil {
		t.Fatal("garbage DER accepted")
	}
	if !errs.Is(err, errs.InvalidResponse) {
		t.Errorf("error kind is not InvalidResponse: %v", err)
	}
}

func TestHashOIDRoundTrip(t *testing.T) {
	for _, name := range []string{"SHA-1", "SHA-256", "SHA-384", "SHA-512"} {
		oid, ok := HashOID(name)
		if !ok {
			t.Fatalf("HashOID(%q) not mapped", name)
		}
		back, ok := HashOIDName(oid)
		if !ok || back != name {
			t.Errorf("HashOIDName(HashOID(%q)) = %q (%v)", name, back, ok)
		}
	}

	if _, ok := HashOID("MD5"); ok {
		t.Error("MD5 should not be mapped")
	}
	if name, ok := HashOID(""); !ok || !name.Equal(OIDSHA256) {
		t.Error("empty algorithm name should default to SHA-256")
	}
}

func TestCryptoHashMatchesHashOID(t *testing.T) {
	cases := map[string]crypto.Hash{
		"SHA-1":   crypto.SHA1,
		"SHA-256": crypto.SHA256,
		"SHA-384": crypto.SHA384,
		"SHA-512": crypto.SHA512,
	}
	for name, want := range cases {
		got, ok := CryptoHash(name)
		if !ok || got != want {
			t.Errorf("CryptoHash(%q) = %v (%v), want %v", name, got, ok, want)
		}
	}
	if _, ok := CryptoHash("MD5"); ok {
		t.Error("MD5 should not be mapped")
	}
}

// Minimal ASN.1 shapes for building ESS attribute values in tests; the
// production side only parses, so the test carries its own encoder.
type testESSCertID struct {
	CertHash []byte
}

type testSigningCertificate struct {
	Certs []testESSCertID
}

type testESSCertIDv2 struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	CertHash      []byte
}

type testSigningCertificateV2 struct {
	Certs []testESSCertIDv2
}

func essTestCertificate(t *testing.T) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ESS Attribute Test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func TestVerifySigningCertificateV1(t *testing.T) {
	cert := essTestCertificate(t)
	sum := sha1.Sum(cert.Raw)

	good, err := asn1.Marshal(testSigningCertificate{Certs: []testESSCertID{{CertHash: sum[:]}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySigningCertificateV1(good, cert); err != nil {
		t.Errorf("matching v1 attribute rejected: %v", err)
	}

	bad, err := asn1.Marshal(testSigningCertificate{Certs: []testESSCertID{{CertHash: make([]byte, sha1.Size)}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySigningCertificateV1(bad, cert); err == nil {
		t.Error("v1 attribute with a wrong certHash accepted")
	}

	if err := VerifySigningCertificateV1([]byte{0xde, 0xad}, cert); err == nil {
		t.Error("malformed v1 attribute accepted")
	}
}

func TestVerifySigningCertificateV2DefaultHash(t *testing.T) {
	cert := essTestCertificate(t)
	sum := sha256.Sum256(cert.Raw)

	// hashAlgorithm absent: DEFAULT sha256 applies.
	attr, err := asn1.Marshal(testSigningCertificate{Certs: []testESSCertID{{CertHash: sum[:]}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySigningCertificateV2(attr, cert); err != nil {
		t.Errorf("default-hash v2 attribute rejected: %v", err)
	}

	other := essTestCertificate(t)
	if err := VerifySigningCertificateV2(attr, other); err == nil {
		t.Error("v2 attribute accepted for a certificate it does not name")
	}
}

func TestVerifySigningCertificateV2ExplicitHash(t *testing.T) {
	cert := essTestCertificate(t)
	sum := sha512.Sum384(cert.Raw)

	attr, err := asn1.Marshal(testSigningCertificateV2{Certs: []testESSCertIDv2{{
		HashAlgorithm: pkix.AlgorithmIdentifier{Algorithm: OIDSHA384},
		CertHash:      sum[:],
	}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySigningCertificateV2(attr, cert); err != nil {
		t.Errorf("explicit SHA-384 v2 attribute rejected: %v", err)
	}
}
