package testpki

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/ocsp"
)

// BytesReader implements io.ReaderAt for in-memory byte slices.
type BytesReader struct {
	Data []byte
}

func NewBytesReader(data []byte) *BytesReader {
	return &BytesReader{Data: data}
}

func (r *BytesReader) ReadAt(p []byte, off int64) (n int, err error) {
	if off >= int64(len(r.Data)) {
		return 0, io.EOF
	}
	n = copy(p, r.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// KeyProfile defines the cryptographic settings for the PKI.
type KeyProfile string

const (
	RSA_2048   KeyProfile = "RSA_2048"
	RSA_3072   KeyProfile = "RSA_3072"
	RSA_4096   KeyProfile = "RSA_4096"
	ECDSA_P256 KeyProfile = "ECDSA_P256"
	ECDSA_P384 KeyProfile = "ECDSA_P384"
	ECDSA_P521 KeyProfile = "ECDSA_P521"
)

type TestPKIConfig struct {
	Profile         KeyProfile
	IntermediateCAs int
}

// TestPKI manages a temporary PKI hierarchy for testing.
type TestPKI struct {
	T                 *testing.T
	RootKey           crypto.Signer
	RootCert          *x509.Certificate
	IntermediateKeys  []crypto.Signer
	IntermediateCerts []*x509.Certificate
	Server            *httptest.Server
	CRLBytes          []byte
	Requests          int
	OCSPRequests      int
	FailOCSP          bool
	Profile           KeyProfile
}

// NewTestPKI creates a fresh Root CA and initializes the helper.
func NewTestPKI(t *testing.T) *TestPKI {
	return NewTestPKIWithConfig(t, TestPKIConfig{
		Profile:         ECDSA_P384,
		IntermediateCAs: 1,
	})
}

// NewTestPKIWithConfig allows detailed configuration of the PKI.
func NewTestPKIWithConfig(t *testing.T, config TestPKIConfig) *TestPKI {
	// 1. Generate Root Key
	rootKey := GenerateKey(t, config.Profile)

	// 2. Generate Root Certificate (Self-Signed)
	rootTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "PDFSign Test Root CA",
			Organization: []string{"PDFSign Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}

	rootBytes, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, rootKey.Public(), rootKey)
	if err != nil {
		Fail(t, "failed to create root cert: %v", err)
	}
	rootCert, err := x509.ParseCertificate(rootBytes)
	if err != nil {
		Fail(t, "failed to parse root cert: %v", err)
	}

	// 3. Generate Intermediate Chain
	var intermediateKeys []crypto.Signer
	var intermediateCerts []*x509.Certificate

	parentKey := rootKey
	parentCert := rootCert

	for i := 0; i < config.IntermediateCAs; i++ {
		key := GenerateKey(t, config.Profile)
		template := &x509.Certificate{
			SerialNumber: big.NewInt(int64(i + 2)),
			Subject: pkix.Name{
				CommonName:   fmt.Sprintf("PDFSign Test Intermediate CA %d", i+1),
				Organization: []string{"PDFSign Test Org"},
			},
			NotBefore:             time.Now().Add(-1 * time.Hour),
			NotAfter:              time.Now().Add(24 * time.Hour),
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
			BasicConstraintsValid: true,
			IsCA:                  true,
			MaxPathLen:            0,
			SubjectKeyId:          []byte{5, 6, 7, 8, byte(i)},
			AuthorityKeyId:        parentCert.SubjectKeyId,
		}

		certBytes, err := x509.CreateCertificate(rand.Reader, template, parentCert, key.Public(), parentKey)
		if err != nil {
			Fail(t, "failed to create intermediate cert %d: %v", i, err)
		}
		cert, err := x509.ParseCertificate(certBytes)
		if err != nil {
			Fail(t, "failed to parse intermediate cert %d: %v", i, err)
		}

		intermediateKeys = append(intermediateKeys, key)
		intermediateCerts = append(intermediateCerts, cert)

		parentKey = key
		parentCert = cert
	}

	return &TestPKI{
		T:                 t,
		RootKey:           rootKey,
		RootCert:          rootCert,
		IntermediateKeys:  intermediateKeys,
		IntermediateCerts: intermediateCerts,
		Profile:           config.Profile,
	}
}

// StartCRLServer generates a valid CRL and starts a mock HTTP server serving it.
func (p *TestPKI) StartCRLServer() {
	if len(p.IntermediateCerts) == 0 {
		return
	}
	lastIdx := len(p.IntermediateCerts) - 1
	issuerCert := p.IntermediateCerts[lastIdx]
	issuerKey := p.IntermediateKeys[lastIdx]

	revokedCerts := []pkix.RevokedCertificate{
		{
			SerialNumber:   big.NewInt(9999),
			RevocationTime: time.Now(),
		},
	}

	crlTemplate := &x509.RevocationList{
		Number:              big.NewInt(1),
		ThisUpdate:          time.Now(),
		NextUpdate:          time.Now().Add(24 * time.Hour),
		RevokedCertificates: revokedCerts,
	}

	crlBytes, err := x509.CreateRevocationList(rand.Reader, crlTemplate, issuerCert, issuerKey)
	if err != nil {
		Fail(p.T, "failed to create CRL: %v", err)
	}
	p.CRLBytes = crlBytes

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crl" {
			p.Requests++
			w.Header().Set("Content-Type", "application/pkix-crl")
			_, _ = w.Write(p.CRLBytes)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/ocsp") {
			p.OCSPRequests++

			if p.FailOCSP {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/ocsp-request" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			reqBytes, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			ocspReq, err := ocsp.ParseRequest(reqBytes)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			now := time.Now()
			template := ocsp.Response{
				Status:       ocsp.Good,
				SerialNumber: ocspReq.SerialNumber,
				ThisUpdate:   now.Add(-1 * time.Hour),
				NextUpdate:   now.Add(24 * time.Hour),
			}

			issuerCert := p.IntermediateCerts[len(p.IntermediateCerts)-1]
			respBytes, err := ocsp.CreateResponse(issuerCert, issuerCert, template, p.IntermediateKeys[len(p.IntermediateKeys)-1])
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/ocsp-response")
			_, _ = w.Write(respBytes)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/ca") {
			w.Header().Set("Content-Type", "application/x-x509-ca-cert")
			if len(p.IntermediateCerts) > 0 {
				_, _ = w.Write(p.IntermediateCerts[len(p.IntermediateCerts)-1].Raw)
			}
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

// StartFakeTSA starts an httptest.Server that speaks just enough RFC 3161
// to exercise tsaclient and the orchestrator: it parses the posted
// TimeStampReq, builds a TimeStampToken signed by signerKey/signerCert, and
// writes back a granted TimeStampResp. Every request it receives, granted
// or not, increments Requests so tests can assert on retry counts.
func (p *TestPKI) StartFakeTSA(signerKey crypto.Signer, signerCert *x509.Certificate) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Requests++

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		req, err := timestamp.ParseRequest(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		ts := timestamp.Timestamp{
			HashAlgorithm:     req.HashAlgorithm,
			HashedMessage:     req.HashedMessage,
			Time:              time.Now(),
			Policy:            asn1.ObjectIdentifier{1, 2, 3, 4, 1},
			Certificates:      p.Chain(),
			AddTSACertificate: req.Certificates,
		}

		resp, err := ts.CreateResponseWithOpts(signerCert, signerKey, crypto.SHA256)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/timestamp-reply")
		_, _ = w.Write(resp)
	}))
}

// IssueLeaf generates a new leaf certificate signed by the last
// intermediate CA, or by the Root CA when the PKI has no intermediates.
func (p *TestPKI) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	if p.Server == nil {
		Fail(p.T, "StartCRLServer() must be called before IssueLeaf")
	}

	priv := GenerateKey(p.T, p.Profile)

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"PDFSign Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(1 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		UnknownExtKeyUsage:    []asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 36}},
		CRLDistributionPoints: []string{fmt.Sprintf("%s/crl", p.Server.URL)},
		OCSPServer:            []string{fmt.Sprintf("%s/ocsp", p.Server.URL)},
		IssuingCertificateURL: []string{fmt.Sprintf("%s/ca", p.Server.URL)},
	}

	var issuerCert *x509.Certificate
	var issuerKey crypto.Signer

	if len(p.IntermediateCerts) > 0 {
		issuerCert = p.IntermediateCerts[len(p.IntermediateCerts)-1]
		issuerKey = p.IntermediateKeys[len(p.IntermediateKeys)-1]
	} else {
		issuerCert = p.RootCert
		issuerKey = p.RootKey
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, issuerCert, priv.Public(), issuerKey)
	if err != nil {
		Fail(p.T, "failed to issue leaf cert: %v", err)
	}

	leafCert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		Fail(p.T, "failed to parse leaf cert: %v", err)
	}

	return priv, leafCert
}

// IssueTSASigner generates a leaf certificate carrying only the
// id-kp-timeStamping EKU (written as a non-critical extension, which is
// how crypto/x509 encodes it), suitable for signing fake TSA responses
// built with github.com/digitorus/timestamp.Timestamp.CreateResponseWithOpts.
func (p *TestPKI) IssueTSASigner(commonName string) (crypto.Signer, *x509.Certificate) {
	if p.Server == nil {
		Fail(p.T, "StartCRLServer() must be called before IssueTSASigner")
	}

	priv := GenerateKey(p.T, p.Profile)

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"PDFSign Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(1 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
		CRLDistributionPoints: []string{fmt.Sprintf("%s/crl", p.Server.URL)},
		OCSPServer:            []string{fmt.Sprintf("%s/ocsp", p.Server.URL)},
		IssuingCertificateURL: []string{fmt.Sprintf("%s/ca", p.Server.URL)},
	}

	var issuerCert *x509.Certificate
	var issuerKey crypto.Signer

	if len(p.IntermediateCerts) > 0 {
		issuerCert = p.IntermediateCerts[len(p.IntermediateCerts)-1]
		issuerKey = p.IntermediateKeys[len(p.IntermediateKeys)-1]
	} else {
		issuerCert = p.RootCert
		issuerKey = p.RootKey
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, issuerCert, priv.Public(), issuerKey)
	if err != nil {
		Fail(p.T, "failed to issue TSA signer cert: %v", err)
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		Fail(p.T, "failed to parse TSA signer cert: %v", err)
	}

	return priv, cert
}

// Chain returns the certificate chain for a leaf (Intermediate -> Root).
func (p *TestPKI) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i := len(p.IntermediateCerts) - 1; i >= 0; i-- {
		chain = append(chain, p.IntermediateCerts[i])
	}
	chain = append(chain, p.RootCert)
	return chain
}

// Close stops the mock server.
func (p *TestPKI) Close() {
	if p.Server != nil {
		p.Server.Close()
	}
}

func Fail(t *testing.T, format string, args ...interface{}) {
	if t != nil {
		t.Fatalf(format, args...)
	} else {
		log.Fatalf(format, args...)
	}
}

func GenerateKey(t *testing.T, profile KeyProfile) crypto.Signer {
	switch profile {
	case RSA_2048:
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			Fail(t, "failed to generate RSA 2048 key: %v", err)
		}
		return k
	case RSA_3072:
		k, err := rsa.GenerateKey(rand.Reader, 3072)
		if err != nil {
			Fail(t, "failed to generate RSA 3072 key: %v", err)
		}
		return k
	case RSA_4096:
		k, err := rsa.GenerateKey(rand.Reader, 4096)
		if err != nil {
			Fail(t, "failed to generate RSA 4096 key: %v", err)
		}
		return k
	case ECDSA_P256:
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-256 key: %v", err)
		}
		return k
	case ECDSA_P384:
		k, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-384 key: %v", err)
		}
		return k
	case ECDSA_P521:
		k, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-521 key: %v", err)
		}
		return k
	default:
		Fail(t, "unknown key profile: %s", profile)
		return nil
	}
}

// MinimalPDF builds the smallest classic-xref PDF the rest of this module's
// tests need: a one-page document with an empty AcroForm, ready to be
// handed to timestampsign.PreparePlaceholder. It computes object offsets as
// it writes rather than hand-counting bytes, so it stays correct if the
// object bodies below ever change.
func MinimalPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int64, 4) // index 1..3 used, 0 is the free-list head

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [] >> >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = int64(buf.Len())
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n")

	xrefStart := int64(buf.Len())
	buf.WriteString("xref\n0 4\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&buf, "%010d %05d n \n", offsets[i], 0)
	}
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	return buf.Bytes()
}
