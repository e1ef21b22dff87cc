// Package revocation holds the revocation-info archival container (the
// CRL/OCSP/Other attribute carried inside a PKCS7 SignedData) together
// with the functions that fetch fresh OCSP and CRL data for a
// certificate. The verifier (package verify) and the validation
// session's default fetcher (package ltv) call it directly; the same
// container also rides inside tokens as a signed attribute.
package revocation

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/vaultstamp/tspdf/internal/asn1ts"
	"github.com/vaultstamp/tspdf/internal/errs"
)

// InfoArchival carries the revocation material for a set of embedded
// certificates: raw DER CRLs, raw DER OCSP responses, and an escape
// hatch for other formats. Its ASN.1 shape is fixed by the
// adbe-revocationInfoArchival attribute definition, so the raw fields
// stay exported for encoding/asn1.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// AddCRL appends the raw bytes of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
	return nil
}

// AddOCSP appends the raw bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
	return nil
}

// IsRevoked reports whether any embedded CRL or OCSP response marks c as
// revoked. A response that cannot be parsed is skipped rather than
// treated as revoked or as proof of good standing; callers that need to
// distinguish "no usable revocation data" from "confirmed good" should
// walk r.CRL/r.OCSP themselves.
func (r *InfoArchival) IsRevoked(c *x509.Certificate) bool {
	for _, crlRaw := range r.CRL {
		crl, err := x509.ParseRevocationList(crlRaw.FullBytes)
		if err != nil {
			continue
		}
		for _, rc := range crl.RevokedCertificateEntries {
			if rc.SerialNumber.Cmp(c.SerialNumber) == 0 {
				return true
			}
		}
	}

	for _, ocspRaw := range r.OCSP {
		resp, err := ocsp.ParseResponse(ocspRaw.FullBytes, nil)
		if err != nil {
			continue
		}
		if resp.SerialNumber != nil && resp.SerialNumber.Cmp(c.SerialNumber) != 0 {
			continue
		}
		if resp.Status == ocsp.Revoked {
			return true
		}
	}

	return false
}

// CRL holds raw DER CertificateList entries, parseable with
// x509.ParseRevocationList.
type CRL []asn1.RawValue

// OCSP holds raw DER OCSP responses, parseable with
// x/crypto/ocsp.ParseResponse.
type OCSP []asn1.RawValue

// Other is the otherRevInfo choice: a format OID plus opaque bytes.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}

// HTTPClient is the subset of *http.Client used by FetchOCSP/FetchCRL,
// narrowed so callers (including the circuit breaker in package ltv) can
// substitute a fake transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchOCSP builds an OCSP request for cert against issuer, POSTs it to
// the certificate's OCSP responder with Content-Type
// application/ocsp-request (RFC 6960 appendix A), and returns the raw
// DER response body. It does not fully interpret the response beyond a
// status and certificate-binding check: callers decide what the result
// means via ocsp.ParseResponse or asn1ts.CheckOCSPResponseStatus.
func FetchOCSP(client HTTPClient, cert, issuer *x509.Certificate) ([]byte, error) {
	responder, err := GetOCSPURI(cert)
	if err != nil {
		return nil, err
	}

	req, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return nil, fmt.Errorf("revocation: failed to build OCSP request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, responder, bytes.NewReader(req))
	if err != nil {
		return nil, fmt.Errorf("revocation: failed to build OCSP HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")
	httpReq.Header.Set("Accept", "application/ocsp-response")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("revocation: OCSP request to %s failed: %w", responder, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("revocation: OCSP responder %s returned status %d", responder, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("revocation: failed to read OCSP response: %w", err)
	}

	if err := asn1ts.CheckOCSPResponseStatus(body); err != nil {
		return nil, err
	}

	if _, err := ocsp.ParseResponseForCert(body, cert, issuer); err != nil {
		return nil, fmt.Errorf("revocation: OCSP response did not verify for this certificate: %w", err)
	}

	return body, nil
}

// FetchCRL downloads the certificate's first CRL distribution point and
// returns the raw DER-encoded CertificateList.
func FetchCRL(client HTTPClient, cert *x509.Certificate) ([]byte, error) {
	points := GetCRLDistributionPoints(cert)
	if len(points) == 0 {
		return nil, fmt.Errorf("revocation: certificate has no CRL distribution point")
	}

	req, err := http.NewRequest(http.MethodGet, points[0], nil)
	if err != nil {
		return nil, fmt.Errorf("revocation: failed to build CRL HTTP request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, fmt.Sprintf("revocation: CRL download from %s failed", points[0]), err)
	}
	defer resp.Body.Close()

	// 5xx is transient (the caller's retry/circuit-breaker discipline
	// applies); anything else non-200 is a permanent failure for this URL.
	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.NetworkError, fmt.Sprintf("revocation: CRL server %s returned status %d", points[0], resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.InvalidResponse, fmt.Sprintf("revocation: CRL server %s returned status %d", points[0], resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("revocation: failed to read CRL body: %w", err)
	}

	if _, err := x509.ParseRevocationList(body); err != nil {
		return nil, fmt.Errorf("revocation: downloaded CRL does not parse: %w", err)
	}

	return body, nil
}

// Fetch tries OCSP first and falls back to CRL: OCSP responses are
// almost always smaller to embed, CRLs are the fallback for CAs that
// don't run a responder.
func Fetch(client HTTPClient, cert, issuer *x509.Certificate) (i InfoArchival, err error) {
	if len(cert.OCSPServer) > 0 {
		body, ferr := FetchOCSP(client, cert, issuer)
		if ferr == nil {
			i.AddOCSP(body)
			return i, nil
		}
		err = ferr
	}

	if len(cert.CRLDistributionPoints) > 0 {
		body, ferr := FetchCRL(client, cert)
		if ferr == nil {
			i.AddCRL(body)
			return i, nil
		}
		err = ferr
	}

	if err == nil {
		err = fmt.Errorf("revocation: certificate contains no OCSP or CRL location")
	}
	return i, err
}

// DefaultHTTPClient returns an *http.Client with a bounded timeout,
// suitable as the HTTPClient argument to Fetch/FetchOCSP/FetchCRL when
// the caller has no preconfigured client.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
