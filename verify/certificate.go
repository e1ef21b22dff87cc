package verify

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/ocsp"

	"github.com/vaultstamp/tspdf/revocation"
)

// evidence is the revocation information resolved for one chain
// certificate, whatever its origin.
type evidence struct {
	ocspResp     *ocsp.Response
	ocspExternal bool
	crlFound     bool
	crlExternal  bool
	revokedAt    *time.Time
}

// buildTSAChains verifies the certificate chain a token shipped: every
// certificate is chained to the trust anchor at the token's genTime with
// the timeStamping EKU, and checked against the revocation evidence
// embedded in the token plus, when enabled, live OCSP/CRL lookups. A
// certificate revoked before genTime marks the whole timestamp revoked;
// one revoked after genTime only produces a warning, since the token was
// issued while the certificate was still good.
func buildTSAChains(p7 *pkcs7.PKCS7, signer *Signer, revInfo revocation.InfoArchival, options *VerifyOptions) error {
	if signer.TimeStamp == nil {
		return fmt.Errorf("no parsed token to anchor chain verification to")
	}
	genTime := signer.TimeStamp.Time
	signer.VerificationTime = &genTime

	intermediates := x509.NewCertPool()
	for _, cert := range p7.Certificates {
		intermediates.AddCert(cert)
	}

	embeddedOCSP, embeddedCRL := indexEmbeddedEvidence(revInfo, signer)

	trustedIssuer := false
	for _, cert := range p7.Certificates {
		c := Certificate{Certificate: cert}
		c.KeyUsageValid, c.KeyUsageError, c.ExtKeyUsageValid, c.ExtKeyUsageError = validateKeyUsage(cert, options)

		chain := verifyChain(cert, intermediates, genTime, options, &c)
		if c.VerifyError == "" {
			trustedIssuer = true
		}

		ev := resolveEvidence(cert, chain, embeddedOCSP, embeddedCRL, signer, options)
		c.OCSPResponse = ev.ocspResp
		c.OCSPEmbedded = ev.ocspResp != nil && !ev.ocspExternal
		c.OCSPExternal = ev.ocspExternal
		c.CRLEmbedded = ev.crlFound && !ev.crlExternal
		c.CRLExternal = ev.crlExternal

		if ev.revokedAt != nil {
			c.RevocationTime = ev.revokedAt
			if ev.revokedAt.Before(genTime) {
				c.RevokedBeforeTimestamp = true
				signer.RevokedCertificate = true
			} else {
				signer.TimeWarnings = append(signer.TimeWarnings, fmt.Sprintf(
					"certificate %q was revoked after the timestamp was issued (revoked %v, timestamped %v)",
					cert.Subject.CommonName, ev.revokedAt.UTC(), genTime.UTC()))
			}
		}

		c.RevocationWarning = revocationWarning(cert, &c, options)
		signer.Certificates = append(signer.Certificates, c)
	}

	signer.TrustedIssuer = trustedIssuer

	// A configured trust store makes chain failure fatal; without one the
	// per-certificate VerifyError fields are informational only.
	if options.TrustStore != nil && !trustedIssuer && !options.AllowUntrustedRoots {
		signer.ValidationErrors = append(signer.ValidationErrors,
			&InvalidSignatureError{Msg: "no TSA certificate chains to the provided trust store"})
	}
	return nil
}

// verifyChain chains cert to a root at genTime with the timeStamping
// EKU, recording any failure on c and falling back to the embedded pool
// when AllowUntrustedRoots permits it.
func verifyChain(cert *x509.Certificate, intermediates *x509.CertPool, genTime time.Time, options *VerifyOptions, c *Certificate) [][]*x509.Certificate {
	opts := x509.VerifyOptions{
		Roots:         options.TrustStore,
		Intermediates: intermediates,
		CurrentTime:   genTime,
		KeyUsages:     getVerificationEKUs(),
	}

	chain, err := cert.Verify(opts)
	if err == nil {
		return chain
	}
	if !options.AllowUntrustedRoots {
		c.VerifyError = err.Error()
		return nil
	}

	opts.Roots = intermediates
	altChain, altErr := cert.Verify(opts)
	if altErr != nil {
		c.VerifyError = err.Error()
		return nil
	}
	// Chained, but only to the token's own certificates: the caller
	// keeps TrustedIssuer false for this path.
	c.VerifyError = err.Error()
	return altChain
}

// indexEmbeddedEvidence decodes the token's revocation-info archival
// attribute into serial-keyed lookups. Undecodable entries are reported
// as warnings and skipped; the remaining entries still count.
func indexEmbeddedEvidence(revInfo revocation.InfoArchival, signer *Signer) (map[string]*ocsp.Response, map[string]*time.Time) {
	ocspBySerial := make(map[string]*ocsp.Response)
	for _, raw := range revInfo.OCSP {
		resp, err := ocsp.ParseResponse(raw.FullBytes, nil)
		if err != nil {
			signer.ValidationErrors = append(signer.ValidationErrors,
				&RevocationError{Msg: "embedded OCSP response does not parse", Err: err})
			continue
		}
		ocspBySerial[fmt.Sprintf("%x", resp.SerialNumber)] = resp
	}

	crlBySerial := make(map[string]*time.Time)
	for _, raw := range revInfo.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			signer.ValidationErrors = append(signer.ValidationErrors,
				&RevocationError{Msg: "embedded CRL does not parse", Err: err})
			continue
		}
		for _, entry := range crl.RevokedCertificateEntries {
			t := entry.RevocationTime
			crlBySerial[fmt.Sprintf("%x", entry.SerialNumber)] = &t
		}
	}
	return ocspBySerial, crlBySerial
}

// resolveEvidence finds the revocation evidence applying to cert:
// embedded OCSP first, then embedded CRLs, then (when enabled) live
// lookups through the revocation package. A failed live lookup is not an
// error here; the per-certificate warning reports the gap.
func resolveEvidence(cert *x509.Certificate, chain [][]*x509.Certificate, embeddedOCSP map[string]*ocsp.Response, embeddedCRL map[string]*time.Time, signer *Signer, options *VerifyOptions) evidence {
	var ev evidence
	serial := fmt.Sprintf("%x", cert.SerialNumber)

	if resp, ok := embeddedOCSP[serial]; ok {
		ev.ocspResp = resp
		if resp.Status != ocsp.Good {
			t := resp.RevokedAt
			ev.revokedAt = &t
		}
		checkResponderSignature(resp, chain, signer)
	}

	if rt, ok := embeddedCRL[serial]; ok {
		ev.crlFound = true
		if ev.revokedAt == nil {
			ev.revokedAt = rt
		}
	} else if len(embeddedCRL) > 0 {
		// A CRL was embedded and this serial is absent from it, which is
		// itself evidence of good standing at CRL issue time.
		ev.crlFound = true
	}

	if !options.EnableExternalRevocationCheck {
		return ev
	}
	client := options.HTTPClient
	if client == nil {
		client = revocation.DefaultHTTPClient(options.HTTPTimeout)
	}

	if ev.ocspResp == nil && len(cert.OCSPServer) > 0 {
		if issuer := issuerFromChain(chain); issuer != nil {
			if resp := fetchLiveOCSP(client, cert, issuer); resp != nil {
				ev.ocspResp = resp
				ev.ocspExternal = true
				if resp.Status != ocsp.Good && ev.revokedAt == nil {
					t := resp.RevokedAt
					ev.revokedAt = &t
				}
			}
		}
	}

	if !ev.crlFound && len(cert.CRLDistributionPoints) > 0 {
		if rt, found := fetchLiveCRLStatus(client, cert); found {
			ev.crlFound = true
			ev.crlExternal = true
			if rt != nil && ev.revokedAt == nil {
				ev.revokedAt = rt
			}
		}
	}

	return ev
}

// checkResponderSignature verifies an embedded OCSP response is signed
// by the certificate's issuer (or a responder certificate the issuer
// delegated to), when the chain reaches far enough to know the issuer.
func checkResponderSignature(resp *ocsp.Response, chain [][]*x509.Certificate, signer *Signer) {
	issuer := issuerFromChain(chain)
	if issuer == nil {
		return
	}
	var err error
	if resp.Certificate != nil {
		err = resp.Certificate.CheckSignatureFrom(issuer)
	} else {
		err = resp.CheckSignatureFrom(issuer)
	}
	if err != nil {
		signer.ValidationErrors = append(signer.ValidationErrors,
			&RevocationError{Msg: "embedded OCSP response not signed by certificate issuer", Err: err})
	}
}

func issuerFromChain(chain [][]*x509.Certificate) *x509.Certificate {
	if len(chain) == 0 || len(chain[0]) < 2 {
		return nil
	}
	return chain[0][1]
}

// fetchLiveOCSP runs one external OCSP round trip via the revocation
// package and parses the result, returning nil on any failure.
func fetchLiveOCSP(client *http.Client, cert, issuer *x509.Certificate) *ocsp.Response {
	body, err := revocation.FetchOCSP(client, cert, issuer)
	if err != nil {
		return nil
	}
	resp, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return nil
	}
	return resp
}

// fetchLiveCRLStatus downloads the certificate's CRL via the revocation
// package and reports whether the certificate appears in it. found is
// false when the CRL could not be fetched or parsed at all.
func fetchLiveCRLStatus(client *http.Client, cert *x509.Certificate) (revokedAt *time.Time, found bool) {
	body, err := revocation.FetchCRL(client, cert)
	if err != nil {
		return nil, false
	}
	crl, err := x509.ParseRevocationList(body)
	if err != nil {
		return nil, false
	}
	for _, entry := range crl.RevokedCertificateEntries {
		if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			t := entry.RevocationTime
			return &t, true
		}
	}
	return nil, true
}

// revocationWarning summarizes missing revocation coverage for one
// certificate. No warning means evidence was found on every channel the
// certificate advertises.
func revocationWarning(cert *x509.Certificate, c *Certificate, options *VerifyOptions) string {
	hasOCSP := c.OCSPEmbedded || c.OCSPExternal
	hasCRL := c.CRLEmbedded || c.CRLExternal
	hasOCSPUrl := len(cert.OCSPServer) > 0
	hasCRLUrl := len(cert.CRLDistributionPoints) > 0

	switch {
	case !hasOCSP && !hasCRL:
		if !hasOCSPUrl && !hasCRLUrl {
			return "no revocation status available: certificate embeds no OCSP/CRL and advertises no distribution points"
		}
		if options.EnableExternalRevocationCheck {
			return "external revocation checking enabled but no status could be retrieved from the certificate's distribution points"
		}
		return "no embedded revocation status; certificate has distribution points but external checking is not enabled"
	case !hasOCSP && hasOCSPUrl:
		if options.EnableExternalRevocationCheck {
			return "no OCSP response found despite external checking being enabled"
		}
		return "no embedded OCSP response; certificate has an OCSP URL for external checking"
	case !hasCRL && hasCRLUrl:
		if options.EnableExternalRevocationCheck {
			return "no CRL status found despite external checking being enabled"
		}
		return "no embedded CRL; certificate has CRL distribution points for external checking"
	}
	return ""
}
