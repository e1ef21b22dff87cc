package revocation

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/vaultstamp/tspdf/internal/asn1ts"
)

// accessDescription is one AIA entry: an access method OID plus a
// GeneralName whose uniformResourceIdentifier choice is context tag 6.
type accessDescription struct {
	Method   asn1.ObjectIdentifier
	Location asn1.RawValue
}

const generalNameURITag = 6

// GetOCSPURI returns the certificate's OCSP responder URI from its
// Authority Information Access extension. The standard library already
// surfaces this as OCSPServer; the raw-extension walk below is the
// fallback for certificates whose AIA the library skipped (a critical
// AIA, for instance, lands in UnhandledCriticalExtensions instead).
func GetOCSPURI(cert *x509.Certificate) (string, error) {
	if len(cert.OCSPServer) > 0 {
		return cert.OCSPServer[0], nil
	}
	for _, uri := range aiaURIs(cert, asn1ts.OIDAccessOCSP) {
		return uri, nil
	}
	return "", fmt.Errorf("revocation: certificate has no OCSP responder URI")
}

// GetCAIssuers returns every CA-issuers URI advertised by the
// certificate's Authority Information Access extension.
func GetCAIssuers(cert *x509.Certificate) []string {
	if len(cert.IssuingCertificateURL) > 0 {
		return cert.IssuingCertificateURL
	}
	return aiaURIs(cert, asn1ts.OIDAccessCAIssuer)
}

// GetCRLDistributionPoints returns every CRL distribution point URI the
// certificate advertises.
func GetCRLDistributionPoints(cert *x509.Certificate) []string {
	return cert.CRLDistributionPoints
}

// aiaURIs decodes the raw AIA extension and collects the URIs whose
// access method equals method.
func aiaURIs(cert *x509.Certificate, method asn1.ObjectIdentifier) []string {
	var uris []string
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(asn1ts.OIDAuthorityInfo) {
			continue
		}
		var descriptions []accessDescription
		if _, err := asn1.Unmarshal(ext.Value, &descriptions); err != nil {
			return nil
		}
		for _, d := range descriptions {
			if !d.Method.Equal(method) {
				continue
			}
			if d.Location.Class == asn1.ClassContextSpecific && d.Location.Tag == generalNameURITag {
				uris = append(uris, string(d.Location.Bytes))
			}
		}
	}
	return uris
}

// IsDeltaCRL reports whether the list carries the delta-CRL-indicator
// extension, meaning it only holds changes relative to a base CRL and
// must not be treated as a complete revocation picture on its own.
func IsDeltaCRL(crl *x509.RevocationList) bool {
	for _, ext := range crl.Extensions {
		if ext.Id.Equal(asn1ts.OIDDeltaCRLIndicator) {
			return true
		}
	}
	return false
}
