// Package asn1ts gathers the ASN.1 object identifiers and small codec
// helpers shared by the protocol and LTV layers: it is a thin adapter over
// github.com/digitorus/timestamp, github.com/digitorus/pkcs7,
// golang.org/x/crypto/ocsp, and golang.org/x/crypto/cryptobyte rather than a
// reimplementation of any of them.
package asn1ts

import "encoding/asn1"

// Hash algorithm OIDs used in MessageImprint / SignerInfo digestAlgorithm.
var (
	OIDSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

// Signature algorithm OIDs (RSA family; the only ones this engine signs
// nothing with directly, but needs to recognize inside TSA-issued tokens).
var (
	OIDSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	OIDSHA384WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	OIDSHA512WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
)

// CMS content types.
var (
	OIDData       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OIDSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDTSTInfo    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 4}
)

// ESS signing-certificate attribute OIDs.
var (
	OIDSigningCertificate   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}
	OIDSigningCertificateV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
)

// OIDContentType is the id-contentType signed attribute (RFC 5652 §11.1)
// that carries the SignedData's real eContentType as a signed assertion,
// independent of (and sometimes inconsistent with) the outer ContentInfo.
var OIDContentType = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}

// RFC 3161 unauthenticated timestamp-token attribute and the PDF signature
// revocation-data attribute.
var (
	OIDTimestampToken  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	OIDRevocationInfos = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
)

// OCSP-related OIDs.
var (
	OIDOCSPNonce      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}
	OIDAuthorityInfo  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	OIDAccessOCSP     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1}
	OIDAccessCAIssuer = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 2}
	OIDCRLDistPoints  = asn1.ObjectIdentifier{2, 5, 29, 31}
	OIDSubjectKeyID   = asn1.ObjectIdentifier{2, 5, 29, 14}
	OIDAuthorityKeyID = asn1.ObjectIdentifier{2, 5, 29, 35}

	// OIDDeltaCRLIndicator marks a CRL as a delta relative to a base CRL.
	OIDDeltaCRLIndicator = asn1.ObjectIdentifier{2, 5, 29, 27}
)

// HashOID maps an algorithm name (as used throughout the config envelope
// and TimestampInfo) to its OID, returning false for anything unmapped —
// the caller turns that into an UnsupportedAlgorithm error.
func HashOID(name string) (asn1.ObjectIdentifier, bool) {
	switch name {
	case "SHA-1", "SHA1":
		return OIDSHA1, true
	case "SHA-256", "SHA256", "":
		return OIDSHA256, true
	case "SHA-384", "SHA384":
		return OIDSHA384, true
	case "SHA-512", "SHA512":
		return OIDSHA512, true
	default:
		return nil, false
	}
}

// HashOIDName is the inverse of HashOID.
func HashOIDName(oid asn1.ObjectIdentifier) (string, bool) {
	switch {
	case oid.Equal(OIDSHA1):
		return "SHA-1", true
	case oid.Equal(OIDSHA256):
		return "SHA-256", true
	case oid.Equal(OIDSHA384):
		return "SHA-384", true
	case oid.Equal(OIDSHA512):
		return "SHA-512", true
	default:
		return "", false
	}
}
