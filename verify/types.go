package verify

import (
	"crypto/x509"
	"net/http"
	"time"

	"github.com/vaultstamp/tspdf/common"
)

// VerifyOptions controls DocTimeStamp verification.
type VerifyOptions struct {
	// TrustStore holds the root certificates TSA chains must anchor to.
	// Nil means the system root pool.
	TrustStore *x509.CertPool

	// AllowUntrustedRoots falls back to the token's own embedded
	// certificates as roots when chain building against TrustStore (or
	// the system pool) fails. The signature then reports
	// TrustedIssuer=false. Only enable for testing or when the embedded
	// certificates are trusted out of band.
	AllowUntrustedRoots bool

	// StrictESSValidation requires the first signer's signed attributes
	// to carry an ESS signing-certificate or signing-certificate-v2
	// attribute (RFC 8933 discipline).
	StrictESSValidation bool

	// SkipDocumentHashCheck skips re-hashing the ByteRange-covered bytes
	// against the token's MessageImprint. The default is to re-hash.
	SkipDocumentHashCheck bool

	// EnableExternalRevocationCheck permits live OCSP/CRL lookups for
	// chain certificates the token carries no revocation evidence for.
	EnableExternalRevocationCheck bool

	// HTTPClient is used for external revocation checks; nil builds a
	// client bounded by HTTPTimeout (default 10 s).
	HTTPClient *http.Client

	HTTPTimeout time.Duration

	// RequiredEKUs is the Extended Key Usage set a TSA certificate must
	// carry. Empty means id-kp-timeStamping per RFC 3161 section 2.3,
	// which also requires it be the certificate's only EKU.
	RequiredEKUs []x509.ExtKeyUsage

	// AllowedEKUs are alternative EKUs accepted in place of RequiredEKUs:
	// a certificate that carries one of them but none of the required
	// ones still counts as having a valid Extended Key Usage. Other EKUs
	// next to a required one are tolerated whether or not they are listed
	// here.
	AllowedEKUs []x509.ExtKeyUsage

	// AllowedAlgorithms restricts accepted public key algorithms.
	// Empty means no restriction.
	AllowedAlgorithms []x509.PublicKeyAlgorithm

	// MinRSAKeySize rejects RSA keys below this bit length. Zero disables.
	MinRSAKeySize int

	// MinECDSAKeySize rejects ECDSA keys below this bit length. Zero disables.
	MinECDSAKeySize int

	// ValidateFullChain applies the algorithm and key size constraints to
	// every certificate in the chain instead of only the TSA signer.
	ValidateFullChain bool

	// RequireDigitalSignatureKU requires the Digital Signature Key Usage bit.
	RequireDigitalSignatureKU bool

	// RequireNonRepudiation requires the Non-Repudiation (Content
	// Commitment) Key Usage bit.
	RequireNonRepudiation bool
}

// SignatureValidation is the verification outcome for one timestamp.
type SignatureValidation struct {
	ValidSignature     bool                 `json:"valid_signature"`
	TrustedIssuer      bool                 `json:"trusted_issuer"`
	RevokedCertificate bool                 `json:"revoked_certificate"`
	State              string               `json:"state"`
	Certificates       []common.Certificate `json:"certificates"`
	VerificationTime   *time.Time           `json:"verification_time,omitempty"`
	TimeWarnings       []string             `json:"time_warnings,omitempty"`
	Errors             []string             `json:"errors,omitempty"`
}

// SignatureRecord pairs a timestamp's extracted info with its validation.
type SignatureRecord struct {
	Info       common.SignatureInfo `json:"info"`
	Validation SignatureValidation  `json:"validation"`
}

// Response is the whole-document verification result.
type Response struct {
	Error string `json:"error,omitempty"`

	DocumentInfo common.DocumentInfo `json:"document_info"`
	Signatures   []SignatureRecord   `json:"signatures"`
}
