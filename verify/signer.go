package verify

import (
	"crypto/x509"
	"time"

	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/ocsp"
)

// Certificate is the per-certificate verification record tracked while
// building a TSA chain: the parsed certificate plus whatever key usage
// findings and revocation evidence apply to it.
type Certificate struct {
	Certificate *x509.Certificate

	VerifyError      string
	KeyUsageValid    bool
	KeyUsageError    string
	ExtKeyUsageValid bool
	ExtKeyUsageError string

	OCSPResponse *ocsp.Response
	OCSPEmbedded bool
	OCSPExternal bool

	CRLEmbedded bool
	CRLExternal bool

	RevocationWarning string
	RevocationTime    *time.Time

	// RevokedBeforeTimestamp is set when the revocation moment precedes
	// the token's genTime; that is the only revocation that invalidates
	// an already-issued document timestamp.
	RevokedBeforeTimestamp bool
}

// Signer accumulates everything learned while verifying a single
// document timestamp: the dictionary metadata, the parsed token, the
// chain and revocation findings for the TSA's certificates, and any
// errors along the way. VerifySignature builds one per signature field.
type Signer struct {
	Name        string
	Reason      string
	Location    string
	ContactInfo string

	// SignatureTime is the dictionary's /M entry, informational only;
	// VerificationTime below is the token's genTime.
	SignatureTime *time.Time
	TimeStamp     *timestamp.Timestamp

	ValidSignature     bool
	TrustedIssuer      bool
	RevokedCertificate bool
	Certificates       []Certificate

	VerificationTime *time.Time
	TimeWarnings     []string

	ValidationErrors []error
}

// NewSigner returns a Signer with its slice fields ready to append to.
func NewSigner() *Signer {
	return &Signer{
		Certificates:     make([]Certificate, 0),
		TimeWarnings:     make([]string, 0),
		ValidationErrors: make([]error, 0),
	}
}

// Verified reports whether every check that ran passed: the CMS
// signature is valid, no chain certificate was revoked before the
// token's genTime, and no validation error was recorded.
func (s *Signer) Verified() bool {
	return s.ValidSignature && !s.RevokedCertificate && len(s.ValidationErrors) == 0
}
