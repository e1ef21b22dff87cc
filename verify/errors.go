package verify

import (
	"fmt"

	"github.com/vaultstamp/tspdf/internal/errs"
)

// ValidationError represents a general validation error in the DocTimeStamp
// verification process (malformed ByteRange, DocMDP bookkeeping, hash
// mismatch). Kind reports errs.PdfError: it is the structural layer,
// not a cryptographic or revocation failure.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Kind reports the errs.Kind this error maps to for callers that branch
// on error category instead of Go type.
func (e *ValidationError) Kind() errs.Kind {
	return errs.PdfError
}

// RevocationError represents an error during revocation checking (CRL/OCSP).
type RevocationError struct {
	Msg string
	Err error
}

func (e *RevocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *RevocationError) Unwrap() error {
	return e.Err
}

// Kind reports errs.InvalidResponse: a revocation failure means the OCSP
// or CRL response could not be fetched, parsed, or matched to the chain.
func (e *RevocationError) Kind() errs.Kind {
	return errs.InvalidResponse
}

// InvalidSignatureError indicates that the cryptographic signature verification failed.
type InvalidSignatureError struct {
	Msg string
}

func (e *InvalidSignatureError) Error() string {
	return e.Msg
}

// Kind reports errs.VerificationFailed: the TSTInfo hash or CMS signature
// itself did not verify.
func (e *InvalidSignatureError) Kind() errs.Kind {
	return errs.VerificationFailed
}

// PolicyError indicates a violation of validation policy (e.g. key size,
// algorithm allowlist, required Extended Key Usage).
type PolicyError struct {
	Msg string
}

func (e *PolicyError) Error() string {
	return e.Msg
}

// Kind reports errs.VerificationFailed: a policy violation still means
// the signature is not acceptable, even though the cryptography checked out.
func (e *PolicyError) Kind() errs.Kind {
	return errs.VerificationFailed
}
