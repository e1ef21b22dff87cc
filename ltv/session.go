// Package ltv implements the long-term-validation session: queuing
// certificates, resolving their issuers, fetching revocation data with
// cache and circuit-breaker discipline, and producing a per-certificate
// result. It is the collaborator the archive driver and the LTV branch
// of the timestamp orchestrator both drive before handing artifacts to
// package dss.
package ltv

import (
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/vaultstamp/tspdf/internal/errs"
)

// Source names where a ValidationResult's revocation evidence came from.
const (
	SourceTrusted = "TRUSTED"
	SourceOCSP    = "OCSP"
	SourceCRL     = "CRL"
)

// QueuedCert is one certificate queued for validation, together with
// the issuer (if known) used to build its OCSP request.
type QueuedCert struct {
	Cert    *x509.Certificate
	Issuer  *x509.Certificate
	Purpose string
}

// ValidationResult is the outcome of validating one queued certificate.
type ValidationResult struct {
	Cert        *x509.Certificate
	OCSPRaw     []byte
	CRLRaw      []byte
	IsValid     bool
	Sources     []string
	Errors      []error
}

// Session drives queue_certificate/queue_chain/validate_all. A Session
// is single-use: once validate_all starts, further queue calls fail.
type Session struct {
	Fetcher     Fetcher
	TrustStore  []*x509.Certificate
	PreferOCSP  bool

	mu      sync.Mutex
	queue   []QueuedCert
	started bool
	done    bool
	results []ValidationResult
}

// NewSession builds a Session with OCSP preferred over CRL by default.
func NewSession(fetcher Fetcher, trustStore []*x509.Certificate) *Session {
	return &Session{Fetcher: fetcher, TrustStore: trustStore, PreferOCSP: true}
}

// QueueCertificate adds one certificate to the pending batch.
func (s *Session) QueueCertificate(cert, issuer *x509.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errs.New(errs.LtvError, "queue after start")
	}
	s.queue = append(s.queue, QueuedCert{Cert: cert, Issuer: issuer})
	return nil
}

// QueueChain adds an ordered certificate chain (leaf first), auto-linking
// each certificate's issuer to another chain entry (see findIssuer) or,
// when no chain entry issued it, to a certificate in the trust store.
func (s *Session) QueueChain(chain []*x509.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errs.New(errs.LtvError, "queue after start")
	}
	for i, cert := range chain {
		issuer := findIssuer(cert, chain, i)
		if issuer == nil {
			issuer = findIssuer(cert, s.TrustStore, -1)
		}
		s.queue = append(s.queue, QueuedCert{Cert: cert, Issuer: issuer})
	}
	return nil
}

// findIssuer locates cert's issuer within chain, preferring an
// AKI-to-SKI match (which disambiguates CAs with duplicate subject
// names) and falling back to subject/issuer DN equality.
func findIssuer(cert *x509.Certificate, chain []*x509.Certificate, self int) *x509.Certificate {
	if len(cert.AuthorityKeyId) > 0 {
		for j, candidate := range chain {
			if j == self {
				continue
			}
			if len(candidate.SubjectKeyId) > 0 && string(candidate.SubjectKeyId) == string(cert.AuthorityKeyId) {
				return candidate
			}
		}
	}
	for j, candidate := range chain {
		if j == self {
			continue
		}
		if candidate.Subject.String() == cert.Issuer.String() {
			return candidate
		}
	}
	return nil
}

func (s *Session) isTrustedIssuer(issuer *x509.Certificate) bool {
	if issuer == nil {
		return false
	}
	for _, root := range s.TrustStore {
		if root.Equal(issuer) {
			return true
		}
	}
	return false
}

// ValidateAll runs the configured fetcher over every queued certificate,
// in queue order, and returns one result per certificate in the same
// order. It may be called exactly once per Session.
func (s *Session) ValidateAll() ([]ValidationResult, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, errs.New(errs.LtvError, "validate_all already called")
	}
	s.started = true
	queue := s.queue
	s.mu.Unlock()

	results := make([]ValidationResult, 0, len(queue))
	for _, qc := range queue {
		results = append(results, s.validateOne(qc))
	}

	s.mu.Lock()
	s.done = true
	s.results = results
	s.mu.Unlock()
	return results, nil
}

func (s *Session) validateOne(qc QueuedCert) ValidationResult {
	result := ValidationResult{Cert: qc.Cert}

	if s.isTrustedIssuer(qc.Issuer) {
		result.IsValid = true
		result.Sources = append(result.Sources, SourceTrusted)
		return result
	}

	if s.Fetcher == nil {
		result.Errors = append(result.Errors, fmt.Errorf("ltv: no fetcher configured"))
		return result
	}

	triedOCSP, triedCRL := false, false
	tryOCSP := func() bool {
		triedOCSP = true
		body, err := s.Fetcher.FetchOCSP(qc.Cert, qc.Issuer)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("ltv: OCSP: %w", err))
			return false
		}
		result.OCSPRaw = body
		result.Sources = append(result.Sources, SourceOCSP)
		return true
	}
	tryCRL := func() bool {
		triedCRL = true
		body, err := s.Fetcher.FetchCRL(qc.Cert)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("ltv: CRL: %w", err))
			return false
		}
		result.CRLRaw = body
		result.Sources = append(result.Sources, SourceCRL)
		return true
	}

	ok := false
	if s.PreferOCSP {
		ok = tryOCSP()
		if !ok {
			ok = tryCRL()
		}
	} else {
		ok = tryCRL()
		if !ok {
			ok = tryOCSP()
		}
	}

	if !triedOCSP && !triedCRL {
		result.Errors = append(result.Errors, fmt.Errorf("ltv: certificate has neither OCSP nor CRL location"))
	}

	result.IsValid = ok
	return result
}

// Results returns the results of a completed ValidateAll call, or nil if
// validation has not run yet.
func (s *Session) Results() []ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}
