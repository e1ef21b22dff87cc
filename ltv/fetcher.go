package ltv

import (
	"crypto/x509"
	"net/http"
	"time"

	"github.com/vaultstamp/tspdf/revocation"
)

// Fetcher is the collaborator a Session uses to resolve revocation data.
// The default implementation (NewHTTPFetcher) wraps package revocation
// with a per-URL circuit breaker and a shared Cache; tests substitute a
// fake that returns canned bytes or errors.
type Fetcher interface {
	FetchOCSP(cert, issuer *x509.Certificate) ([]byte, error)
	FetchCRL(cert *x509.Certificate) ([]byte, error)
}

// HTTPFetcher is the default Fetcher: real HTTP calls through package
// revocation, gated per-URL by a circuit breaker and backed by a Cache.
type HTTPFetcher struct {
	Client   revocation.HTTPClient
	Cache    *Cache
	breakers *breakerRegistry
}

// NewHTTPFetcher builds a Fetcher with its own breaker registry. cache
// may be nil, in which case every call is a live fetch.
func NewHTTPFetcher(client revocation.HTTPClient, cache *Cache) *HTTPFetcher {
	if client == nil {
		client = revocation.DefaultHTTPClient(10 * time.Second)
	}
	return &HTTPFetcher{Client: client, Cache: cache, breakers: newBreakerRegistry()}
}

func (f *HTTPFetcher) FetchOCSP(cert, issuer *x509.Certificate) ([]byte, error) {
	url, err := revocation.GetOCSPURI(cert)
	if err != nil {
		return nil, errNoOCSPServer
	}

	if f.Cache != nil {
		if cached, ok := f.Cache.GetOCSP(url, cert.Raw); ok {
			return cached, nil
		}
	}

	cb := f.breakers.get(url)
	var body []byte
	err = cb.Execute(func() error {
		b, ferr := revocation.FetchOCSP(f.Client, cert, issuer)
		if ferr != nil {
			return ferr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Cache != nil {
		f.Cache.SetOCSP(url, cert.Raw, body)
	}
	return body, nil
}

func (f *HTTPFetcher) FetchCRL(cert *x509.Certificate) ([]byte, error) {
	points := revocation.GetCRLDistributionPoints(cert)
	if len(points) == 0 {
		return nil, errNoCRLDP
	}
	url := points[0]

	if f.Cache != nil {
		if cached, ok := f.Cache.GetCRL(url); ok {
			return cached, nil
		}
	}

	cb := f.breakers.get(url)
	var body []byte
	err := cb.Execute(func() error {
		b, ferr := revocation.FetchCRL(f.Client, cert)
		if ferr != nil {
			return ferr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Cache != nil {
		f.Cache.SetCRL(url, body)
	}
	return body, nil
}

type fetcherError string

func (e fetcherError) Error() string { return string(e) }

const (
	errNoOCSPServer = fetcherError("ltv: certificate has no OCSP responder")
	errNoCRLDP      = fetcherError("ltv: certificate has no CRL distribution point")
)

// Compile-time check that an *http.Client satisfies revocation.HTTPClient
// as it is (it already has Do), so no adapter type is needed.
var _ revocation.HTTPClient = (*http.Client)(nil)
