package ltv

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache holds previously-fetched OCSP and CRL bytes so a validation
// session (or a later one sharing the same Cache) does not re-fetch
// revocation data it already has. The default implementation is an
// in-memory map; callers may substitute a persistent store by
// implementing the same method set.
type Cache struct {
	mu   sync.Mutex
	ocsp map[string][]byte
	crl  map[string][]byte
}

// NewCache returns an empty in-memory Cache.
func NewCache() *Cache {
	return &Cache{
		ocsp: make(map[string][]byte),
		crl:  make(map[string][]byte),
	}
}

func ocspKey(url string, request []byte) string {
	sum := sha256.Sum256(request)
	return url + "#" + hex.EncodeToString(sum[:8])
}

// GetOCSP returns a cached OCSP response for (url, request), if any.
func (c *Cache) GetOCSP(url string, request []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.ocsp[ocspKey(url, request)]
	return v, ok
}

// SetOCSP stores an OCSP response for (url, request).
func (c *Cache) SetOCSP(url string, request, response []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ocsp[ocspKey(url, request)] = response
}

// GetCRL returns a cached CRL for url, if any.
func (c *Cache) GetCRL(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.crl[url]
	return v, ok
}

// SetCRL stores a CRL for url.
func (c *Cache) SetCRL(url string, response []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crl[url] = response
}

// Clear empties both the OCSP and CRL caches.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ocsp = make(map[string][]byte)
	c.crl = make(map[string][]byte)
}
