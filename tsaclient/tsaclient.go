// Package tsaclient builds RFC 3161 timestamp requests, sends them to a TSA
// over HTTP with retry/backoff, and parses the response into a
// TimestampInfo the orchestrator and verifier both consume.
package tsaclient

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/vaultstamp/tspdf/internal/errs"
)

// Opts configures a single timestamp request.
type Opts struct {
	URL         string
	Hash        crypto.Hash
	Policy      string // optional request policy OID, dotted form
	Timeout     time.Duration
	Retry       int
	BaseDelay   time.Duration
	Username    string
	Password    string
	Headers     map[string]string
}

const (
	defaultTimeout = 30 * time.Second
	defaultRetry   = 3
	defaultDelay   = time.Second
)

// TimestampInfo summarizes the fields of a granted token's TSTInfo that the
// rest of the engine needs, without requiring callers to re-parse ASN.1.
type TimestampInfo struct {
	GenTime         time.Time
	Policy          string
	SerialNumberHex string
	HashAlgorithm   string // canonical name, e.g. "SHA-256"
	MessageDigest   string // lowercase hex
	HasCertificate  bool
}

// Result is the outcome of a single Request call.
type Result struct {
	RawToken []byte // DER-encoded TimeStampToken, ready to embed as Contents
	Info     *TimestampInfo
	Granted  bool
	Status   string // human-readable PKIStatusInfo summary, set on any non-granted outcome
}

// Client sends RFC 3161 requests with the configured retry/backoff policy.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	HTTPClient *http.Client
}

// New returns a Client with its own *http.Client so per-request timeouts
// never mutate the shared http.DefaultClient.
func New() *Client {
	return &Client{HTTPClient: &http.Client{}}
}

// Request builds a TimeStampReq over digest, POSTs it to opts.URL with
// retry/backoff, and parses the response.
func (c *Client) Request(ctx context.Context, digest []byte, opts Opts) (*Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retry <= 0 {
		opts.Retry = defaultRetry
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultDelay
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "failed to generate request nonce", err)
	}

	tsReqStruct := &timestamp.Request{
		HashAlgorithm: opts.Hash,
		HashedMessage: digest,
		Nonce:         nonce,
		Certificates:  true,
	}
	if opts.Policy != "" {
		oid, perr := parseDottedOID(opts.Policy)
		if perr != nil {
			return nil, errs.Wrap(errs.InvalidResponse, "invalid TSA policy OID "+opts.Policy, perr)
		}
		tsReqStruct.TSAPolicyOID = oid
	}

	tsReq, err := tsReqStruct.Marshal()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "failed to build timestamp request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retry; attempt++ {
		if attempt > 0 {
			delay := opts.BaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errs.Wrap(errs.Timeout, "timestamp request cancelled during backoff", ctx.Err())
			}
		}

		body, status, err := c.post(ctx, opts, tsReq)
		if err != nil {
			lastErr = err
			if isRetryableNetworkErr(err) {
				continue
			}
			return nil, err
		}
		if status >= 500 || status == http.StatusTooManyRequests {
			lastErr = errs.New(errs.NetworkError, fmt.Sprintf("TSA returned HTTP %d", status))
			continue
		}
		if status < 200 || status > 299 {
			return nil, errs.New(errs.TsaError, fmt.Sprintf("TSA returned HTTP %d: %s", status, string(body)))
		}

		return parseResponse(body)
	}

	if lastErr == nil {
		lastErr = errs.New(errs.NetworkError, "timestamp request failed with no attempts")
	}
	return nil, errs.Wrap(errs.NetworkError, "timestamp request exhausted retries", lastErr)
}

func (c *Client) post(ctx context.Context, opts Opts, tsReq []byte) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, opts.URL, bytes.NewReader(tsReq))
	if err != nil {
		return nil, 0, errs.Wrap(errs.NetworkError, "failed to prepare TSA request", err)
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	httpReq.Header.Set("Content-Transfer-Encoding", "binary")
	for k, v := range opts.Headers {
		httpReq.Header.Set(k, v)
	}
	if opts.Username != "" && opts.Password != "" {
		httpReq.SetBasicAuth(opts.Username, opts.Password)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, 0, errs.Wrap(errs.Timeout, "timestamp request timed out", err)
		}
		return nil, 0, errs.Wrap(errs.NetworkError, "timestamp request failed", err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/timestamp-reply") {
		// Some TSAs mislabel the response; warn by proceeding rather than failing.
		_ = ct
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errs.Wrap(errs.NetworkError, "failed to read TSA response body", err)
	}
	return body, resp.StatusCode, nil
}

func isRetryableNetworkErr(err error) bool {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Kind == errs.NetworkError || e.Kind == errs.Timeout
	}
	return false
}

// parseResponse decodes a TimeStampResp, returning a non-granted Result (no
// error) when the TSA rejected or deferred the request, or an error when the
// response is structurally invalid.
func parseResponse(body []byte) (*Result, error) {
	ts, err := timestamp.ParseResponse(body)
	if err != nil {
		status := extractStatusString(body)
		if status != "" {
			return &Result{Granted: false, Status: status}, nil
		}
		return nil, errs.Wrap(errs.InvalidResponse, "failed to parse timestamp response", err)
	}

	info := &TimestampInfo{
		GenTime:         ts.Time,
		Policy:          ts.Policy.String(),
		SerialNumberHex: fmt.Sprintf("%x", ts.SerialNumber),
		HashAlgorithm:   hashAlgorithmName(ts.HashAlgorithm),
		MessageDigest:   fmt.Sprintf("%x", ts.HashedMessage),
		HasCertificate:  len(ts.Certificates) > 0,
	}

	return &Result{
		RawToken: ts.RawToken,
		Info:     info,
		Granted:  true,
	}, nil
}

// extractStatusString decodes just the PKIStatusInfo from a TimeStampResp
// that timestamp.ParseResponse rejected as ungranted, so callers still get
// a human-readable reason instead of a bare parse error. Hand-parsed with
// cryptobyte because PKIFreeText is SEQUENCE OF UTF8String, which
// encoding/asn1 cannot express for a slice field.
func extractStatusString(body []byte) string {
	input := cryptobyte.String(body)
	var resp, statusInfo cryptobyte.String
	if !input.ReadASN1(&resp, casn1.SEQUENCE) || !resp.ReadASN1(&statusInfo, casn1.SEQUENCE) {
		return ""
	}

	var code int64
	if !statusInfo.ReadASN1Integer(&code) {
		return ""
	}
	parts := []string{pkiStatusName(int(code))}

	if statusInfo.PeekASN1Tag(casn1.SEQUENCE) {
		var freeText cryptobyte.String
		if statusInfo.ReadASN1(&freeText, casn1.SEQUENCE) {
			for !freeText.Empty() {
				var s cryptobyte.String
				if !freeText.ReadASN1(&s, casn1.UTF8String) {
					break
				}
				parts = append(parts, string(s))
			}
		}
	}

	if statusInfo.PeekASN1Tag(casn1.BIT_STRING) {
		var failInfo asn1.BitString
		if statusInfo.ReadASN1BitString(&failInfo) {
			for bit := 0; bit < failInfo.BitLength; bit++ {
				if failInfo.At(bit) == 1 {
					parts = append(parts, fmt.Sprintf("failInfo bit %d", bit))
					break
				}
			}
		}
	}

	return strings.Join(parts, ": ")
}

// ValidateResponse reports whether a granted token answers the request
// it claims to: the TSTInfo's hash algorithm must match the requested
// one and its message digest must equal the hash we sent.
func ValidateResponse(info *TimestampInfo, originalHash []byte, algoName string) bool {
	if info == nil {
		return false
	}
	return info.HashAlgorithm == algoName &&
		strings.EqualFold(info.MessageDigest, fmt.Sprintf("%x", originalHash))
}

// newNonce draws the 8-byte random nonce every TimeStampReq carries.
func newNonce() (*big.Int, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}

func parseDottedOID(s string) (asn1.ObjectIdentifier, error) {
	fields := strings.Split(s, ".")
	oid := make(asn1.ObjectIdentifier, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("component %q is not a number", f)
		}
		oid = append(oid, n)
	}
	if len(oid) < 2 {
		return nil, fmt.Errorf("OID needs at least two components")
	}
	return oid, nil
}

func hashAlgorithmName(h crypto.Hash) string {
	switch h {
	case crypto.SHA1:
		return "SHA-1"
	case crypto.SHA256:
		return "SHA-256"
	case crypto.SHA384:
		return "SHA-384"
	case crypto.SHA512:
		return "SHA-512"
	default:
		return h.String()
	}
}

func pkiStatusName(code int) string {
	switch code {
	case 0:
		return "granted"
	case 1:
		return "grantedWithMods"
	case 2:
		return "rejection"
	case 3:
		return "waiting"
	case 4:
		return "revocationWarning"
	case 5:
		return "revocationNotification"
	default:
		return "status " + strconv.Itoa(code)
	}
}
