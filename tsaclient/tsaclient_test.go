package tsaclient_test

import (
	"context"
	"crypto"
	"crypto/sha256"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vaultstamp/tspdf/internal/errs"
	"github.com/vaultstamp/tspdf/internal/testpki"
	"github.com/vaultstamp/tspdf/tsaclient"
)

func digest(msg string) []byte {
	h := sha256.Sum256([]byte(msg))
	return h[:]
}

func TestRequestGranted(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	signerKey, signerCert := pki.IssueTSASigner("Test TSA")
	tsa := pki.StartFakeTSA(signerKey, signerCert)
	defer tsa.Close()

	result, err := tsaclient.New().Request(context.Background(), digest("hello"), tsaclient.Opts{
		URL:  tsa.URL,
		Hash: crypto.SHA256,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !result.Granted {
		t.Fatalf("expected a granted token, got status %q", result.Status)
	}
	if len(result.RawToken) == 0 {
		t.Error("RawToken is empty")
	}
	if result.Info == nil {
		t.Fatal("Info is nil")
	}
	if result.Info.HashAlgorithm != "SHA-256" {
		t.Errorf("Info.HashAlgorithm = %q, want SHA-256", result.Info.HashAlgorithm)
	}
	if result.Info.GenTime.IsZero() {
		t.Error("Info.GenTime is zero")
	}
}

func TestRequestRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A minimal DER-encoded TimeStampResp carrying PKIStatus rejection(2)
		// and no TimeStampToken, hand-encoded as SEQUENCE { SEQUENCE { INTEGER 2 } }.
		w.Header().Set("Content-Type", "application/timestamp-reply")
		_, _ = w.Write([]byte{0x30, 0x05, 0x30, 0x03, 0x02, 0x01, 0x02})
	}))
	defer server.Close()

	result, err := tsaclient.New().Request(context.Background(), digest("hello"), tsaclient.Opts{
		URL:  server.URL,
		Hash: crypto.SHA256,
	})
	if err != nil {
		t.Fatalf("Request returned an error for a structurally valid rejection: %v", err)
	}
	if result.Granted {
		t.Error("Granted = true for a rejection response")
	}
}

func TestRequestRejectedWithStatusString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// TimeStampResp { PKIStatusInfo { rejection(2), PKIFreeText { UTF8String "er" } } }
		w.Header().Set("Content-Type", "application/timestamp-reply")
		_, _ = w.Write([]byte{0x30, 0x0b, 0x30, 0x09, 0x02, 0x01, 0x02, 0x30, 0x04, 0x0c, 0x02, 0x65, 0x72})
	}))
	defer server.Close()

	result, err := tsaclient.New().Request(context.Background(), digest("hello"), tsaclient.Opts{
		URL:  server.URL,
		Hash: crypto.SHA256,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if result.Granted {
		t.Error("Granted = true for a rejection response")
	}
	if len(result.RawToken) != 0 {
		t.Error("a rejection must carry no token")
	}
	if !strings.Contains(result.Status, "rejection") || !strings.Contains(result.Status, "er") {
		t.Errorf("Status = %q, want the status name and free-text reason", result.Status)
	}
}

func TestRequestServerErrorRetriesThenFails(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := tsaclient.New().Request(context.Background(), digest("hello"), tsaclient.Opts{
		URL:       server.URL,
		Hash:      crypto.SHA256,
		Retry:     2,
		BaseDelay: time.Millisecond,
		Timeout:   time.Second,
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		t.Fatalf("error is not an *errs.Error: %v", err)
	}
}

func TestRequestClientErrorDoesNotRetry(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	_, err := tsaclient.New().Request(context.Background(), digest("hello"), tsaclient.Opts{
		URL:   server.URL,
		Hash:  crypto.SHA256,
		Retry: 3,
	})
	if err == nil {
		t.Fatal("expected an error for HTTP 400")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", attempts)
	}
}

func TestRequestContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tsaclient.New().Request(ctx, digest("hello"), tsaclient.Opts{
		URL:       server.URL,
		Hash:      crypto.SHA256,
		Retry:     2,
		BaseDelay: time.Hour,
	})
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}
