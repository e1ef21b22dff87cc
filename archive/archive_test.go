package archive_test

import (
	"context"
	"crypto"
	"testing"
	"time"

	pdflib "github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/archive"
	"github.com/vaultstamp/tspdf/extract"
	"github.com/vaultstamp/tspdf/internal/testpki"
	"github.com/vaultstamp/tspdf/orchestrate"
)

func startFakeTSA(t *testing.T) (url string, closeFn func()) {
	t.Helper()
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	key, cert := pki.IssueTSASigner("Test TSA")
	server := pki.StartFakeTSA(key, cert)
	return server.URL, func() {
		server.Close()
		pki.Close()
	}
}

func TestArchiveAddsACoveringLTATimestamp(t *testing.T) {
	url, closeFn := startFakeTSA(t)
	defer closeFn()

	image := testpki.MinimalPDF()
	first, err := orchestrate.Timestamp(context.Background(), image, orchestrate.Opts{
		TSAURL:        url,
		Hash:          crypto.SHA256,
		HashName:      "SHA-256",
		SignatureSize: 4096,
		FieldName:     "Timestamp1",
		Timeout:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("initial Timestamp: %v", err)
	}

	result, err := archive.Archive(context.Background(), first.PDF, archive.Opts{
		TSAURL:   url,
		Hash:     crypto.SHA256,
		HashName: "SHA-256",
		NoUpdate: true,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.RetimestampedIDs != 1 {
		t.Errorf("RetimestampedIDs = %d, want 1", result.RetimestampedIDs)
	}

	rdr, err := pdflib.NewReader(testpki.NewBytesReader(result.PDF), int64(len(result.PDF)))
	if err != nil {
		t.Fatalf("archived PDF failed to reparse: %v", err)
	}

	count := 0
	for ts, err := range extract.IterRFC3161(rdr, testpki.NewBytesReader(result.PDF), int64(len(result.PDF))) {
		if err != nil {
			t.Fatalf("IterRFC3161: %v", err)
		}
		count++
		if count == 2 && !ts.CoversWholeDocument {
			t.Error("the outer archive timestamp must cover the whole document")
		}
	}
	if count != 2 {
		t.Fatalf("found %d timestamp signatures after archiving, want 2 (original + LTA)", count)
	}

	if rdr.Trailer().Key("Root").Key("DSS").IsNull() {
		t.Error("archived PDF has no /DSS entry")
	}
}

func TestArchiveWithNoExistingTimestampsStillTimestamps(t *testing.T) {
	url, closeFn := startFakeTSA(t)
	defer closeFn()

	image := testpki.MinimalPDF()
	result, err := archive.Archive(context.Background(), image, archive.Opts{
		TSAURL:   url,
		Hash:     crypto.SHA256,
		HashName: "SHA-256",
		NoUpdate: true,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.RetimestampedIDs != 0 {
		t.Errorf("RetimestampedIDs = %d, want 0 for a document with no prior timestamps", result.RetimestampedIDs)
	}

	rdr, err := pdflib.NewReader(testpki.NewBytesReader(result.PDF), int64(len(result.PDF)))
	if err != nil {
		t.Fatalf("archived PDF failed to reparse: %v", err)
	}
	count := 0
	for _, err := range extract.IterRFC3161(rdr, testpki.NewBytesReader(result.PDF), int64(len(result.PDF))) {
		if err != nil {
			t.Fatalf("IterRFC3161: %v", err)
		}
		count++
	}
	if count != 1 {
		t.Fatalf("found %d timestamp signatures, want 1", count)
	}
}
