package extract_test

import (
	"context"
	"crypto"
	"testing"

	pdflib "github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/extract"
	"github.com/vaultstamp/tspdf/internal/testpki"
	"github.com/vaultstamp/tspdf/timestampsign"
	"github.com/vaultstamp/tspdf/tsaclient"
)

// BenchmarkExtractIterator measures the cost of just finding the signature
// objects without extracting heavy data.
func BenchmarkExtractIterator(b *testing.B) {
	fileData := createTimestampedBenchmarkFile(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := testpki.NewBytesReader(fileData)
		rdr, _ := pdflib.NewReader(r, int64(len(fileData)))

		count := 0
		for sig, err := range extract.Iter(rdr, r) {
			if err != nil {
				b.Fatal(err)
			}
			_ = sig
			count++
		}
		if count == 0 {
			b.Fatal("no signatures found")
		}
	}
}

// BenchmarkExtractContents measures the cost of extracting just the
// contents (timestamp token blob).
func BenchmarkExtractContents(b *testing.B) {
	fileData := createTimestampedBenchmarkFile(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := testpki.NewBytesReader(fileData)
		rdr, _ := pdflib.NewReader(r, int64(len(fileData)))

		for sig, _ := range extract.Iter(rdr, r) {
			_ = sig.Contents()
		}
	}
}

// BenchmarkExtractCoveredBytes reads the full ByteRange-covered data to
// compare against the contents-only baseline above.
func BenchmarkExtractCoveredBytes(b *testing.B) {
	fileData := createTimestampedBenchmarkFile(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := testpki.NewBytesReader(fileData)
		rdr, _ := pdflib.NewReader(r, int64(len(fileData)))

		for sig, _ := range extract.Iter(rdr, r) {
			_, _ = sig.CoveredBytes()
		}
	}
}

// createTimestampedBenchmarkFile builds a minimal PDF, reserves a
// DocTimeStamp placeholder, and embeds a token granted by a fake TSA, once
// per benchmark, so the timed loop above measures only extraction cost.
func createTimestampedBenchmarkFile(b *testing.B) []byte {
	b.Helper()

	pki := testpki.NewTestPKIWithConfig(nil, testpki.TestPKIConfig{
		Profile:         testpki.ECDSA_P256,
		IntermediateCAs: 1,
	})
	pki.StartCRLServer()
	defer pki.Close()

	signerKey, signerCert := pki.IssueTSASigner("Benchmark TSA")
	tsa := pki.StartFakeTSA(signerKey, signerCert)
	defer tsa.Close()

	image := testpki.MinimalPDF()
	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{
		SignatureSize: 4096,
		FieldName:     "Timestamp",
		Reason:        "Benchmark",
	})
	if err != nil {
		b.Fatalf("PreparePlaceholder: %v", err)
	}

	digest, err := timestampsign.HashImprint(prepared, crypto.SHA256)
	if err != nil {
		b.Fatalf("HashImprint: %v", err)
	}

	result, err := tsaclient.New().Request(context.Background(), digest, tsaclient.Opts{
		URL:  tsa.URL,
		Hash: crypto.SHA256,
	})
	if err != nil {
		b.Fatalf("tsaclient.Request: %v", err)
	}
	if !result.Granted {
		b.Fatalf("fake TSA did not grant the request: %s", result.Status)
	}

	final, err := timestampsign.EmbedToken(prepared, result.RawToken)
	if err != nil {
		b.Fatalf("EmbedToken: %v", err)
	}
	return final
}
