package timestampsign_test

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	"testing"

	pdflib "github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/internal/testpki"
	"github.com/vaultstamp/tspdf/timestampsign"
)

func TestPreparePlaceholderProducesPatchedByteRange(t *testing.T) {
	image := testpki.MinimalPDF()

	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{
		SignatureSize:         2048,
		FieldName:             "Timestamp",
		Reason:                "Archival",
		Location:              "Somewhere",
		ContactInfo:           "qa@example.invalid",
		ModificationTimeValue: "D:20260101000000Z",
	})
	if err != nil {
		t.Fatalf("PreparePlaceholder: %v", err)
	}

	if prepared.ContentsPlaceholderLength != 4096 {
		t.Errorf("ContentsPlaceholderLength = %d, want 4096", prepared.ContentsPlaceholderLength)
	}

	if !bytes.HasPrefix(prepared.Bytes, image) {
		t.Fatal("prepared bytes do not start with the original image verbatim")
	}
	if bytes.Contains(prepared.Bytes, []byte("**********")) {
		t.Fatal("ByteRange placeholder text survived patching")
	}

	br := prepared.ByteRange
	if br[0] != 0 {
		t.Errorf("ByteRange[0] = %d, want 0", br[0])
	}
	if prepared.Bytes[br[1]] != '<' {
		t.Errorf("byte at ByteRange[1] = %q, want '<'", prepared.Bytes[br[1]])
	}
	if prepared.Bytes[br[2]-1] != '>' {
		t.Errorf("byte at ByteRange[2]-1 = %q, want '>'", prepared.Bytes[br[2]-1])
	}
	total := br[2] + br[3]
	if total != int64(len(prepared.Bytes)) {
		t.Errorf("ByteRange does not cover the whole file: b2+b3=%d, len=%d", total, len(prepared.Bytes))
	}

	gap := prepared.Bytes[br[1]:br[2]]
	hexDigits := bytes.Trim(gap, "<>")
	if len(hexDigits) != prepared.ContentsPlaceholderLength {
		t.Errorf("the gap ByteRange excludes has %d hex digits, want %d", len(hexDigits), prepared.ContentsPlaceholderLength)
	}
	for _, c := range hexDigits {
		if c != '0' {
			t.Fatalf("placeholder is not all-zero: %q", hexDigits)
		}
	}

	// The patched document must still parse.
	if _, err := pdflib.NewReader(bytes.NewReader(prepared.Bytes), int64(len(prepared.Bytes))); err != nil {
		t.Fatalf("patched document failed to parse: %v", err)
	}
}

func TestPreparePlaceholderRejectsNonPositiveSize(t *testing.T) {
	image := testpki.MinimalPDF()
	if _, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{SignatureSize: 0}); err == nil {
		t.Fatal("expected an error for SignatureSize=0")
	}
}

func TestPreparePlaceholderDefaultsFieldName(t *testing.T) {
	image := testpki.MinimalPDF()
	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{SignatureSize: 1024})
	if err != nil {
		t.Fatalf("PreparePlaceholder: %v", err)
	}
	if prepared.SigObjNum == 0 {
		t.Error("SigObjNum should be a nonzero object number")
	}
	if !bytes.Contains(prepared.Bytes, []byte("/T (Timestamp)")) {
		t.Error("widget does not carry the default field name \"Timestamp\"")
	}
}

func TestHashImprintExcludesContentsPlaceholder(t *testing.T) {
	image := testpki.MinimalPDF()
	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{SignatureSize: 512})
	if err != nil {
		t.Fatalf("PreparePlaceholder: %v", err)
	}

	sum1, err := timestampsign.HashImprint(prepared, crypto.SHA256)
	if err != nil {
		t.Fatalf("HashImprint: %v", err)
	}

	embedded, err := timestampsign.EmbedToken(prepared, []byte("a fake token that is definitely not zero"))
	if err != nil {
		t.Fatalf("EmbedToken: %v", err)
	}
	prepared.Bytes = embedded

	sum2, err := timestampsign.HashImprint(prepared, crypto.SHA256)
	if err != nil {
		t.Fatalf("HashImprint after embed: %v", err)
	}

	if !bytes.Equal(sum1, sum2) {
		t.Error("HashImprint changed after embedding the token, but the hashed range should exclude Contents entirely")
	}
}

func TestEmbedTokenRejectsOversizedToken(t *testing.T) {
	image := testpki.MinimalPDF()
	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{SignatureSize: 4})
	if err != nil {
		t.Fatalf("PreparePlaceholder: %v", err)
	}

	_, err = timestampsign.EmbedToken(prepared, bytes.Repeat([]byte{0xAB}, 64))
	if err != timestampsign.ErrTokenTooLarge {
		t.Errorf("err = %v, want ErrTokenTooLarge", err)
	}
}

func TestEmbedTokenPreservesFileLength(t *testing.T) {
	image := testpki.MinimalPDF()
	prepared, err := timestampsign.PreparePlaceholder(image, timestampsign.Opts{SignatureSize: 256})
	if err != nil {
		t.Fatalf("PreparePlaceholder: %v", err)
	}

	token := bytes.Repeat([]byte{0x01, 0x02}, 50)
	out, err := timestampsign.EmbedToken(prepared, token)
	if err != nil {
		t.Fatalf("EmbedToken: %v", err)
	}
	if len(out) != len(prepared.Bytes) {
		t.Errorf("EmbedToken changed the file length: %d != %d", len(out), len(prepared.Bytes))
	}
}
