package timestampsign

import (
	"bytes"
	"encoding/hex"

	"github.com/vaultstamp/tspdf/internal/errs"
)

// ErrTokenTooLarge is the sentinel the orchestrator retries on: the TSA
// token, hex-encoded, does not fit inside the reserved Contents
// placeholder. Callers detect it with errs.Is(err, errs.PdfError) plus an
// equality check against this value rather than string-matching.
var ErrTokenTooLarge = errs.New(errs.PdfError, "timestamp token too large for reserved placeholder")

// EmbedToken writes the DER-encoded TSA token into the hex placeholder
// reserved by PreparePlaceholder, zero-padding the remainder, and returns
// the final document bytes. It never changes the file's length or
// ByteRange: the placeholder was already sized and the ByteRange already
// patched during preparation.
func EmbedToken(prepared *Prepared, token []byte) ([]byte, error) {
	need := hex.EncodedLen(len(token))
	if need > prepared.ContentsPlaceholderLength {
		return nil, ErrTokenTooLarge
	}

	encoded := make([]byte, prepared.ContentsPlaceholderLength)
	hex.Encode(encoded, token)
	for i := need; i < len(encoded); i++ {
		encoded[i] = '0'
	}
	// Match the placeholder's case: hex.Encode emits lowercase, which is
	// what the zero-fill placeholder already uses.
	encoded = bytes.ToLower(encoded)

	out := make([]byte, len(prepared.Bytes))
	copy(out, prepared.Bytes)
	copy(out[prepared.ContentsOffset:prepared.ContentsOffset+int64(prepared.ContentsPlaceholderLength)], encoded)
	return out, nil
}
