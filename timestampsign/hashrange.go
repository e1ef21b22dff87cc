package timestampsign

import (
	"crypto"
	_ "crypto/sha256" // register SHA-256 etc. for crypto.Hash.New()
	_ "crypto/sha512"
)

// HashImprint computes the message digest the TSA request's messageImprint
// carries: the ByteRange-covered bytes, i.e. everything except the reserved
// Contents hex placeholder itself, hashed with the declared algorithm. It
// must run against the prepared-but-not-yet-embedded bytes, since the
// placeholder's zero fill is exactly what ByteRange excludes.
func HashImprint(prepared *Prepared, hash crypto.Hash) ([]byte, error) {
	h := hash.New()
	br := prepared.ByteRange
	h.Write(prepared.Bytes[br[0] : br[0]+br[1]])
	h.Write(prepared.Bytes[br[2] : br[2]+br[3]])
	return h.Sum(nil), nil
}
