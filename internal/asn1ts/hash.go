package asn1ts

import "crypto"

// CryptoHash maps an algorithm name to its crypto.Hash, mirroring HashOID.
func CryptoHash(name string) (crypto.Hash, bool) {
	switch name {
	case "SHA-1", "SHA1":
		return crypto.SHA1, true
	case "SHA-256", "SHA256", "":
		return crypto.SHA256, true
	case "SHA-384", "SHA384":
		return crypto.SHA384, true
	case "SHA-512", "SHA512":
		return crypto.SHA512, true
	default:
		return 0, false
	}
}
