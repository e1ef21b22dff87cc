package asn1ts

import (
	"bytes"
	"crypto"
	"crypto/sha1"
	_ "crypto/sha256" // register SHA-256 for crypto.Hash.New()
	_ "crypto/sha512" // register SHA-384/512 for crypto.Hash.New()
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// VerifySigningCertificateV1 checks that a legacy ESS signing-certificate
// attribute value (RFC 2634 SigningCertificate) binds to cert: the first
// ESSCertID's certHash must equal the SHA-1 digest of the certificate.
func VerifySigningCertificateV1(attrValue []byte, cert *x509.Certificate) error {
	id, err := firstESSCertID(attrValue)
	if err != nil {
		return err
	}

	var certHash cryptobyte.String
	if !id.ReadASN1(&certHash, casn1.OCTET_STRING) {
		return fmt.Errorf("signing-certificate attribute carries no certHash")
	}

	sum := sha1.Sum(cert.Raw)
	if !bytes.Equal(sum[:], certHash) {
		return fmt.Errorf("signing-certificate attribute does not match the signer certificate")
	}
	return nil
}

// VerifySigningCertificateV2 checks that an ESS signing-certificate-v2
// attribute value (RFC 5035 SigningCertificateV2) binds to cert. The
// first ESSCertIDv2's hashAlgorithm (DEFAULT sha256 when absent —
// cryptobyte is used here because encoding/asn1 cannot express that
// DEFAULT-valued optional field cleanly) selects the digest the
// certHash is compared against.
func VerifySigningCertificateV2(attrValue []byte, cert *x509.Certificate) error {
	id, err := firstESSCertID(attrValue)
	if err != nil {
		return err
	}

	hash := crypto.SHA256
	if id.PeekASN1Tag(casn1.SEQUENCE) {
		var algo cryptobyte.String
		if !id.ReadASN1(&algo, casn1.SEQUENCE) {
			return fmt.Errorf("signing-certificate-v2 attribute has a malformed hashAlgorithm")
		}
		var oid asn1.ObjectIdentifier
		if !algo.ReadASN1ObjectIdentifier(&oid) {
			return fmt.Errorf("signing-certificate-v2 attribute has a malformed hashAlgorithm OID")
		}
		name, ok := HashOIDName(oid)
		if !ok {
			return fmt.Errorf("signing-certificate-v2 attribute uses unsupported hash %s", oid)
		}
		hash, _ = CryptoHash(name)
	}

	var certHash cryptobyte.String
	if !id.ReadASN1(&certHash, casn1.OCTET_STRING) {
		return fmt.Errorf("signing-certificate-v2 attribute carries no certHash")
	}

	h := hash.New()
	h.Write(cert.Raw)
	if !bytes.Equal(h.Sum(nil), certHash) {
		return fmt.Errorf("signing-certificate-v2 attribute does not match the signer certificate")
	}
	return nil
}

// firstESSCertID peels SigningCertificate{,V2} down to the first
// ESSCertID{,v2} element: the outer SEQUENCE, the certs SEQUENCE OF,
// and the first entry. Later entries and the optional policies field
// are irrelevant to binding the signer.
func firstESSCertID(attrValue []byte) (cryptobyte.String, error) {
	input := cryptobyte.String(attrValue)
	var sc, certs, id cryptobyte.String
	if !input.ReadASN1(&sc, casn1.SEQUENCE) ||
		!sc.ReadASN1(&certs, casn1.SEQUENCE) ||
		!certs.ReadASN1(&id, casn1.SEQUENCE) {
		return nil, fmt.Errorf("malformed ESS signing-certificate attribute")
	}
	return id, nil
}
