package verify

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"

	"github.com/vaultstamp/tspdf/internal/asn1ts"
	"github.com/vaultstamp/tspdf/revocation"
)

// VerifySignature processes a single DocTimeStamp (SubFilter
// ETSI.RFC3161) signature field found in the PDF. Generic PKCS#7
// detached-signature fields and DocMDP permission handling are out of
// scope: callers walk extract.IterRFC3161, which already rejects
// anything that isn't an RFC 3161 document timestamp before this is
// called.
func VerifySignature(v pdf.Value, file io.ReaderAt, fileSize int64, options *VerifyOptions) (*Signer, error) {
	signer := NewSigner()
	signer.Name = v.Key("Name").Text()
	signer.Reason = v.Key("Reason").Text()
	signer.Location = v.Key("Location").Text()
	signer.ContactInfo = v.Key("ContactInfo").Text()

	if m := v.Key("M"); !m.IsNull() {
		if t, err := parseDate(m.Text()); err == nil {
			signer.SignatureTime = &t
		}
	}

	rawSignature := []byte(v.Key("Contents").RawString())
	p7, err := pkcs7.Parse(rawSignature)
	if err != nil {
		return signer, fmt.Errorf("failed to parse PKCS#7: %w", err)
	}

	if err := checkTSTInfoContentType(p7); err != nil {
		signer.ValidationErrors = append(signer.ValidationErrors, &ValidationError{Msg: err.Error()})
		return signer, nil
	}

	if options.StrictESSValidation {
		if err := checkESSSigningCertificate(p7); err != nil {
			signer.ValidationErrors = append(signer.ValidationErrors, &PolicyError{Msg: err.Error()})
			return signer, nil
		}
	}

	// Parse TSTInfo for genTime and the message imprint. We parse the
	// original token because timestamp.Parse expects ContentInfo,
	// whereas p7.Content is the inner TSTInfo.
	ts, err := timestamp.Parse(rawSignature)
	if err != nil {
		signer.ValidationErrors = append(signer.ValidationErrors, &ValidationError{Msg: fmt.Sprintf("Failed to parse TSTInfo: %v", err)})
		return signer, nil
	}
	signer.TimeStamp = ts

	// Re-hash the ByteRange-covered bytes against the imprint.
	if !options.SkipDocumentHashCheck {
		pdfBytes, err := readByteRange(v, file)
		if err != nil {
			signer.ValidationErrors = append(signer.ValidationErrors, &ValidationError{Msg: fmt.Sprintf("Failed to read ByteRange: %v", err)})
			return signer, nil
		}
		h := ts.HashAlgorithm.New()
		h.Write(pdfBytes)
		if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
			signer.ValidationErrors = append(signer.ValidationErrors, &InvalidSignatureError{Msg: "document hash mismatch: ByteRange bytes do not hash to the token's message imprint"})
			return signer, nil
		}
	}

	// Verify the SignedData signature over the embedded TSTInfo. There
	// is no separate processTimestamp step: the timestamp IS the signed
	// content here, not an unauthenticated attribute on some other
	// signature.
	if err := verifySignedData(p7, signer); err != nil {
		signer.ValidationErrors = append(signer.ValidationErrors, &InvalidSignatureError{Msg: fmt.Sprintf("Failed to verify timestamp signature: %v", err)})
		return signer, nil
	}

	// Chain building and revocation, anchored at the token's genTime.
	var revInfo revocation.InfoArchival
	_ = p7.UnmarshalSignedAttribute(asn1ts.OIDRevocationInfos, &revInfo)

	if err := buildTSAChains(p7, signer, revInfo, options); err != nil {
		return signer, fmt.Errorf("failed to build certificate chains: %w", err)
	}

	if algoErr := verifyAlgorithmAndKeySize(signer, p7, options); algoErr != nil {
		signer.ValidationErrors = append(signer.ValidationErrors, &PolicyError{Msg: fmt.Sprintf("Algorithm verification failed: %v", algoErr)})
		return signer, nil
	}

	return signer, nil
}

func verifyAlgorithmAndKeySize(signer *Signer, p7 *pkcs7.PKCS7, options *VerifyOptions) error {
	if len(signer.Certificates) == 0 {
		return nil
	}

	verifyCert := func(cert *x509.Certificate, isLeaf bool) error {
		if cert == nil {
			return nil
		}

		if len(options.AllowedAlgorithms) > 0 {
			allowed := false
			for _, algo := range options.AllowedAlgorithms {
				if cert.PublicKeyAlgorithm == algo {
					allowed = true
					break
				}
			}
			if !allowed {
				return fmt.Errorf("public key algorithm %s is not allowed (isLeaf: %v)", cert.PublicKeyAlgorithm, isLeaf)
			}
		}

		switch pub := cert.PublicKey.(type) {
		case *rsa.PublicKey:
			if options.MinRSAKeySize > 0 && pub.N.BitLen() < options.MinRSAKeySize {
				return fmt.Errorf("RSA key size %d is less than minimum %d (isLeaf: %v)", pub.N.BitLen(), options.MinRSAKeySize, isLeaf)
			}
		case *ecdsa.PublicKey:
			if options.MinECDSAKeySize > 0 && pub.Params().BitSize < options.MinECDSAKeySize {
				return fmt.Errorf("ECDSA key size %d is less than minimum %d (isLeaf: %v)", pub.Params().BitSize, options.MinECDSAKeySize, isLeaf)
			}
		}
		return nil
	}

	leafCert := findSignerLeaf(p7)

	if options.ValidateFullChain {
		for _, certWrapper := range signer.Certificates {
			isLeaf := certWrapper.Certificate == leafCert
			if err := verifyCert(certWrapper.Certificate, isLeaf); err != nil {
				return err
			}
		}
		return nil
	}
	return verifyCert(leafCert, true)
}

// findSignerLeaf matches the first SignerInfo's issuer-and-serial against
// the shipped certificates; when strict matching fails it falls back to
// the first certificate in the list.
func findSignerLeaf(p7 *pkcs7.PKCS7) *x509.Certificate {
	if len(p7.Signers) > 0 {
		signerInfo := p7.Signers[0]
		for _, cert := range p7.Certificates {
			if cert.SerialNumber.Cmp(signerInfo.IssuerAndSerialNumber.SerialNumber) != 0 {
				continue
			}
			if bytes.Equal(cert.RawIssuer, signerInfo.IssuerAndSerialNumber.IssuerName.FullBytes) {
				return cert
			}
		}
	}
	if len(p7.Certificates) > 0 {
		return p7.Certificates[0]
	}
	return nil
}

// readByteRange reads the content defined by ByteRange.
func readByteRange(v pdf.Value, file io.ReaderAt) ([]byte, error) {
	var parts []io.Reader
	var totalSize int64

	br := v.Key("ByteRange")
	if br.Len()%2 != 0 {
		return nil, fmt.Errorf("invalid ByteRange length: %d", br.Len())
	}

	for i := 0; i < br.Len(); i += 2 {
		offset := br.Index(i).Int64()
		length := br.Index(i + 1).Int64()

		parts = append(parts, io.NewSectionReader(file, offset, length))
		totalSize += length
	}

	content := make([]byte, totalSize)
	if _, err := io.ReadFull(io.MultiReader(parts...), content); err != nil {
		return nil, fmt.Errorf("failed to read signed content: %v", err)
	}
	return content, nil
}

// checkTSTInfoContentType enforces that the SignerInfo's signed
// content-type attribute (RFC 5652 §11.1) names id-ct-TSTInfo, the only
// content type a DocTimeStamp's inner SignedData may legally carry.
//
// Some TSAs emit id-data here instead, a long-standing interop quirk:
// they build the encapsulated TSTInfo the same way they build an
// ordinary CMS SignedData and leave the content-type attribute at its
// id-data default rather than overriding it to id-ct-TSTInfo. Per the
// source this was ported from, that quirk is relaxed rather than
// "fixed": id-data is tolerated as content-type-equivalent to
// id-ct-TSTInfo so genuine RFC 3161 tokens from such TSAs still verify.
// Anything else is rejected outright.
func checkTSTInfoContentType(p7 *pkcs7.PKCS7) error {
	for _, s := range p7.Signers {
		for _, attr := range s.AuthenticatedAttributes {
			if !attr.Type.Equal(asn1ts.OIDContentType) {
				continue
			}

			var ct asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(attr.Value.Bytes, &ct); err != nil {
				return fmt.Errorf("failed to parse content-type attribute: %v", err)
			}

			if ct.Equal(asn1ts.OIDTSTInfo) || ct.Equal(asn1ts.OIDData) {
				return nil
			}
			return fmt.Errorf("signed content-type %s is neither id-ct-TSTInfo nor the tolerated id-data", ct)
		}
	}
	// No content-type attribute at all: nothing to relax or reject.
	return nil
}

// checkESSSigningCertificate requires an ESS signing-certificate or
// signing-certificate-v2 attribute among the first signer's signed
// attributes, and checks that its certHash actually binds the signature
// to the TSA certificate that produced it — presence alone would let a
// token vouch for a certificate it never named.
func checkESSSigningCertificate(p7 *pkcs7.PKCS7) error {
	if len(p7.Signers) == 0 {
		return fmt.Errorf("token has no SignerInfo")
	}
	leaf := findSignerLeaf(p7)
	if leaf == nil {
		return fmt.Errorf("token carries no certificate to bind the ESS attribute to")
	}
	for _, attr := range p7.Signers[0].AuthenticatedAttributes {
		switch {
		case attr.Type.Equal(asn1ts.OIDSigningCertificate):
			return asn1ts.VerifySigningCertificateV1(attr.Value.Bytes, leaf)
		case attr.Type.Equal(asn1ts.OIDSigningCertificateV2):
			return asn1ts.VerifySigningCertificateV2(attr.Value.Bytes, leaf)
		}
	}
	return fmt.Errorf("token carries no ESS signing-certificate attribute, required under strict validation")
}

// verifySignedData verifies the CMS signature, first with chain
// verification against the shipped certificates, then signature-only as
// the untrusted-issuer fallback.
func verifySignedData(p7 *pkcs7.PKCS7, signer *Signer) error {
	certPool := x509.NewCertPool()
	for _, cert := range p7.Certificates {
		certPool.AddCert(cert)
	}

	if err := p7.VerifyWithChain(certPool); err != nil {
		if err = p7.Verify(); err != nil {
			return fmt.Errorf("signature verification failed: %v", err)
		}
		signer.ValidSignature = true
		signer.TrustedIssuer = false
		return nil
	}
	signer.ValidSignature = true
	signer.TrustedIssuer = true
	return nil
}
