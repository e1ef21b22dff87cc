package verify

import (
	"fmt"
	"io"
	"os"

	"github.com/digitorus/pdf"

	"github.com/vaultstamp/tspdf/common"
	"github.com/vaultstamp/tspdf/extract"
)

// VerifyFile opens path and verifies every document timestamp it contains.
func VerifyFile(path string, options *VerifyOptions) (*Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return VerifyReader(f, info.Size(), options)
}

// VerifyReader verifies every document timestamp found in the PDF read
// from file, which must support random access over fileSize bytes.
func VerifyReader(file io.ReaderAt, fileSize int64, options *VerifyOptions) (*Response, error) {
	if options == nil {
		options = DefaultVerifyOptions()
	}

	rdr, err := pdf.NewReader(file, fileSize)
	if err != nil {
		return &Response{Error: err.Error()}, err
	}

	resp := &Response{}
	if info := rdr.Trailer().Key("Info"); !info.IsNull() {
		parseDocumentInfo(info, &resp.DocumentInfo)
	}

	for sig, iterErr := range extract.IterRFC3161(rdr, file, fileSize) {
		if iterErr != nil {
			resp.Signatures = append(resp.Signatures, SignatureRecord{
				Validation: SignatureValidation{
					State:  extract.StateVerifiedFail.String(),
					Errors: []string{iterErr.Error()},
				},
			})
			continue
		}

		signer, verr := VerifySignature(sig.Object(), file, fileSize, options)
		record := SignatureRecord{}

		if signer != nil {
			record.Info = common.SignatureInfo{
				Name:                signer.Name,
				Reason:              signer.Reason,
				Location:            signer.Location,
				ContactInfo:         signer.ContactInfo,
				SignatureTime:       signer.SignatureTime,
				TimeStamp:           signer.TimeStamp,
				CoversWholeDocument: sig.CoversWholeDocument,
			}
			record.Validation = SignatureValidation{
				ValidSignature:     signer.ValidSignature,
				TrustedIssuer:      signer.TrustedIssuer,
				RevokedCertificate: signer.RevokedCertificate,
				Certificates:       toCommonCertificates(signer.Certificates),
				VerificationTime:   signer.VerificationTime,
				TimeWarnings:       signer.TimeWarnings,
			}
			for _, e := range signer.ValidationErrors {
				record.Validation.Errors = append(record.Validation.Errors, e.Error())
			}
			sig.MarkVerified(verr == nil && signer.Verified())
		} else {
			sig.MarkVerified(false)
		}
		if verr != nil {
			record.Validation.ValidSignature = false
			record.Validation.Errors = append(record.Validation.Errors, verr.Error())
		}
		record.Validation.State = sig.State.String()

		resp.Signatures = append(resp.Signatures, record)
	}

	return resp, nil
}

// DefaultVerifyOptions returns the conservative defaults the CLI's verify
// subcommand starts from: Digital Signature key usage is required and
// nothing untrusted (self-signed roots, skipped hash checks) is accepted
// unless explicitly enabled.
func DefaultVerifyOptions() *VerifyOptions {
	return &VerifyOptions{
		RequireDigitalSignatureKU: true,
	}
}

func toCommonCertificates(certs []Certificate) []common.Certificate {
	out := make([]common.Certificate, 0, len(certs))
	for _, c := range certs {
		out = append(out, common.Certificate{
			Certificate:            c.Certificate,
			VerifyError:            c.VerifyError,
			KeyUsageValid:          c.KeyUsageValid,
			KeyUsageError:          c.KeyUsageError,
			ExtKeyUsageValid:       c.ExtKeyUsageValid,
			ExtKeyUsageError:       c.ExtKeyUsageError,
			OCSPResponse:           c.OCSPResponse,
			OCSPEmbedded:           c.OCSPEmbedded,
			OCSPExternal:           c.OCSPExternal,
			CRLEmbedded:            c.CRLEmbedded,
			CRLExternal:            c.CRLExternal,
			RevocationWarning:      c.RevocationWarning,
			RevocationTime:         c.RevocationTime,
			RevokedBeforeTimestamp: c.RevokedBeforeTimestamp,
		})
	}
	return out
}
