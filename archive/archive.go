// Package archive implements the PAdES-LTA re-timestamping driver: it
// walks every existing timestamp in a PDF, collects the revocation data
// needed to keep each one verifiable, folds it into the Document
// Security Store, and applies a fresh covering timestamp over the
// result. It is the component the CLI's "archive" subcommand calls.
package archive

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"time"

	pdflib "github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"

	"github.com/vaultstamp/tspdf/dss"
	"github.com/vaultstamp/tspdf/extract"
	"github.com/vaultstamp/tspdf/internal/errs"
	"github.com/vaultstamp/tspdf/ltv"
	"github.com/vaultstamp/tspdf/orchestrate"
)

// Opts configures one archive (LTA) pass.
type Opts struct {
	TSAURL   string
	Hash     crypto.Hash
	HashName string

	NoUpdate bool // skip refreshing revocation data that already exists in the input

	Fetcher          ltv.Fetcher
	TrustStore       []*x509.Certificate
	UseSHA256VRIKeys bool

	Timeout   time.Duration
	Retry     int
	BaseDelay time.Duration
}

// Result is the outcome of a successful Archive call.
type Result struct {
	PDF              []byte
	RetimestampedIDs int // number of existing timestamps that verified and got a VRI entry; their revocation data is (re)collected only when NoUpdate is false and a Fetcher is set
}

// Archive verifies every existing document timestamp in pdf, collects
// its embedded certificates and any AIA/CRL-DP-reachable revocation
// data, merges the result into the DSS, and applies a fresh covering
// timestamp with LTV enabled. The outer timestamp's coversWholeDocument
// must be true once this returns.
func Archive(ctx context.Context, pdfBytes []byte, opts Opts) (*Result, error) {
	rdr, err := pdflib.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, errs.Wrap(errs.PdfError, "failed to parse input PDF", err)
	}
	reader := bytes.NewReader(pdfBytes)

	var artifacts dss.Artifacts
	seen := 0

	for ts, iterErr := range extract.IterRFC3161(rdr, reader, int64(len(pdfBytes))) {
		if iterErr != nil {
			continue // a damaged prior timestamp does not abort the archive pass
		}

		p7, ok := verifyExisting(ts)
		if !ok {
			// An unverifiable timestamp gets no fresh revocation data; it
			// stays in the file but contributes nothing to the DSS.
			continue
		}
		seen++

		var certDER [][]byte
		for _, c := range p7.Certificates {
			certDER = append(certDER, c.Raw)
			artifacts.Certs = appendUniqueDER(artifacts.Certs, c.Raw)
		}

		if !opts.NoUpdate && opts.Fetcher != nil && len(p7.Certificates) > 0 {
			session := ltv.NewSession(opts.Fetcher, opts.TrustStore)
			if qerr := session.QueueChain(p7.Certificates); qerr == nil {
				if results, verr := session.ValidateAll(); verr == nil {
					var ocspDER, crlDER [][]byte
					for _, r := range results {
						if r.OCSPRaw != nil {
							artifacts.OCSPs = appendUniqueDER(artifacts.OCSPs, r.OCSPRaw)
							ocspDER = append(ocspDER, r.OCSPRaw)
						}
						if r.CRLRaw != nil {
							artifacts.CRLs = appendUniqueDER(artifacts.CRLs, r.CRLRaw)
							crlDER = append(crlDER, r.CRLRaw)
						}
					}
					artifacts.VRI = append(artifacts.VRI, dss.VRIEntry{
						Key:  dss.ContentsVRIKey(ts.Contents(), opts.UseSHA256VRIKeys),
						Cert: certDER,
						CRL:  crlDER,
						OCSP: ocspDER,
					})
					continue
				}
			}
		}

		// Key over the Contents value as stored, padding included, the
		// same bytes the LTV writer hashed when this timestamp was made.
		artifacts.VRI = append(artifacts.VRI, dss.VRIEntry{
			Key:  dss.ContentsVRIKey(ts.Contents(), opts.UseSHA256VRIKeys),
			Cert: certDER,
		})
	}

	merged := pdfBytes
	if len(artifacts.Certs) > 0 || len(artifacts.CRLs) > 0 || len(artifacts.OCSPs) > 0 {
		merged, err = dss.WriteDSS(pdfBytes, artifacts)
		if err != nil {
			return nil, err
		}
	}

	res, err := orchestrate.Timestamp(ctx, merged, orchestrate.Opts{
		TSAURL:           opts.TSAURL,
		Hash:             opts.Hash,
		HashName:         opts.HashName,
		Timeout:          opts.Timeout,
		Retry:            opts.Retry,
		BaseDelay:        opts.BaseDelay,
		EnableLTV:        true,
		Fetcher:          opts.Fetcher,
		TrustStore:       opts.TrustStore,
		UseSHA256VRIKeys: opts.UseSHA256VRIKeys,
	})
	if err != nil {
		return nil, err
	}

	return &Result{PDF: res.PDF, RetimestampedIDs: seen}, nil
}

// verifyExisting checks that a previously-embedded timestamp still
// holds before its revocation data is refreshed: the token must parse,
// its CMS signature must verify against its own certificates, and the
// ByteRange-covered bytes must still hash to the message imprint.
func verifyExisting(ts *extract.TimestampSignature) (*pkcs7.PKCS7, bool) {
	p7, err := pkcs7.Parse(ts.Token)
	if err != nil {
		return nil, false
	}

	parsed, err := timestamp.Parse(ts.Token)
	if err != nil {
		return nil, false
	}
	covered, err := ts.CoveredBytes()
	if err != nil {
		return nil, false
	}
	h := parsed.HashAlgorithm.New()
	h.Write(covered)
	if !bytes.Equal(h.Sum(nil), parsed.HashedMessage) {
		return nil, false
	}

	pool := x509.NewCertPool()
	for _, c := range p7.Certificates {
		pool.AddCert(c)
	}
	if err := p7.VerifyWithChain(pool); err != nil {
		if err := p7.Verify(); err != nil {
			return nil, false
		}
	}

	ts.MarkVerified(true)
	return p7, true
}

func appendUniqueDER(list [][]byte, der []byte) [][]byte {
	for _, existing := range list {
		if bytes.Equal(existing, der) {
			return list
		}
	}
	return append(list, der)
}
