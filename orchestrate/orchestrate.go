// Package orchestrate drives the end-to-end timestamp state machine:
// prepare a placeholder, hash it, request a token from a TSA, embed the
// token, auto-extend the placeholder on overflow, optionally run one
// size-optimizing round, and optionally fold in long-term-validation
// data via packages ltv and dss. It is the component that ties C3–C6 and
// C9–C11 together into the single operation the CLI's "timestamp"
// subcommand calls.
package orchestrate

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"math"
	"time"

	"github.com/digitorus/pkcs7"

	"github.com/vaultstamp/tspdf/dss"
	"github.com/vaultstamp/tspdf/internal/errs"
	"github.com/vaultstamp/tspdf/ltv"
	"github.com/vaultstamp/tspdf/tsaclient"
	"github.com/vaultstamp/tspdf/timestampsign"
)

const (
	// DefaultSignatureSize is S when SignatureSize<=0 and LTV is disabled.
	DefaultSignatureSize = 8192
	// LTVDefaultSignatureSize is S when SignatureSize<=0 and LTV is enabled;
	// auto-extend cannot run under LTV so this must be generous up front.
	LTVDefaultSignatureSize = 16384
	// MaxAutoExtendAttempts bounds how many times PREPARE may retry with a
	// larger placeholder after an embed-time overflow.
	MaxAutoExtendAttempts = 2
	// MaxPlaceholderSize is the ceiling auto-extend growth is capped at.
	MaxPlaceholderSize = 65536
	// OptThreshold is how many bytes smaller than the placeholder the token
	// must be before the optional optimizer pass re-prepares a tighter one.
	OptThreshold = 512
	// DefaultMaxInputSize bounds how large an input document may be.
	DefaultMaxInputSize = 250 << 20
)

// Opts configures a single-TSA timestamp operation.
type Opts struct {
	TSAURL    string
	Hash      crypto.Hash
	HashName  string // canonical name ("SHA-256", …) matching Hash, for request validation
	Policy    string

	SignatureSize         int // S; 0 enables auto-extend (disabled automatically when EnableLTV)
	FieldName             string
	Reason                string
	Location              string
	ContactInfo           string
	OmitModificationTime  bool
	ModificationTimeValue string

	Timeout   time.Duration
	Retry     int
	BaseDelay time.Duration
	Headers   map[string]string

	// MaxSize rejects inputs above this many bytes; 0 means DefaultMaxInputSize.
	MaxSize int64

	OptimizePlaceholder bool

	EnableLTV        bool
	RevocationData   *dss.Artifacts // pre-fetched; used verbatim if non-nil
	Fetcher          ltv.Fetcher    // used to resolve revocation data when RevocationData is nil
	TrustStore       []*x509.Certificate
	UseSHA256VRIKeys bool
}

// Result is the outcome of a successful Timestamp call.
type Result struct {
	PDF           []byte
	Info          *tsaclient.TimestampInfo
	SignatureSize int
}

// Timestamp runs the PREPARE→HASH→REQUEST→PARSE→EMBED state machine
// against pdf, growing the placeholder on overflow per the auto-extend
// rule, optionally shrinking it once via the optimizer pass, and
// optionally embedding a DSS/VRI revision when opts.EnableLTV is set.
func Timestamp(ctx context.Context, pdf []byte, opts Opts) (*Result, error) {
	if opts.TSAURL == "" {
		return nil, errs.New(errs.PdfError, "TSA URL is required")
	}
	if opts.Hash == 0 {
		opts.Hash = crypto.SHA256
	}
	if opts.HashName == "" {
		opts.HashName = "SHA-256"
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxInputSize
	}
	if int64(len(pdf)) > maxSize {
		return nil, errs.New(errs.PdfError, fmt.Sprintf("input document is %d bytes, above the %d byte limit", len(pdf), maxSize))
	}

	autoExtend := opts.SignatureSize <= 0 && !opts.EnableLTV

	size := opts.SignatureSize
	if size <= 0 {
		if opts.EnableLTV {
			size = LTVDefaultSignatureSize
		} else {
			size = DefaultSignatureSize
		}
	}

	client := tsaclient.New()

	var prepared *timestampsign.Prepared
	var tsResult *tsaclient.Result
	var embedded []byte

	for attempt := 0; ; attempt++ {
		p, err := timestampsign.PreparePlaceholder(pdf, timestampsign.Opts{
			SignatureSize:         size,
			FieldName:             opts.FieldName,
			Reason:                opts.Reason,
			Location:              opts.Location,
			ContactInfo:           opts.ContactInfo,
			OmitModificationTime:  opts.OmitModificationTime,
			ModificationTimeValue: opts.ModificationTimeValue,
		})
		if err != nil {
			return nil, err
		}

		imprint, err := timestampsign.HashImprint(p, opts.Hash)
		if err != nil {
			return nil, errs.Wrap(errs.PdfError, "failed to compute hash imprint", err)
		}

		res, err := client.Request(ctx, imprint, tsaclient.Opts{
			URL:       opts.TSAURL,
			Hash:      opts.Hash,
			Policy:    opts.Policy,
			Timeout:   opts.Timeout,
			Retry:     opts.Retry,
			BaseDelay: opts.BaseDelay,
			Headers:   opts.Headers,
		})
		if err != nil {
			return nil, err
		}
		if !res.Granted {
			return nil, errs.New(errs.TsaError, "TSA did not grant the timestamp request: "+res.Status)
		}
		if !tsaclient.ValidateResponse(res.Info, imprint, opts.HashName) {
			return nil, errs.New(errs.VerificationFailed, "TSA response does not bind to the request imprint")
		}

		out, embedErr := timestampsign.EmbedToken(p, res.RawToken)
		if embedErr == nil {
			prepared, tsResult, embedded = p, res, out
			break
		}
		if embedErr != timestampsign.ErrTokenTooLarge {
			return nil, embedErr
		}
		if !autoExtend || attempt >= MaxAutoExtendAttempts {
			return nil, embedErr
		}

		grown := int(math.Ceil(float64(len(res.RawToken)) * 1.2))
		if grown > MaxPlaceholderSize {
			grown = MaxPlaceholderSize
		}
		if grown <= size {
			grown = size + 1
		}
		size = grown
	}

	if opts.OptimizePlaceholder {
		tokenLen := len(tsResult.RawToken)
		if size-tokenLen > OptThreshold {
			tighterSize := int(math.Ceil(float64(tokenLen+32)/32)) * 32

			p, err := timestampsign.PreparePlaceholder(pdf, timestampsign.Opts{
				SignatureSize:         tighterSize,
				FieldName:             opts.FieldName,
				Reason:                opts.Reason,
				Location:              opts.Location,
				ContactInfo:           opts.ContactInfo,
				OmitModificationTime:  opts.OmitModificationTime,
				ModificationTimeValue: opts.ModificationTimeValue,
			})
			if err == nil {
				imprint, ierr := timestampsign.HashImprint(p, opts.Hash)
				if ierr == nil {
					res, rerr := client.Request(ctx, imprint, tsaclient.Opts{
						URL:       opts.TSAURL,
						Hash:      opts.Hash,
						Policy:    opts.Policy,
						Timeout:   opts.Timeout,
						Retry:     opts.Retry,
						BaseDelay: opts.BaseDelay,
						Headers:   opts.Headers,
					})
					if rerr == nil && res.Granted {
						out, eerr := timestampsign.EmbedToken(p, res.RawToken)
						if eerr == nil {
							prepared, tsResult, embedded, size = p, res, out, tighterSize
						}
					}
				}
			}
		}
	}

	finalPDF := embedded

	if opts.EnableLTV {
		artifacts, err := resolveArtifacts(opts, tsResult.RawToken)
		if err != nil {
			return nil, errs.Wrap(errs.LtvError, "failed to resolve revocation data", err)
		}
		// The VRI key hashes the Contents value as stored in the file:
		// the token plus its zero padding out to the reserved length.
		paddedContents := make([]byte, prepared.ContentsPlaceholderLength/2)
		copy(paddedContents, tsResult.RawToken)
		artifacts.VRI = append(artifacts.VRI, dss.VRIEntry{
			Key:  dss.ContentsVRIKey(paddedContents, opts.UseSHA256VRIKeys),
			Cert: artifacts.Certs,
			CRL:  artifacts.CRLs,
			OCSP: artifacts.OCSPs,
		})

		finalPDF, err = dss.WriteDSS(embedded, *artifacts)
		if err != nil {
			return nil, err
		}
	}

	return &Result{PDF: finalPDF, Info: tsResult.Info, SignatureSize: size}, nil
}

// resolveArtifacts returns RevocationData verbatim if the caller supplied
// it, otherwise parses the token's embedded certificates and runs a
// validation session against opts.Fetcher/opts.TrustStore to collect
// CRLs/OCSP responses for each one.
func resolveArtifacts(opts Opts, token []byte) (*dss.Artifacts, error) {
	if opts.RevocationData != nil {
		return opts.RevocationData, nil
	}

	p7, err := pkcs7.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp token for LTV: %w", err)
	}

	var artifacts dss.Artifacts
	for _, c := range p7.Certificates {
		artifacts.Certs = append(artifacts.Certs, c.Raw)
	}

	if opts.Fetcher == nil || len(p7.Certificates) == 0 {
		return &artifacts, nil
	}

	session := ltv.NewSession(opts.Fetcher, opts.TrustStore)
	if err := session.QueueChain(p7.Certificates); err != nil {
		return nil, err
	}
	results, err := session.ValidateAll()
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.OCSPRaw != nil {
			artifacts.OCSPs = append(artifacts.OCSPs, r.OCSPRaw)
		}
		if r.CRLRaw != nil {
			artifacts.CRLs = append(artifacts.CRLs, r.CRLRaw)
		}
	}

	return &artifacts, nil
}

// TimestampMultiple applies Timestamp sequentially for each entry in
// tsaList, carrying the output PDF forward and preserving list order in
// the output's field order — each TSA gets its own signature field.
func TimestampMultiple(ctx context.Context, pdf []byte, tsaList []Opts) ([]*Result, error) {
	results := make([]*Result, 0, len(tsaList))
	current := pdf
	for _, o := range tsaList {
		res, err := Timestamp(ctx, current, o)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		current = res.PDF
	}
	return results, nil
}
