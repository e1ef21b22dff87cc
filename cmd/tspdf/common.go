package main

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vaultstamp/tspdf/config"
	"github.com/vaultstamp/tspdf/internal/asn1ts"
	"github.com/vaultstamp/tspdf/internal/errs"
)

// hashChoice is the -a flag resolved to both the crypto.Hash the
// orchestrator needs and its canonical name for TSA response validation.
type hashChoice struct {
	Hash crypto.Hash
	Name string
}

// outputPath derives the default output filename for a command that
// writes a new PDF next to its input: "<stem>-timestamped<ext>".
func outputPath(input string) string {
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)
	return stem + "-timestamped" + ext
}

// printErrorAndExit writes the CLI's "Error [CODE]: message" line to
// stderr and exits 1. Errors produced outside package errs (pdf parse
// errors returned directly by a third-party library, for instance) are
// printed without a bracketed code.
func printErrorAndExit(err error) {
	var e *errs.Error
	if as, ok := err.(*errs.Error); ok {
		e = as
	}
	if e != nil && e.Cause != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %s: %v\n", e.Kind, e.Message, e.Cause)
	} else if e != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", e.Kind, e.Message)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	osExit(1)
}

// parseHashFlag resolves the -a flag value (default SHA-256) to both the
// crypto.Hash the orchestrator needs and its canonical name.
func parseHashFlag(name string) (hashChoice, error) {
	if name == "" {
		name = "SHA-256"
	}
	h, ok := asn1ts.CryptoHash(name)
	if !ok {
		return hashChoice{}, errs.New(errs.UnsupportedAlgorithm, "unsupported hash algorithm "+name)
	}
	return hashChoice{Hash: h, Name: canonicalHashName(name)}, nil
}

func canonicalHashName(name string) string {
	switch strings.ToUpper(name) {
	case "SHA-1", "SHA1":
		return "SHA-1"
	case "SHA-384", "SHA384":
		return "SHA-384"
	case "SHA-512", "SHA512":
		return "SHA-512"
	default:
		return "SHA-256"
	}
}

// loadTrustRoots reads a PEM bundle of root certificates for LTV trust
// anchoring. An empty path is not an error: it simply means no trust
// store is configured, and every certificate is validated purely via
// live OCSP/CRL fetches.
func loadTrustRoots(path string) ([]*x509.Certificate, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust roots %s: %w", path, err)
	}

	var roots []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, cerr := x509.ParseCertificate(block.Bytes)
		if cerr != nil {
			return nil, fmt.Errorf("failed to parse certificate in %s: %w", path, cerr)
		}
		roots = append(roots, cert)
	}
	return roots, nil
}

func parseDurationMS(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// configDefaults folds the loaded config file (if any) into the flag
// defaults a subcommand starts from, so a tspdf.conf can set the fleet-wide
// hash algorithm, timeout, and retry policy without repeating flags.
func configDefaults() (algo string, timeoutMS, retry int) {
	algo, timeoutMS, retry = "SHA-256", 30000, 3
	if config.Settings.HashAlgorithm != "" {
		algo = config.Settings.HashAlgorithm
	}
	if config.Settings.TimeoutMS > 0 {
		timeoutMS = config.Settings.TimeoutMS
	}
	if config.Settings.Retry > 0 {
		retry = config.Settings.Retry
	}
	return algo, timeoutMS, retry
}
