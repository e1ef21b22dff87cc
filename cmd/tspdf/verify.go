package main

import (
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vaultstamp/tspdf/verify"
)

func verifyCommand() {
	flags := flag.NewFlagSet("verify", flag.ExitOnError)

	var (
		rfc8933        bool
		external       bool
		allowUntrusted bool
		trustRootsPath string
		httpTimeoutMS  int
		verbose        bool
	)

	flags.BoolVar(&rfc8933, "rfc8933", false, "Require an ESS signing-certificate attribute in every token")
	flags.BoolVar(&external, "external", false, "Enable external OCSP and CRL checking")
	flags.BoolVar(&allowUntrusted, "allow-untrusted-roots", false, "Allow embedded certificates to act as trusted roots")
	flags.StringVar(&trustRootsPath, "trust-roots", "", "PEM bundle of trusted root certificates")
	flags.IntVar(&httpTimeoutMS, "http-timeout", 10000, "Timeout for external revocation checks, in milliseconds")
	flags.BoolVar(&verbose, "v", false, "Verbose output")
	flags.BoolVar(&verbose, "verbose", false, "Verbose output")

	flags.Usage = func() {
		fmt.Printf("Usage: %s verify [options] <file>\n\n", os.Args[0])
		fmt.Println("Verify the document timestamps embedded in a PDF.")
		fmt.Println("\nOptions:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[2:]); err != nil {
		osExit(1)
		return
	}
	if flags.NArg() < 1 {
		flags.Usage()
		osExit(1)
		return
	}

	input := flags.Arg(0)

	options := verify.DefaultVerifyOptions()
	options.StrictESSValidation = rfc8933
	options.EnableExternalRevocationCheck = external
	options.AllowUntrustedRoots = allowUntrusted
	options.HTTPTimeout = time.Duration(httpTimeoutMS) * time.Millisecond

	if trustRootsPath != "" {
		roots, err := loadTrustRoots(trustRootsPath)
		if err != nil {
			printErrorAndExit(err)
			return
		}
		pool := x509.NewCertPool()
		for _, r := range roots {
			pool.AddCert(r)
		}
		options.TrustStore = pool
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "verifying %s\n", input)
	}

	resp, err := verify.VerifyFile(input, options)
	if err != nil {
		printErrorAndExit(err)
		return
	}

	allValid := true
	for _, sig := range resp.Signatures {
		if !sig.Validation.ValidSignature || sig.Validation.RevokedCertificate || len(sig.Validation.Errors) > 0 {
			allValid = false
		}
	}

	out, merr := json.MarshalIndent(resp, "", "  ")
	if merr != nil {
		printErrorAndExit(fmt.Errorf("failed to marshal verification result: %w", merr))
		return
	}
	fmt.Println(string(out))

	if !allValid {
		osExit(1)
	}
}
