package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vaultstamp/tspdf/config"
	"github.com/vaultstamp/tspdf/ltv"
	"github.com/vaultstamp/tspdf/orchestrate"
)

func timestampCommand() {
	flags := flag.NewFlagSet("timestamp", flag.ExitOnError)

	var (
		algo          string
		ltvEnabled    bool
		reason        string
		location      string
		contactInfo   string
		fieldName     string
		timeoutMS     int
		retry         int
		optimize      bool
		omitM         bool
		trustRoots    string
		verbose       bool
	)

	defAlgo, defTimeout, defRetry := configDefaults()

	flags.StringVar(&algo, "a", defAlgo, "Hash algorithm: SHA-256, SHA-384, or SHA-512")
	flags.BoolVar(&ltvEnabled, "ltv", config.Settings.EnableLTV, "Embed DSS/VRI long-term-validation material")
	flags.StringVar(&reason, "reason", "", "Reason metadata for the timestamp signature field")
	flags.StringVar(&location, "location", "", "Location metadata for the timestamp signature field")
	flags.StringVar(&contactInfo, "contact-info", "", "Contact info metadata for the timestamp signature field")
	flags.StringVar(&fieldName, "name", "Timestamp", "Signature field name")
	flags.IntVar(&timeoutMS, "timeout", defTimeout, "TSA request timeout in milliseconds")
	flags.IntVar(&retry, "retry", defRetry, "Number of TSA request retries")
	flags.BoolVar(&optimize, "optimize", false, "Run one extra TSA round to shrink an oversized placeholder")
	flags.BoolVar(&omitM, "omit-m", false, "Omit the /M modification-time entry from the signature dictionary")
	flags.StringVar(&trustRoots, "trust-roots", config.Settings.TrustRootsPath, "PEM bundle of trusted roots for LTV chain validation")
	flags.BoolVar(&verbose, "v", false, "Verbose output")
	flags.BoolVar(&verbose, "verbose", false, "Verbose output")

	flags.Usage = func() {
		fmt.Printf("Usage: %s timestamp [options] <tsa_url> <file> [output]\n\n", os.Args[0])
		fmt.Println("Apply an RFC 3161 trusted timestamp to a PDF.")
		fmt.Println("\nOptions:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[2:]); err != nil {
		osExit(1)
		return
	}

	if flags.NArg() < 2 {
		flags.Usage()
		osExit(1)
		return
	}

	tsaURL := flags.Arg(0)
	input := flags.Arg(1)
	output := outputPath(input)
	if flags.NArg() >= 3 {
		output = flags.Arg(2)
	}

	hash, err := parseHashFlag(algo)
	if err != nil {
		printErrorAndExit(err)
		return
	}

	pdfBytes, err := os.ReadFile(input)
	if err != nil {
		printErrorAndExit(fmt.Errorf("failed to read %s: %w", input, err))
		return
	}

	opts := orchestrate.Opts{
		TSAURL:               tsaURL,
		Hash:                 hash.Hash,
		HashName:             hash.Name,
		FieldName:            fieldName,
		Reason:               reason,
		Location:             location,
		ContactInfo:          contactInfo,
		OmitModificationTime: omitM,
		Timeout:              parseDurationMS(timeoutMS),
		Retry:                retry,
		OptimizePlaceholder:  optimize,
		EnableLTV:            ltvEnabled,
	}

	if ltvEnabled {
		roots, rerr := loadTrustRoots(trustRoots)
		if rerr != nil {
			printErrorAndExit(rerr)
			return
		}
		opts.TrustStore = roots
		opts.Fetcher = ltv.NewHTTPFetcher(nil, ltv.NewCache())
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "requesting timestamp from %s (hash=%s, ltv=%v)\n", tsaURL, hash.Name, ltvEnabled)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout+5*time.Second)
	defer cancel()

	result, err := orchestrate.Timestamp(ctx, pdfBytes, opts)
	if err != nil {
		printErrorAndExit(err)
		return
	}

	if err := os.WriteFile(output, result.PDF, 0o644); err != nil {
		printErrorAndExit(fmt.Errorf("failed to write %s: %w", output, err))
		return
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "wrote %s (%d bytes, signature field %d bytes)\n", output, len(result.PDF), result.SignatureSize)
	}
	fmt.Println(output)
}
