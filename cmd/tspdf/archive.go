package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vaultstamp/tspdf/archive"
	"github.com/vaultstamp/tspdf/config"
	"github.com/vaultstamp/tspdf/ltv"
)

func archiveCommand() {
	flags := flag.NewFlagSet("archive", flag.ExitOnError)

	var (
		algo       string
		noUpdate   bool
		timeoutMS  int
		retry      int
		trustRoots string
		verbose    bool
	)

	defAlgo, defTimeout, defRetry := configDefaults()

	flags.StringVar(&algo, "a", defAlgo, "Hash algorithm: SHA-256, SHA-384, or SHA-512")
	flags.BoolVar(&noUpdate, "no-update", false, "Skip refreshing revocation data for existing timestamps")
	flags.IntVar(&timeoutMS, "timeout", defTimeout, "TSA request timeout in milliseconds")
	flags.IntVar(&retry, "retry", defRetry, "Number of TSA request retries")
	flags.StringVar(&trustRoots, "trust-roots", config.Settings.TrustRootsPath, "PEM bundle of trusted roots for LTV chain validation")
	flags.BoolVar(&verbose, "v", false, "Verbose output")
	flags.BoolVar(&verbose, "verbose", false, "Verbose output")

	flags.Usage = func() {
		fmt.Printf("Usage: %s archive [options] <tsa_url> <file> [output]\n\n", os.Args[0])
		fmt.Println("Re-timestamp a PDF and refresh its long-term-validation material (PAdES-LTA).")
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

	roots, rerr := loadTrustRoots(trustRoots)
	if rerr != nil {
		printErrorAndExit(rerr)
		return
	}

	opts := archive.Opts{
		TSAURL:     tsaURL,
		Hash:       hash.Hash,
		HashName:   hash.Name,
		NoUpdate:   noUpdate,
		Fetcher:    ltv.NewHTTPFetcher(nil, ltv.NewCache()),
		TrustStore: roots,
		Timeout:    parseDurationMS(timeoutMS),
		Retry:      retry,
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "archiving %s via %s (hash=%s)\n", input, tsaURL, hash.Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout+5*time.Second)
	defer cancel()

	result, err := archive.Archive(ctx, pdfBytes, opts)
	if err != nil {
		printErrorAndExit(err)
		return
	}

	if err := os.WriteFile(output, result.PDF, 0o644); err != nil {
		printErrorAndExit(fmt.Errorf("failed to write %s: %w", output, err))
		return
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "wrote %s (%d prior timestamp(s) verified and folded into the DSS)\n", output, result.RetimestampedIDs)
	}
	fmt.Println(output)
}
