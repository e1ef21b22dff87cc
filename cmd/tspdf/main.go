// Command tspdf applies and verifies RFC 3161 document timestamps on PDF
// files, with optional PAdES long-term-validation material. A tiny main()
// dispatches to one function per subcommand, each of which owns its own
// flag.FlagSet and exit semantics so it can be unit tested in process.
package main

import (
	"fmt"
	"os"

	"github.com/vaultstamp/tspdf/config"
)

// osExit is overridden in tests so a subcommand's failure path can be
// observed via panic/recover instead of killing the test binary.
var osExit = os.Exit

func main() {
	// A missing config file is normal; flags keep their built-in defaults.
	_ = config.Read(config.DefaultLocation)

	if len(os.Args) < 2 {
		usage()
		osExit(1)
		return
	}

	switch os.Args[1] {
	case "timestamp":
		timestampCommand()
	case "verify":
		verifyCommand()
	case "archive":
		archiveCommand()
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", os.Args[1])
		usage()
		osExit(1)
	}
}

func usage() {
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  timestamp  Apply an RFC 3161 trusted timestamp to a PDF")
	fmt.Println("  verify     Verify the timestamps/signatures in a PDF")
	fmt.Println("  archive    Re-timestamp and refresh LTV material (PAdES-LTA)")
	fmt.Println()
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
}
