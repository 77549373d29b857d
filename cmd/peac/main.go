package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/peacprotocol/peac/core/pkg/config"
	"github.com/peacprotocol/peac/core/pkg/schema"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// stdin is read when an input path is "-".
var stdin io.Reader = os.Stdin

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success
//	1 = validation or verification failed
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()
	env := &cmdEnv{cfg: cfg, log: cfg.Logger(stderr), stdout: stdout, stderr: stderr}

	switch args[1] {
	case "canonicalize", "jcs":
		return runCanonicalizeCmd(env, args[2:])
	case "claims":
		return runClaimsCmd(env, args[2:])
	case "equal":
		return runEqualCmd(env, args[2:])
	case "validate":
		return runValidateCmd(env, args[2:])
	case "dispute":
		return runDisputeCmd(env, args[2:])
	case "policy":
		return runPolicyCmd(env, args[2:])
	case "keygen":
		return runKeygenCmd(env, args[2:])
	case "sign":
		return runSignCmd(env, args[2:])
	case "verify":
		return runVerifyCmd(env, args[2:])
	case "codes":
		return runCodesCmd(env, args[2:])
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// cmdEnv carries what every subcommand needs.
type cmdEnv struct {
	cfg    *config.Config
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (e *cmdEnv) fail(format string, args ...any) int {
	_, _ = fmt.Fprintf(e.stderr, "Error: "+format+"\n", args...)
	return 2
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// readDoc reads and decodes a JSON document with numbers preserved.
func readDoc(path string) (any, []byte, error) {
	raw, err := readInput(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := schema.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: invalid JSON: %w", path, err)
	}
	return doc, raw, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGreen = "\033[32m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sPEAC receipts%s\n", ColorBold+ColorBlue, ColorReset)
	fmt.Fprintf(w, "%sCanonical claims, evidence validation and disputes.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  peac <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "RECEIPTS")
	printCommand(w, "canonicalize", "Print the RFC 8785 form of a JSON document (--in, --hash)")
	printCommand(w, "claims", "Print the canonical core claims of a receipt (--in, --digest)")
	printCommand(w, "equal", "Compare core claims of two receipts (--a, --b)")

	printSection(w, "VALIDATION")
	printCommand(w, "validate", "Validate workflow|summary|interaction|dispute|receipt (--in, --json)")

	printSection(w, "DISPUTES")
	printCommand(w, "dispute", "transition|put|get|list|apply")

	printSection(w, "POLICY")
	printCommand(w, "policy", "validate|eval a policy document (--policy, --context, --json)")

	printSection(w, "SIGNING")
	printCommand(w, "keygen", "Generate an Ed25519 key (--kid, --out, --pub)")
	printCommand(w, "sign", "Sign the canonical form of a document (--key, --in)")
	printCommand(w, "verify", "Verify a detached signature (--keys, --in, --jws)")

	printSection(w, "UTILITIES")
	printCommand(w, "codes", "List the error and warning registry (--json)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}
