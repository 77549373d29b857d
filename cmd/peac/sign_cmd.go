package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/signer"
)

// runKeygenCmd implements `peac keygen`.
func runKeygenCmd(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)

	var kid, out, pub string
	cmd.StringVar(&kid, "kid", "", "Key id (default: derived from the public key)")
	cmd.StringVar(&out, "out", "", "Write the private JWK to this file (REQUIRED)")
	cmd.StringVar(&pub, "pub", "", "Write the public JWK set to this file")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if out == "" {
		return env.fail("--out is required")
	}

	key, err := signer.GenerateKey(kid)
	if err != nil {
		return env.fail("%v", err)
	}
	if err := writeJSONFile(out, key.PrivateJWK(), 0o600); err != nil {
		return env.fail("%v", err)
	}
	if pub != "" {
		if err := writeJSONFile(pub, signer.JWKSet{Keys: []signer.JWK{key.PublicJWK()}}, 0o644); err != nil {
			return env.fail("%v", err)
		}
	}
	_, _ = fmt.Fprintln(env.stdout, key.ID)
	return 0
}

// runSignCmd implements `peac sign`. It prints the detached JWS.
func runSignCmd(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("sign", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)

	var keyPath, in string
	cmd.StringVar(&keyPath, "key", "", "Path to private JWK (REQUIRED)")
	cmd.StringVar(&in, "in", "-", "Path to JSON document, - for stdin")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if keyPath == "" {
		return env.fail("--key is required")
	}

	key, err := signer.LoadKey(keyPath)
	if err != nil {
		return env.fail("%v", err)
	}
	doc, _, err := readDoc(in)
	if err != nil {
		return env.fail("%v", err)
	}
	jws, err := signer.Sign(doc, key)
	if err != nil {
		return env.fail("%v", err)
	}
	_, _ = fmt.Fprintln(env.stdout, jws)
	return 0
}

// runVerifyCmd implements `peac verify`.
//
// Exit codes:
//
//	0 = signature valid
//	1 = signature invalid or key unknown
//	2 = runtime error
func runVerifyCmd(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)

	var keysPath, in, jws string
	cmd.StringVar(&keysPath, "keys", "", "Path to JWK or JWK set (REQUIRED)")
	cmd.StringVar(&in, "in", "-", "Path to JSON document, - for stdin")
	cmd.StringVar(&jws, "jws", "", "Detached JWS, or @path to read it from a file (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if keysPath == "" || jws == "" {
		return env.fail("--keys and --jws are required")
	}
	if strings.HasPrefix(jws, "@") {
		data, err := os.ReadFile(jws[1:])
		if err != nil {
			return env.fail("%v", err)
		}
		jws = strings.TrimSpace(string(data))
	}

	keys, err := signer.LoadKeySet(keysPath)
	if err != nil {
		return env.fail("%v", err)
	}
	doc, _, err := readDoc(in)
	if err != nil {
		return env.fail("%v", err)
	}
	hdr, err := signer.Verify(jws, doc, keys)
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(env.stdout, "✅ signature valid (kid %s)\n", hdr.Kid)
		return 0
	case errors.Is(err, signer.ErrInvalidSignature), errors.Is(err, signer.ErrUnknownKey), errors.Is(err, signer.ErrMalformed):
		_, _ = fmt.Fprintf(env.stdout, "❌ %v\n", err)
		return 1
	default:
		return env.fail("%v", err)
	}
}

// runCodesCmd implements `peac codes`.
func runCodesCmd(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("codes", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)
	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output the registry as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	reg := codes.Default()
	if jsonOutput {
		_ = writeJSON(env.stdout, reg)
		return 0
	}
	for _, e := range reg.Codes {
		_, _ = fmt.Fprintf(env.stdout, "%-44s %-10s %s\n", e.Code, e.Category, e.Description)
	}
	return 0
}

func writeJSONFile(path string, v any, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
