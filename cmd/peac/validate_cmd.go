package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/peacprotocol/peac/core/pkg/dispute"
	"github.com/peacprotocol/peac/core/pkg/interaction"
	"github.com/peacprotocol/peac/core/pkg/receipt"
	"github.com/peacprotocol/peac/core/pkg/schema"
	"github.com/peacprotocol/peac/core/pkg/validate"
	"github.com/peacprotocol/peac/core/pkg/workflow"
)

// report is the printable outcome of any validator.
type report struct {
	Kind     string           `json:"kind"`
	Valid    bool             `json:"valid"`
	Error    *validate.Issue  `json:"error,omitempty"`
	Warnings []validate.Issue `json:"warnings,omitempty"`
}

func reportOf[T any](kind string, r validate.Result[T]) report {
	return report{Kind: kind, Valid: r.Valid, Error: r.Err, Warnings: r.Warnings}
}

// runValidateCmd implements `peac validate <kind>`.
func runValidateCmd(env *cmdEnv, args []string) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(env.stderr, "Usage: peac validate <workflow|summary|interaction|dispute|receipt> --in <file> [--json]")
		return 2
	}
	kind := args[0]
	switch kind {
	case "workflow", "summary", "interaction", "dispute", "receipt":
	default:
		return env.fail("unknown document kind %q", kind)
	}

	cmd := flag.NewFlagSet("validate "+kind, flag.ContinueOnError)
	cmd.SetOutput(env.stderr)

	var (
		in         string
		jsonOutput bool
	)
	cmd.StringVar(&in, "in", "-", "Path to JSON document, - for stdin")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON to stdout")

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	reg, err := env.cfg.LoadRegistry()
	if err != nil {
		return env.fail("%v", err)
	}
	raw, err := readInput(in)
	if err != nil {
		return env.fail("cannot read input: %v", err)
	}
	var doc any
	if kind != "receipt" {
		if doc, err = schema.Decode(raw); err != nil {
			return env.fail("%s: invalid JSON: %v", in, err)
		}
	}

	var rep report
	switch kind {
	case "workflow":
		rep = reportOf(kind, workflow.ValidateOrdered(doc, reg.WorkflowOptions()...))
	case "summary":
		rep = reportOf(kind, workflow.ValidateSummaryOrdered(doc))
	case "interaction":
		rep = reportOf(kind, interaction.ValidateOrdered(doc, reg.InteractionOptions()...))
	case "dispute":
		rep = reportOf(kind, dispute.ValidateAttestationOrdered(doc))
	case "receipt":
		rep = report{Kind: kind, Valid: true}
		if _, err := receipt.ParseWithLimits(raw, reg.Limits); err != nil {
			var pe *receipt.ParseError
			if !errors.As(err, &pe) {
				return env.fail("%v", err)
			}
			is := pe.Issue
			rep = report{Kind: kind, Error: &is}
		}
	default:
		return env.fail("unknown document kind %q", kind)
	}

	if jsonOutput {
		_ = writeJSON(env.stdout, rep)
	} else {
		printReport(env, rep)
	}
	if !rep.Valid {
		return 1
	}
	return 0
}

func printReport(env *cmdEnv, rep report) {
	if rep.Valid {
		_, _ = fmt.Fprintf(env.stdout, "✅ %s valid\n", rep.Kind)
	} else {
		_, _ = fmt.Fprintf(env.stdout, "❌ %s invalid\n", rep.Kind)
		_, _ = fmt.Fprintf(env.stdout, "  - %s\n", rep.Error)
	}
	for _, w := range rep.Warnings {
		_, _ = fmt.Fprintf(env.stdout, "  ! %s\n", w)
	}
}
