package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/peacprotocol/peac/core/pkg/policy"
	"github.com/peacprotocol/peac/core/pkg/receipt"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

type evaluation struct {
	Result  policy.Result       `json:"result"`
	Step    receipt.ControlStep `json:"step"`
	Control *receipt.Control    `json:"control"`
}

// runPolicyCmd implements `peac policy <validate|eval>`.
func runPolicyCmd(env *cmdEnv, args []string) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(env.stderr, "Usage: peac policy <validate|eval> --policy <file> [--context <file>] [--json]")
		return 2
	}
	sub := args[0]
	if sub != "validate" && sub != "eval" {
		return env.fail("unknown policy command %q", sub)
	}

	cmd := flag.NewFlagSet("policy "+sub, flag.ContinueOnError)
	cmd.SetOutput(env.stderr)

	var (
		policyPath  string
		contextPath string
		jsonOutput  bool
	)
	cmd.StringVar(&policyPath, "policy", "", "Path to policy document (YAML or JSON)")
	cmd.StringVar(&contextPath, "context", "-", "Path to evaluation context JSON, - for stdin")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON to stdout")

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}
	if policyPath == "" {
		return env.fail("--policy is required")
	}

	raw, err := readInput(policyPath)
	if err != nil {
		return env.fail("cannot read policy: %v", err)
	}
	doc, err := policy.Parse(raw)
	if err == nil {
		err = policy.Validate(doc)
	}
	if err != nil {
		var verr *validate.Error
		if !errors.As(err, &verr) {
			return env.fail("%v", err)
		}
		rep := report{Kind: "policy", Error: &verr.Issue}
		if jsonOutput {
			_ = writeJSON(env.stdout, rep)
		} else {
			printReport(env, rep)
		}
		return 1
	}

	if sub == "validate" {
		rep := report{Kind: "policy", Valid: true}
		if jsonOutput {
			_ = writeJSON(env.stdout, rep)
		} else {
			printReport(env, rep)
		}
		return 0
	}

	ctxRaw, err := readInput(contextPath)
	if err != nil {
		return env.fail("cannot read context: %v", err)
	}
	var ctx policy.Context
	if err := json.Unmarshal(ctxRaw, &ctx); err != nil {
		return env.fail("%s: invalid context: %v", contextPath, err)
	}

	engine, err := policy.Compile(doc)
	if err != nil {
		return env.fail("%v", err)
	}
	res, err := engine.Evaluate(&ctx)
	if err != nil {
		env.log.Warn("policy condition failed", "policy", doc.Name, "rule", res.MatchedRule, "error", err)
	}
	step := engine.ControlStep(res, &ctx)
	out := evaluation{Result: res, Step: step, Control: policy.Combine(step)}

	env.log.Debug("policy evaluated", "policy", doc.Name, "decision", res.Decision, "rule", res.MatchedRule, "default", res.IsDefault)

	if jsonOutput {
		_ = writeJSON(env.stdout, out)
		return 0
	}
	rule := res.MatchedRule
	if res.IsDefault {
		rule = "(default)"
	}
	_, _ = fmt.Fprintf(env.stdout, "%s by %s", res.Decision, rule)
	if res.Reason != "" {
		_, _ = fmt.Fprintf(env.stdout, ": %s", res.Reason)
	}
	_, _ = fmt.Fprintln(env.stdout)
	return 0
}
