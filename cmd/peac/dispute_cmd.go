package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/peacprotocol/peac/core/pkg/dispute"
	"github.com/peacprotocol/peac/core/pkg/store"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// runDisputeCmd implements `peac dispute <subcommand>`.
func runDisputeCmd(env *cmdEnv, args []string) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(env.stderr, "Usage: peac dispute <transition|put|get|list|apply> [flags]")
		return 2
	}
	switch args[0] {
	case "transition":
		return runDisputeTransition(env, args[1:])
	case "put":
		return runDisputePut(env, args[1:])
	case "get":
		return runDisputeGet(env, args[1:])
	case "list":
		return runDisputeList(env, args[1:])
	case "apply":
		return runDisputeApply(env, args[1:])
	default:
		_, _ = fmt.Fprintf(env.stderr, "Unknown dispute command: %s\n", args[0])
		return 2
	}
}

// transitionFlags are shared by transition and apply.
type transitionFlags struct {
	to         string
	reason     string
	resolution string
}

func (f *transitionFlags) register(cmd *flag.FlagSet) {
	cmd.StringVar(&f.to, "to", "", "Target state (REQUIRED)")
	cmd.StringVar(&f.reason, "reason", "", "Reason recorded as state_reason")
	cmd.StringVar(&f.resolution, "resolution", "", "Path to resolution JSON, required for terminal states")
}

func (f *transitionFlags) load() (dispute.State, *dispute.Resolution, error) {
	if f.to == "" {
		return "", nil, errors.New("--to is required")
	}
	target := dispute.State(f.to)
	if !target.Valid() {
		return "", nil, fmt.Errorf("unknown state %q", f.to)
	}
	if f.resolution == "" {
		return target, nil, nil
	}
	raw, err := readInput(f.resolution)
	if err != nil {
		return "", nil, err
	}
	var res dispute.Resolution
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", nil, fmt.Errorf("%s: %w", f.resolution, err)
	}
	return target, &res, nil
}

// reportRejection prints a validation or transition failure and returns 1,
// or returns 2 for anything else.
func (e *cmdEnv) reportRejection(err error) int {
	var te *dispute.TransitionError
	var ve *validate.Error
	switch {
	case errors.As(err, &te):
		_, _ = fmt.Fprintf(e.stdout, "❌ %v\n", te)
		return 1
	case errors.As(err, &ve):
		_, _ = fmt.Fprintf(e.stdout, "❌ %s\n", ve.Issue)
		return 1
	case errors.Is(err, store.ErrNotFound):
		_, _ = fmt.Fprintf(e.stdout, "❌ %v\n", err)
		return 1
	default:
		return e.fail("%v", err)
	}
}

func runDisputeTransition(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("dispute transition", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)

	var (
		in string
		tf transitionFlags
	)
	cmd.StringVar(&in, "in", "-", "Path to dispute attestation JSON, - for stdin")
	tf.register(cmd)

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	target, res, err := tf.load()
	if err != nil {
		return env.fail("%v", err)
	}
	doc, _, err := readDoc(in)
	if err != nil {
		return env.fail("%v", err)
	}
	att, err := dispute.ValidateAttestation(doc)
	if err != nil {
		return env.reportRejection(err)
	}
	out, err := dispute.TransitionDisputeState(att, target, tf.reason, res)
	if err != nil {
		return env.reportRejection(err)
	}
	_ = writeJSON(env.stdout, out)
	return 0
}

func (e *cmdEnv) openStore(ctx context.Context) (store.DisputeStore, error) {
	s, err := store.Open(ctx, e.cfg.StoreDriver, e.cfg.StoreDSN)
	if err != nil {
		e.log.ErrorContext(ctx, "failed to open store", "backend", e.cfg.StoreDriver, "error", err)
		return nil, err
	}
	return s, nil
}

func runDisputePut(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("dispute put", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)
	var in string
	cmd.StringVar(&in, "in", "-", "Path to dispute attestation JSON, - for stdin")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	doc, _, err := readDoc(in)
	if err != nil {
		return env.fail("%v", err)
	}
	att, err := dispute.ValidateAttestation(doc)
	if err != nil {
		return env.reportRejection(err)
	}
	s, err := env.openStore(ctx)
	if err != nil {
		return env.fail("%v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Put(ctx, att); err != nil {
		env.log.ErrorContext(ctx, "failed to persist dispute", "dispute_id", att.Evidence.DisputeID, "backend", s.Name(), "error", err)
		return env.fail("%v", err)
	}
	env.log.InfoContext(ctx, "dispute stored", "dispute_id", att.Evidence.DisputeID, "backend", s.Name())
	_, _ = fmt.Fprintln(env.stdout, att.Evidence.DisputeID)
	return 0
}

func runDisputeGet(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("dispute get", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)
	var id string
	cmd.StringVar(&id, "id", "", "Dispute id (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if id == "" {
		return env.fail("--id is required")
	}

	ctx := context.Background()
	s, err := env.openStore(ctx)
	if err != nil {
		return env.fail("%v", err)
	}
	defer func() { _ = s.Close() }()

	att, err := s.Get(ctx, id)
	if err != nil {
		return env.reportRejection(err)
	}
	_ = writeJSON(env.stdout, att)
	return 0
}

func runDisputeList(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("dispute list", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)
	var (
		state string
		limit int
	)
	cmd.StringVar(&state, "state", "", "Only list disputes in this state")
	cmd.IntVar(&limit, "limit", store.DefaultListLimit, "Maximum number of disputes")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if state != "" && !dispute.State(state).Valid() {
		return env.fail("unknown state %q", state)
	}

	ctx := context.Background()
	s, err := env.openStore(ctx)
	if err != nil {
		return env.fail("%v", err)
	}
	defer func() { _ = s.Close() }()

	atts, err := s.List(ctx, dispute.State(state), limit)
	if err != nil {
		return env.fail("%v", err)
	}
	for _, a := range atts {
		_, _ = fmt.Fprintf(env.stdout, "%s\t%s\t%s\n", a.Evidence.DisputeID, a.Evidence.State, a.Evidence.DisputeType)
	}
	return 0
}

func runDisputeApply(env *cmdEnv, args []string) int {
	cmd := flag.NewFlagSet("dispute apply", flag.ContinueOnError)
	cmd.SetOutput(env.stderr)
	var (
		id string
		tf transitionFlags
	)
	cmd.StringVar(&id, "id", "", "Dispute id (REQUIRED)")
	tf.register(cmd)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if id == "" {
		return env.fail("--id is required")
	}
	target, res, err := tf.load()
	if err != nil {
		return env.fail("%v", err)
	}

	ctx := context.Background()
	s, err := env.openStore(ctx)
	if err != nil {
		return env.fail("%v", err)
	}
	defer func() { _ = s.Close() }()

	tr := store.NewTransitioner(s)
	tr.Logger = env.log
	out, err := tr.Apply(ctx, id, target, tf.reason, res)
	if err != nil {
		return env.reportRejection(err)
	}
	_ = writeJSON(env.stdout, out)
	return 0
}
