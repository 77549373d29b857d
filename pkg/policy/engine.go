package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/receipt"
)

var (
	envOnce sync.Once
	celEnv  *cel.Env
	envErr  error
)

func environment() (*cel.Env, error) {
	envOnce.Do(func() {
		celEnv, envErr = cel.NewEnv(
			cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("purpose", cel.StringType),
			cel.Variable("licensing_mode", cel.StringType),
			cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
			cel.CrossTypeNumericComparisons(true),
		)
		if envErr != nil {
			envErr = fmt.Errorf("policy: create CEL environment: %w", envErr)
		}
	})
	return celEnv, envErr
}

// compileConditions returns one program per rule, nil where the rule has no
// condition.
func compileConditions(doc *Document) ([]cel.Program, error) {
	env, err := environment()
	if err != nil {
		return nil, err
	}
	progs := make([]cel.Program, len(doc.Rules))
	for i, r := range doc.Rules {
		if strings.TrimSpace(r.When) == "" {
			continue
		}
		field := fmt.Sprintf("rules[%d].when", i)
		ast, issues := env.Compile(r.When)
		if issues != nil && issues.Err() != nil {
			return nil, invalid(codes.PolicyInvalidCondition, field, issues.Err().Error())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, invalid(codes.PolicyInvalidCondition, field, fmt.Sprintf("condition must be bool, got %s", ast.OutputType()))
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, invalid(codes.PolicyInvalidCondition, field, err.Error())
		}
		progs[i] = prg
	}
	return progs, nil
}

// Engine is a validated policy with its conditions compiled. It is safe for
// concurrent use.
type Engine struct {
	doc   *Document
	conds []cel.Program
}

// Compile validates doc and prepares it for evaluation.
func Compile(doc *Document) (*Engine, error) {
	if err := validateShape(doc); err != nil {
		return nil, err
	}
	conds, err := compileConditions(doc)
	if err != nil {
		return nil, err
	}
	return &Engine{doc: doc, conds: conds}, nil
}

// Document returns the compiled policy.
func (e *Engine) Document() *Document { return e.doc }

// Evaluate returns the decision of the first matching rule, or the defaults.
// A condition that fails at runtime stops evaluation with a deny result and
// the error.
func (e *Engine) Evaluate(ctx *Context) (Result, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	var activation map[string]any
	for i := range e.doc.Rules {
		r := &e.doc.Rules[i]
		if !ruleMatches(r, ctx) {
			continue
		}
		if prg := e.conds[i]; prg != nil {
			if activation == nil {
				activation = activationOf(ctx)
			}
			out, _, err := prg.Eval(activation)
			if err != nil {
				return Result{Decision: Deny, MatchedRule: r.Name, Reason: "condition error"}, fmt.Errorf("policy: rule %s: %w", r.Name, err)
			}
			ok, isBool := out.Value().(bool)
			if !isBool {
				return Result{Decision: Deny, MatchedRule: r.Name, Reason: "condition error"}, fmt.Errorf("policy: rule %s: condition is not bool", r.Name)
			}
			if !ok {
				continue
			}
		}
		return Result{Decision: r.Decision, MatchedRule: r.Name, Reason: r.Reason}, nil
	}

	res := Result{Decision: Deny, IsDefault: true}
	if e.doc.Defaults != nil {
		res.Decision = e.doc.Defaults.Decision
		res.Reason = e.doc.Defaults.Reason
	}
	return res, nil
}

// Evaluate compiles doc and evaluates ctx. A nil doc denies.
func Evaluate(doc *Document, ctx *Context) (Result, error) {
	if doc == nil {
		return Result{Decision: Deny, Reason: ReasonNilPolicy, IsDefault: true}, nil
	}
	e, err := Compile(doc)
	if err != nil {
		return Result{}, err
	}
	return e.Evaluate(ctx)
}

func activationOf(ctx *Context) map[string]any {
	subject := map[string]any{"type": "", "id": "", "labels": []string{}}
	if s := ctx.Subject; s != nil {
		subject["type"] = string(s.Type)
		subject["id"] = s.ID
		if s.Labels != nil {
			subject["labels"] = s.Labels
		}
	}
	attrs := ctx.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]any{
		"subject":        subject,
		"purpose":        string(ctx.Purpose),
		"licensing_mode": string(ctx.LicensingMode),
		"attrs":          attrs,
	}
}

func ruleMatches(r *Rule, ctx *Context) bool {
	if r.Subject != nil && !matchesSubject(ctx.Subject, r.Subject) {
		return false
	}
	if len(r.Purpose) > 0 && !contains(r.Purpose, ctx.Purpose) {
		return false
	}
	if len(r.LicensingMode) > 0 && !contains(r.LicensingMode, ctx.LicensingMode) {
		return false
	}
	return true
}

func matchesSubject(s *Subject, m *SubjectMatcher) bool {
	if s == nil {
		return m.Type == "" && len(m.Labels) == 0 && m.ID == ""
	}
	if m.Type != "" && s.Type != m.Type {
		return false
	}
	for _, want := range m.Labels {
		if !contains(s.Labels, want) {
			return false
		}
	}
	if m.ID != "" {
		if prefix, ok := strings.CutSuffix(m.ID, "*"); ok {
			return strings.HasPrefix(s.ID, prefix)
		}
		return s.ID == m.ID
	}
	return true
}

func contains[S ~[]E, E comparable](s S, v E) bool {
	var zero E
	if v == zero {
		return false
	}
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// ControlStep reports res as one entry of a receipt control chain.
func (e *Engine) ControlStep(res Result, ctx *Context) receipt.ControlStep {
	step := receipt.ControlStep{
		Engine:   EngineName,
		Result:   string(res.Decision),
		PolicyID: e.doc.Name,
		Reason:   res.Reason,
		Version:  e.doc.Version,
	}
	if ctx != nil {
		step.Purpose = string(ctx.Purpose)
	}
	return step
}

// Combine builds a control block from chain steps. Any deny denies, then any
// review requires review, otherwise the chain allows. An empty chain has no
// control block.
func Combine(steps ...receipt.ControlStep) *receipt.Control {
	if len(steps) == 0 {
		return nil
	}
	decision := Allow
	for _, s := range steps {
		switch Decision(s.Result) {
		case Deny:
			decision = Deny
		case Review:
			if decision != Deny {
				decision = Review
			}
		case Allow:
		default:
			decision = Deny
		}
	}
	return &receipt.Control{Chain: steps, Decision: string(decision)}
}
