package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// Parse decodes a policy document. Input starting with '{' is read as JSON,
// anything else as YAML.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, invalid(codes.PolicyInvalid, "", "invalid JSON: "+err.Error())
		}
		return &doc, nil
	}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, invalid(codes.PolicyInvalid, "", "invalid YAML: "+err.Error())
	}
	return &doc, nil
}

// LoadFile reads and parses a policy file.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(raw)
}

func invalid(code codes.Code, field, msg string) *validate.Error {
	return &validate.Error{Issue: validate.Issue{Code: code, Field: field, Message: msg}}
}

// Validate checks a document and returns the first problem as a
// *validate.Error. Checks run in order: version, rules, each rule, defaults,
// then rule conditions.
func Validate(doc *Document) error {
	if err := validateShape(doc); err != nil {
		return err
	}
	_, err := compileConditions(doc)
	return err
}

func validateShape(doc *Document) error {
	if doc == nil {
		return invalid(codes.PolicyInvalid, "", "policy is nil")
	}
	if doc.Version == "" {
		return invalid(codes.PolicyInvalid, "version", "version is required")
	}
	if doc.Version != Version {
		return invalid(codes.PolicyInvalidVersion, "version", fmt.Sprintf("unsupported version %s, expected %s", doc.Version, Version))
	}
	if doc.Rules == nil {
		return invalid(codes.PolicyInvalid, "rules", "rules is required")
	}
	for i := range doc.Rules {
		if err := validateRule(&doc.Rules[i], fmt.Sprintf("rules[%d]", i)); err != nil {
			return err
		}
	}
	if doc.Defaults != nil {
		if err := validateDecision(doc.Defaults.Decision, "defaults.decision"); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(r *Rule, prefix string) error {
	if r.Name == "" {
		return invalid(codes.PolicyInvalid, prefix+".name", "rule name is required")
	}
	if err := validateDecision(r.Decision, prefix+".decision"); err != nil {
		return err
	}
	if r.Subject != nil {
		switch r.Subject.Type {
		case "", Human, Agent, Org:
		default:
			return invalid(codes.PolicyInvalidEnum, prefix+".subject.type", fmt.Sprintf("unknown subject type %q", r.Subject.Type))
		}
	}
	for i, p := range r.Purpose {
		switch p {
		case PurposeCrawl, PurposeIndex, PurposeTrain, PurposeInference, PurposeAIInput, PurposeAIIndex, PurposeSearch:
		default:
			return invalid(codes.PolicyInvalidEnum, fmt.Sprintf("%s.purpose[%d]", prefix, i), fmt.Sprintf("unknown purpose %q", p))
		}
	}
	for i, m := range r.LicensingMode {
		switch m {
		case LicensingSubscription, LicensingPayPerInference, LicensingPayPerCrawl:
		default:
			return invalid(codes.PolicyInvalidEnum, fmt.Sprintf("%s.licensing_mode[%d]", prefix, i), fmt.Sprintf("unknown licensing mode %q", m))
		}
	}
	return nil
}

func validateDecision(d Decision, field string) error {
	switch d {
	case Allow, Deny, Review:
		return nil
	case "":
		return invalid(codes.PolicyInvalid, field, "decision is required")
	default:
		return invalid(codes.PolicyInvalid, field, fmt.Sprintf("invalid decision %q, must be allow, deny or review", d))
	}
}
