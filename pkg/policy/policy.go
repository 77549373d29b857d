// Package policy evaluates PEAC policy documents.
//
// Rules are checked in order and the first rule whose constraints all match
// decides. A rule may carry a CEL condition in "when" on top of the subject,
// purpose and licensing matchers. The verdict is reported as a control chain
// step so it can be embedded in a receipt.
package policy

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Version is the only supported policy format.
const Version = "peac-policy/0.1"

// EngineName identifies this evaluator in a control chain.
const EngineName = "peac-policy"

// ReasonNilPolicy is the reason given when there is no policy to evaluate.
const ReasonNilPolicy = "nil policy"

// Decision is a policy outcome.
type Decision string

const (
	Allow  Decision = "allow"
	Deny   Decision = "deny"
	Review Decision = "review"
)

// SubjectType classifies the requester.
type SubjectType string

const (
	Human SubjectType = "human"
	Agent SubjectType = "agent"
	Org   SubjectType = "org"
)

// Purpose is the declared use of the accessed content.
type Purpose string

const (
	PurposeCrawl     Purpose = "crawl"
	PurposeIndex     Purpose = "index"
	PurposeTrain     Purpose = "train"
	PurposeInference Purpose = "inference"
	PurposeAIInput   Purpose = "ai_input"
	PurposeAIIndex   Purpose = "ai_index"
	PurposeSearch    Purpose = "search"
)

// LicensingMode is the commercial arrangement of a request.
type LicensingMode string

const (
	LicensingSubscription    LicensingMode = "subscription"
	LicensingPayPerInference LicensingMode = "pay_per_inference"
	LicensingPayPerCrawl     LicensingMode = "pay_per_crawl"
)

// Document is a policy as authored.
type Document struct {
	Version  string    `json:"version" yaml:"version"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Defaults *Defaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Rules    []Rule    `json:"rules" yaml:"rules"`
}

// Defaults applies when no rule matches. Without defaults the outcome is deny.
type Defaults struct {
	Decision Decision `json:"decision" yaml:"decision"`
	Reason   string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Rule matches when every constraint it sets matches. When is a CEL
// expression over subject, purpose, licensing_mode and attrs.
type Rule struct {
	Name          string          `json:"name" yaml:"name"`
	Subject       *SubjectMatcher `json:"subject,omitempty" yaml:"subject,omitempty"`
	Purpose       Purposes        `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	LicensingMode LicensingModes  `json:"licensing_mode,omitempty" yaml:"licensing_mode,omitempty"`
	When          string          `json:"when,omitempty" yaml:"when,omitempty"`
	Decision      Decision        `json:"decision" yaml:"decision"`
	Reason        string          `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// SubjectMatcher constrains the requester. ID may end in * for a prefix match.
type SubjectMatcher struct {
	Type   SubjectType `json:"type,omitempty" yaml:"type,omitempty"`
	Labels []string    `json:"labels,omitempty" yaml:"labels,omitempty"`
	ID     string      `json:"id,omitempty" yaml:"id,omitempty"`
}

// Subject is the requester being evaluated.
type Subject struct {
	Type   SubjectType `json:"type,omitempty"`
	Labels []string    `json:"labels,omitempty"`
	ID     string      `json:"id,omitempty"`
}

// Context is one access request.
type Context struct {
	Subject       *Subject       `json:"subject,omitempty"`
	Purpose       Purpose        `json:"purpose,omitempty"`
	LicensingMode LicensingMode  `json:"licensing_mode,omitempty"`
	Attributes    map[string]any `json:"attrs,omitempty"`
}

// Result is the outcome of an evaluation.
type Result struct {
	Decision    Decision `json:"decision"`
	MatchedRule string   `json:"matched_rule,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	IsDefault   bool     `json:"is_default"`
}

// Purposes accepts a single purpose or a list.
type Purposes []Purpose

func (p *Purposes) UnmarshalJSON(data []byte) error {
	var arr []Purpose
	if err := json.Unmarshal(data, &arr); err == nil {
		*p = arr
		return nil
	}
	var one Purpose
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*p = Purposes{one}
	return nil
}

func (p Purposes) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(p[0])
	}
	return json.Marshal([]Purpose(p))
}

func (p *Purposes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var one Purpose
		if err := value.Decode(&one); err != nil {
			return err
		}
		*p = Purposes{one}
		return nil
	}
	var arr []Purpose
	if err := value.Decode(&arr); err != nil {
		return err
	}
	*p = arr
	return nil
}

// LicensingModes accepts a single mode or a list.
type LicensingModes []LicensingMode

func (m *LicensingModes) UnmarshalJSON(data []byte) error {
	var arr []LicensingMode
	if err := json.Unmarshal(data, &arr); err == nil {
		*m = arr
		return nil
	}
	var one LicensingMode
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*m = LicensingModes{one}
	return nil
}

func (m LicensingModes) MarshalJSON() ([]byte, error) {
	if len(m) == 1 {
		return json.Marshal(m[0])
	}
	return json.Marshal([]LicensingMode(m))
}

func (m *LicensingModes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var one LicensingMode
		if err := value.Decode(&one); err != nil {
			return err
		}
		*m = LicensingModes{one}
		return nil
	}
	var arr []LicensingMode
	if err := value.Decode(&arr); err != nil {
		return err
	}
	*m = arr
	return nil
}
