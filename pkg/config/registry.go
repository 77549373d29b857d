package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/peacprotocol/peac/core/pkg/evidence"
	"github.com/peacprotocol/peac/core/pkg/interaction"
	"github.com/peacprotocol/peac/core/pkg/validate"
	"github.com/peacprotocol/peac/core/pkg/workflow"
)

// RegistryProfile extends the built-in vocabularies.
//
//	name: acme
//	interaction_kinds: [peac.audit.read, db.query]
//	workflow_frameworks: [haystack]
//	evidence_limits:
//	  max_depth: 16
type RegistryProfile struct {
	Name               string           `yaml:"name"`
	InteractionKinds   []string         `yaml:"interaction_kinds,omitempty"`
	WorkflowFrameworks []string         `yaml:"workflow_frameworks,omitempty"`
	EvidenceLimits     *evidence.Limits `yaml:"evidence_limits,omitempty"`
}

// Registry is the effective set of vocabularies and limits.
type Registry struct {
	Kinds      *validate.Vocabulary
	Frameworks *validate.Vocabulary
	Limits     evidence.Limits
}

// DefaultRegistry returns the built-in vocabularies and limits.
func DefaultRegistry() *Registry {
	return &Registry{
		Kinds:      interaction.Kinds,
		Frameworks: workflow.Frameworks,
		Limits:     evidence.DefaultLimits(),
	}
}

// LoadRegistryProfile reads and parses a registry profile.
func LoadRegistryProfile(path string) (*RegistryProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load registry profile: %w", err)
	}
	var p RegistryProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse registry profile %s: %w", path, err)
	}
	return &p, nil
}

// Apply extends the default registry with p. Entries that fail the kind or
// framework grammar are rejected.
func (p *RegistryProfile) Apply() (*Registry, error) {
	r := DefaultRegistry()
	kinds, err := r.Kinds.Extend(p.InteractionKinds...)
	if err != nil {
		return nil, fmt.Errorf("registry profile %q: interaction_kinds: %w", p.Name, err)
	}
	frameworks, err := r.Frameworks.Extend(p.WorkflowFrameworks...)
	if err != nil {
		return nil, fmt.Errorf("registry profile %q: workflow_frameworks: %w", p.Name, err)
	}
	r.Kinds, r.Frameworks = kinds, frameworks
	if p.EvidenceLimits != nil {
		r.Limits = p.EvidenceLimits.WithDefaults()
	}
	return r, nil
}

// LoadRegistry applies the profile named by c.RegistryFile, or returns the
// default registry when none is configured.
func (c *Config) LoadRegistry() (*Registry, error) {
	if c.RegistryFile == "" {
		return DefaultRegistry(), nil
	}
	p, err := LoadRegistryProfile(c.RegistryFile)
	if err != nil {
		return nil, err
	}
	return p.Apply()
}

// InteractionOptions configures interaction validation with r.
func (r *Registry) InteractionOptions() []interaction.Option {
	return []interaction.Option{interaction.WithKinds(r.Kinds)}
}

// WorkflowOptions configures workflow validation with r.
func (r *Registry) WorkflowOptions() []workflow.Option {
	return []workflow.Option{workflow.WithFrameworks(r.Frameworks)}
}
