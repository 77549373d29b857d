// Package receipt models the two receipt variants and parses raw receipts
// into them.
package receipt

import (
	"github.com/peacprotocol/peac/core/pkg/extension"
)

// Variant discriminates receipt shapes.
type Variant string

const (
	VariantCommerce    Variant = "commerce"
	VariantAttestation Variant = "attestation"
)

// Receipt is implemented only by *Commerce and *Attestation.
type Receipt interface {
	Variant() Variant
	ReceiptID() string
	Ext() extension.Map
	sealed()
}

// Subject identifies what a receipt is about.
type Subject struct {
	URI string `json:"uri"`
}

// Payment is the rail-level payment record. Evidence is opaque rail proof
// data and never part of the semantic claim.
type Payment struct {
	Rail           string `json:"rail"`
	Reference      string `json:"reference"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Asset          string `json:"asset"`
	Env            string `json:"env"`
	Network        string `json:"network,omitempty"`
	Aggregator     string `json:"aggregator,omitempty"`
	Routing        string `json:"routing,omitempty"`
	FacilitatorRef string `json:"facilitator_ref,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Evidence       any    `json:"evidence,omitempty"`
}

// ControlStep is one policy engine's verdict in a control chain.
type ControlStep struct {
	Engine      string `json:"engine"`
	Result      string `json:"result"`
	PolicyID    string `json:"policy_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
	Version     string `json:"version,omitempty"`
	Purpose     string `json:"purpose,omitempty"`
	Scope       any    `json:"scope,omitempty"`
	Limits      any    `json:"limits,omitempty"`
}

// Control is the policy chain and the combined decision.
type Control struct {
	Chain    []ControlStep `json:"chain"`
	Decision string        `json:"decision"`
}

// Commerce is a paid-access receipt.
type Commerce struct {
	Issuer     string        `json:"iss"`
	Audience   string        `json:"aud"`
	IssuedAt   int64         `json:"iat"`
	ID         string        `json:"rid"`
	Expiry     *int64        `json:"exp,omitempty"`
	Amount     int64         `json:"amt"`
	Currency   string        `json:"cur"`
	Subject    *Subject      `json:"subject,omitempty"`
	Payment    Payment       `json:"payment"`
	Control    *Control      `json:"control,omitempty"`
	Extensions extension.Map `json:"extensions,omitempty"`
}

func (*Commerce) Variant() Variant     { return VariantCommerce }
func (c *Commerce) ReceiptID() string  { return c.ID }
func (c *Commerce) Ext() extension.Map { return c.Extensions }
func (*Commerce) sealed()              {}

// Attestation is a receipt about a subject with no payment.
type Attestation struct {
	Issuer     string        `json:"iss"`
	Audience   string        `json:"aud"`
	IssuedAt   int64         `json:"iat"`
	ID         string        `json:"rid"`
	Expiry     *int64        `json:"exp,omitempty"`
	Sub        string        `json:"sub"`
	Extensions extension.Map `json:"extensions,omitempty"`
}

func (*Attestation) Variant() Variant     { return VariantAttestation }
func (a *Attestation) ReceiptID() string  { return a.ID }
func (a *Attestation) Ext() extension.Map { return a.Extensions }
func (*Attestation) sealed()              {}
