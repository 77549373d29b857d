package receipt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commerceFixture(ev any) *Commerce {
	return &Commerce{
		Issuer:   "https://publisher.example",
		Audience: "https://agent.example",
		IssuedAt: 1700000000,
		ID:       "rcpt_01",
		Amount:   1000,
		Currency: "USD",
		Payment: Payment{
			Rail:      "stripe",
			Reference: "cs_test_123",
			Amount:    1000,
			Currency:  "USD",
			Asset:     "USD",
			Env:       "test",
			Evidence:  ev,
		},
	}
}

func TestCoreClaimsEqual_IgnoresRailEvidence(t *testing.T) {
	a := commerceFixture(map[string]any{"payment_intent": "pi_123"})
	b := commerceFixture(map[string]any{"different": "evidence"})

	eq, err := CoreClaimsEqual(a, b)
	require.NoError(t, err)
	assert.True(t, eq)

	ca, err := CanonicalCoreClaims(a)
	require.NoError(t, err)
	assert.NotContains(t, string(ca), "evidence")
	assert.NotContains(t, string(ca), "pi_123")
}

func TestCoreClaimsEqual_DetectsCoreDifference(t *testing.T) {
	a := commerceFixture(nil)
	b := commerceFixture(nil)
	b.Payment.Reference = "cs_test_456"

	eq, err := CoreClaimsEqual(a, b)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestToCoreClaims_DropsFacilitatorFields(t *testing.T) {
	c := commerceFixture(nil)
	c.Payment.FacilitatorRef = "fac_1"
	c.Payment.IdempotencyKey = "idem_1"
	c.Payment.Network = "base"

	out, err := CanonicalCoreClaims(c)
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "fac_1")
	assert.NotContains(t, s, "idem_1")
	assert.Contains(t, s, `"network":"base"`)
}

func withControl(decision string, steps ...ControlStep) *Commerce {
	c := commerceFixture(nil)
	c.Control = &Control{Chain: steps, Decision: decision}
	return c
}

func TestToCoreClaims_ControlMetadataIrrelevant(t *testing.T) {
	a := withControl("allow",
		ControlStep{Engine: "opa", Result: "allow", PolicyID: "p1", Reason: "ok", Version: "1"},
		ControlStep{Engine: "tollbit", Result: "allow", Limits: map[string]any{"rps": 5}},
	)
	b := withControl("allow",
		ControlStep{Engine: "opa", Result: "allow", PolicyID: "p2", Purpose: "train", Scope: []any{"a"}},
		ControlStep{Engine: "tollbit", Result: "allow", EvidenceRef: "ev://x"},
	)
	eq, err := CoreClaimsEqual(a, b)
	require.NoError(t, err)
	assert.True(t, eq)

	out, err := CanonicalCoreClaims(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"control":{"chain":[{"engine":"opa","result":"allow"},{"engine":"tollbit","result":"allow"}],"decision":"allow"}`)
}

func TestToCoreClaims_ControlVerdictMatters(t *testing.T) {
	base := withControl("allow", ControlStep{Engine: "opa", Result: "allow"})

	otherDecision := withControl("deny", ControlStep{Engine: "opa", Result: "allow"})
	eq, err := CoreClaimsEqual(base, otherDecision)
	require.NoError(t, err)
	assert.False(t, eq)

	otherResult := withControl("allow", ControlStep{Engine: "opa", Result: "review"})
	eq, err = CoreClaimsEqual(base, otherResult)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestToCoreClaims_Attestation(t *testing.T) {
	exp := int64(1800000000)
	a := &Attestation{
		Issuer:   "https://issuer.example",
		Audience: "https://verifier.example",
		IssuedAt: 1700000000,
		ID:       "rcpt_02",
		Expiry:   &exp,
		Sub:      "https://agent.example/bot",
	}
	cc := ToCoreClaims(a)
	require.NotNil(t, cc.Subject)
	assert.Equal(t, "https://agent.example/bot", cc.Subject.URI)
	assert.Nil(t, cc.Payment)
	assert.Nil(t, cc.Control)
	assert.Nil(t, cc.Amt)
	require.NotNil(t, cc.Exp)
	assert.Equal(t, exp, *cc.Exp)

	out, err := CanonicalCoreClaims(a)
	require.NoError(t, err)
	assert.Equal(t,
		`{"aud":"https://verifier.example","exp":1800000000,"iat":1700000000,"iss":"https://issuer.example","rid":"rcpt_02","subject":{"uri":"https://agent.example/bot"}}`,
		string(out))
}

func TestToCoreClaims_OptionalFieldsOnlyWhenPresent(t *testing.T) {
	out, err := CanonicalCoreClaims(commerceFixture(nil))
	require.NoError(t, err)
	s := string(out)
	assert.False(t, strings.Contains(s, `"exp"`))
	assert.False(t, strings.Contains(s, `"subject"`))
	assert.False(t, strings.Contains(s, `"control"`))
	assert.True(t, strings.HasPrefix(s, `{"amt":1000,"aud":`))
}

func TestToCoreClaims_DoesNotMutateInput(t *testing.T) {
	c := withControl("allow", ControlStep{Engine: "opa", Result: "allow", PolicyID: "p1"})
	c.Payment.Evidence = map[string]any{"preimage": "abc"}
	before, err := json.Marshal(c)
	require.NoError(t, err)

	cc := ToCoreClaims(c)
	cc.Control.Chain[0].Engine = "changed"
	*cc.Amt = 1

	after, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestCanonicalCoreClaims_Idempotent(t *testing.T) {
	c := withControl("allow", ControlStep{Engine: "opa", Result: "allow"})
	c.Subject = &Subject{URI: "https://publisher.example/article"}
	first, err := CanonicalCoreClaims(c)
	require.NoError(t, err)

	var cc CoreClaims
	require.NoError(t, json.Unmarshal(first, &cc))
	again := &Commerce{
		Issuer: cc.Iss, Audience: cc.Aud, IssuedAt: cc.Iat, ID: cc.Rid,
		Amount: *cc.Amt, Currency: cc.Cur, Subject: cc.Subject,
		Payment: Payment{
			Rail: cc.Payment.Rail, Reference: cc.Payment.Reference, Amount: cc.Payment.Amount,
			Currency: cc.Payment.Currency, Asset: cc.Payment.Asset, Env: cc.Payment.Env,
		},
		Control: &Control{
			Chain:    []ControlStep{{Engine: cc.Control.Chain[0].Engine, Result: cc.Control.Chain[0].Result}},
			Decision: cc.Control.Decision,
		},
	}
	second, err := CanonicalCoreClaims(again)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCoreClaimsDigest(t *testing.T) {
	a := commerceFixture(map[string]any{"payment_intent": "pi_123"})
	b := commerceFixture(map[string]any{"different": "evidence"})
	da, err := CoreClaimsDigest(a)
	require.NoError(t, err)
	db, err := CoreClaimsDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Regexp(t, `^sha256:[a-f0-9]{64}$`, da)
}

func TestToCoreClaims_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { ToCoreClaims(nil) })
}
