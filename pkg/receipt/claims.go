package receipt

import (
	"fmt"

	"github.com/peacprotocol/peac/core/pkg/canonicalize"
)

// CoreClaims is the projection of a receipt that decides semantic equality.
// Rail evidence and control metadata beyond engine/result/decision are not
// part of it.
type CoreClaims struct {
	Iss     string       `json:"iss"`
	Aud     string       `json:"aud"`
	Iat     int64        `json:"iat"`
	Rid     string       `json:"rid"`
	Exp     *int64       `json:"exp,omitempty"`
	Amt     *int64       `json:"amt,omitempty"`
	Cur     string       `json:"cur,omitempty"`
	Subject *Subject     `json:"subject,omitempty"`
	Payment *CorePayment `json:"payment,omitempty"`
	Control *CoreControl `json:"control,omitempty"`
}

// CorePayment keeps only the rail-identifying payment fields.
type CorePayment struct {
	Rail       string `json:"rail"`
	Reference  string `json:"reference"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Asset      string `json:"asset"`
	Env        string `json:"env"`
	Network    string `json:"network,omitempty"`
	Aggregator string `json:"aggregator,omitempty"`
	Routing    string `json:"routing,omitempty"`
}

// CoreControlStep is a chain entry reduced to its verdict.
type CoreControlStep struct {
	Engine string `json:"engine"`
	Result string `json:"result"`
}

// CoreControl is the reduced control block.
type CoreControl struct {
	Chain    []CoreControlStep `json:"chain"`
	Decision string            `json:"decision"`
}

// ToCoreClaims projects r. The input is never modified.
func ToCoreClaims(r Receipt) CoreClaims {
	switch v := r.(type) {
	case *Commerce:
		amt := v.Amount
		cc := CoreClaims{
			Iss: v.Issuer,
			Aud: v.Audience,
			Iat: v.IssuedAt,
			Rid: v.ID,
			Exp: copyInt(v.Expiry),
			Amt: &amt,
			Cur: v.Currency,
			Payment: &CorePayment{
				Rail:       v.Payment.Rail,
				Reference:  v.Payment.Reference,
				Amount:     v.Payment.Amount,
				Currency:   v.Payment.Currency,
				Asset:      v.Payment.Asset,
				Env:        v.Payment.Env,
				Network:    v.Payment.Network,
				Aggregator: v.Payment.Aggregator,
				Routing:    v.Payment.Routing,
			},
		}
		if v.Subject != nil {
			cc.Subject = &Subject{URI: v.Subject.URI}
		}
		if v.Control != nil {
			ctl := &CoreControl{
				Chain:    make([]CoreControlStep, len(v.Control.Chain)),
				Decision: v.Control.Decision,
			}
			for i, s := range v.Control.Chain {
				ctl.Chain[i] = CoreControlStep{Engine: s.Engine, Result: s.Result}
			}
			cc.Control = ctl
		}
		return cc
	case *Attestation:
		return CoreClaims{
			Iss:     v.Issuer,
			Aud:     v.Audience,
			Iat:     v.IssuedAt,
			Rid:     v.ID,
			Exp:     copyInt(v.Expiry),
			Subject: &Subject{URI: v.Sub},
		}
	default:
		panic(fmt.Sprintf("receipt: unhandled variant %T", r))
	}
}

func copyInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CanonicalCoreClaims returns the JCS bytes of r's core claims.
func CanonicalCoreClaims(r Receipt) ([]byte, error) {
	return canonicalize.JCS(ToCoreClaims(r))
}

// CoreClaimsEqual compares the canonical core claims of a and b.
func CoreClaimsEqual(a, b Receipt) (bool, error) {
	ca, err := CanonicalCoreClaims(a)
	if err != nil {
		return false, err
	}
	cb, err := CanonicalCoreClaims(b)
	if err != nil {
		return false, err
	}
	return string(ca) == string(cb), nil
}

// CoreClaimsDigest returns "sha256:<hex>" over the canonical core claims.
func CoreClaimsDigest(r Receipt) (string, error) {
	b, err := CanonicalCoreClaims(r)
	if err != nil {
		return "", err
	}
	return canonicalize.DigestPrefix + canonicalize.HashBytes(b), nil
}
