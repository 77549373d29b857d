package receipt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/evidence"
	"github.com/peacprotocol/peac/core/pkg/schema"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// ErrUnknownVariant matches parse failures where the variant cannot be
// determined.
var ErrUnknownVariant = errors.New("receipt: unknown variant")

// ParseError is returned by Parse. It carries the stable code.
type ParseError struct {
	validate.Issue
}

func (e *ParseError) Error() string { return "receipt: " + e.Issue.String() }

// Is lets callers match variant failures with errors.Is(err, ErrUnknownVariant).
func (e *ParseError) Is(target error) bool {
	return target == ErrUnknownVariant &&
		(e.Code == codes.ReceiptVariantUnknown || e.Code == codes.ReceiptVariantAmbiguous)
}

func fail(code codes.Code, field, msg string) error {
	return &ParseError{validate.Issue{Code: code, Field: field, Message: msg}}
}

// Parse decodes a receipt with default evidence limits.
func Parse(raw []byte) (Receipt, error) {
	return ParseWithLimits(raw, evidence.DefaultLimits())
}

// ParseWithLimits decodes and checks a receipt. Checks run in order:
// JSON object, variant discriminant, payment evidence limits, schema.
func ParseWithLimits(raw []byte, limits evidence.Limits) (Receipt, error) {
	doc, err := schema.Decode(raw)
	if err != nil {
		return nil, fail(codes.ReceiptInvalidFormat, "", "invalid JSON: "+err.Error())
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fail(codes.ReceiptInvalidFormat, "", "receipt must be a JSON object")
	}

	_, hasPayment := obj["payment"]
	_, hasSub := obj["sub"]
	switch {
	case hasPayment && hasSub:
		return nil, fail(codes.ReceiptVariantAmbiguous, "", "receipt has both payment and sub")
	case !hasPayment && !hasSub:
		return nil, fail(codes.ReceiptVariantUnknown, "", "receipt has neither payment nor sub")
	}

	if hasPayment {
		if p, ok := obj["payment"].(map[string]any); ok {
			if ev, ok := p["evidence"]; ok {
				if err := evidence.CheckValue(ev, limits); err != nil {
					field := "payment.evidence"
					var le *evidence.LimitError
					if errors.As(err, &le) && le.Path != "" {
						field = joinField(field, le.Path)
					}
					return nil, fail(codes.ReceiptEvidenceLimit, field, err.Error())
				}
			}
		}
		if f := schema.Check(schema.CommerceReceipt, obj); f != nil {
			return nil, fail(codes.ReceiptInvalidFormat, f.Field, f.Message)
		}
		var c Commerce
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fail(codes.ReceiptInvalidFormat, "", fmt.Sprintf("decode commerce receipt: %v", err))
		}
		return &c, nil
	}

	if f := schema.Check(schema.AttestationReceipt, obj); f != nil {
		return nil, fail(codes.ReceiptInvalidFormat, f.Field, f.Message)
	}
	var a Attestation
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fail(codes.ReceiptInvalidFormat, "", fmt.Sprintf("decode attestation receipt: %v", err))
	}
	return &a, nil
}

func joinField(prefix, path string) string {
	if path[0] == '[' {
		return prefix + path
	}
	return prefix + "." + path
}
