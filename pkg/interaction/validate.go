package interaction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/extension"
	"github.com/peacprotocol/peac/core/pkg/schema"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

var hex64Re = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Option configures validation.
type Option func(*options)

type options struct {
	kinds *validate.Vocabulary
}

// WithKinds replaces the kind registry. Registered kinds are exempt from the
// reserved-prefix rule and do not raise the unregistered-kind warning.
func WithKinds(v *validate.Vocabulary) Option {
	return func(o *options) { o.kinds = v }
}

type result = validate.Result[EvidenceV01]

func fail(code codes.Code, field, msg string, ws []validate.Issue) result {
	return validate.Fail[EvidenceV01](code, field, msg, ws)
}

// ValidateOrdered checks input in a fixed order and reports the first
// failure along with any warnings collected before it:
//
//	object                                  E_INTERACTION_INVALID_FORMAT
//	interaction_id, kind, started_at,
//	  executor.platform present             E_INTERACTION_MISSING_*
//	kind grammar, reserved prefix           E_INTERACTION_INVALID_KIND_FORMAT, E_INTERACTION_KIND_RESERVED
//	input/output digests                    E_INTERACTION_INVALID_DIGEST_ALG, E_INTERACTION_INVALID_DIGEST
//	completed_at >= started_at              E_INTERACTION_INVALID_TIMING
//	output requires result.status           E_INTERACTION_MISSING_RESULT
//	error status requires detail            E_INTERACTION_MISSING_ERROR_DETAIL
//	extension key grammar                   E_INTERACTION_INVALID_EXTENSION_KEY
//	tool.* needs tool, http.* and fs.*
//	  need resource.uri                     E_INTERACTION_MISSING_TARGET
//	schema                                  E_INTERACTION_INVALID_FORMAT
func ValidateOrdered(input any, opts ...Option) result {
	o := options{kinds: Kinds}
	for _, fn := range opts {
		fn(&o)
	}

	doc, err := schema.Normalize(input)
	if err != nil {
		return fail(codes.InteractionInvalidFormat, "", err.Error(), nil)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return fail(codes.InteractionInvalidFormat, "", "interaction evidence must be an object", nil)
	}

	if !nonEmptyString(obj["interaction_id"]) {
		return fail(codes.InteractionMissingID, "interaction_id", "interaction_id is required", nil)
	}
	if !nonEmptyString(obj["kind"]) {
		return fail(codes.InteractionMissingKind, "kind", "kind is required", nil)
	}
	if !nonEmptyString(obj["started_at"]) {
		return fail(codes.InteractionMissingStartedAt, "started_at", "started_at is required", nil)
	}
	executor, _ := obj["executor"].(map[string]any)
	if !nonEmptyString(executor["platform"]) {
		return fail(codes.InteractionMissingExecutor, "executor.platform", "executor.platform is required", nil)
	}

	var warnings []validate.Issue

	kind, err := ParseKind(obj["kind"].(string))
	if err != nil {
		return fail(codes.InteractionInvalidKindFormat, "kind", "kind must match ^[a-z][a-z0-9._:-]{0,126}[a-z0-9]$", nil)
	}
	registered := o.kinds.Known(string(kind))
	if kind.Reserved() && !registered {
		return fail(codes.InteractionKindReserved, "kind", fmt.Sprintf("kind %q uses a reserved prefix", kind), nil)
	}
	if !registered {
		warnings = validate.Warn(warnings, codes.WarnInteractionKindUnregistered, "kind",
			fmt.Sprintf("kind %q is well-formed but not registered", kind))
	}

	for _, side := range []string{"input", "output"} {
		raw, present := obj[side]
		if !present {
			continue
		}
		issue, warn := checkPayloadDigest(side, raw)
		if issue != nil {
			return fail(issue.Code, issue.Field, issue.Message, warnings)
		}
		if warn != nil {
			warnings = append(warnings, *warn)
		}
	}

	if completedRaw, ok := obj["completed_at"].(string); ok {
		started, err1 := time.Parse(time.RFC3339Nano, obj["started_at"].(string))
		completed, err2 := time.Parse(time.RFC3339Nano, completedRaw)
		if err1 == nil && err2 == nil && completed.Before(started) {
			return fail(codes.InteractionInvalidTiming, "completed_at", "completed_at precedes started_at", warnings)
		}
	}

	res, _ := obj["result"].(map[string]any)
	if _, hasOutput := obj["output"]; hasOutput {
		if _, hasStatus := res["status"]; !hasStatus {
			return fail(codes.InteractionMissingResult, "result.status", "output requires result.status", warnings)
		}
	}
	if res["status"] == "error" {
		ext, _ := obj["extensions"].(map[string]any)
		if !nonEmptyString(res["error_code"]) && len(ext) == 0 {
			return fail(codes.InteractionMissingErrorDetail, "result.error_code",
				"error status requires error_code or extensions", warnings)
		}
	}

	if raw, present := obj["extensions"]; present {
		ext, ok := raw.(map[string]any)
		if !ok {
			return fail(codes.InteractionInvalidFormat, "extensions", "extensions must be an object", warnings)
		}
		if key, bad := extension.Map(ext).FirstInvalidKey(); bad {
			return fail(codes.InteractionInvalidExtension, "extensions",
				fmt.Sprintf("extension key %q is not namespaced", key), warnings)
		}
	}

	_, hasTool := obj["tool"].(map[string]any)
	resource, hasResource := obj["resource"].(map[string]any)
	switch {
	case kind.NeedsTool():
		if !hasTool {
			return fail(codes.InteractionMissingTarget, "tool", fmt.Sprintf("kind %q requires tool", kind), warnings)
		}
	case kind.NeedsResource():
		if !nonEmptyString(resource["uri"]) {
			return fail(codes.InteractionMissingTarget, "resource.uri", fmt.Sprintf("kind %q requires resource.uri", kind), warnings)
		}
	default:
		if !hasTool && !hasResource {
			warnings = validate.Warn(warnings, codes.WarnInteractionMissingTarget, "",
				"neither tool nor resource is present")
		}
	}

	if f := schema.Check(schema.InteractionEvidence, obj); f != nil {
		return fail(codes.InteractionInvalidFormat, f.Field, f.Message, warnings)
	}

	var ev EvidenceV01
	raw, _ := json.Marshal(obj)
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fail(codes.InteractionInvalidFormat, "", err.Error(), warnings)
	}
	return validate.OK(&ev, warnings)
}

// Validate is the throwing form of ValidateOrdered.
func Validate(input any, opts ...Option) (*EvidenceV01, error) {
	return ValidateOrdered(input, opts...).Unwrap()
}

// ValidateCompat is the warnings-free form of ValidateOrdered.
func ValidateCompat(input any, opts ...Option) validate.Compat {
	return ValidateOrdered(input, opts...).Compat()
}

// FromExtensions finds and validates interaction evidence in a receipt's
// extensions. ok is false when none is present.
func FromExtensions(ext extension.Map, opts ...Option) (res result, ok bool) {
	_, v, found := ext.Lookup(ExtensionKey)
	if !found {
		return result{}, false
	}
	return ValidateOrdered(v, opts...), true
}

// checkPayloadDigest validates the digest of an input or output payload.
func checkPayloadDigest(side string, raw any) (issue, warning *validate.Issue) {
	field := side + ".digest"
	payload, ok := raw.(map[string]any)
	if !ok {
		return &validate.Issue{Code: codes.InteractionInvalidFormat, Field: side, Message: side + " must be an object"}, nil
	}
	d, ok := payload["digest"].(map[string]any)
	if !ok {
		return &validate.Issue{Code: codes.InteractionInvalidDigest, Field: field, Message: "digest is required"}, nil
	}

	alg, _ := d["alg"].(string)
	if _, known := truncLimits[alg]; !known && alg != AlgSHA256 {
		return &validate.Issue{Code: codes.InteractionInvalidDigestAlg, Field: field + ".alg",
			Message: fmt.Sprintf("unsupported digest algorithm %q", alg)}, nil
	}
	if v, _ := d["value"].(string); !hex64Re.MatchString(v) {
		return &validate.Issue{Code: codes.InteractionInvalidDigest, Field: field + ".value",
			Message: "digest value must be 64 lowercase hex characters"}, nil
	}
	n, ok := d["bytes"].(json.Number)
	size, err := n.Int64()
	if !ok || err != nil || size < 0 {
		return &validate.Issue{Code: codes.InteractionInvalidDigest, Field: field + ".bytes",
			Message: "digest bytes must be a non-negative integer"}, nil
	}

	if limit, truncated := truncLimits[alg]; truncated && size <= limit {
		return nil, &validate.Issue{Code: codes.WarnInteractionDigestTruncMismatch, Field: field + ".bytes",
			Message: fmt.Sprintf("%s digest over %d bytes, which needs no truncation", alg, size)}
	}
	return nil, nil
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}
