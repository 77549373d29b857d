package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commerceReceipt = `{
	"iss":"https://publisher.example","aud":"https://agent.example","iat":1700000000,"rid":"rcpt_01",
	"amt":1000,"cur":"USD",
	"payment":{"rail":"stripe","reference":"cs_test_123","amount":1000,"currency":"USD","asset":"USD","env":"test",
		"evidence":{"payment_intent":"pi_123"},"facilitator_ref":"f_1"},
	"control":{"chain":[{"engine":"opa","result":"allow","policy_id":"p1"}],"decision":"allow"}
}`

const resolvedDispute = `{
	"type":"peac/dispute","issuer":"https://publisher.example","issued_at":"2026-01-10T00:00:00Z",
	"evidence":{
		"dispute_id":"dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3","dispute_type":"receipt_invalid",
		"target_ref":"rcpt_01","target_type":"receipt",
		"grounds":[{"code":"signature_invalid"}],
		"description":"Receipt signature fails verification",
		"state":"resolved",
		"resolution":{"outcome":"upheld","decided_at":"2026-01-20T00:00:00Z","decided_by":"https://arbiter.example","rationale":"bad kid"}
	}
}`

func setup(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"PEAC_LOG_LEVEL", "PEAC_LOG_FORMAT", "PEAC_STORE_DRIVER", "PEAC_STORE_DSN", "PEAC_REGISTRY_FILE"} {
		t.Setenv(k, "")
	}
	return t.TempDir()
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func run(args ...string) (int, string, string) {
	var out, errb bytes.Buffer
	code := Run(append([]string{"peac"}, args...), &out, &errb)
	return code, out.String(), errb.String()
}

func TestRun_Usage(t *testing.T) {
	setup(t)
	code, _, stderr := run()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "USAGE")

	code, stdout, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "canonicalize")

	code, _, stderr = run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")

	code, _, _ = run("canonicalize", "--bogus")
	assert.Equal(t, 2, code)
}

func TestRun_Canonicalize(t *testing.T) {
	dir := setup(t)
	in := write(t, dir, "doc.json", `{"b":2,"a":1.0,"c":"é"}`)

	code, stdout, _ := run("canonicalize", "--in", in)
	require.Equal(t, 0, code)
	assert.Equal(t, "{\"a\":1,\"b\":2,\"c\":\"é\"}\n", stdout)

	code, stdout, _ = run("canonicalize", "--in", in, "--hash")
	require.Equal(t, 0, code)
	assert.Regexp(t, `^sha256:[a-f0-9]{64}\n$`, stdout)

	stdin = strings.NewReader(`{"z":[3,2,1]}`)
	defer func() { stdin = os.Stdin }()
	code, stdout, _ = run("canonicalize")
	require.Equal(t, 0, code)
	assert.Equal(t, "{\"z\":[3,2,1]}\n", stdout)

	bad := write(t, dir, "bad.json", `{"a":`)
	code, _, _ = run("canonicalize", "--in", bad)
	assert.Equal(t, 2, code)
}

func TestRun_ClaimsAndEqual(t *testing.T) {
	dir := setup(t)
	a := write(t, dir, "a.json", commerceReceipt)
	b := write(t, dir, "b.json", strings.NewReplacer(
		`"payment_intent":"pi_123"`, `"payment_intent":"pi_999"`,
		`"policy_id":"p1"`, `"policy_id":"p2"`,
	).Replace(commerceReceipt))
	c := write(t, dir, "c.json", strings.Replace(commerceReceipt, `"amt":1000`, `"amt":1001`, 1))

	code, stdout, _ := run("claims", "--in", a)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `"rail":"stripe"`)
	assert.NotContains(t, stdout, "pi_123")
	assert.NotContains(t, stdout, "facilitator_ref")
	assert.NotContains(t, stdout, "policy_id")

	code, digestA, _ := run("claims", "--in", a, "--digest")
	require.Equal(t, 0, code)
	_, digestB, _ := run("claims", "--in", b, "--digest")
	assert.Equal(t, digestA, digestB)

	code, stdout, _ = run("equal", "--a", a, "--b", b)
	assert.Equal(t, 0, code)
	assert.Equal(t, "equal\n", stdout)

	code, stdout, _ = run("equal", "--a", a, "--b", c)
	assert.Equal(t, 1, code)
	assert.Equal(t, "different\n", stdout)

	code, _, _ = run("equal", "--a", a)
	assert.Equal(t, 2, code)

	neither := write(t, dir, "n.json", `{"iss":"i","aud":"a","iat":1,"rid":"r"}`)
	code, _, stderr := run("claims", "--in", neither)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "E_RECEIPT_VARIANT_UNKNOWN")
}

func TestRun_Validate(t *testing.T) {
	dir := setup(t)

	wf := write(t, dir, "wf.json", `{"workflow_id":"wf_01HZX5K3N7Q9R2S4T6V8W0Y1Z3","step_id":"step_01HZX5K3N7Q9R2S4T6V8W0Y1Z4","parent_step_ids":[],"framework":"haystack"}`)
	code, stdout, _ := run("validate", "workflow", "--in", wf)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "W_WORKFLOW_FRAMEWORK_UNREGISTERED")

	bad := write(t, dir, "bad.json", `{"workflow_id":"wf_short","step_id":"step_01HZX5K3N7Q9R2S4T6V8W0Y1Z4"}`)
	code, stdout, _ = run("validate", "workflow", "--in", bad, "--json")
	assert.Equal(t, 1, code)
	var rep report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.False(t, rep.Valid)
	assert.Equal(t, "E_WORKFLOW_ID_INVALID", string(rep.Error.Code))
	assert.Equal(t, "workflow_id", rep.Error.Field)

	ix := write(t, dir, "ix.json", `{"interaction_id":"ix_1","kind":"tool.call","executor":{"platform":"p"},"started_at":"2026-03-01T10:00:00Z"}`)
	code, stdout, _ = run("validate", "interaction", "--in", ix)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "E_INTERACTION_MISSING_TARGET")

	d := write(t, dir, "d.json", resolvedDispute)
	code, _, _ = run("validate", "dispute", "--in", d)
	assert.Equal(t, 0, code)

	r := write(t, dir, "r.json", commerceReceipt)
	code, _, _ = run("validate", "receipt", "--in", r)
	assert.Equal(t, 0, code)
	notJSON := write(t, dir, "nj.json", `nope`)
	code, stdout, _ = run("validate", "receipt", "--in", notJSON)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "E_RECEIPT_INVALID_FORMAT")

	code, _, _ = run("validate", "poem", "--in", r)
	assert.Equal(t, 2, code)
	code, _, _ = run("validate")
	assert.Equal(t, 2, code)
}

func TestRun_ValidateWithRegistryProfile(t *testing.T) {
	dir := setup(t)
	t.Setenv("PEAC_REGISTRY_FILE", write(t, dir, "reg.yaml", "workflow_frameworks: [haystack]\n"))

	wf := write(t, dir, "wf.json", `{"workflow_id":"wf_01HZX5K3N7Q9R2S4T6V8W0Y1Z3","step_id":"step_01HZX5K3N7Q9R2S4T6V8W0Y1Z4","framework":"haystack"}`)
	code, stdout, _ := run("validate", "workflow", "--in", wf)
	assert.Equal(t, 0, code)
	assert.NotContains(t, stdout, "W_WORKFLOW_FRAMEWORK_UNREGISTERED")
}

func TestRun_DisputeTransition(t *testing.T) {
	dir := setup(t)
	in := write(t, dir, "d.json", resolvedDispute)

	code, stdout, _ := run("dispute", "transition", "--in", in, "--to", "appealed", "--reason", "new evidence")
	require.Equal(t, 0, code)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	ev := out["evidence"].(map[string]any)
	assert.Equal(t, "appealed", ev["state"])
	assert.Equal(t, "new evidence", ev["state_reason"])
	assert.NotContains(t, ev, "resolution")

	code, stdout, _ = run("dispute", "transition", "--in", in, "--to", "escalated")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "INVALID_TRANSITION")

	code, _, _ = run("dispute", "transition", "--in", in, "--to", "limbo")
	assert.Equal(t, 2, code)
	code, _, _ = run("dispute", "nope")
	assert.Equal(t, 2, code)
}

func TestRun_DisputeStoreLifecycle(t *testing.T) {
	dir := setup(t)
	t.Setenv("PEAC_STORE_DRIVER", "sqlite")
	t.Setenv("PEAC_STORE_DSN", filepath.Join(dir, "peac.db"))
	t.Setenv("PEAC_LOG_FORMAT", "json")

	in := write(t, dir, "d.json", resolvedDispute)
	code, stdout, _ := run("dispute", "put", "--in", in)
	require.Equal(t, 0, code)
	assert.Equal(t, "dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3\n", stdout)

	code, stdout, _ = run("dispute", "list", "--state", "resolved")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3\tresolved\treceipt_invalid")

	code, _, stderr := run("dispute", "apply", "--id", "dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3", "--to", "appealed")
	require.Equal(t, 0, code)
	assert.Contains(t, stderr, `"msg":"dispute transitioned"`)
	assert.Contains(t, stderr, `"from":"resolved"`)

	code, stdout, _ = run("dispute", "get", "--id", "dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `"state": "appealed"`)

	code, stdout, _ = run("dispute", "apply", "--id", "dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3", "--to", "final")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "RESOLUTION_REQUIRED")

	res := write(t, dir, "res.json", `{"outcome":"dismissed","decided_at":"2026-02-01T00:00:00Z","decided_by":"https://arbiter.example","rationale":"appeal denied"}`)
	code, _, _ = run("dispute", "apply", "--id", "dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3", "--to", "final", "--resolution", res)
	assert.Equal(t, 0, code)

	code, _, _ = run("dispute", "get", "--id", "dsp_zzzzzzzzzzzzzzzzzzzzzzzz")
	assert.Equal(t, 1, code)
}

func TestRun_SignVerify(t *testing.T) {
	dir := setup(t)
	key := filepath.Join(dir, "key.json")
	pub := filepath.Join(dir, "jwks.json")

	code, stdout, _ := run("keygen", "--kid", "k1", "--out", key, "--pub", pub)
	require.Equal(t, 0, code)
	assert.Equal(t, "k1\n", stdout)

	doc := write(t, dir, "r.json", commerceReceipt)
	code, jws, _ := run("sign", "--key", key, "--in", doc)
	require.Equal(t, 0, code)
	jws = strings.TrimSpace(jws)
	assert.Contains(t, jws, "..")

	code, stdout, _ = run("verify", "--keys", pub, "--in", doc, "--jws", jws)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "kid k1")

	jwsFile := write(t, dir, "sig.jws", jws+"\n")
	code, _, _ = run("verify", "--keys", pub, "--in", doc, "--jws", "@"+jwsFile)
	assert.Equal(t, 0, code)

	tampered := write(t, dir, "t.json", strings.Replace(commerceReceipt, `"amt":1000`, `"amt":1001`, 1))
	code, stdout, _ = run("verify", "--keys", pub, "--in", tampered, "--jws", jws)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "invalid signature")

	code, _, _ = run("verify", "--keys", pub, "--in", doc)
	assert.Equal(t, 2, code)
}

func TestRun_Codes(t *testing.T) {
	setup(t)
	code, stdout, _ := run("codes")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "E_WORKFLOW_CONTEXT_INVALID")
	assert.Contains(t, stdout, "W_INTERACTION_MISSING_TARGET")

	code, stdout, _ = run("codes", "--json")
	require.Equal(t, 0, code)
	var reg struct {
		Codes []struct {
			Code string `json:"code"`
		} `json:"codes"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &reg))
	assert.NotEmpty(t, reg.Codes)
}

const crawlPolicy = `
version: peac-policy/0.1
name: crawl-terms
rules:
  - name: paid-crawl
    subject:
      type: agent
    purpose: crawl
    licensing_mode: pay_per_crawl
    when: attrs.region == "eu"
    decision: allow
    reason: licensed crawler
`

func TestRun_Policy(t *testing.T) {
	dir := setup(t)
	pol := write(t, dir, "policy.yaml", crawlPolicy)

	code, stdout, _ := run("policy", "validate", "--policy", pol)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "policy valid")

	ctx := write(t, dir, "ctx.json", `{"subject":{"type":"agent","id":"bot:1"},"purpose":"crawl","licensing_mode":"pay_per_crawl","attrs":{"region":"eu"}}`)
	code, stdout, _ = run("policy", "eval", "--policy", pol, "--context", ctx, "--json")
	require.Equal(t, 0, code)
	var out struct {
		Result struct {
			Decision    string `json:"decision"`
			MatchedRule string `json:"matched_rule"`
		} `json:"result"`
		Step struct {
			Engine   string `json:"engine"`
			PolicyID string `json:"policy_id"`
			Purpose  string `json:"purpose"`
		} `json:"step"`
		Control struct {
			Decision string `json:"decision"`
		} `json:"control"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "allow", out.Result.Decision)
	assert.Equal(t, "paid-crawl", out.Result.MatchedRule)
	assert.Equal(t, "peac-policy", out.Step.Engine)
	assert.Equal(t, "crawl-terms", out.Step.PolicyID)
	assert.Equal(t, "crawl", out.Step.Purpose)
	assert.Equal(t, "allow", out.Control.Decision)

	other := write(t, dir, "other.json", `{"subject":{"type":"agent"},"purpose":"crawl","licensing_mode":"pay_per_crawl","attrs":{"region":"us"}}`)
	code, stdout, _ = run("policy", "eval", "--policy", pol, "--context", other)
	require.Equal(t, 0, code)
	assert.Equal(t, "deny by (default)\n", stdout)

	bad := write(t, dir, "bad.yaml", strings.Replace(crawlPolicy, "purpose: crawl", "purpose: scrape", 1))
	code, stdout, _ = run("policy", "validate", "--policy", bad, "--json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "E_INVALID_POLICY_ENUM")
	assert.Contains(t, stdout, "rules[0].purpose[0]")

	code, _, _ = run("policy", "eval", "--context", ctx)
	assert.Equal(t, 2, code)
	code, _, _ = run("policy", "enforce", "--policy", pol)
	assert.Equal(t, 2, code)
}
