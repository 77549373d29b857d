package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wfID   = "wf_01HZX5K3N7Q9R2S4T6V8W0Y1Z3"
	stepID = "step_01HZX5K3N7Q9R2S4T6V8W0Y1Z4"
	hash   = "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	hex64  = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := Decode([]byte(s))
	require.NoError(t, err)
	return v
}

func TestAllSchemasCompile(t *testing.T) {
	for _, n := range Names() {
		_, err := get(n)
		require.NoError(t, err, n)
	}
	_, err := get("nope")
	assert.Error(t, err)
}

func TestWorkflowContext(t *testing.T) {
	ok := mustDecode(t, `{"workflow_id":"`+wfID+`","step_id":"`+stepID+`","parent_step_ids":[],"framework":"langgraph","prev_receipt_hash":"`+hash+`","step_index":0,"step_total":3}`)
	assert.Nil(t, Check(WorkflowContext, ok))

	bad := mustDecode(t, `{"workflow_id":"`+wfID+`","step_id":"`+stepID+`","tool_name":"","step_index":-1}`)
	f := Check(WorkflowContext, bad)
	require.NotNil(t, f)
	assert.Equal(t, "step_index", f.Field)

	extra := mustDecode(t, `{"workflow_id":"`+wfID+`","step_id":"`+stepID+`","surprise":1}`)
	f = Check(WorkflowContext, extra)
	require.NotNil(t, f)
	assert.Equal(t, "", f.Field)
	assert.Equal(t, "additionalProperties", f.Keyword)
}

func TestCheck_FirstIssueIsDeterministic(t *testing.T) {
	doc := mustDecode(t, `{"workflow_id":"`+wfID+`","step_id":"`+stepID+`","tool_name":"","framework":"UPPER","step_total":0}`)
	for i := 0; i < 20; i++ {
		f := Check(WorkflowContext, doc)
		require.NotNil(t, f)
		assert.Equal(t, "framework", f.Field)
	}
}

func TestCheck_IndexedFieldPath(t *testing.T) {
	doc := mustDecode(t, `{"workflow_id":"`+wfID+`","step_id":"`+stepID+`","parent_step_ids":["`+stepID+`x","nope"]}`)
	f := Check(WorkflowContext, doc)
	require.NotNil(t, f)
	assert.Equal(t, "parent_step_ids[1]", f.Field)
}

func TestCheck_TypedValue(t *testing.T) {
	type ctx struct {
		WorkflowID string `json:"workflow_id"`
		StepID     string `json:"step_id"`
	}
	assert.Nil(t, Check(WorkflowContext, ctx{WorkflowID: wfID, StepID: stepID}))
	assert.NotNil(t, Check(WorkflowContext, ctx{WorkflowID: "wf_short", StepID: stepID}))
}

func TestInteractionEvidence(t *testing.T) {
	ok := mustDecode(t, `{
		"interaction_id":"ix-1","kind":"tool.call",
		"executor":{"platform":"openclaw"},
		"tool":{"name":"search"},
		"input":{"digest":{"alg":"sha-256","value":"`+hex64+`","bytes":12},"redaction":"hash_only"},
		"started_at":"2026-01-01T00:00:00Z","completed_at":"2026-01-01T00:00:01Z",
		"result":{"status":"ok"},
		"extensions":{"org.peacprotocol/interaction@0.1":{"x":1}}
	}`)
	assert.Nil(t, Check(InteractionEvidence, ok))

	badTime := mustDecode(t, `{"interaction_id":"ix-1","kind":"tool.call","executor":{"platform":"p"},"started_at":"yesterday"}`)
	f := Check(InteractionEvidence, badTime)
	require.NotNil(t, f)
	assert.Equal(t, "started_at", f.Field)

	badExt := mustDecode(t, `{"interaction_id":"ix-1","kind":"tool.call","executor":{"platform":"p"},"started_at":"2026-01-01T00:00:00Z","extensions":{"Bad":1}}`)
	assert.NotNil(t, Check(InteractionEvidence, badExt))
}

func disputeDoc(state, resolution, disputeType, description string) string {
	res := ""
	if resolution != "" {
		res = `,"resolution":` + resolution
	}
	return `{"type":"peac/dispute","issuer":"https://issuer.example","issued_at":"2026-01-01T00:00:00Z","evidence":{
		"dispute_id":"dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3","dispute_type":"` + disputeType + `",
		"target_ref":"rcpt_1","target_type":"receipt","grounds":[{"code":"missing_receipt"}],
		"description":"` + description + `","state":"` + state + `"` + res + `}}`
}

const resolutionJSON = `{"outcome":"upheld","decided_at":"2026-01-02T00:00:00Z","decided_by":"https://arbiter.example","rationale":"confirmed"}`

func TestDisputeAttestation_ResolutionCoupling(t *testing.T) {
	assert.Nil(t, Check(DisputeAttestation, mustDecode(t, disputeDoc("filed", "", "fraud", "bad"))))
	assert.Nil(t, Check(DisputeAttestation, mustDecode(t, disputeDoc("resolved", resolutionJSON, "fraud", "bad"))))
	assert.NotNil(t, Check(DisputeAttestation, mustDecode(t, disputeDoc("resolved", "", "fraud", "bad"))))
	assert.NotNil(t, Check(DisputeAttestation, mustDecode(t, disputeDoc("appealed", resolutionJSON, "fraud", "bad"))))
}

func TestDisputeAttestation_OtherNeedsLongDescription(t *testing.T) {
	assert.NotNil(t, Check(DisputeAttestation, mustDecode(t, disputeDoc("filed", "", "other", "too short"))))
	long := strings.Repeat("x", 50)
	assert.Nil(t, Check(DisputeAttestation, mustDecode(t, disputeDoc("filed", "", "other", long))))
}

func TestReceipts(t *testing.T) {
	commerce := mustDecode(t, `{"iss":"https://pub.example","aud":"https://agent.example","iat":1700000000,"rid":"r1","amt":100,"cur":"USD",
		"payment":{"rail":"stripe","reference":"cs_1","amount":100,"currency":"USD","asset":"USD","env":"test","evidence":{"payment_intent":"pi_123"}}}`)
	assert.Nil(t, Check(CommerceReceipt, commerce))

	withSub := mustDecode(t, `{"iss":"i","aud":"a","iat":1,"rid":"r","amt":1,"cur":"USD","sub":"x",
		"payment":{"rail":"x","reference":"r","amount":1,"currency":"USD","asset":"USD","env":"test"}}`)
	assert.NotNil(t, Check(CommerceReceipt, withSub))

	att := mustDecode(t, `{"iss":"i","aud":"a","iat":1,"rid":"r","sub":"https://agent.example/a"}`)
	assert.Nil(t, Check(AttestationReceipt, att))

	fractional := mustDecode(t, `{"iss":"i","aud":"a","iat":1.5,"rid":"r","sub":"s"}`)
	f := Check(AttestationReceipt, fractional)
	require.NotNil(t, f)
	assert.Equal(t, "iat", f.Field)
}

func TestWorkflowSummary(t *testing.T) {
	ok := mustDecode(t, `{"type":"peac/workflow-summary","issuer":"https://orch.example","issued_at":"2026-01-01T00:00:00Z",
		"evidence":{"workflow_id":"`+wfID+`","status":"completed","started_at":"2026-01-01T00:00:00Z","completed_at":"2026-01-01T00:01:00Z","receipt_refs":["`+hash+`"]}}`)
	assert.Nil(t, Check(WorkflowSummary, ok))

	noRefs := mustDecode(t, `{"type":"peac/workflow-summary","issuer":"i","issued_at":"2026-01-01T00:00:00Z",
		"evidence":{"workflow_id":"`+wfID+`","status":"in_progress","started_at":"2026-01-01T00:00:00Z"}}`)
	assert.NotNil(t, Check(WorkflowSummary, noRefs))
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "", fieldPath(""))
	assert.Equal(t, "a.b", fieldPath("/a/b"))
	assert.Equal(t, "a[0].b", fieldPath("/a/0/b"))
	assert.Equal(t, "extensions.org.example/x", fieldPath("/extensions/org.example~1x"))
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{} {}`))
	assert.Error(t, err)
}
