package usecase_test

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/usecase"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"action":"published"}`)
	secret := testSigningKey

	mac256 := hmac.New(sha256.New, []byte(secret))
	mac256.Write(payload)
	hex256 := hex.EncodeToString(mac256.Sum(nil))

	mac1 := hmac.New(sha1.New, []byte(secret))
	mac1.Write(payload)
	hex1 := hex.EncodeToString(mac1.Sum(nil))

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		want      bool
	}{
		{name: "sha256 header", payload: payload, signature: "sha256=" + hex256, secret: secret, want: true},
		{name: "sha1 header", payload: payload, signature: "sha1=" + hex1, secret: secret, want: true},
		{name: "bare hex is sha256", payload: payload, signature: hex256, secret: secret, want: true},
		{name: "wrong secret", payload: payload, signature: "sha256=" + hex256, secret: "other", want: false},
		{name: "modified body", payload: []byte(`{"action":"created"}`), signature: "sha256=" + hex256, secret: secret, want: false},
		{name: "sha1 digest labelled sha256", payload: payload, signature: "sha256=" + hex1, secret: secret, want: false},
		{name: "empty header", payload: payload, signature: "", secret: secret, want: false},
		{name: "not hex", payload: payload, signature: "sha256=zzzz", secret: secret, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, usecase.VerifySignature(tt.payload, tt.signature, tt.secret)).Equal(tt.want)
		})
	}
}

func TestSign(t *testing.T) {
	// Example from GitHub's webhook validation documentation
	sig := usecase.Sign([]byte("Hello, World!"), testSigningKey)
	gt.Value(t, sig).Equal("sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17")
}

func TestEvaluate(t *testing.T) {
	signing := model.NewSecret("webhook-secret", testSigningKey)
	published := model.EventFilter{FieldPath: "action", ExpectedValue: "published"}
	created := model.EventFilter{FieldPath: "action", ExpectedValue: "created"}
	notDraft := model.EventFilter{FieldPath: "$.release.draft", ExpectedValue: "false"}

	body := `{"action":"published","release":{"tag_name":"v1.0.0","draft":false}}`

	tests := []struct {
		name    string
		event   func(t *testing.T) *model.InboundEvent
		secret  *model.Secret
		filters []model.EventFilter
		want    model.GateDecision
	}{
		{
			name:    "valid signature and matching filter",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", body, testSigningKey) },
			secret:  signing,
			filters: []model.EventFilter{published},
			want:    model.PassDecision(),
		},
		{
			name:    "filter mismatch",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", body, testSigningKey) },
			secret:  signing,
			filters: []model.EventFilter{created},
			want:    model.RejectFilterMismatchDecision("action"),
		},
		{
			name:    "invalid signature wins over matching filters",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", body, "wrong-key") },
			secret:  signing,
			filters: []model.EventFilter{published},
			want:    model.RejectInvalidSignatureDecision(),
		},
		{
			name:    "missing signature",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", body, "") },
			secret:  signing,
			filters: nil,
			want:    model.RejectInvalidSignatureDecision(),
		},
		{
			name:    "reduced configuration ignores the signature",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", body, "") },
			secret:  nil,
			filters: []model.EventFilter{published},
			want:    model.PassDecision(),
		},
		{
			name:    "no filters pass every authenticated event",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", `{"action":"deleted"}`, testSigningKey) },
			secret:  signing,
			filters: nil,
			want:    model.PassDecision(),
		},
		{
			name:    "first mismatching filter is reported",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", `{"action":"published","release":{"draft":true}}`, testSigningKey) },
			secret:  signing,
			filters: []model.EventFilter{published, notDraft, created},
			want:    model.RejectFilterMismatchDecision("$.release.draft"),
		},
		{
			name:    "boolean compares by JSON text",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", body, testSigningKey) },
			secret:  signing,
			filters: []model.EventFilter{published, notDraft},
			want:    model.PassDecision(),
		},
		{
			name:    "non JSON body is a filter mismatch",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", `action=published`, testSigningKey) },
			secret:  signing,
			filters: []model.EventFilter{published},
			want:    model.RejectFilterMismatchDecision("action"),
		},
		{
			name:    "filter value is case sensitive",
			event:   func(t *testing.T) *model.InboundEvent { return newEvent(t, "d1", `{"action":"Published"}`, testSigningKey) },
			secret:  signing,
			filters: []model.EventFilter{published},
			want:    model.RejectFilterMismatchDecision("action"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := usecase.NewGate(tt.secret, tt.filters)
			gt.Value(t, gate.VerifiesSignature()).Equal(tt.secret != nil)
			gt.Value(t, gate.Evaluate(tt.event(t))).Equal(tt.want)
		})
	}
}
