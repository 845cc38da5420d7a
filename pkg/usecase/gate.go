package usecase

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- legacy X-Hub-Signature is still accepted
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/m-mizutani/herald/pkg/domain/model"
)

// Gate authenticates inbound events and applies the configured filters. A nil signing secret
// disables signature verification; an empty filter list passes every authenticated event.
type Gate struct {
	signingSecret *model.Secret
	filters       []model.EventFilter
}

// NewGate creates a gate. filters are evaluated in the given order.
func NewGate(signingSecret *model.Secret, filters []model.EventFilter) *Gate {
	return &Gate{
		signingSecret: signingSecret,
		filters:       append([]model.EventFilter(nil), filters...),
	}
}

// VerifiesSignature reports whether the gate runs in the signed configuration
func (g *Gate) VerifiesSignature() bool {
	return g.signingSecret != nil
}

// Evaluate decides whether the event may trigger the pipeline
func (g *Gate) Evaluate(event *model.InboundEvent) model.GateDecision {
	return Evaluate(event, g.signingSecret, g.filters)
}

// Evaluate checks the signature of event with signingSecret, then each filter in order
func Evaluate(event *model.InboundEvent, signingSecret *model.Secret, filters []model.EventFilter) model.GateDecision {
	if signingSecret != nil && !VerifySignature(event.RawBody, event.SignatureHeader, signingSecret.Value()) {
		return model.RejectInvalidSignatureDecision()
	}

	for _, f := range filters {
		if !f.Match(event.Payload) {
			return model.RejectFilterMismatchDecision(f.FieldPath)
		}
	}

	return model.PassDecision()
}

// VerifySignature verifies a GitHub style signature header: "sha256=<hex>", "sha1=<hex>" or a bare
// sha256 hex digest
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}

	var newHash func() hash.Hash
	switch {
	case strings.HasPrefix(signature, "sha256="):
		newHash, signature = sha256.New, strings.TrimPrefix(signature, "sha256=")
	case strings.HasPrefix(signature, "sha1="):
		newHash, signature = sha1.New, strings.TrimPrefix(signature, "sha1=")
	default:
		newHash = sha256.New
	}

	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(given, mac.Sum(nil))
}

// Sign returns the X-Hub-Signature-256 value for payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
