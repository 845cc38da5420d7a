package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/m-mizutani/herald/pkg/domain/types"
)

// InboundEvent is a webhook delivery as received. It must not be modified after construction.
type InboundEvent struct {
	DeliveryID      string    // X-GitHub-Delivery
	EventType       string    // X-GitHub-Event
	RawBody         []byte    // exact request body, the HMAC input
	SignatureHeader string    // X-Hub-Signature-256 (or X-Hub-Signature)
	Payload         any       // decoded JSON body, nil when the body is not JSON
	ReceivedAt      time.Time // not part of the identity
	Release         *ReleaseInfo
}

// Identity derives the idempotency key. Redeliveries carry the same delivery ID and body and so
// map to the same identity.
func (e *InboundEvent) Identity() types.EventID {
	h := sha256.New()
	h.Write([]byte(e.EventType))
	h.Write([]byte{0})
	h.Write([]byte(e.DeliveryID))
	h.Write([]byte{0})
	h.Write(e.RawBody)
	return types.EventID(hex.EncodeToString(h.Sum(nil)))
}
