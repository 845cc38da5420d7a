package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

func TestInboundEvent_Identity(t *testing.T) {
	base := model.InboundEvent{
		DeliveryID: "d-1",
		EventType:  "release",
		RawBody:    []byte(`{"action":"published"}`),
		ReceivedAt: time.Now(),
	}

	t.Run("redelivery keeps identity", func(t *testing.T) {
		again := base
		again.ReceivedAt = base.ReceivedAt.Add(time.Minute)
		again.SignatureHeader = "sha256=whatever"
		gt.Value(t, again.Identity()).Equal(base.Identity())
	})

	t.Run("different delivery changes identity", func(t *testing.T) {
		other := base
		other.DeliveryID = "d-2"
		gt.Value(t, other.Identity()).NotEqual(base.Identity())
	})

	t.Run("different body changes identity", func(t *testing.T) {
		other := base
		other.RawBody = []byte(`{"action":"created"}`)
		gt.Value(t, other.Identity()).NotEqual(base.Identity())
	})

	t.Run("field boundaries are unambiguous", func(t *testing.T) {
		a := model.InboundEvent{EventType: "rel", DeliveryID: "ease"}
		b := model.InboundEvent{EventType: "release", DeliveryID: ""}
		gt.Value(t, a.Identity()).NotEqual(b.Identity())
	})
}
