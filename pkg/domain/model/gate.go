package model

import "fmt"

// RejectReason explains why the gate declined a delivery
type RejectReason string

const (
	RejectInvalidSignature RejectReason = "invalid_signature"
	RejectFilterMismatch   RejectReason = "filter_mismatch"
)

// GateDecision is the outcome of evaluating an inbound event
type GateDecision struct {
	Pass      bool
	Reason    RejectReason
	FieldPath string // first mismatching filter path for RejectFilterMismatch
}

// PassDecision lets the event through
func PassDecision() GateDecision {
	return GateDecision{Pass: true}
}

// RejectInvalidSignatureDecision rejects an event whose signature does not verify
func RejectInvalidSignatureDecision() GateDecision {
	return GateDecision{Reason: RejectInvalidSignature}
}

// RejectFilterMismatchDecision rejects an event whose payload fails the filter on fieldPath
func RejectFilterMismatchDecision(fieldPath string) GateDecision {
	return GateDecision{Reason: RejectFilterMismatch, FieldPath: fieldPath}
}

func (d GateDecision) String() string {
	switch {
	case d.Pass:
		return "pass"
	case d.Reason == RejectFilterMismatch:
		return fmt.Sprintf("reject(%s: %s)", d.Reason, d.FieldPath)
	default:
		return fmt.Sprintf("reject(%s)", d.Reason)
	}
}
