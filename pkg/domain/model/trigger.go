package model

// TriggerOutcome is what happened to an inbound event
type TriggerOutcome string

const (
	OutcomeTriggered TriggerOutcome = "triggered"
	OutcomeRejected  TriggerOutcome = "rejected"
	OutcomeDuplicate TriggerOutcome = "duplicate"
)

// TriggerResult is reported back to the webhook sender
type TriggerResult struct {
	Outcome  TriggerOutcome
	Decision GateDecision
	Run      *PipelineRun
}
