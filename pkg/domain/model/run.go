package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// RunStatus is the lifecycle state of a pipeline run
type RunStatus string

const (
	RunRunning   RunStatus = "Running"
	RunSucceeded RunStatus = "Succeeded"
	RunFailed    RunStatus = "Failed"
	RunCancelled RunStatus = "Cancelled"
)

// IsTerminal reports whether the status is absorbing
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// RunFailure records where a failed run stopped
type RunFailure struct {
	Stage   string `json:"stage,omitempty"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}

// PipelineRun is one execution of a pipeline definition
type PipelineRun struct {
	ID                types.RunID      `json:"id" firestore:"id"`
	PipelineID        types.PipelineID `json:"pipeline_id" firestore:"pipeline_id"`
	EventID           types.EventID    `json:"event_id" firestore:"event_id"`
	EntryAction       ActionRef        `json:"entry_action" firestore:"entry_action"`
	StartedAt         time.Time        `json:"started_at" firestore:"started_at"`
	CurrentStageIndex int              `json:"current_stage_index" firestore:"current_stage_index"`
	Status            RunStatus        `json:"status" firestore:"status"`
	EngineHandle      string           `json:"engine_handle,omitempty" firestore:"engine_handle"`
	FinishedAt        *time.Time       `json:"finished_at,omitempty" firestore:"finished_at"`
	Failure           *RunFailure      `json:"failure,omitempty" firestore:"failure"`
	Release           *ReleaseInfo     `json:"release,omitempty" firestore:"release"`
}

// Transition moves the run to next. Terminal states never change; repeating the current status is
// a no-op.
func (r *PipelineRun) Transition(next RunStatus, at time.Time) error {
	if r.Status == next {
		return nil
	}
	if r.Status.IsTerminal() {
		return goerr.Wrap(types.ErrInvalidTransition, "run is already terminal",
			goerr.V("run_id", r.ID), goerr.V("from", r.Status), goerr.V("to", next))
	}
	if next == RunRunning {
		return goerr.Wrap(types.ErrInvalidTransition, "run cannot re-enter running",
			goerr.V("run_id", r.ID), goerr.V("from", r.Status))
	}

	r.Status = next
	r.FinishedAt = &at
	return nil
}

// RunSnapshot is the engine's view of a run
type RunSnapshot struct {
	Status     RunStatus
	StageIndex int
	Failure    *RunFailure
}

// Clone returns a deep copy of the run
func (r *PipelineRun) Clone() *PipelineRun {
	c := *r
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	if r.Failure != nil {
		f := *r.Failure
		c.Failure = &f
	}
	if r.Release != nil {
		rel := *r.Release
		c.Release = &rel
	}
	return &c
}
