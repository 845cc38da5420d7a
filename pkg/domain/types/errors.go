package types

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrSecretNotFound means the secret store has no secret with the requested name
	ErrSecretNotFound = goerr.New("secret not found")
	// ErrAccessDenied means the caller is not permitted to read the secret
	ErrAccessDenied = goerr.New("access denied to secret")

	// ErrAlreadyDispatched means a run already exists for the event identity
	ErrAlreadyDispatched = goerr.New("event already dispatched")
	// ErrPipelineUnavailable means the pipeline cannot accept a new run right now
	ErrPipelineUnavailable = goerr.New("pipeline unavailable")
	// ErrInvalidEntryAction means the entry action is not part of the first stage
	ErrInvalidEntryAction = goerr.New("invalid entry action")
	// ErrInvalidPipeline means a pipeline definition violates its invariants
	ErrInvalidPipeline = goerr.New("invalid pipeline definition")
	// ErrRunNotFound means no run is recorded for the given key
	ErrRunNotFound = goerr.New("pipeline run not found")

	// ErrStageFailed is reported by an execution engine when a stage fails
	ErrStageFailed = goerr.New("stage failed")
	// ErrActionFailed is reported by an execution engine when an action fails
	ErrActionFailed = goerr.New("action failed")
	// ErrInvalidTransition means a run status change would leave a terminal state
	ErrInvalidTransition = goerr.New("invalid run status transition")
)
