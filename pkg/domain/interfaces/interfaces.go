package interfaces

import (
	"context"

	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// SecretStore reads secret values by name. Implementations return errors wrapping
// types.ErrSecretNotFound or types.ErrAccessDenied for those conditions.
type SecretStore interface {
	GetSecret(ctx context.Context, name types.SecretName) (string, error)
}

// DispatchLedger tracks which event identities have started a run
type DispatchLedger interface {
	// Reserve records run for run.EventID. It is a single atomic check-and-create: when a run
	// already exists for the identity, it returns the existing run and an error wrapping
	// types.ErrAlreadyDispatched.
	Reserve(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error)

	// Release removes a reservation whose run could not be started
	Release(ctx context.Context, eventID types.EventID) error

	// Update overwrites the stored run
	Update(ctx context.Context, run *model.PipelineRun) error

	// Get returns the run for an event identity or an error wrapping types.ErrRunNotFound
	Get(ctx context.Context, eventID types.EventID) (*model.PipelineRun, error)
}

// PipelineEngine starts and observes pipeline runs
type PipelineEngine interface {
	// StartRun hands control to the engine and returns a handle without waiting for the run.
	// An engine that cannot accept the run returns an error wrapping types.ErrPipelineUnavailable.
	StartRun(ctx context.Context, pipeline *model.PipelineDefinition, entry model.ActionRef, runID types.RunID) (string, error)

	// GetRunStatus reports the current state of a started run
	GetRunStatus(ctx context.Context, handle string) (*model.RunSnapshot, error)
}

// SourceClient fetches repository contents from the source host
type SourceClient interface {
	// DownloadZipball downloads the source code zipball for a ref
	DownloadZipball(ctx context.Context, owner, repo, ref string) ([]byte, error)
}

// BuildRunner executes a build job against an input artifact
type BuildRunner interface {
	Run(ctx context.Context, job *model.BuildRun, input *model.Artifact) (*model.Artifact, error)
}

// Notifier reports finished runs to operators
type Notifier interface {
	NotifyRunFinished(ctx context.Context, run *model.PipelineRun) error
}

// WebhookRegistrar registers the release webhook with the source host during setup
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, hook *model.WebhookRegistration) (*model.RegisteredWebhook, error)
}

// EntryVerifier checks that the deployed pipeline accepts runs at the entry action
type EntryVerifier interface {
	VerifyEntryAction(ctx context.Context, pipelineID types.PipelineID, entry model.ActionRef) error
}

// RunCanceler stops a started run on behalf of an operator
type RunCanceler interface {
	CancelRun(ctx context.Context, handle, reason string) error
}
