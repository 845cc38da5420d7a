package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// ReleaseEvents are the webhook events registered with the source host
var ReleaseEvents = []string{"release"}

// SetupRequest describes one deployment-time setup
type SetupRequest struct {
	Pipeline   *model.PipelineDefinition
	Entry      model.ActionRef
	WebhookURL string
	SigningKey *model.Secret
	DryRun     bool
}

// SetupReport carries the identifiers the runtime consumes
type SetupReport struct {
	PipelineID  types.PipelineID
	Entry       model.ActionRef
	Source      model.SourceFetch
	Verified    bool
	SignedHooks bool
	WebhookURL  string
	Webhook     *model.RegisteredWebhook
}

// Setup validates the pipeline and registers the release webhook
type Setup struct {
	registrar interfaces.WebhookRegistrar
	verifier  interfaces.EntryVerifier
}

// NewSetup creates a setup routine. registrar and verifier may be nil to skip registration and
// verification against the engine.
func NewSetup(registrar interfaces.WebhookRegistrar, verifier interfaces.EntryVerifier) *Setup {
	return &Setup{registrar: registrar, verifier: verifier}
}

// Run executes setup. Nothing is registered when req.DryRun is set.
func (s *Setup) Run(ctx context.Context, req *SetupRequest) (*SetupReport, error) {
	if err := req.Pipeline.Validate(); err != nil {
		return nil, err
	}

	idx, _, found := req.Pipeline.FindAction(req.Entry)
	if !found || idx != 0 {
		return nil, goerr.Wrap(types.ErrInvalidEntryAction, "entry action must be in the first stage",
			goerr.V("entry", req.Entry.String()))
	}

	// Validate guarantees a source action in the first stage
	var source model.SourceFetch
	for _, a := range req.Pipeline.Stages[0].Actions {
		if a.Kind == model.ActionSourceFetch {
			source = *a.Source
			break
		}
	}

	report := &SetupReport{
		PipelineID:  req.Pipeline.ID,
		Entry:       req.Entry,
		Source:      source,
		SignedHooks: req.SigningKey != nil,
		WebhookURL:  req.WebhookURL,
	}

	logger := ctxlog.From(ctx).With("pipeline", req.Pipeline.ID)

	if s.verifier != nil {
		if err := s.verifier.VerifyEntryAction(ctx, req.Pipeline.ID, req.Entry); err != nil {
			return nil, err
		}
		report.Verified = true
		logger.Info("Entry action verified", "entry", req.Entry.String())
	}

	if req.WebhookURL == "" {
		return report, nil
	}
	if req.SigningKey == nil {
		logger.Warn("Registering webhook without a signing secret, deliveries will not be signed")
	}
	if req.DryRun || s.registrar == nil {
		logger.Info("Skipping webhook registration", "dry_run", req.DryRun)
		return report, nil
	}

	hook, err := s.registrar.RegisterWebhook(ctx, &model.WebhookRegistration{
		Owner:   source.Owner,
		Repo:    source.Repo,
		URL:     req.WebhookURL,
		Events:  ReleaseEvents,
		Secret:  req.SigningKey,
		Enabled: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to register webhook",
			goerr.V("owner", source.Owner), goerr.V("repo", source.Repo))
	}
	report.Webhook = hook

	logger.Info("Webhook registered", "hook_id", hook.ID, "created", hook.Created)
	return report, nil
}
