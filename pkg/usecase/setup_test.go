package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/usecase"
)

type mockRegistrar struct {
	registerFunc func(ctx context.Context, hook *model.WebhookRegistration) (*model.RegisteredWebhook, error)
	calls        []*model.WebhookRegistration
}

func (m *mockRegistrar) RegisterWebhook(ctx context.Context, hook *model.WebhookRegistration) (*model.RegisteredWebhook, error) {
	m.calls = append(m.calls, hook)
	if m.registerFunc != nil {
		return m.registerFunc(ctx, hook)
	}
	return &model.RegisteredWebhook{ID: 42, URL: hook.URL, Created: true}, nil
}

type mockVerifier struct {
	err   error
	calls int
}

func (m *mockVerifier) VerifyEntryAction(ctx context.Context, pipelineID types.PipelineID, entry model.ActionRef) error {
	m.calls++
	return m.err
}

func TestSetup(t *testing.T) {
	ctx := context.Background()
	signingKey := model.NewSecret("webhook-key", testSigningKey)

	t.Run("verifies and registers", func(t *testing.T) {
		registrar := &mockRegistrar{}
		verifier := &mockVerifier{}

		report, err := usecase.NewSetup(registrar, verifier).Run(ctx, &usecase.SetupRequest{
			Pipeline:   testPipeline(),
			Entry:      model.DefaultEntryAction(),
			WebhookURL: "https://herald.example.com/hooks/github/release",
			SigningKey: signingKey,
		})
		gt.NoError(t, err)
		gt.Value(t, report.PipelineID).Equal(types.PipelineID("blue-deploy-pipeline"))
		gt.True(t, report.Verified)
		gt.True(t, report.SignedHooks)
		gt.Value(t, report.Source.Owner).Equal("octo-org")
		gt.Value(t, report.Webhook.ID).Equal(int64(42))
		gt.Value(t, verifier.calls).Equal(1)

		gt.A(t, registrar.calls).Length(1)
		hook := registrar.calls[0]
		gt.Value(t, hook.Owner).Equal("octo-org")
		gt.Value(t, hook.Repo).Equal("octo-app")
		gt.Value(t, hook.Events).Equal([]string{"release"})
		gt.Value(t, hook.Secret).Equal(signingKey)
		gt.True(t, hook.Enabled)
	})

	t.Run("unsigned hook in reduced configuration", func(t *testing.T) {
		registrar := &mockRegistrar{}
		report, err := usecase.NewSetup(registrar, nil).Run(ctx, &usecase.SetupRequest{
			Pipeline:   testPipeline(),
			Entry:      model.DefaultEntryAction(),
			WebhookURL: "https://herald.example.com/hooks/github/release",
		})
		gt.NoError(t, err)
		gt.False(t, report.SignedHooks)
		gt.False(t, report.Verified)
		gt.A(t, registrar.calls).Length(1)
		gt.Value(t, registrar.calls[0].Secret).Nil()
	})

	t.Run("dry run registers nothing", func(t *testing.T) {
		registrar := &mockRegistrar{}
		report, err := usecase.NewSetup(registrar, nil).Run(ctx, &usecase.SetupRequest{
			Pipeline:   testPipeline(),
			Entry:      model.DefaultEntryAction(),
			WebhookURL: "https://herald.example.com/hooks/github/release",
			SigningKey: signingKey,
			DryRun:     true,
		})
		gt.NoError(t, err)
		gt.Value(t, report.Webhook).Nil()
		gt.A(t, registrar.calls).Length(0)
	})

	t.Run("no webhook URL only validates", func(t *testing.T) {
		registrar := &mockRegistrar{}
		_, err := usecase.NewSetup(registrar, nil).Run(ctx, &usecase.SetupRequest{
			Pipeline: testPipeline(),
			Entry:    model.DefaultEntryAction(),
		})
		gt.NoError(t, err)
		gt.A(t, registrar.calls).Length(0)
	})

	t.Run("entry outside the first stage", func(t *testing.T) {
		registrar := &mockRegistrar{}
		_, err := usecase.NewSetup(registrar, nil).Run(ctx, &usecase.SetupRequest{
			Pipeline:   testPipeline(),
			Entry:      model.ActionRef{Stage: "deploy", Action: "deploy"},
			WebhookURL: "https://herald.example.com/hooks/github/release",
		})
		gt.True(t, errors.Is(err, types.ErrInvalidEntryAction))
		gt.A(t, registrar.calls).Length(0)
	})

	t.Run("invalid pipeline", func(t *testing.T) {
		_, err := usecase.NewSetup(nil, nil).Run(ctx, &usecase.SetupRequest{
			Pipeline: &model.PipelineDefinition{ID: "empty"},
			Entry:    model.DefaultEntryAction(),
		})
		gt.True(t, errors.Is(err, types.ErrInvalidPipeline))
	})

	t.Run("verification failure stops registration", func(t *testing.T) {
		registrar := &mockRegistrar{}
		verifier := &mockVerifier{err: types.ErrInvalidEntryAction}
		_, err := usecase.NewSetup(registrar, verifier).Run(ctx, &usecase.SetupRequest{
			Pipeline:   testPipeline(),
			Entry:      model.DefaultEntryAction(),
			WebhookURL: "https://herald.example.com/hooks/github/release",
		})
		gt.True(t, errors.Is(err, types.ErrInvalidEntryAction))
		gt.A(t, registrar.calls).Length(0)
	})

	t.Run("registration failure", func(t *testing.T) {
		registrar := &mockRegistrar{
			registerFunc: func(ctx context.Context, hook *model.WebhookRegistration) (*model.RegisteredWebhook, error) {
				return nil, errors.New("403 Resource not accessible by integration")
			},
		}
		_, err := usecase.NewSetup(registrar, nil).Run(ctx, &usecase.SetupRequest{
			Pipeline:   testPipeline(),
			Entry:      model.DefaultEntryAction(),
			WebhookURL: "https://herald.example.com/hooks/github/release",
		})
		gt.Error(t, err)
	})
}
