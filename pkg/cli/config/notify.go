package config

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/infra/notify"
	"github.com/m-mizutani/herald/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Notify configures where failed or cancelled runs are reported
type Notify struct {
	SlackWebhookSecret string
	SlackChannel       string
}

// Flags returns CLI flags for operator notification
func (c *Notify) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-secret-name",
			Usage:       "Secret name of a Slack incoming webhook URL",
			Destination: &c.SlackWebhookSecret,
			Sources:     cli.EnvVars("HERALD_SLACK_WEBHOOK_SECRET_NAME"),
		},
		&cli.StringFlag{
			Name:        "slack-channel",
			Usage:       "Slack channel overriding the webhook default",
			Destination: &c.SlackChannel,
			Sources:     cli.EnvVars("HERALD_SLACK_CHANNEL"),
		},
	}
}

// Build returns the log notifier plus Slack and Sentry when they are configured. The Slack
// webhook URL is resolved through resolver like every other credential.
func (c *Notify) Build(ctx context.Context, resolver *usecase.SecretResolver, sentryEnabled bool) (interfaces.Notifier, error) {
	notifiers := notify.Multi{notify.NewLog()}

	if c.SlackWebhookSecret != "" {
		url, err := resolver.Resolve(ctx, types.SecretName(c.SlackWebhookSecret))
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notify.NewSlack(url, c.SlackChannel))
	}

	if sentryEnabled {
		notifiers = append(notifiers, notify.NewSentry(sentry.CurrentHub()))
	}

	return notifiers, nil
}
