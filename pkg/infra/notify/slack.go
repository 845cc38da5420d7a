package notify

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/slack-go/slack"
)

// Slack posts finished runs to an incoming webhook
type Slack struct {
	webhookURL *model.Secret
	channel    string
}

// NewSlack creates a Slack notifier. The webhook URL is a credential and is kept as a Secret.
func NewSlack(webhookURL *model.Secret, channel string) *Slack {
	return &Slack{webhookURL: webhookURL, channel: channel}
}

func (x *Slack) NotifyRunFinished(ctx context.Context, run *model.PipelineRun) error {
	color := "warning"
	if run.Status == model.RunFailed {
		color = "danger"
	}

	fields := []slack.AttachmentField{
		{Title: "Pipeline", Value: string(run.PipelineID), Short: true},
		{Title: "Status", Value: string(run.Status), Short: true},
		{Title: "Run ID", Value: string(run.ID), Short: true},
		{Title: "Entry", Value: run.EntryAction.String(), Short: true},
	}
	if run.Release != nil {
		fields = append(fields, slack.AttachmentField{
			Title: "Release",
			Value: run.Release.Owner + "/" + run.Release.Repo + "@" + run.Release.TagName,
		})
	}
	if run.Failure != nil {
		fields = append(fields, slack.AttachmentField{Title: "Failure", Value: run.Failure.Message})
	}

	msg := &slack.WebhookMessage{
		Channel: x.channel,
		Text:    summary(run),
		Attachments: []slack.Attachment{
			{Color: color, Fields: fields},
		},
	}

	if err := slack.PostWebhookContext(ctx, x.webhookURL.Value(), msg); err != nil {
		return goerr.Wrap(err, "failed to post Slack notification", goerr.V("run_id", run.ID))
	}
	return nil
}
