package notify

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

// Sentry reports runs that did not succeed as Sentry events
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry creates a notifier sending through hub. A nil hub uses the current hub.
func NewSentry(hub *sentry.Hub) *Sentry {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &Sentry{hub: hub}
}

func (x *Sentry) NotifyRunFinished(ctx context.Context, run *model.PipelineRun) error {
	x.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("pipeline", string(run.PipelineID))
		scope.SetTag("status", string(run.Status))
		scope.SetTag("run_id", string(run.ID))
		if run.Failure != nil {
			scope.SetTag("stage", run.Failure.Stage)
			scope.SetTag("action", run.Failure.Action)
		}
		scope.SetLevel(sentry.LevelError)
		x.hub.CaptureMessage(summary(run))
	})
	return nil
}
