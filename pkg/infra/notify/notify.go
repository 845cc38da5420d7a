package notify

import (
	"context"
	"errors"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

// Log writes finished runs to the context logger
type Log struct{}

var _ interfaces.Notifier = (*Log)(nil)

// NewLog creates a log notifier
func NewLog() *Log { return &Log{} }

func (x *Log) NotifyRunFinished(ctx context.Context, run *model.PipelineRun) error {
	attrs := []any{
		"run_id", run.ID,
		"pipeline", run.PipelineID,
		"event_id", run.EventID,
		"status", run.Status,
	}
	if run.Failure != nil {
		attrs = append(attrs, "failure", run.Failure)
	}
	ctxlog.From(ctx).Warn("Pipeline run needs attention", attrs...)
	return nil
}

// Multi fans out to every notifier and joins their errors
type Multi []interfaces.Notifier

func (m Multi) NotifyRunFinished(ctx context.Context, run *model.PipelineRun) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyRunFinished(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func summary(run *model.PipelineRun) string {
	msg := string(run.PipelineID) + " run " + string(run.ID) + " " + string(run.Status)
	if run.Failure != nil {
		if run.Failure.Stage != "" {
			msg += " at " + run.Failure.Stage
			if run.Failure.Action != "" {
				msg += "/" + run.Failure.Action
			}
		}
		if run.Failure.Message != "" {
			msg += ": " + run.Failure.Message
		}
	}
	return msg
}
