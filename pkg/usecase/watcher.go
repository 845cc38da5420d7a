package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

// RunWatcher follows a started run until it is terminal, records the outcome in the ledger and
// reports it to operators
type RunWatcher struct {
	engine   interfaces.PipelineEngine
	ledger   interfaces.DispatchLedger
	notifier interfaces.Notifier
	interval time.Duration
	timeout  time.Duration
}

// NewRunWatcher creates a watcher. notifier may be nil; it is only called for runs that did not
// succeed.
func NewRunWatcher(engine interfaces.PipelineEngine, ledger interfaces.DispatchLedger, notifier interfaces.Notifier, interval, timeout time.Duration) *RunWatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &RunWatcher{
		engine:   engine,
		ledger:   ledger,
		notifier: notifier,
		interval: interval,
		timeout:  timeout,
	}
}

// Watch polls the engine until run reaches a terminal state or the watch timeout elapses
func (w *RunWatcher) Watch(ctx context.Context, run *model.PipelineRun) error {
	logger := ctxlog.From(ctx).With("run_id", run.ID, "pipeline", run.PipelineID)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		snapshot, err := w.engine.GetRunStatus(ctx, run.EngineHandle)
		if err != nil {
			logger.Warn("Failed to get run status", "error", err)
		} else {
			advanced := snapshot.StageIndex > run.CurrentStageIndex
			if advanced {
				run.CurrentStageIndex = snapshot.StageIndex
			}
			if snapshot.Status.IsTerminal() {
				return w.finish(ctx, run, snapshot)
			}
			if advanced {
				if err := w.ledger.Update(ctx, run); err != nil {
					logger.Warn("Failed to record stage progress", "error", err, "stage_index", run.CurrentStageIndex)
				}
			}
		}

		select {
		case <-ctx.Done():
			logger.Warn("Stopped watching run before it finished", "status", run.Status)
			return nil
		case <-ticker.C:
		}
	}
}

func (w *RunWatcher) finish(ctx context.Context, run *model.PipelineRun, snapshot *model.RunSnapshot) error {
	logger := ctxlog.From(ctx)

	if err := run.Transition(snapshot.Status, time.Now()); err != nil {
		return err
	}
	run.Failure = snapshot.Failure

	if err := w.ledger.Update(ctx, run); err != nil {
		return goerr.Wrap(err, "failed to record run result", goerr.V("run_id", run.ID))
	}

	attrs := []any{
		"run_id", run.ID,
		"pipeline", run.PipelineID,
		"status", run.Status,
		"stage_index", run.CurrentStageIndex,
	}
	if run.Failure != nil {
		attrs = append(attrs, "failed_stage", run.Failure.Stage, "failed_action", run.Failure.Action, "reason", run.Failure.Message)
	}
	if run.Status == model.RunSucceeded {
		logger.Info("Pipeline run finished", attrs...)
	} else {
		logger.Error("Pipeline run did not succeed", attrs...)
	}

	if w.notifier == nil || run.Status == model.RunSucceeded {
		return nil
	}
	if err := w.notifier.NotifyRunFinished(ctx, run); err != nil {
		return goerr.Wrap(err, "failed to notify run result", goerr.V("run_id", run.ID))
	}
	return nil
}
