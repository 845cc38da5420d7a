package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// Canceller stops runs on operator request. herald never cancels a run on its own.
type Canceller struct {
	ledger   interfaces.DispatchLedger
	canceler interfaces.RunCanceler
}

// NewCanceller creates a canceller
func NewCanceller(ledger interfaces.DispatchLedger, canceler interfaces.RunCanceler) *Canceller {
	return &Canceller{ledger: ledger, canceler: canceler}
}

// Cancel asks the engine to stop the run started for eventID. The final Cancelled status is
// recorded by the run watcher once the engine reports it.
func (c *Canceller) Cancel(ctx context.Context, eventID types.EventID, reason string) (*model.PipelineRun, error) {
	run, err := c.ledger.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if run.Status.IsTerminal() {
		return nil, goerr.Wrap(types.ErrInvalidTransition, "run already finished",
			goerr.V("event_id", eventID), goerr.V("status", run.Status))
	}
	if run.EngineHandle == "" {
		return nil, goerr.New("run has no engine handle yet", goerr.V("event_id", eventID))
	}

	if err := c.canceler.CancelRun(ctx, run.EngineHandle, reason); err != nil {
		return nil, goerr.Wrap(err, "failed to cancel run", goerr.V("event_id", eventID), goerr.V("run_id", run.ID))
	}

	ctxlog.From(ctx).Info("Run cancellation requested",
		"event_id", eventID,
		"run_id", run.ID,
		"reason", reason,
	)
	return run, nil
}
