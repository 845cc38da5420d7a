package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

const defaultDispatchTimeout = 30 * time.Second

// Dispatcher starts at most one pipeline run per event identity
type Dispatcher struct {
	ledger  interfaces.DispatchLedger
	engine  interfaces.PipelineEngine
	timeout time.Duration
	now     func() time.Time
	newID   func(types.EventID) types.RunID
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatchTimeout bounds the engine StartRun call
func WithDispatchTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) DispatcherOption {
	return func(x *Dispatcher) {
		x.now = now
	}
}

// WithRunIDGenerator replaces the run ID generator. The generator must return the same ID for the
// same event identity because the engine uses the run ID as its idempotency token.
func WithRunIDGenerator(f func(types.EventID) types.RunID) DispatcherOption {
	return func(x *Dispatcher) {
		x.newID = f
	}
}

var runIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/m-mizutani/herald/runs"))

// RunIDFromEvent derives a name based UUID from the event identity. A redelivery after a lost
// StartRun reply carries the same token, so the engine does not start a second run.
func RunIDFromEvent(eventID types.EventID) types.RunID {
	return types.RunID(uuid.NewSHA1(runIDNamespace, []byte(eventID)).String())
}

// NewDispatcher creates a dispatcher
func NewDispatcher(ledger interfaces.DispatchLedger, engine interfaces.PipelineEngine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ledger:  ledger,
		engine:  engine,
		timeout: defaultDispatchTimeout,
		now:     time.Now,
		newID:   RunIDFromEvent,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts pipeline at entry for event. When the event identity was already dispatched the
// existing run is returned together with an error wrapping types.ErrAlreadyDispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, event *model.InboundEvent, pipeline *model.PipelineDefinition, entry model.ActionRef) (*model.PipelineRun, error) {
	logger := ctxlog.From(ctx)

	stageIdx, _, ok := pipeline.FindAction(entry)
	if !ok || stageIdx != 0 {
		return nil, goerr.Wrap(types.ErrInvalidEntryAction, "entry action must belong to the first stage",
			goerr.V("pipeline", pipeline.ID), goerr.V("entry", entry.String()))
	}

	eventID := event.Identity()
	run := &model.PipelineRun{
		ID:                d.newID(eventID),
		PipelineID:        pipeline.ID,
		EventID:           eventID,
		EntryAction:       entry,
		StartedAt:         d.now(),
		CurrentStageIndex: 0,
		Status:            model.RunRunning,
		Release:           event.Release,
	}

	existing, err := d.ledger.Reserve(ctx, run)
	if err != nil {
		if errors.Is(err, types.ErrAlreadyDispatched) {
			logger.Info("Event already dispatched",
				"event_id", run.EventID,
				"delivery_id", event.DeliveryID,
			)
			return existing, err
		}
		return nil, goerr.Wrap(err, "failed to reserve event identity", goerr.V("event_id", run.EventID))
	}

	startCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	handle, err := d.engine.StartRun(startCtx, pipeline, entry, run.ID)
	if err != nil {
		// Without a started run the reservation must not block the sender's retry.
		if relErr := d.ledger.Release(context.WithoutCancel(ctx), run.EventID); relErr != nil {
			logger.Error("Failed to release dispatch reservation",
				"error", relErr,
				"event_id", run.EventID,
			)
		}

		if errors.Is(err, types.ErrPipelineUnavailable) {
			return nil, err
		}
		return nil, goerr.Wrap(types.ErrPipelineUnavailable, "failed to start pipeline run",
			goerr.V("pipeline", pipeline.ID), goerr.V("cause", err))
	}

	run.EngineHandle = handle
	if err := d.ledger.Update(ctx, run); err != nil {
		// The run is started; losing the handle only affects status tracking.
		logger.Error("Failed to record engine handle", "error", err, "run_id", run.ID)
	}

	logger.Info("Pipeline run started",
		"run_id", run.ID,
		"pipeline", run.PipelineID,
		"entry", entry.String(),
		"event_id", run.EventID,
		"engine_handle", handle,
	)

	return run, nil
}
