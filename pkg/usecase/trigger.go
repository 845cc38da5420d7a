package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/utils/async"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/m-mizutani/herald/pkg/usecase")

type triggerUseCase struct {
	gate       *Gate
	dispatcher *Dispatcher
	ledger     interfaces.DispatchLedger
	pipeline   *model.PipelineDefinition
	entry      model.ActionRef
	watcher    *RunWatcher
}

// TriggerOption configures the trigger use case
type TriggerOption func(*triggerUseCase)

// WithRunWatcher follows every started run in the background
func WithRunWatcher(w *RunWatcher) TriggerOption {
	return func(uc *triggerUseCase) {
		uc.watcher = w
	}
}

// NewTrigger creates the use case that connects the gate to the dispatcher
func NewTrigger(
	gate *Gate,
	dispatcher *Dispatcher,
	ledger interfaces.DispatchLedger,
	pipeline *model.PipelineDefinition,
	entry model.ActionRef,
	opts ...TriggerOption,
) interfaces.TriggerUseCase {
	uc := &triggerUseCase{
		gate:       gate,
		dispatcher: dispatcher,
		ledger:     ledger,
		pipeline:   pipeline,
		entry:      entry,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// HandleEvent evaluates event and starts the pipeline when it passes the gate. Rejections and
// duplicates are reported in the result, not as errors.
func (uc *triggerUseCase) HandleEvent(ctx context.Context, event *model.InboundEvent) (*model.TriggerResult, error) {
	ctx, span := tracer.Start(ctx, "trigger.HandleEvent")
	defer span.End()

	logger := ctxlog.From(ctx).With(
		"delivery_id", event.DeliveryID,
		"event_type", event.EventType,
	)
	ctx = ctxlog.With(ctx, logger)

	decision := uc.evaluate(ctx, event)
	if !decision.Pass {
		logger.Info("Webhook event declined",
			"reason", decision.Reason,
			"field_path", decision.FieldPath,
		)
		return &model.TriggerResult{Outcome: model.OutcomeRejected, Decision: decision}, nil
	}

	run, err := uc.dispatch(ctx, event)
	if err != nil {
		if errors.Is(err, types.ErrAlreadyDispatched) {
			return &model.TriggerResult{Outcome: model.OutcomeDuplicate, Decision: decision, Run: run}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return nil, err
	}

	if uc.watcher != nil {
		watched := *run
		async.Dispatch(ctx, func(ctx context.Context) error {
			return uc.watcher.Watch(ctx, &watched)
		})
	}

	return &model.TriggerResult{Outcome: model.OutcomeTriggered, Decision: decision, Run: run}, nil
}

func (uc *triggerUseCase) evaluate(ctx context.Context, event *model.InboundEvent) model.GateDecision {
	_, span := tracer.Start(ctx, "gate.Evaluate")
	defer span.End()

	decision := uc.gate.Evaluate(event)
	span.SetAttributes(
		attribute.Bool("gate.pass", decision.Pass),
		attribute.Bool("gate.signed", uc.gate.VerifiesSignature()),
		attribute.String("gate.reason", string(decision.Reason)),
	)
	return decision
}

func (uc *triggerUseCase) dispatch(ctx context.Context, event *model.InboundEvent) (*model.PipelineRun, error) {
	ctx, span := tracer.Start(ctx, "dispatcher.Dispatch")
	defer span.End()

	run, err := uc.dispatcher.Dispatch(ctx, event, uc.pipeline, uc.entry)
	span.SetAttributes(
		attribute.String("pipeline.id", string(uc.pipeline.ID)),
		attribute.String("event.id", string(event.Identity())),
	)
	if run != nil {
		span.SetAttributes(attribute.String("run.id", string(run.ID)))
	}
	return run, err
}

// LookupRun returns the run recorded for an event identity
func (uc *triggerUseCase) LookupRun(ctx context.Context, eventID types.EventID) (*model.PipelineRun, error) {
	run, err := uc.ledger.Get(ctx, eventID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up run", goerr.V("event_id", eventID))
	}
	return run, nil
}
