package interfaces

import (
	"context"

	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// TriggerUseCase decides, for each inbound event, whether to start a pipeline run
type TriggerUseCase interface {
	HandleEvent(ctx context.Context, event *model.InboundEvent) (*model.TriggerResult, error)
	LookupRun(ctx context.Context, eventID types.EventID) (*model.PipelineRun, error)
}

// SourceFetcher materialises a source action into an artifact
type SourceFetcher interface {
	Fetch(ctx context.Context, src *model.SourceFetch) (*model.Artifact, error)
}
