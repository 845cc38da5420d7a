package ledger

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

type runGetter func(ctx context.Context, eventID types.EventID) (*model.PipelineRun, error)

// reservedBy looks up the run holding eventID after a reservation insert conflicted. The holder
// may release between the insert and the lookup; the caller then gets a retryable error.
func reservedBy(ctx context.Context, eventID types.EventID, get runGetter) (*model.PipelineRun, error) {
	existing, err := get(ctx, eventID)
	if errors.Is(err, types.ErrRunNotFound) {
		return nil, goerr.Wrap(types.ErrPipelineUnavailable, "reservation was released while looking it up",
			goerr.V("event_id", eventID))
	}
	if err != nil {
		return nil, err
	}
	return existing, goerr.Wrap(types.ErrAlreadyDispatched, "event identity is reserved",
		goerr.V("event_id", eventID), goerr.V("run_id", existing.ID))
}
