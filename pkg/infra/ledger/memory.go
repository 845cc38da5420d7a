package ledger

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// Memory is a process-local DispatchLedger. Reservations do not survive a restart.
type Memory struct {
	mu   sync.Mutex
	runs map[types.EventID]*model.PipelineRun
}

var _ interfaces.DispatchLedger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{runs: make(map[types.EventID]*model.PipelineRun)}
}

func (m *Memory) Reserve(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.runs[run.EventID]; ok {
		return existing.Clone(), goerr.Wrap(types.ErrAlreadyDispatched, "event identity is reserved",
			goerr.V("event_id", run.EventID), goerr.V("run_id", existing.ID))
	}

	m.runs[run.EventID] = run.Clone()
	return run, nil
}

func (m *Memory) Release(ctx context.Context, eventID types.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, eventID)
	return nil
}

func (m *Memory) Update(ctx context.Context, run *model.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.EventID]; !ok {
		return goerr.Wrap(types.ErrRunNotFound, "no reservation to update", goerr.V("event_id", run.EventID))
	}
	m.runs[run.EventID] = run.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, eventID types.EventID) (*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[eventID]
	if !ok {
		return nil, goerr.Wrap(types.ErrRunNotFound, "no run for event", goerr.V("event_id", eventID))
	}
	return run.Clone(), nil
}
