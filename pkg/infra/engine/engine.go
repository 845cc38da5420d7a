package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/utils/async"
	"golang.org/x/sync/errgroup"
)

const handlePrefix = "local:"

// Local executes pipeline definitions in process. Source actions are fetched through the source
// fetcher and build actions run through the build runner.
type Local struct {
	fetcher       interfaces.SourceFetcher
	builder       interfaces.BuildRunner
	maxConcurrent int

	mu   sync.Mutex
	runs map[string]*localRun
}

var (
	_ interfaces.PipelineEngine = (*Local)(nil)
	_ interfaces.RunCanceler    = (*Local)(nil)
)

type localRun struct {
	snapshot model.RunSnapshot
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures the local engine
type Option func(*Local)

// WithMaxConcurrentRuns limits runs in progress. Further StartRun calls fail with
// types.ErrPipelineUnavailable until a run finishes.
func WithMaxConcurrentRuns(n int) Option {
	return func(e *Local) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// NewLocal creates a local engine
func NewLocal(fetcher interfaces.SourceFetcher, builder interfaces.BuildRunner, opts ...Option) *Local {
	e := &Local{
		fetcher:       fetcher,
		builder:       builder,
		maxConcurrent: 1,
		runs:          make(map[string]*localRun),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartRun schedules pipeline from the stage of entry and returns immediately. Starting the same
// runID twice returns the handle of the first run.
func (e *Local) StartRun(ctx context.Context, pipeline *model.PipelineDefinition, entry model.ActionRef, runID types.RunID) (string, error) {
	if err := pipeline.Validate(); err != nil {
		return "", err
	}
	stageIdx, _, ok := pipeline.FindAction(entry)
	if !ok {
		return "", goerr.Wrap(types.ErrInvalidEntryAction, "entry action not found",
			goerr.V("pipeline", pipeline.ID), goerr.V("entry", entry.String()))
	}

	handle := handlePrefix + string(runID)

	e.mu.Lock()
	if _, exists := e.runs[handle]; exists {
		e.mu.Unlock()
		return handle, nil
	}
	if active := e.activeLocked(); active >= e.maxConcurrent {
		e.mu.Unlock()
		return "", goerr.Wrap(types.ErrPipelineUnavailable, "too many runs in progress",
			goerr.V("active", active), goerr.V("limit", e.maxConcurrent))
	}
	run := &localRun{
		snapshot: model.RunSnapshot{Status: model.RunRunning, StageIndex: stageIdx},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.runs[handle] = run
	e.mu.Unlock()

	ctx = ctxlog.With(ctx, ctxlog.From(ctx).With("run_id", runID, "pipeline", pipeline.ID))
	async.Dispatch(ctx, func(ctx context.Context) error {
		defer close(run.done)
		e.execute(ctx, run, pipeline, stageIdx)
		return nil
	})

	return handle, nil
}

func (e *Local) activeLocked() int {
	n := 0
	for _, r := range e.runs {
		if !r.snapshot.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// GetRunStatus reports the state of a run started by this process
func (e *Local) GetRunStatus(ctx context.Context, handle string) (*model.RunSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[handle]
	if !ok {
		return nil, goerr.Wrap(types.ErrRunNotFound, "unknown local run", goerr.V("handle", handle))
	}

	snapshot := run.snapshot
	if run.snapshot.Failure != nil {
		f := *run.snapshot.Failure
		snapshot.Failure = &f
	}
	return &snapshot, nil
}

// Cancel stops a run. Running actions are interrupted and the run ends Cancelled.
func (e *Local) Cancel(ctx context.Context, handle string) error {
	e.mu.Lock()
	run, ok := e.runs[handle]
	e.mu.Unlock()
	if !ok {
		return goerr.Wrap(types.ErrRunNotFound, "unknown local run", goerr.V("handle", handle))
	}

	run.stopOnce.Do(func() { close(run.stop) })
	return nil
}

// CancelRun stops a run on behalf of an operator
func (e *Local) CancelRun(ctx context.Context, handle, reason string) error {
	ctxlog.From(ctx).Info("Cancelling local run", "handle", handle, "reason", reason)
	return e.Cancel(ctx, handle)
}

// Shutdown cancels every run in progress and waits until they stopped or ctx is done
func (e *Local) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	var pending []*localRun
	for _, run := range e.runs {
		if !run.snapshot.Status.IsTerminal() {
			pending = append(pending, run)
		}
	}
	e.mu.Unlock()

	for _, run := range pending {
		run.stopOnce.Do(func() { close(run.stop) })
	}
	for _, run := range pending {
		select {
		case <-run.done:
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "runs did not stop before shutdown deadline", goerr.V("pending", len(pending)))
		}
	}
	return nil
}

func (e *Local) setStage(run *localRun, idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run.snapshot.StageIndex = idx
}

func (e *Local) finish(run *localRun, status model.RunStatus, failure *model.RunFailure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run.snapshot.Status = status
	run.snapshot.Failure = failure
}

// execute runs the stages in order. Every artifact is removed before the final status is
// published.
func (e *Local) execute(ctx context.Context, run *localRun, pipeline *model.PipelineDefinition, from int) {
	logger := ctxlog.From(ctx)
	started := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-run.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	store := newArtifactStore()
	status, failure := e.runStages(ctx, run, pipeline, from, store)
	store.cleanup(ctx)

	switch status {
	case model.RunSucceeded:
		logger.Info("Run succeeded", "duration", time.Since(started).String())
	case model.RunCancelled:
		logger.Warn("Run cancelled", "duration", time.Since(started).String())
	}
	e.finish(run, status, failure)
}

func (e *Local) runStages(ctx context.Context, run *localRun, pipeline *model.PipelineDefinition, from int, store *artifactStore) (model.RunStatus, *model.RunFailure) {
	logger := ctxlog.From(ctx)

	for i := from; i < len(pipeline.Stages); i++ {
		stage := pipeline.Stages[i]
		e.setStage(run, i)
		logger.Info("Stage started", "stage", stage.Name, "index", i)

		failure, err := e.runStage(ctx, stage, store)
		if err == nil {
			continue
		}

		select {
		case <-run.stop:
			return model.RunCancelled, nil
		default:
			logger.Error("Stage failed", "stage", stage.Name, "error", err)
			return model.RunFailed, failure
		}
	}

	return model.RunSucceeded, nil
}

// runStage runs the actions of a stage wave by wave. Actions of a wave run concurrently; the first
// failing action cancels its siblings and fails the stage.
func (e *Local) runStage(ctx context.Context, stage model.Stage, store *artifactStore) (*model.RunFailure, error) {
	waves, err := model.ActionWaves(stage)
	if err != nil {
		return &model.RunFailure{Stage: stage.Name, Message: err.Error()}, err
	}

	for _, wave := range waves {
		var (
			failMu  sync.Mutex
			failure *model.RunFailure
		)

		eg, egCtx := errgroup.WithContext(ctx)
		for _, action := range wave {
			eg.Go(func() error {
				if err := e.runAction(egCtx, action, store); err != nil {
					failMu.Lock()
					if failure == nil {
						failure = &model.RunFailure{Stage: stage.Name, Action: action.Name, Message: err.Error()}
					}
					failMu.Unlock()
					return err
				}
				return nil
			})
		}

		if err := eg.Wait(); err != nil {
			return failure, goerr.Wrap(types.ErrStageFailed, "stage failed",
				goerr.V("stage", stage.Name), goerr.V("cause", err.Error()))
		}
	}
	return nil, nil
}

func (e *Local) runAction(ctx context.Context, action model.Action, store *artifactStore) error {
	logger := ctxlog.From(ctx).With("action", action.Name)

	var (
		out *model.Artifact
		err error
	)

	switch action.Kind {
	case model.ActionSourceFetch:
		out, err = e.fetcher.Fetch(ctx, action.Source)

	case model.ActionBuildRun:
		input, ok := store.get(action.Inputs[0])
		if !ok {
			return goerr.Wrap(types.ErrActionFailed, "input artifact is missing",
				goerr.V("action", action.Name), goerr.V("artifact", action.Inputs[0]))
		}
		out, err = e.builder.Run(ctx, action.Build, input)

	default:
		return goerr.Wrap(types.ErrActionFailed, "unknown action kind", goerr.V("action", action.Name), goerr.V("kind", action.Kind))
	}

	if err != nil {
		return goerr.Wrap(types.ErrActionFailed, "action failed",
			goerr.V("action", action.Name), goerr.V("cause", err.Error()))
	}

	if out != nil {
		store.add(out, action.Outputs)
	}
	logger.Info("Action succeeded", "outputs", action.Outputs)
	return nil
}

type artifactStore struct {
	mu        sync.Mutex
	artifacts map[string]*model.Artifact
	cleanups  []string
}

func newArtifactStore() *artifactStore {
	return &artifactStore{artifacts: make(map[string]*model.Artifact)}
}

func (s *artifactStore) add(a *model.Artifact, names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Cleanup != "" {
		s.cleanups = append(s.cleanups, a.Cleanup)
	}
	for _, name := range names {
		named := *a
		named.Name = name
		s.artifacts[name] = &named
	}
}

func (s *artifactStore) get(name string) (*model.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[name]
	return a, ok
}

func (s *artifactStore) cleanup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dir := range s.cleanups {
		if err := os.RemoveAll(dir); err != nil {
			ctxlog.From(ctx).Warn("Failed to remove artifact directory", "dir", dir, "error", err)
		}
	}
	s.cleanups = nil
}
