package codepipeline

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	cp "github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/aws/smithy-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// API is the subset of the CodePipeline client used by the engine
type API interface {
	StartPipelineExecution(ctx context.Context, params *cp.StartPipelineExecutionInput, optFns ...func(*cp.Options)) (*cp.StartPipelineExecutionOutput, error)
	GetPipelineExecution(ctx context.Context, params *cp.GetPipelineExecutionInput, optFns ...func(*cp.Options)) (*cp.GetPipelineExecutionOutput, error)
	GetPipelineState(ctx context.Context, params *cp.GetPipelineStateInput, optFns ...func(*cp.Options)) (*cp.GetPipelineStateOutput, error)
	GetPipeline(ctx context.Context, params *cp.GetPipelineInput, optFns ...func(*cp.Options)) (*cp.GetPipelineOutput, error)
	StopPipelineExecution(ctx context.Context, params *cp.StopPipelineExecutionInput, optFns ...func(*cp.Options)) (*cp.StopPipelineExecutionOutput, error)
}

// Error codes meaning the pipeline cannot take another execution right now
var unavailableCodes = map[string]struct{}{
	"ConcurrentPipelineExecutionsLimitExceededException": {},
	"ConflictException":                                  {},
	"PipelineNotFoundException":                          {},
	"ThrottlingException":                                {},
	"ServiceUnavailableException":                        {},
}

// Engine runs pipelines on AWS CodePipeline. The handle of a run is "<pipeline name>:<execution id>".
type Engine struct {
	api API
}

var (
	_ interfaces.PipelineEngine = (*Engine)(nil)
	_ interfaces.RunCanceler    = (*Engine)(nil)
	_ interfaces.EntryVerifier  = (*Engine)(nil)
)

// Option configures the AWS client
type Option func(*options)

type options struct {
	region   string
	endpoint string
}

// WithRegion overrides the region from the default AWS configuration
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithEndpoint points the client at a custom endpoint
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// New creates an engine using the default AWS credential chain
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load AWS config")
	}

	api := cp.NewFromConfig(cfg, func(cpo *cp.Options) {
		if o.endpoint != "" {
			cpo.BaseEndpoint = aws.String(o.endpoint)
		}
	})
	return NewWithAPI(api), nil
}

// NewWithAPI wraps an existing API implementation
func NewWithAPI(api API) *Engine {
	return &Engine{api: api}
}

// StartRun starts an execution of the pipeline named by pipeline.ID. CodePipeline always enters at
// its source stage, which holds the entry action. runID is sent as the idempotency token and is
// derived from the event identity, so a redelivery after a lost reply does not start a second
// execution.
func (e *Engine) StartRun(ctx context.Context, pipeline *model.PipelineDefinition, entry model.ActionRef, runID types.RunID) (string, error) {
	name := string(pipeline.ID)

	out, err := e.api.StartPipelineExecution(ctx, &cp.StartPipelineExecutionInput{
		Name:               aws.String(name),
		ClientRequestToken: aws.String(string(runID)),
	})
	if err != nil {
		return "", wrapAPIError(err, "failed to start pipeline execution", goerr.V("pipeline", name), goerr.V("run_id", runID))
	}

	executionID := aws.ToString(out.PipelineExecutionId)
	ctxlog.From(ctx).Debug("Started CodePipeline execution",
		"pipeline", name,
		"execution_id", executionID,
		"entry", entry.String(),
	)

	return encodeHandle(name, executionID), nil
}

// GetRunStatus maps the execution status and locates the stage the execution reached
func (e *Engine) GetRunStatus(ctx context.Context, handle string) (*model.RunSnapshot, error) {
	name, executionID, err := decodeHandle(handle)
	if err != nil {
		return nil, err
	}

	out, err := e.api.GetPipelineExecution(ctx, &cp.GetPipelineExecutionInput{
		PipelineName:        aws.String(name),
		PipelineExecutionId: aws.String(executionID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PipelineExecutionNotFoundException" {
			return nil, goerr.Wrap(types.ErrRunNotFound, "execution not found", goerr.V("handle", handle))
		}
		return nil, goerr.Wrap(err, "failed to get pipeline execution", goerr.V("handle", handle))
	}
	if out.PipelineExecution == nil {
		return nil, goerr.Wrap(types.ErrRunNotFound, "empty execution", goerr.V("handle", handle))
	}

	snapshot := &model.RunSnapshot{Status: mapStatus(out.PipelineExecution.Status)}
	if snapshot.Status == model.RunFailed {
		snapshot.Failure = &model.RunFailure{Message: aws.ToString(out.PipelineExecution.StatusSummary)}
	}

	state, err := e.api.GetPipelineState(ctx, &cp.GetPipelineStateInput{Name: aws.String(name)})
	if err != nil {
		// Stage position is best effort; the status above is authoritative.
		ctxlog.From(ctx).Warn("Failed to get pipeline state", "error", err, "pipeline", name)
		return snapshot, nil
	}

	applyStageState(snapshot, executionID, state.StageStates)
	return snapshot, nil
}

// Cancel stops an execution. The execution finishes its in-progress actions unless abandon is set.
func (e *Engine) Cancel(ctx context.Context, handle, reason string, abandon bool) error {
	name, executionID, err := decodeHandle(handle)
	if err != nil {
		return err
	}

	_, err = e.api.StopPipelineExecution(ctx, &cp.StopPipelineExecutionInput{
		PipelineName:        aws.String(name),
		PipelineExecutionId: aws.String(executionID),
		Reason:              aws.String(reason),
		Abandon:             abandon,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to stop pipeline execution", goerr.V("handle", handle))
	}
	return nil
}

// CancelRun stops an execution and lets in-progress actions finish
func (e *Engine) CancelRun(ctx context.Context, handle, reason string) error {
	return e.Cancel(ctx, handle, reason, false)
}

// VerifyEntryAction checks that the deployed pipeline has the entry action in its first stage
func (e *Engine) VerifyEntryAction(ctx context.Context, pipelineID types.PipelineID, entry model.ActionRef) error {
	out, err := e.api.GetPipeline(ctx, &cp.GetPipelineInput{Name: aws.String(string(pipelineID))})
	if err != nil {
		return wrapAPIError(err, "failed to get pipeline", goerr.V("pipeline", pipelineID))
	}
	if out.Pipeline == nil || len(out.Pipeline.Stages) == 0 {
		return goerr.Wrap(types.ErrInvalidPipeline, "pipeline has no stage", goerr.V("pipeline", pipelineID))
	}

	first := out.Pipeline.Stages[0]
	if aws.ToString(first.Name) != entry.Stage {
		return goerr.Wrap(types.ErrInvalidEntryAction, "entry stage is not the first stage",
			goerr.V("pipeline", pipelineID), goerr.V("first_stage", aws.ToString(first.Name)), goerr.V("entry", entry.String()))
	}
	for _, a := range first.Actions {
		if aws.ToString(a.Name) == entry.Action {
			return nil
		}
	}
	return goerr.Wrap(types.ErrInvalidEntryAction, "entry action not found in first stage",
		goerr.V("pipeline", pipelineID), goerr.V("entry", entry.String()))
}

func wrapAPIError(err error, msg string, opts ...goerr.Option) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := unavailableCodes[apiErr.ErrorCode()]; ok {
			opts = append(opts, goerr.V("code", apiErr.ErrorCode()), goerr.V("cause", err.Error()))
			return goerr.Wrap(types.ErrPipelineUnavailable, msg, opts...)
		}
	}
	return goerr.Wrap(err, msg, opts...)
}

func mapStatus(s cptypes.PipelineExecutionStatus) model.RunStatus {
	switch s {
	case cptypes.PipelineExecutionStatusSucceeded:
		return model.RunSucceeded
	case cptypes.PipelineExecutionStatusFailed:
		return model.RunFailed
	case cptypes.PipelineExecutionStatusStopped, cptypes.PipelineExecutionStatusSuperseded, cptypes.PipelineExecutionStatusCancelled:
		return model.RunCancelled
	default:
		return model.RunRunning
	}
}

// applyStageState sets the index of the last stage the execution entered and, for failed runs, the
// failing action
func applyStageState(snapshot *model.RunSnapshot, executionID string, stages []cptypes.StageState) {
	for i, st := range stages {
		if st.LatestExecution == nil || aws.ToString(st.LatestExecution.PipelineExecutionId) != executionID {
			continue
		}
		snapshot.StageIndex = i

		if snapshot.Failure == nil || st.LatestExecution.Status != cptypes.StageExecutionStatusFailed {
			continue
		}
		snapshot.Failure.Stage = aws.ToString(st.StageName)
		for _, a := range st.ActionStates {
			if a.LatestExecution == nil || a.LatestExecution.Status != cptypes.ActionExecutionStatusFailed {
				continue
			}
			snapshot.Failure.Action = aws.ToString(a.ActionName)
			if a.LatestExecution.ErrorDetails != nil {
				snapshot.Failure.Message = aws.ToString(a.LatestExecution.ErrorDetails.Message)
			}
			break
		}
	}
}
