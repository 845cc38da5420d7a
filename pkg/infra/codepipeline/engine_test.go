package codepipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cp "github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/aws/smithy-go"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/infra/codepipeline"
)

type mockAPI struct {
	startFunc    func(ctx context.Context, params *cp.StartPipelineExecutionInput) (*cp.StartPipelineExecutionOutput, error)
	getExecFunc  func(ctx context.Context, params *cp.GetPipelineExecutionInput) (*cp.GetPipelineExecutionOutput, error)
	getStateFunc func(ctx context.Context, params *cp.GetPipelineStateInput) (*cp.GetPipelineStateOutput, error)
	getFunc      func(ctx context.Context, params *cp.GetPipelineInput) (*cp.GetPipelineOutput, error)
	stopFunc     func(ctx context.Context, params *cp.StopPipelineExecutionInput) (*cp.StopPipelineExecutionOutput, error)
}

func (m *mockAPI) StartPipelineExecution(ctx context.Context, params *cp.StartPipelineExecutionInput, optFns ...func(*cp.Options)) (*cp.StartPipelineExecutionOutput, error) {
	return m.startFunc(ctx, params)
}

func (m *mockAPI) GetPipelineExecution(ctx context.Context, params *cp.GetPipelineExecutionInput, optFns ...func(*cp.Options)) (*cp.GetPipelineExecutionOutput, error) {
	return m.getExecFunc(ctx, params)
}

func (m *mockAPI) GetPipelineState(ctx context.Context, params *cp.GetPipelineStateInput, optFns ...func(*cp.Options)) (*cp.GetPipelineStateOutput, error) {
	if m.getStateFunc == nil {
		return nil, errors.New("not configured")
	}
	return m.getStateFunc(ctx, params)
}

func (m *mockAPI) GetPipeline(ctx context.Context, params *cp.GetPipelineInput, optFns ...func(*cp.Options)) (*cp.GetPipelineOutput, error) {
	return m.getFunc(ctx, params)
}

func (m *mockAPI) StopPipelineExecution(ctx context.Context, params *cp.StopPipelineExecutionInput, optFns ...func(*cp.Options)) (*cp.StopPipelineExecutionOutput, error) {
	return m.stopFunc(ctx, params)
}

func testPipeline() *model.PipelineDefinition {
	return model.NewReleasePipeline(model.ReleasePipelineConfig{ProjectName: "blue", Owner: "o", Repo: "r"})
}

func TestEngine_StartRun(t *testing.T) {
	var input *cp.StartPipelineExecutionInput
	engine := codepipeline.NewWithAPI(&mockAPI{
		startFunc: func(ctx context.Context, params *cp.StartPipelineExecutionInput) (*cp.StartPipelineExecutionOutput, error) {
			input = params
			return &cp.StartPipelineExecutionOutput{PipelineExecutionId: aws.String("exec-123")}, nil
		},
	})

	handle, err := engine.StartRun(context.Background(), testPipeline(), model.DefaultEntryAction(), "run-1")
	gt.NoError(t, err)
	gt.Value(t, handle).Equal("blue-deploy-pipeline:exec-123")
	gt.Value(t, aws.ToString(input.Name)).Equal("blue-deploy-pipeline")
	gt.Value(t, aws.ToString(input.ClientRequestToken)).Equal("run-1")
}

func TestEngine_StartRun_Errors(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantUnavailable bool
	}{
		{
			name:            "execution limit",
			err:             &smithy.GenericAPIError{Code: "ConcurrentPipelineExecutionsLimitExceededException"},
			wantUnavailable: true,
		},
		{
			name:            "pipeline missing",
			err:             &smithy.GenericAPIError{Code: "PipelineNotFoundException"},
			wantUnavailable: true,
		},
		{
			name:            "throttled",
			err:             &smithy.GenericAPIError{Code: "ThrottlingException"},
			wantUnavailable: true,
		},
		{
			name:            "validation error",
			err:             &smithy.GenericAPIError{Code: "ValidationException"},
			wantUnavailable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := codepipeline.NewWithAPI(&mockAPI{
				startFunc: func(ctx context.Context, params *cp.StartPipelineExecutionInput) (*cp.StartPipelineExecutionOutput, error) {
					return nil, tt.err
				},
			})

			_, err := engine.StartRun(context.Background(), testPipeline(), model.DefaultEntryAction(), "run-1")
			gt.Error(t, err)
			gt.Value(t, errors.Is(err, types.ErrPipelineUnavailable)).Equal(tt.wantUnavailable)
		})
	}
}

func TestEngine_GetRunStatus(t *testing.T) {
	tests := []struct {
		name   string
		status cptypes.PipelineExecutionStatus
		want   model.RunStatus
	}{
		{name: "in progress", status: cptypes.PipelineExecutionStatusInProgress, want: model.RunRunning},
		{name: "stopping", status: cptypes.PipelineExecutionStatusStopping, want: model.RunRunning},
		{name: "succeeded", status: cptypes.PipelineExecutionStatusSucceeded, want: model.RunSucceeded},
		{name: "failed", status: cptypes.PipelineExecutionStatusFailed, want: model.RunFailed},
		{name: "stopped", status: cptypes.PipelineExecutionStatusStopped, want: model.RunCancelled},
		{name: "superseded", status: cptypes.PipelineExecutionStatusSuperseded, want: model.RunCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := codepipeline.NewWithAPI(&mockAPI{
				getExecFunc: func(ctx context.Context, params *cp.GetPipelineExecutionInput) (*cp.GetPipelineExecutionOutput, error) {
					gt.Value(t, aws.ToString(params.PipelineName)).Equal("blue-deploy-pipeline")
					gt.Value(t, aws.ToString(params.PipelineExecutionId)).Equal("exec-123")
					return &cp.GetPipelineExecutionOutput{
						PipelineExecution: &cptypes.PipelineExecution{Status: tt.status},
					}, nil
				},
			})

			snapshot, err := engine.GetRunStatus(context.Background(), "blue-deploy-pipeline:exec-123")
			gt.NoError(t, err)
			gt.Value(t, snapshot.Status).Equal(tt.want)
		})
	}
}

func TestEngine_GetRunStatus_FailedStage(t *testing.T) {
	engine := codepipeline.NewWithAPI(&mockAPI{
		getExecFunc: func(ctx context.Context, params *cp.GetPipelineExecutionInput) (*cp.GetPipelineExecutionOutput, error) {
			return &cp.GetPipelineExecutionOutput{
				PipelineExecution: &cptypes.PipelineExecution{
					Status:        cptypes.PipelineExecutionStatusFailed,
					StatusSummary: aws.String("deploy failed"),
				},
			}, nil
		},
		getStateFunc: func(ctx context.Context, params *cp.GetPipelineStateInput) (*cp.GetPipelineStateOutput, error) {
			return &cp.GetPipelineStateOutput{StageStates: []cptypes.StageState{
				{
					StageName: aws.String("source"),
					LatestExecution: &cptypes.StageExecution{
						PipelineExecutionId: aws.String("exec-123"),
						Status:              cptypes.StageExecutionStatusSucceeded,
					},
				},
				{
					StageName: aws.String("deploy"),
					LatestExecution: &cptypes.StageExecution{
						PipelineExecutionId: aws.String("exec-123"),
						Status:              cptypes.StageExecutionStatusFailed,
					},
					ActionStates: []cptypes.ActionState{
						{
							ActionName: aws.String("deploy"),
							LatestExecution: &cptypes.ActionExecution{
								Status:       cptypes.ActionExecutionStatusFailed,
								ErrorDetails: &cptypes.ErrorDetails{Message: aws.String("COMMAND_EXECUTION_ERROR")},
							},
						},
					},
				},
			}}, nil
		},
	})

	snapshot, err := engine.GetRunStatus(context.Background(), "blue-deploy-pipeline:exec-123")
	gt.NoError(t, err)
	gt.Value(t, snapshot.Status).Equal(model.RunFailed)
	gt.Value(t, snapshot.StageIndex).Equal(1)
	gt.Value(t, *snapshot.Failure).Equal(model.RunFailure{Stage: "deploy", Action: "deploy", Message: "COMMAND_EXECUTION_ERROR"})
}

func TestEngine_GetRunStatus_BadHandle(t *testing.T) {
	engine := codepipeline.NewWithAPI(&mockAPI{})
	_, err := engine.GetRunStatus(context.Background(), "no-separator")
	gt.Error(t, err)
}

func TestEngine_Cancel(t *testing.T) {
	var input *cp.StopPipelineExecutionInput
	engine := codepipeline.NewWithAPI(&mockAPI{
		stopFunc: func(ctx context.Context, params *cp.StopPipelineExecutionInput) (*cp.StopPipelineExecutionOutput, error) {
			input = params
			return &cp.StopPipelineExecutionOutput{}, nil
		},
	})

	gt.NoError(t, engine.Cancel(context.Background(), "blue-deploy-pipeline:exec-123", "operator request", false))
	gt.Value(t, aws.ToString(input.PipelineName)).Equal("blue-deploy-pipeline")
	gt.Value(t, aws.ToString(input.PipelineExecutionId)).Equal("exec-123")
	gt.Value(t, aws.ToString(input.Reason)).Equal("operator request")
	gt.False(t, input.Abandon)

	gt.NoError(t, engine.CancelRun(context.Background(), "blue-deploy-pipeline:exec-456", "bad tag"))
	gt.Value(t, aws.ToString(input.PipelineExecutionId)).Equal("exec-456")
	gt.False(t, input.Abandon)
}

func TestEngine_VerifyEntryAction(t *testing.T) {
	engine := codepipeline.NewWithAPI(&mockAPI{
		getFunc: func(ctx context.Context, params *cp.GetPipelineInput) (*cp.GetPipelineOutput, error) {
			return &cp.GetPipelineOutput{Pipeline: &cptypes.PipelineDeclaration{
				Name: params.Name,
				Stages: []cptypes.StageDeclaration{
					{Name: aws.String("source"), Actions: []cptypes.ActionDeclaration{{Name: aws.String("source")}}},
					{Name: aws.String("deploy"), Actions: []cptypes.ActionDeclaration{{Name: aws.String("deploy")}}},
				},
			}}, nil
		},
	})
	ctx := context.Background()

	gt.NoError(t, engine.VerifyEntryAction(ctx, "blue-deploy-pipeline", model.DefaultEntryAction()))

	err := engine.VerifyEntryAction(ctx, "blue-deploy-pipeline", model.ActionRef{Stage: "deploy", Action: "deploy"})
	gt.True(t, errors.Is(err, types.ErrInvalidEntryAction))

	err = engine.VerifyEntryAction(ctx, "blue-deploy-pipeline", model.ActionRef{Stage: "source", Action: "checkout"})
	gt.True(t, errors.Is(err, types.ErrInvalidEntryAction))
}
