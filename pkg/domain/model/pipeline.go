package model

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// ActionKind distinguishes the action variants
type ActionKind string

const (
	ActionSourceFetch ActionKind = "source_fetch"
	ActionBuildRun    ActionKind = "build_run"
)

// SourceFetch pulls repository contents from the source host
type SourceFetch struct {
	Owner         string
	Repo          string
	Branch        string
	CredentialRef types.SecretName
}

// BuildRun runs a build job against an input artifact
type BuildRun struct {
	ProjectName string
	BuildSpec   string // path of the buildspec inside the input artifact
	Env         map[string]string
}

// Action is a named unit of work. Exactly one of Source and Build is set, according to Kind.
type Action struct {
	Name    string
	Kind    ActionKind
	Source  *SourceFetch
	Build   *BuildRun
	Inputs  []string // artifact names consumed
	Outputs []string // artifact names produced
}

// Stage is a named, ordered set of actions
type Stage struct {
	Name    string
	Actions []Action
}

// ActionRef names an action inside a pipeline
type ActionRef struct {
	Stage  string
	Action string
}

func (r ActionRef) String() string { return r.Stage + "/" + r.Action }

// PipelineDefinition is an ordered sequence of stages
type PipelineDefinition struct {
	ID     types.PipelineID
	Stages []Stage
}

// Validate checks the structural invariants of the definition
func (p *PipelineDefinition) Validate() error {
	if p.ID == "" {
		return goerr.Wrap(types.ErrInvalidPipeline, "pipeline id is empty")
	}
	if len(p.Stages) == 0 {
		return goerr.Wrap(types.ErrInvalidPipeline, "pipeline has no stage", goerr.V("pipeline", p.ID))
	}

	first := p.Stages[0]
	producesSource := false
	for _, a := range first.Actions {
		if a.Kind == ActionSourceFetch && len(a.Outputs) > 0 {
			producesSource = true
		}
	}
	if !producesSource {
		return goerr.Wrap(types.ErrInvalidPipeline, "first stage must fetch source into an artifact",
			goerr.V("pipeline", p.ID), goerr.V("stage", first.Name))
	}

	stageNames := make(map[string]struct{})
	produced := make(map[string]string) // artifact -> producing action
	for _, s := range p.Stages {
		if s.Name == "" {
			return goerr.Wrap(types.ErrInvalidPipeline, "stage name is empty", goerr.V("pipeline", p.ID))
		}
		if _, dup := stageNames[s.Name]; dup {
			return goerr.Wrap(types.ErrInvalidPipeline, "duplicated stage name", goerr.V("stage", s.Name))
		}
		stageNames[s.Name] = struct{}{}

		if len(s.Actions) == 0 {
			return goerr.Wrap(types.ErrInvalidPipeline, "stage has no action", goerr.V("stage", s.Name))
		}

		if err := validateStageActions(s, produced); err != nil {
			return err
		}
	}

	return nil
}

// validateStageActions checks one stage. An input may come from an earlier stage or from an
// action in the same stage; cycles within a stage are rejected.
func validateStageActions(s Stage, produced map[string]string) error {
	local := make(map[string]string)
	names := make(map[string]struct{})
	for _, a := range s.Actions {
		if a.Name == "" {
			return goerr.Wrap(types.ErrInvalidPipeline, "action name is empty", goerr.V("stage", s.Name))
		}
		if _, dup := names[a.Name]; dup {
			return goerr.Wrap(types.ErrInvalidPipeline, "duplicated action name",
				goerr.V("stage", s.Name), goerr.V("action", a.Name))
		}
		names[a.Name] = struct{}{}

		switch a.Kind {
		case ActionSourceFetch:
			if a.Source == nil || a.Source.Owner == "" || a.Source.Repo == "" {
				return goerr.Wrap(types.ErrInvalidPipeline, "source action requires owner and repo",
					goerr.V("action", a.Name))
			}
		case ActionBuildRun:
			if a.Build == nil || len(a.Inputs) == 0 {
				return goerr.Wrap(types.ErrInvalidPipeline, "build action requires a job and an input artifact",
					goerr.V("action", a.Name))
			}
		default:
			return goerr.Wrap(types.ErrInvalidPipeline, "unknown action kind",
				goerr.V("action", a.Name), goerr.V("kind", a.Kind))
		}

		for _, out := range a.Outputs {
			if owner, dup := produced[out]; dup {
				return goerr.Wrap(types.ErrInvalidPipeline, "artifact produced twice",
					goerr.V("artifact", out), goerr.V("first", owner), goerr.V("second", a.Name))
			}
			if owner, dup := local[out]; dup {
				return goerr.Wrap(types.ErrInvalidPipeline, "artifact produced twice",
					goerr.V("artifact", out), goerr.V("first", owner), goerr.V("second", a.Name))
			}
			local[out] = a.Name
		}
	}

	for _, a := range s.Actions {
		for _, in := range a.Inputs {
			if _, ok := produced[in]; ok {
				continue
			}
			if owner, ok := local[in]; !ok || owner == a.Name {
				return goerr.Wrap(types.ErrInvalidPipeline, "input artifact is not produced earlier",
					goerr.V("action", a.Name), goerr.V("artifact", in))
			}
		}
	}

	if _, err := ActionWaves(s); err != nil {
		return err
	}

	for out, owner := range local {
		produced[out] = fmt.Sprintf("%s/%s", s.Name, owner)
	}
	return nil
}

// ActionWaves orders the actions of a stage into waves. Actions in one wave have no artifact
// dependency on each other and may run concurrently; a wave starts after the previous one.
func ActionWaves(s Stage) ([][]Action, error) {
	local := make(map[string]string)
	for _, a := range s.Actions {
		for _, out := range a.Outputs {
			local[out] = a.Name
		}
	}

	done := make(map[string]bool)
	var waves [][]Action
	for len(done) < len(s.Actions) {
		var wave []Action
		for _, a := range s.Actions {
			if done[a.Name] {
				continue
			}
			ready := true
			for _, in := range a.Inputs {
				if owner, ok := local[in]; ok && !done[owner] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, a)
			}
		}
		if len(wave) == 0 {
			return nil, goerr.Wrap(types.ErrInvalidPipeline, "artifact dependency cycle in stage", goerr.V("stage", s.Name))
		}
		for _, a := range wave {
			done[a.Name] = true
		}
		waves = append(waves, wave)
	}

	return waves, nil
}

// FindAction returns the index of the stage containing ref and the action itself
func (p *PipelineDefinition) FindAction(ref ActionRef) (int, *Action, bool) {
	for i, s := range p.Stages {
		if s.Name != ref.Stage {
			continue
		}
		for j := range s.Actions {
			if s.Actions[j].Name == ref.Action {
				return i, &s.Actions[j], true
			}
		}
	}
	return -1, nil, false
}

// ReleasePipelineConfig describes the default two-stage release pipeline
type ReleasePipelineConfig struct {
	ProjectName   string
	Owner         string
	Repo          string
	Branch        string
	CredentialRef types.SecretName
	BuildSpec     string
}

const (
	SourceStageName    = "source"
	SourceActionName   = "source"
	DeployStageName    = "deploy"
	DeployActionName   = "deploy"
	SourceArtifactName = "source"
	DefaultBuildSpec   = "./buildspec.yml"
)

// PipelineName returns the engine-side pipeline name for a project
func PipelineName(projectName string) types.PipelineID {
	return types.PipelineID(projectName + "-deploy-pipeline")
}

// BuildProjectName returns the build project name for a project
func BuildProjectName(projectName string) string {
	return projectName + "-deploy-project"
}

// DefaultEntryAction is the source action, the target of the release webhook
func DefaultEntryAction() ActionRef {
	return ActionRef{Stage: SourceStageName, Action: SourceActionName}
}

// NewReleasePipeline builds the source -> deploy pipeline
func NewReleasePipeline(cfg ReleasePipelineConfig) *PipelineDefinition {
	buildSpec := cfg.BuildSpec
	if buildSpec == "" {
		buildSpec = DefaultBuildSpec
	}

	return &PipelineDefinition{
		ID: PipelineName(cfg.ProjectName),
		Stages: []Stage{
			{
				Name: SourceStageName,
				Actions: []Action{
					{
						Name: SourceActionName,
						Kind: ActionSourceFetch,
						Source: &SourceFetch{
							Owner:         cfg.Owner,
							Repo:          cfg.Repo,
							Branch:        cfg.Branch,
							CredentialRef: cfg.CredentialRef,
						},
						Outputs: []string{SourceArtifactName},
					},
				},
			},
			{
				Name: DeployStageName,
				Actions: []Action{
					{
						Name: DeployActionName,
						Kind: ActionBuildRun,
						Build: &BuildRun{
							ProjectName: BuildProjectName(cfg.ProjectName),
							BuildSpec:   buildSpec,
						},
						Inputs: []string{SourceArtifactName},
					},
				},
			},
		},
	}
}
