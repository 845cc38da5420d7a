package config

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Project describes the release pipeline herald triggers
type Project struct {
	Name        string
	Owner       string
	Repo        string
	Branch      string
	BuildSpec   string
	EntryAction string
}

// Flags returns CLI flags for the project
func (c *Project) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project-name",
			Usage:       "Project name; the pipeline is <name>-deploy-pipeline",
			Destination: &c.Name,
			Sources:     cli.EnvVars("HERALD_PROJECT_NAME"),
		},
		&cli.StringFlag{
			Name:        "source-owner",
			Usage:       "GitHub owner of the source repository",
			Destination: &c.Owner,
			Sources:     cli.EnvVars("HERALD_SOURCE_OWNER"),
		},
		&cli.StringFlag{
			Name:        "source-repo",
			Usage:       "GitHub source repository name",
			Destination: &c.Repo,
			Sources:     cli.EnvVars("HERALD_SOURCE_REPO"),
		},
		&cli.StringFlag{
			Name:        "source-branch",
			Usage:       "Branch fetched by the source action",
			Value:       "main",
			Destination: &c.Branch,
			Sources:     cli.EnvVars("HERALD_SOURCE_BRANCH"),
		},
		&cli.StringFlag{
			Name:        "buildspec",
			Usage:       "Buildspec path inside the repository",
			Value:       model.DefaultBuildSpec,
			Destination: &c.BuildSpec,
			Sources:     cli.EnvVars("HERALD_BUILDSPEC"),
		},
		&cli.StringFlag{
			Name:        "entry-action",
			Usage:       "Entry action as stage/action",
			Value:       model.DefaultEntryAction().String(),
			Destination: &c.EntryAction,
			Sources:     cli.EnvVars("HERALD_ENTRY_ACTION"),
		},
	}
}

// Pipeline builds and validates the release pipeline and its entry action
func (c *Project) Pipeline(credentialRef types.SecretName) (*model.PipelineDefinition, model.ActionRef, error) {
	if c.Name == "" || c.Owner == "" || c.Repo == "" {
		return nil, model.ActionRef{}, goerr.New("project-name, source-owner and source-repo are required",
			goerr.V("project", c.Name), goerr.V("owner", c.Owner), goerr.V("repo", c.Repo))
	}

	stage, action, ok := strings.Cut(c.EntryAction, "/")
	if !ok || stage == "" || action == "" {
		return nil, model.ActionRef{}, goerr.Wrap(types.ErrInvalidEntryAction, "entry action must be stage/action",
			goerr.V("entry", c.EntryAction))
	}

	pipeline := model.NewReleasePipeline(model.ReleasePipelineConfig{
		ProjectName:   c.Name,
		Owner:         c.Owner,
		Repo:          c.Repo,
		Branch:        c.Branch,
		CredentialRef: credentialRef,
		BuildSpec:     c.BuildSpec,
	})
	if err := pipeline.Validate(); err != nil {
		return nil, model.ActionRef{}, err
	}

	entry := model.ActionRef{Stage: stage, Action: action}
	if idx, _, found := pipeline.FindAction(entry); !found || idx != 0 {
		return nil, model.ActionRef{}, goerr.Wrap(types.ErrInvalidEntryAction, "entry action must be in the first stage",
			goerr.V("entry", c.EntryAction))
	}

	return pipeline, entry, nil
}
