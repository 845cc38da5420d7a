package config

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/infra/buildspec"
	"github.com/m-mizutani/herald/pkg/infra/codepipeline"
	"github.com/m-mizutani/herald/pkg/infra/engine"
	"github.com/m-mizutani/herald/pkg/infra/github"
	"github.com/m-mizutani/herald/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Engine selects the pipeline execution engine
type Engine struct {
	Backend       string
	AWSRegion     string
	AWSEndpoint   string
	MaxConcurrent int64
	Shell         string

	GitHubBaseURL        string
	GitHubAppID          int64
	GitHubInstallationID int64
	GitHubPrivateKeyFile string
}

// Flags returns CLI flags for the pipeline engine
func (c *Engine) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "engine",
			Usage:       "Pipeline engine (codepipeline, local)",
			Value:       "codepipeline",
			Destination: &c.Backend,
			Sources:     cli.EnvVars("HERALD_ENGINE"),
		},
		&cli.StringFlag{
			Name:        "engine-aws-region",
			Usage:       "AWS region of CodePipeline",
			Destination: &c.AWSRegion,
			Sources:     cli.EnvVars("HERALD_ENGINE_AWS_REGION", "AWS_REGION"),
		},
		&cli.StringFlag{
			Name:        "engine-aws-endpoint",
			Usage:       "Custom CodePipeline endpoint",
			Destination: &c.AWSEndpoint,
			Sources:     cli.EnvVars("HERALD_ENGINE_AWS_ENDPOINT"),
		},
		&cli.Int64Flag{
			Name:        "engine-max-concurrent-runs",
			Usage:       "Runs the local engine executes at the same time",
			Value:       1,
			Destination: &c.MaxConcurrent,
			Sources:     cli.EnvVars("HERALD_ENGINE_MAX_CONCURRENT_RUNS"),
		},
		&cli.StringFlag{
			Name:        "engine-shell",
			Usage:       "Shell running buildspec commands in the local engine",
			Value:       "sh",
			Destination: &c.Shell,
			Sources:     cli.EnvVars("HERALD_ENGINE_SHELL"),
		},
		&cli.StringFlag{
			Name:        "github-base-url",
			Usage:       "GitHub API base URL (GitHub Enterprise Server)",
			Destination: &c.GitHubBaseURL,
			Sources:     cli.EnvVars("HERALD_GITHUB_BASE_URL"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID; the access token is used when not set",
			Destination: &c.GitHubAppID,
			Sources:     cli.EnvVars("HERALD_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-app-installation-id",
			Usage:       "GitHub App installation ID",
			Destination: &c.GitHubInstallationID,
			Sources:     cli.EnvVars("HERALD_GITHUB_APP_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-app-private-key-file",
			Usage:       "Path of the GitHub App private key (PEM)",
			Destination: &c.GitHubPrivateKeyFile,
			Sources:     cli.EnvVars("HERALD_GITHUB_APP_PRIVATE_KEY_FILE"),
		},
	}
}

// GitHubClient creates a GitHub client. App credentials take precedence over the access token.
func (c *Engine) GitHubClient(token *model.Secret) (*github.Client, error) {
	var opts []github.Option
	if c.GitHubBaseURL != "" {
		opts = append(opts, github.WithBaseURL(c.GitHubBaseURL))
	}

	if c.GitHubAppID == 0 {
		return github.NewClient(token, opts...)
	}

	if c.GitHubInstallationID == 0 || c.GitHubPrivateKeyFile == "" {
		return nil, goerr.New("github-app-installation-id and github-app-private-key-file are required with github-app-id")
	}
	key, err := os.ReadFile(c.GitHubPrivateKeyFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read GitHub App private key", goerr.V("path", c.GitHubPrivateKeyFile))
	}
	return github.NewAppClient(c.GitHubAppID, c.GitHubInstallationID, key, opts...)
}

// CodePipeline creates the CodePipeline engine client
func (c *Engine) CodePipeline(ctx context.Context) (*codepipeline.Engine, error) {
	var opts []codepipeline.Option
	if c.AWSRegion != "" {
		opts = append(opts, codepipeline.WithRegion(c.AWSRegion))
	}
	if c.AWSEndpoint != "" {
		opts = append(opts, codepipeline.WithEndpoint(c.AWSEndpoint))
	}
	return codepipeline.New(ctx, opts...)
}

// Build creates the engine. shutdown waits for local runs and is never nil.
func (c *Engine) Build(ctx context.Context, secrets *model.Secrets) (interfaces.PipelineEngine, func(context.Context) error, error) {
	switch c.Backend {
	case "codepipeline", "":
		e, err := c.CodePipeline(ctx)
		if err != nil {
			return nil, nil, err
		}
		return e, func(context.Context) error { return nil }, nil

	case "local":
		gh, err := c.GitHubClient(secrets.AccessToken)
		if err != nil {
			return nil, nil, err
		}
		local := engine.NewLocal(
			usecase.NewSourceFetcher(gh),
			buildspec.NewRunner(buildspec.WithShell(c.Shell)),
			engine.WithMaxConcurrentRuns(int(c.MaxConcurrent)),
		)
		return local, local.Shutdown, nil

	default:
		return nil, nil, goerr.New("unknown pipeline engine", goerr.V("engine", c.Backend))
	}
}
