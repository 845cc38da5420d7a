package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/pkg/cli/config"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func TestFilter_EventFilters(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Filter
		want    []model.EventFilter
		wantErr bool
	}{
		{
			name: "default filter when nothing is configured",
			cfg:  config.Filter{},
			want: []model.EventFilter{config.DefaultFilter},
		},
		{
			name: "default filter disabled",
			cfg:  config.Filter{NoDefault: true},
			want: []model.EventFilter{},
		},
		{
			name: "command line filters replace the default",
			cfg:  config.Filter{Exprs: []string{"$.release.prerelease=false", "$.repository.name=octo-app"}},
			want: []model.EventFilter{
				{FieldPath: "$.release.prerelease", ExpectedValue: "false"},
				{FieldPath: "$.repository.name", ExpectedValue: "octo-app"},
			},
		},
		{
			name: "file filters come first",
			cfg: config.Filter{
				Exprs:    []string{"$.action=released"},
				FromFile: []model.EventFilter{{FieldPath: "$.release.draft", ExpectedValue: "false"}},
			},
			want: []model.EventFilter{
				{FieldPath: "$.release.draft", ExpectedValue: "false"},
				{FieldPath: "$.action", ExpectedValue: "released"},
			},
		},
		{
			name: "value may contain equal signs",
			cfg:  config.Filter{Exprs: []string{"$.release.body=a=b"}},
			want: []model.EventFilter{{FieldPath: "$.release.body", ExpectedValue: "a=b"}},
		},
		{
			name:    "missing separator",
			cfg:     config.Filter{Exprs: []string{"$.action"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.EventFilters()
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.A(t, got).Length(len(tt.want))
			for i := range tt.want {
				gt.Value(t, got[i]).Equal(tt.want[i])
			}
		})
	}
}

func TestProject_Pipeline(t *testing.T) {
	base := config.Project{
		Name:        "blue",
		Owner:       "octo-org",
		Repo:        "octo-app",
		Branch:      "main",
		BuildSpec:   model.DefaultBuildSpec,
		EntryAction: "source/source",
	}

	t.Run("default release pipeline", func(t *testing.T) {
		cfg := base
		pipeline, entry, err := cfg.Pipeline("github-token")
		gt.NoError(t, err)
		gt.Value(t, pipeline.ID).Equal(types.PipelineID("blue-deploy-pipeline"))
		gt.Value(t, entry).Equal(model.DefaultEntryAction())
		gt.A(t, pipeline.Stages).Length(2)
		gt.Value(t, pipeline.Stages[0].Actions[0].Source.CredentialRef).Equal(types.SecretName("github-token"))
		gt.Value(t, pipeline.Stages[1].Actions[0].Build.ProjectName).Equal("blue-deploy-project")
	})

	tests := []struct {
		name   string
		modify func(*config.Project)
		target error
	}{
		{name: "missing project name", modify: func(p *config.Project) { p.Name = "" }},
		{name: "missing owner", modify: func(p *config.Project) { p.Owner = "" }},
		{name: "entry without separator", modify: func(p *config.Project) { p.EntryAction = "source" }, target: types.ErrInvalidEntryAction},
		{name: "entry in second stage", modify: func(p *config.Project) { p.EntryAction = "deploy/deploy" }, target: types.ErrInvalidEntryAction},
		{name: "unknown entry", modify: func(p *config.Project) { p.EntryAction = "source/checkout" }, target: types.ErrInvalidEntryAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			_, _, err := cfg.Pipeline("github-token")
			gt.Error(t, err)
			if tt.target != nil {
				gt.True(t, errors.Is(err, tt.target))
			}
		})
	}
}

func TestSecret_Store(t *testing.T) {
	t.Run("env backend", func(t *testing.T) {
		t.Setenv("HERALD_SECRET_GITHUB_TOKEN", "ghp_example")
		cfg := config.Secret{Backend: "env", EnvPrefix: "HERALD_SECRET_"}
		store, err := cfg.Store(context.Background())
		gt.NoError(t, err)

		v, err := store.GetSecret(context.Background(), "github-token")
		gt.NoError(t, err)
		gt.Value(t, v).Equal("ghp_example")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.Secret{Backend: "vault"}
		_, err := cfg.Store(context.Background())
		gt.Error(t, err)
	})
}

func TestLedger_Build(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		cfg := config.Ledger{Backend: "memory"}
		l, closeFn, err := cfg.Build(context.Background())
		gt.NoError(t, err)
		gt.NotNil(t, l)
		gt.NoError(t, closeFn())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Ledger{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "ledger.db")}
		l, closeFn, err := cfg.Build(context.Background())
		gt.NoError(t, err)
		gt.NotNil(t, l)
		gt.NoError(t, closeFn())
	})

	t.Run("firestore requires a project", func(t *testing.T) {
		cfg := config.Ledger{Backend: "firestore"}
		_, _, err := cfg.Build(context.Background())
		gt.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.Ledger{Backend: "redis"}
		_, _, err := cfg.Build(context.Background())
		gt.Error(t, err)
	})
}

func TestEngine_GitHubClient(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		cfg := config.Engine{}
		client, err := cfg.GitHubClient(model.NewSecret("github-token", "ghp_example"))
		gt.NoError(t, err)
		gt.NotNil(t, client)
	})

	t.Run("app without key", func(t *testing.T) {
		cfg := config.Engine{GitHubAppID: 1}
		_, err := cfg.GitHubClient(nil)
		gt.Error(t, err)
	})

	t.Run("unknown engine", func(t *testing.T) {
		cfg := config.Engine{Backend: "jenkins"}
		_, _, err := cfg.Build(context.Background(), &model.Secrets{})
		gt.Error(t, err)
	})
}

type fileResult struct {
	server  config.Server
	project config.Project
	filter  config.Filter
}

func runWithFile(t *testing.T, content string, args ...string) (*fileResult, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "herald.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var (
		res  fileResult
		file config.File
	)
	flags := append(res.server.Flags(), res.project.Flags()...)
	flags = append(flags, res.filter.Flags()...)
	flags = append(flags, file.Flags()...)

	cmd := &cli.Command{
		Name:  "herald",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return file.Apply(c, &res.filter)
		},
	}

	err := cmd.Run(context.Background(), append([]string{"herald", "--config", path}, args...))
	return &res, err
}

func TestFile_Apply(t *testing.T) {
	const content = `
addr = "0.0.0.0:9000"
retry-after = "45s"
max-body-size = 1024
project-name = "blue"
source-owner = "octo-org"

[[filter]]
field_path = "$.action"
expected_value = "released"

[[filter]]
field_path = "$.release.prerelease"
expected_value = "false"
`

	t.Run("file values fill unset flags", func(t *testing.T) {
		res, err := runWithFile(t, content)
		gt.NoError(t, err)
		gt.Value(t, res.server.Addr).Equal("0.0.0.0:9000")
		gt.Value(t, res.server.RetryAfter).Equal(45 * time.Second)
		gt.Value(t, res.server.MaxBodySize).Equal(int64(1024))
		gt.Value(t, res.project.Name).Equal("blue")
		gt.Value(t, res.project.Owner).Equal("octo-org")
		gt.Value(t, res.project.Branch).Equal("main")

		filters, err := res.filter.EventFilters()
		gt.NoError(t, err)
		gt.A(t, filters).Length(2)
		gt.Value(t, filters[0]).Equal(model.EventFilter{FieldPath: "$.action", ExpectedValue: "released"})
	})

	t.Run("command line wins over file", func(t *testing.T) {
		res, err := runWithFile(t, content, "--addr", "127.0.0.1:7000")
		gt.NoError(t, err)
		gt.Value(t, res.server.Addr).Equal("127.0.0.1:7000")
		gt.Value(t, res.project.Name).Equal("blue")
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("HERALD_PROJECT_NAME", "green")
		res, err := runWithFile(t, content)
		gt.NoError(t, err)
		gt.Value(t, res.project.Name).Equal("green")
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := runWithFile(t, `no-such-flag = "x"`)
		gt.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := runWithFile(t, `retry-after = "soon"`)
		gt.Error(t, err)
	})

	t.Run("filter without path", func(t *testing.T) {
		_, err := runWithFile(t, "[[filter]]\nexpected_value = \"published\"\n")
		gt.Error(t, err)
	})

	t.Run("file filter keeps commas", func(t *testing.T) {
		res, err := runWithFile(t, "[[filter]]\nfield_path = \"$.release.name\"\nexpected_value = \"v1.2.0, hotfix\"\n")
		gt.NoError(t, err)

		filters, err := res.filter.EventFilters()
		gt.NoError(t, err)
		gt.A(t, filters).Length(1)
		gt.Value(t, filters[0]).Equal(model.EventFilter{FieldPath: "$.release.name", ExpectedValue: "v1.2.0, hotfix"})
	})

	t.Run("environment filters split on commas", func(t *testing.T) {
		t.Setenv("HERALD_FILTER", "$.action=published,$.release.draft=false")
		res, err := runWithFile(t, "")
		gt.NoError(t, err)

		filters, err := res.filter.EventFilters()
		gt.NoError(t, err)
		gt.A(t, filters).Length(2)
		gt.Value(t, filters[1]).Equal(model.EventFilter{FieldPath: "$.release.draft", ExpectedValue: "false"})
	})

	t.Run("broken toml", func(t *testing.T) {
		_, err := runWithFile(t, `addr = `)
		gt.Error(t, err)
	})
}
