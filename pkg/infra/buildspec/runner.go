package buildspec

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// Runner executes buildspec phases with sh in the input artifact directory
type Runner struct {
	shell string
	env   []string
}

var _ interfaces.BuildRunner = (*Runner)(nil)

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithShell replaces /bin/sh
func WithShell(shell string) RunnerOption {
	return func(r *Runner) { r.shell = shell }
}

// WithBaseEnv replaces the inherited process environment
func WithBaseEnv(env []string) RunnerOption {
	return func(r *Runner) { r.env = env }
}

// NewRunner creates a runner
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{shell: "/bin/sh", env: os.Environ()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the buildspec of job. Phases run in order; the first failing command stops the
// build after the phase's finally commands ran. When the buildspec declares artifacts they are
// copied into a new artifact owned by the caller.
func (r *Runner) Run(ctx context.Context, job *model.BuildRun, input *model.Artifact) (*model.Artifact, error) {
	logger := ctxlog.From(ctx).With("project", job.ProjectName)

	specPath := job.BuildSpec
	if specPath == "" {
		specPath = model.DefaultBuildSpec
	}
	spec, err := Load(filepath.Join(input.Dir, specPath))
	if err != nil {
		return nil, goerr.Wrap(types.ErrActionFailed, "cannot load buildspec",
			goerr.V("project", job.ProjectName), goerr.V("cause", err.Error()))
	}

	env := r.buildEnv(spec, job, input)

	for _, p := range spec.Phases.ordered() {
		if p.phase == nil {
			continue
		}
		logger.Info("Running build phase", "phase", p.name, "commands", len(p.phase.Commands))

		runErr := r.runCommands(ctx, input.Dir, env, p.phase.Commands)
		if finallyErr := r.runCommands(ctx, input.Dir, env, p.phase.Finally); finallyErr != nil && runErr == nil {
			runErr = finallyErr
		}
		if runErr != nil {
			return nil, goerr.Wrap(types.ErrActionFailed, "build phase failed",
				goerr.V("project", job.ProjectName), goerr.V("phase", p.name), goerr.V("cause", runErr.Error()))
		}
	}

	if len(spec.Artifacts.Files) == 0 {
		return nil, nil
	}
	return collectArtifacts(input.Dir, spec.Artifacts)
}

func (r *Runner) buildEnv(spec *Spec, job *model.BuildRun, input *model.Artifact) []string {
	env := append([]string(nil), r.env...)
	env = append(env,
		"CODEBUILD_SRC_DIR="+input.Dir,
		"CODEBUILD_BUILD_ID="+job.ProjectName,
	)
	env = appendSorted(env, spec.Env.Variables)
	return appendSorted(env, job.Env)
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

func (r *Runner) runCommands(ctx context.Context, dir string, env []string, commands []string) error {
	logger := ctxlog.From(ctx)

	for _, command := range commands {
		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, r.shell, "-c", command) // #nosec G204 -- commands come from the repository buildspec
		cmd.Dir = dir
		cmd.Env = env
		cmd.Stdout = &out
		cmd.Stderr = &out

		err := cmd.Run()
		logger.Debug("Build command finished", "command", command, "output", tail(out.String(), 4096))
		if err != nil {
			return goerr.Wrap(err, "build command failed",
				goerr.V("command", command), goerr.V("output", tail(out.String(), 1024)))
		}
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// collectArtifacts copies the files matched by the artifact globs, relative to the base directory,
// into a fresh directory
func collectArtifacts(srcDir string, a Artifacts) (*model.Artifact, error) {
	base := filepath.Join(srcDir, a.BaseDirectory)

	outDir, err := os.MkdirTemp("", "herald-build-*")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create artifact directory")
	}
	artifact := &model.Artifact{Dir: outDir, Cleanup: outDir}

	for _, pattern := range a.Files {
		matches, err := matchFiles(base, pattern)
		if err != nil {
			_ = os.RemoveAll(outDir)
			return nil, err
		}
		for _, rel := range matches {
			n, err := copyFile(filepath.Join(base, rel), filepath.Join(outDir, rel))
			if err != nil {
				_ = os.RemoveAll(outDir)
				return nil, err
			}
			artifact.Files = append(artifact.Files, rel)
			artifact.Size += n
		}
	}

	return artifact, nil
}

// matchFiles expands a pattern. "**/*" selects every regular file below base.
func matchFiles(base, pattern string) ([]string, error) {
	if pattern == "**/*" {
		var files []string
		err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				rel, err := filepath.Rel(base, path)
				if err != nil {
					return err
				}
				files = append(files, rel)
			}
			return nil
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to walk artifact base directory", goerr.V("base", base))
		}
		return files, nil
	}

	if strings.Contains(pattern, "..") {
		return nil, goerr.New("artifact pattern escapes base directory", goerr.V("pattern", pattern))
	}
	matches, err := filepath.Glob(filepath.Join(base, pattern))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid artifact pattern", goerr.V("pattern", pattern))
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		rel, err := filepath.Rel(base, m)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to resolve artifact path", goerr.V("path", m))
		}
		files = append(files, rel)
	}
	return files, nil
}

func copyFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, goerr.Wrap(err, "failed to create artifact subdirectory", goerr.V("path", dst))
	}

	in, err := os.Open(src) // #nosec G304 -- path matched inside the build directory
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open artifact file", goerr.V("path", src))
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create artifact file", goerr.V("path", dst))
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to copy artifact file", goerr.V("path", src))
	}
	return n, nil
}
