package buildspec

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Spec is the subset of the CodeBuild buildspec format that the local runner executes
type Spec struct {
	Version   string    `yaml:"version"`
	Env       Env       `yaml:"env"`
	Phases    Phases    `yaml:"phases"`
	Artifacts Artifacts `yaml:"artifacts"`
}

// Env holds plain environment variables. Secret references are not resolved locally.
type Env struct {
	Variables map[string]string `yaml:"variables"`
}

// Phases in execution order
type Phases struct {
	Install   *Phase `yaml:"install"`
	PreBuild  *Phase `yaml:"pre_build"`
	Build     *Phase `yaml:"build"`
	PostBuild *Phase `yaml:"post_build"`
}

// Phase is a list of shell commands
type Phase struct {
	Commands []string `yaml:"commands"`
	Finally  []string `yaml:"finally"`
}

// Artifacts selects the files exported as the build output
type Artifacts struct {
	Files         []string `yaml:"files"`
	BaseDirectory string   `yaml:"base-directory"`
}

type namedPhase struct {
	name  string
	phase *Phase
}

func (p Phases) ordered() []namedPhase {
	return []namedPhase{
		{name: "install", phase: p.Install},
		{name: "pre_build", phase: p.PreBuild},
		{name: "build", phase: p.Build},
		{name: "post_build", phase: p.PostBuild},
	}
}

// Parse decodes a buildspec document
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, goerr.Wrap(err, "failed to parse buildspec")
	}
	if spec.Version == "" {
		return nil, goerr.New("buildspec version is required")
	}

	empty := true
	for _, p := range spec.Phases.ordered() {
		if p.phase != nil && len(p.phase.Commands) > 0 {
			empty = false
		}
	}
	if empty {
		return nil, goerr.New("buildspec has no command")
	}

	return &spec, nil
}

// Load reads and parses a buildspec file
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is inside the run's own source artifact
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read buildspec", goerr.V("path", path))
	}

	spec, err := Parse(data)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid buildspec", goerr.V("path", path))
	}
	return spec, nil
}
