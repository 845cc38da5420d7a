package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// File is an optional TOML configuration file. Top level keys are flag names of the subcommand
// (global logging, tracing and Sentry flags are not read from it); filters are given
// as [[filter]] tables with field_path and expected_value. Flags and environment variables take
// precedence over the file.
type File struct {
	Path string
}

// Flags returns CLI flags for the configuration file
func (c *File) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "TOML configuration file",
			Destination: &c.Path,
			Sources:     cli.EnvVars("HERALD_CONFIG"),
		},
	}
}

type fileFilter struct {
	FieldPath     string `toml:"field_path"`
	ExpectedValue string `toml:"expected_value"`
}

// Apply sets every flag of cmd that is not set yet from the file and stores file filters in
// filter. It does nothing when no file is configured.
func (c *File) Apply(cmd *cli.Command, filter *Filter) error {
	if c.Path == "" {
		return nil
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", c.Path))
	}

	var values map[string]any
	if err := toml.Unmarshal(raw, &values); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", c.Path))
	}

	if _, ok := values["filter"]; ok {
		filters, err := decodeFilters(raw)
		if err != nil {
			return goerr.Wrap(err, "invalid filter in config file", goerr.V("path", c.Path))
		}
		if filter != nil {
			filter.FromFile = filters
		}
		delete(values, "filter")
	}

	known := flagNames(cmd)
	for name, v := range values {
		if !slices.Contains(known, name) || name == "config" {
			return goerr.New("unknown key in config file", goerr.V("key", name), goerr.V("path", c.Path))
		}
		if cmd.IsSet(name) {
			continue
		}

		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		for _, item := range items {
			if err := cmd.Set(name, fmt.Sprint(item)); err != nil {
				return goerr.Wrap(err, "invalid value in config file", goerr.V("key", name), goerr.V("path", c.Path))
			}
		}
	}

	return nil
}

func decodeFilters(raw []byte) ([]model.EventFilter, error) {
	var doc struct {
		Filter []fileFilter `toml:"filter"`
	}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, goerr.Wrap(err, "filter must be an array of tables")
	}

	filters := make([]model.EventFilter, 0, len(doc.Filter))
	for _, f := range doc.Filter {
		if f.FieldPath == "" {
			return nil, goerr.New("field_path is required")
		}
		filters = append(filters, model.EventFilter{FieldPath: f.FieldPath, ExpectedValue: f.ExpectedValue})
	}
	return filters, nil
}

func flagNames(cmd *cli.Command) []string {
	var names []string
	for _, f := range cmd.Flags {
		names = append(names, f.Names()...)
	}
	return names
}
