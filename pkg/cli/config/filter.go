package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

// DefaultFilter only lets published releases through
var DefaultFilter = model.EventFilter{FieldPath: "$.action", ExpectedValue: "published"}

// Filter holds the event filters of the webhook gate
type Filter struct {
	Exprs     []string
	NoDefault bool

	// FromFile is filled by the config file loader
	FromFile []model.EventFilter
}

// Flags returns CLI flags for event filters
func (c *Filter) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "filter",
			Usage:       "Event filter as <json path>=<value>, repeatable; all filters must match. Values are split on commas, so use [[filter]] tables in the config file for values containing a comma",
			Destination: &c.Exprs,
			Sources:     cli.EnvVars("HERALD_FILTER"),
		},
		&cli.BoolFlag{
			Name:        "no-default-filter",
			Usage:       "Do not apply the $.action=published filter when no filter is configured",
			Destination: &c.NoDefault,
			Sources:     cli.EnvVars("HERALD_NO_DEFAULT_FILTER"),
		},
	}
}

// EventFilters returns file filters followed by command line filters. When both are empty the
// default filter applies unless disabled.
func (c *Filter) EventFilters() ([]model.EventFilter, error) {
	filters := append([]model.EventFilter(nil), c.FromFile...)
	for _, expr := range c.Exprs {
		f, ok := model.ParseEventFilter(expr)
		if !ok {
			return nil, goerr.New("invalid filter, expected <path>=<value>", goerr.V("filter", expr))
		}
		filters = append(filters, f)
	}

	if len(filters) == 0 && !c.NoDefault {
		filters = append(filters, DefaultFilter)
	}
	return filters, nil
}
