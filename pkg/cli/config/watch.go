package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Watch controls the run watcher
type Watch struct {
	Disable  bool
	Interval time.Duration
	Timeout  time.Duration
}

// Flags returns CLI flags for the run watcher
func (c *Watch) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "watch-disable",
			Usage:       "Do not follow started runs",
			Destination: &c.Disable,
			Sources:     cli.EnvVars("HERALD_WATCH_DISABLE"),
		},
		&cli.DurationFlag{
			Name:        "watch-interval",
			Usage:       "Polling interval of run status",
			Value:       10 * time.Second,
			Destination: &c.Interval,
			Sources:     cli.EnvVars("HERALD_WATCH_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:        "watch-timeout",
			Usage:       "Give up following a run after this duration",
			Value:       2 * time.Hour,
			Destination: &c.Timeout,
			Sources:     cli.EnvVars("HERALD_WATCH_TIMEOUT"),
		},
	}
}
