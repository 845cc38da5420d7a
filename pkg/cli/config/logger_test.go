package config_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/pkg/cli/config"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

func TestLogger_Configure(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{name: "debug", level: "debug"},
		{name: "DEBUG (case insensitive)", level: "DEBUG"},
		{name: "info", level: "info"},
		{name: "Info", level: "Info"},
		{name: "warn", level: "warn"},
		{name: "WARN", level: "WARN"},
		{name: "error", level: "error"},
		{name: "ERROR", level: "ERROR"},
		{name: "invalid", level: "invalid", wantErr: true},
		{name: "empty", level: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Logger{Level: tt.level, JSON: true}
			logger, err := cfg.Configure()
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.NotNil(t, logger)
		})
	}
}

func TestLogger_InvalidOutput(t *testing.T) {
	_, err := (&config.Logger{Level: "info", Output: "/dev/null"}).Configure()
	gt.Error(t, err)
}

func TestLogger_RedactsSecrets(t *testing.T) {
	type credentials struct {
		User  string
		Token string `masq:"secret"`
	}

	for _, jsonFormat := range []bool{true, false} {
		var buf bytes.Buffer
		logger, err := (&config.Logger{Level: "debug", JSON: jsonFormat}).New(&buf)
		gt.NoError(t, err)

		logger.Info("resolved",
			"secret", model.NewSecret("github-token", "ghp_plaintext"),
			"credentials", credentials{User: "octocat", Token: "tagged_plaintext"},
		)

		out := buf.String()
		gt.True(t, strings.Contains(out, "resolved"))
		if jsonFormat {
			gt.True(t, strings.Contains(out, "github-token"))
			gt.True(t, strings.Contains(out, "octocat"))
		}
		gt.False(t, strings.Contains(out, "ghp_plaintext"))
		gt.False(t, strings.Contains(out, "tagged_plaintext"))
	}
}
