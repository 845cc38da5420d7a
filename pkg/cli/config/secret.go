package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/types"
	"github.com/m-mizutani/herald/pkg/infra/secret"
	"github.com/m-mizutani/herald/pkg/infra/secretsmanager"
	"github.com/urfave/cli/v3"
)

// Secret selects the secret store and the names of the secrets resolved at activation
type Secret struct {
	Backend     string
	AccessToken string
	SigningKey  string
	AWSRegion   string
	AWSEndpoint string
	EnvPrefix   string
}

// Flags returns CLI flags for the secret store
func (c *Secret) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "secret-backend",
			Usage:       "Secret store backend (aws, env)",
			Value:       "aws",
			Destination: &c.Backend,
			Sources:     cli.EnvVars("HERALD_SECRET_BACKEND"),
		},
		&cli.StringFlag{
			Name:        "access-token-secret-name",
			Usage:       "Secret name of the GitHub access token",
			Destination: &c.AccessToken,
			Sources:     cli.EnvVars("HERALD_ACCESS_TOKEN_SECRET_NAME"),
		},
		&cli.StringFlag{
			Name:        "webhook-signing-secret-name",
			Usage:       "Secret name of the webhook signing key; unsigned deliveries are accepted when empty",
			Destination: &c.SigningKey,
			Sources:     cli.EnvVars("HERALD_WEBHOOK_SIGNING_SECRET_NAME"),
		},
		&cli.StringFlag{
			Name:        "secret-aws-region",
			Usage:       "AWS region of Secrets Manager",
			Destination: &c.AWSRegion,
			Sources:     cli.EnvVars("HERALD_SECRET_AWS_REGION", "AWS_REGION"),
		},
		&cli.StringFlag{
			Name:        "secret-aws-endpoint",
			Usage:       "Custom Secrets Manager endpoint (e.g. LocalStack)",
			Destination: &c.AWSEndpoint,
			Sources:     cli.EnvVars("HERALD_SECRET_AWS_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:        "secret-env-prefix",
			Usage:       "Environment variable prefix of the env backend",
			Value:       secret.DefaultEnvPrefix,
			Destination: &c.EnvPrefix,
			Sources:     cli.EnvVars("HERALD_SECRET_ENV_PREFIX"),
		},
	}
}

// AccessTokenName returns the access token secret name
func (c *Secret) AccessTokenName() types.SecretName { return types.SecretName(c.AccessToken) }

// SigningKeyName returns the signing key secret name, empty in the reduced configuration
func (c *Secret) SigningKeyName() types.SecretName { return types.SecretName(c.SigningKey) }

// Store creates the configured secret store
func (c *Secret) Store(ctx context.Context) (interfaces.SecretStore, error) {
	switch c.Backend {
	case "aws", "":
		var opts []secretsmanager.Option
		if c.AWSRegion != "" {
			opts = append(opts, secretsmanager.WithRegion(c.AWSRegion))
		}
		if c.AWSEndpoint != "" {
			opts = append(opts, secretsmanager.WithEndpoint(c.AWSEndpoint))
		}
		return secretsmanager.New(ctx, opts...)
	case "env":
		return secret.NewEnvStore(c.EnvPrefix), nil
	default:
		return nil, goerr.New("unknown secret backend", goerr.V("backend", c.Backend))
	}
}
