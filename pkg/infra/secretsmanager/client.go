package secretsmanager

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	sm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// AWS error codes mapped to resolver errors
const (
	resourceNotFoundException = "ResourceNotFoundException"
	accessDeniedException     = "AccessDeniedException"
)

// API is the subset of the Secrets Manager client used here
type API interface {
	GetSecretValue(ctx context.Context, params *sm.GetSecretValueInput, optFns ...func(*sm.Options)) (*sm.GetSecretValueOutput, error)
}

type client struct {
	api API
}

// Option configures the AWS client
type Option func(*options)

type options struct {
	region   string
	endpoint string
}

// WithRegion overrides the region from the default AWS configuration
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithEndpoint points the client at a custom endpoint such as LocalStack
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// New creates a SecretStore backed by AWS Secrets Manager using the default credential chain
func New(ctx context.Context, opts ...Option) (interfaces.SecretStore, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load AWS config")
	}

	api := sm.NewFromConfig(cfg, func(smo *sm.Options) {
		if o.endpoint != "" {
			smo.BaseEndpoint = aws.String(o.endpoint)
		}
	})

	return NewWithAPI(api), nil
}

// NewWithAPI wraps an existing API implementation
func NewWithAPI(api API) interfaces.SecretStore {
	return &client{api: api}
}

// GetSecret returns the secret string (or binary as string) for name. Values are never logged.
func (c *client) GetSecret(ctx context.Context, name types.SecretName) (string, error) {
	if name == "" {
		return "", goerr.New("secret name cannot be empty")
	}

	ctxlog.From(ctx).Debug("Retrieving secret", "secret_name", name)

	output, err := c.api.GetSecretValue(ctx, &sm.GetSecretValueInput{
		SecretId: aws.String(string(name)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case resourceNotFoundException:
				return "", goerr.Wrap(types.ErrSecretNotFound, "secret does not exist in Secrets Manager", goerr.V("name", name))
			case accessDeniedException:
				return "", goerr.Wrap(types.ErrAccessDenied, "not permitted to read secret", goerr.V("name", name))
			}
			return "", goerr.Wrap(err, "GetSecretValue failed",
				goerr.V("name", name), goerr.V("code", apiErr.ErrorCode()))
		}
		return "", goerr.Wrap(err, "GetSecretValue failed", goerr.V("name", name))
	}

	switch {
	case output.SecretString != nil:
		return *output.SecretString, nil
	case output.SecretBinary != nil:
		return string(output.SecretBinary), nil
	default:
		return "", goerr.Wrap(types.ErrSecretNotFound, "secret has no value", goerr.V("name", name))
	}
}
