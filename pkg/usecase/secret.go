package usecase

import (
	"context"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// SecretResolver resolves secrets once and keeps them for the process lifetime
type SecretResolver struct {
	store interfaces.SecretStore

	mu    sync.Mutex
	cache map[types.SecretName]*model.Secret
}

// NewSecretResolver creates a resolver backed by store
func NewSecretResolver(store interfaces.SecretStore) *SecretResolver {
	return &SecretResolver{
		store: store,
		cache: make(map[types.SecretName]*model.Secret),
	}
}

// Resolve returns the secret for name, reading the store only on first use
func (r *SecretResolver) Resolve(ctx context.Context, name types.SecretName) (*model.Secret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache[name]; ok {
		return s, nil
	}

	value, err := r.store.GetSecret(ctx, name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve secret", goerr.V("name", name))
	}

	s := model.NewSecret(name, value)
	r.cache[name] = s
	ctxlog.From(ctx).Debug("Resolved secret", "secret", s)
	return s, nil
}

// Activate resolves the access token and, when signingKey is not empty, the webhook signing key.
// Any failure here must stop the service from serving events.
func (r *SecretResolver) Activate(ctx context.Context, accessToken, signingKey types.SecretName) (*model.Secrets, error) {
	if accessToken == "" {
		return nil, goerr.New("access token secret name is required")
	}

	token, err := r.Resolve(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	secrets := &model.Secrets{AccessToken: token}
	if signingKey == "" {
		ctxlog.From(ctx).Warn("No webhook signing secret configured, signature verification is disabled")
		return secrets, nil
	}

	if secrets.SigningKey, err = r.Resolve(ctx, signingKey); err != nil {
		return nil, err
	}

	return secrets, nil
}
