package secret

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/types"
)

// DefaultEnvPrefix prefixes environment variables read by the env store
const DefaultEnvPrefix = "HERALD_SECRET_"

type envStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvStore reads secrets from environment variables. The variable for a secret is the prefix
// followed by the upper-cased name with non-alphanumerics replaced by '_', so "github/token"
// is read from HERALD_SECRET_GITHUB_TOKEN.
func NewEnvStore(prefix string) interfaces.SecretStore {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &envStore{prefix: prefix, lookup: os.LookupEnv}
}

// EnvKey returns the environment variable name holding secret name
func EnvKey(prefix string, name types.SecretName) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range strings.ToUpper(string(name)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (s *envStore) GetSecret(ctx context.Context, name types.SecretName) (string, error) {
	key := EnvKey(s.prefix, name)
	value, ok := s.lookup(key)
	if !ok || value == "" {
		return "", goerr.Wrap(types.ErrSecretNotFound, "secret is not set in environment",
			goerr.V("name", name), goerr.V("env", key))
	}
	return value, nil
}
