package model

import (
	"log/slog"

	"github.com/m-mizutani/herald/pkg/domain/types"
)

// Secret is a resolved credential. The value is only reachable through Value() and is redacted
// whenever the secret is logged.
type Secret struct {
	name  types.SecretName
	value string
}

// NewSecret creates a resolved secret
func NewSecret(name types.SecretName, value string) *Secret {
	return &Secret{name: name, value: value}
}

// Name returns the secret name
func (s *Secret) Name() types.SecretName { return s.name }

// Value returns the plaintext secret value
func (s *Secret) Value() string { return s.value }

// String never exposes the value
func (s *Secret) String() string { return string(s.name) + ":[REDACTED]" }

// LogValue implements slog.LogValuer
func (s *Secret) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", string(s.name)),
		slog.String("value", "[REDACTED]"),
	)
}

// Secrets holds the credentials resolved at activation. SigningKey is nil in the reduced
// configuration where webhook signatures are not verified.
type Secrets struct {
	AccessToken *Secret
	SigningKey  *Secret
}
