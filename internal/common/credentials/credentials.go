// Package credentials resolves named secrets for the external systems.
package credentials

import (
	"context"
	"fmt"

	"primary-organization/internal/common/config"
	"primary-organization/internal/common/errors"
)

// Credential is a named secret. Username and Password double as client
// id and client secret for OAuth clients.
type Credential struct {
	Name     string
	Username string
	Password string
	Data     map[string]string
}

// Require returns Data[key] or a configuration error naming the credential.
func (c *Credential) Require(key string) (string, error) {
	v := c.Data[key]
	if v == "" {
		return "", errors.NewConfigurationError(fmt.Sprintf("Credential '%s' has no '%s'", c.Name, key), "")
	}
	return v, nil
}

// Store resolves credentials by name.
type Store interface {
	Get(ctx context.Context, name string) (*Credential, error)
}

// StaticStore serves credentials from configuration.
type StaticStore struct {
	cfg config.CredentialsConfig
}

func NewStaticStore(cfg config.CredentialsConfig) *StaticStore {
	return &StaticStore{cfg: cfg}
}

func (s *StaticStore) Get(ctx context.Context, name string) (*Credential, error) {
	sc, ok := s.cfg.LookupStatic(name)
	if !ok {
		return nil, errors.NewCredentialNotFoundError(name)
	}
	data := make(map[string]string, len(sc.Data))
	for k, v := range sc.Data {
		data[k] = v
	}
	return &Credential{
		Name:     name,
		Username: sc.Username,
		Password: sc.Password,
		Data:     data,
	}, nil
}
