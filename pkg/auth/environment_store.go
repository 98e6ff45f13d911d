package auth

import (
	"os"
	"time"

	"watchgraph/pkg/config"
)

// CookiesEnvVar holds "name=value;name=value" pairs for any profile
const CookiesEnvVar = config.EnvPrefix + "COOKIES"

// EnvironmentStore is a read-only CredentialStore backed by CookiesEnvVar
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve parses the cookies variable; the name only labels the result
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	raw := os.Getenv(CookiesEnvVar)
	if raw == "" {
		return nil, ErrCredentialsNotFound
	}

	cookies, err := ParseCookies(raw)
	if err != nil || cookies.Len() == 0 {
		return nil, ErrInvalidCredentials
	}

	if name == "" {
		name = "environment"
	}

	return &Profile{
		Name:         name,
		Cookies:      cookies,
		LastModified: time.Now(),
	}, nil
}

// List returns a single profile if the variable is set
func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the cookies variable is set
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(CookiesEnvVar) != ""
}
