package remote

import (
	"os"
)

// Authenticator provides authentication for OCI registry operations.
type Authenticator interface {
	// Authenticate returns credentials for the given registry. Empty
	// credentials fall back to the docker keychain.
	Authenticate(registry string) (username, password string, err error)
}

// Environment variables read by EnvAuthenticator.
const (
	EnvUsername = "UNIPKG_REGISTRY_USERNAME"
	EnvPassword = "UNIPKG_REGISTRY_PASSWORD"
)

// EnvAuthenticator reads credentials from the environment.
type EnvAuthenticator struct{}

func NewEnvAuthenticator() *EnvAuthenticator {
	return &EnvAuthenticator{}
}

func (a *EnvAuthenticator) Authenticate(string) (string, string, error) {
	return os.Getenv(EnvUsername), os.Getenv(EnvPassword), nil
}
