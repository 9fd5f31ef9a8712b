package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// SecretEnvVar names the environment variable holding the session secret.
const SecretEnvVar = "SESSION_SECRET"

// EnvironmentEnvVar names the environment variable selecting the deployment
// environment.
const EnvironmentEnvVar = "DPPD_ENV"

// DevelopmentSecretLabel prefixes the generated development secret so it can
// never be mistaken for real key material.
const DevelopmentSecretLabel = "dppd-development-only-insecure-"

// Environment identifies the execution context of the process.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvPreview     Environment = "preview"
	EnvDevelopment Environment = "development"
)

// AllowsDevelopmentSecret reports whether a missing secret may be replaced by
// the generated development secret.
func (e Environment) AllowsDevelopmentSecret() bool {
	return e == EnvDevelopment || e == EnvPreview
}

// ParseEnvironment maps a raw value to an Environment. Unknown or empty values
// are treated as production.
func ParseEnvironment(raw string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(raw))) {
	case EnvDevelopment, "dev", "local":
		return EnvDevelopment
	case EnvPreview:
		return EnvPreview
	default:
		return EnvProduction
	}
}

// EnvironmentFromEnv reads EnvironmentEnvVar.
func EnvironmentFromEnv() Environment {
	return ParseEnvironment(os.Getenv(EnvironmentEnvVar))
}

// SecretError reports a missing signing secret in an environment that does not
// permit the development fallback. It is a configuration error, distinct from
// authentication failures.
type SecretError struct {
	Var         string
	Environment Environment
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("%s is not set (environment %q requires an explicit session secret)", e.Var, e.Environment)
}

var (
	devSecretOnce sync.Once
	devSecret     []byte
	devSecretErr  error
)

// ResolveSecret returns the session signing secret. The variable is read at
// call time. In development and preview a labeled per-process secret is used
// when the variable is absent; every session becomes invalid on restart.
func ResolveSecret(env Environment) ([]byte, error) {
	if raw, ok := os.LookupEnv(SecretEnvVar); ok && strings.TrimSpace(raw) != "" {
		return []byte(strings.TrimSpace(raw)), nil
	}
	if !env.AllowsDevelopmentSecret() {
		return nil, &SecretError{Var: SecretEnvVar, Environment: env}
	}

	devSecretOnce.Do(func() {
		var raw [32]byte
		if _, err := rand.Read(raw[:]); err != nil {
			devSecretErr = err
			return
		}
		devSecret = []byte(DevelopmentSecretLabel + hex.EncodeToString(raw[:]))
	})
	if devSecretErr != nil {
		return nil, devSecretErr
	}

	slog.Warn("session secret not set, using generated development secret",
		"env_var", SecretEnvVar,
		"environment", string(env),
	)
	out := make([]byte, len(devSecret))
	copy(out, devSecret)
	return out, nil
}
