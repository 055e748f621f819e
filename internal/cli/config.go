package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when present and no --env-file is given.
const DefaultEnvFile = ".env"

// EnvConfig holds defaults read from the environment. Flags win over it.
type EnvConfig struct {
	Database string `env:"FLUXR_DB"`
	Mode     string `env:"FLUXR_MODE"`
	Format   string `env:"FLUXR_FORMAT"`
}

// LoadEnv loads an optional dotenv file into the process environment and
// decodes the FLUXR_* variables. An explicit path must exist; the default
// file is skipped when missing.
func LoadEnv(path string) (EnvConfig, error) {
	var cfg EnvConfig

	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
