package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"echoauth/pkg/logging"
)

const (
	userConfigDir  = ".config/echoauth"
	configFileName = "config.yaml"
	defaultEnvFile = ".env"

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "ECHOAUTH_"
)

// userHomeDir is a variable so tests can replace it.
var userHomeDir = os.UserHomeDir

// DefaultPath returns ~/.config/echoauth/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// Path is the YAML file. Empty means DefaultPath, which may be absent.
	Path string

	// EnvFile is a dotenv file. Empty means .env in the working directory,
	// which may be absent.
	EnvFile string
}

// Load builds a Config from defaults, the YAML file, the dotenv file and the
// environment. Files named explicitly in opts must exist. The result is not
// validated.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if err := loadFile(&cfg, opts.Path); err != nil {
		return Config{}, err
	}
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv overrides fields of cfg with the ECHOAUTH_* variables that are
// set. Unset variables leave fields untouched.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func loadFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}
	path = expandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			logging.Debug("Config", "No config file at %s, using defaults", path)
			return nil
		}
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error loading config from %s: %w", path, err)
	}
	logging.Info("Config", "Loaded configuration from %s", path)
	return nil
}

// loadEnvFile adds the variables of a dotenv file to the process
// environment. Variables that are already set are kept.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	path = expandHome(path)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("error reading env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	logging.Debug("Config", "Loaded environment from %s", path)
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := userHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
