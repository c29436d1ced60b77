package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Secret environment overrides. A .env file beside the config file is read first;
// the process environment wins over both.
const (
	EnvPushoverUserKey  = "PUSHOVER_USER_KEY"
	EnvPushoverAPIToken = "PUSHOVER_API_TOKEN"
	EnvMQTTUsername     = "MQTT_USERNAME"
	EnvMQTTPassword     = "MQTT_PASSWORD"
)

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath}
	cfg := Default()

	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		loaded.Exists = true
		cfg, _, err = Parse(string(content), cfg)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
	}

	env, err := readDotEnv(filepath.Join(filepath.Dir(resolvedPath), ".env"))
	if err != nil {
		return Loaded{}, err
	}
	applySecrets(&cfg, env)

	warnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}
	loaded.Config = cfg
	loaded.Warnings = append(loaded.Warnings, warnings...)
	return loaded, nil
}

func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file %q: %w", path, err)
	}
	return env, nil
}

func applySecrets(cfg *Config, dotenv map[string]string) {
	lookup := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
			return
		}
		if v := strings.TrimSpace(dotenv[key]); v != "" {
			*dst = v
		}
	}
	lookup(EnvPushoverUserKey, &cfg.Notify.Pushover.UserKey)
	lookup(EnvPushoverAPIToken, &cfg.Notify.Pushover.APIToken)
	lookup(EnvMQTTUsername, &cfg.Notify.MQTT.Username)
	lookup(EnvMQTTPassword, &cfg.Notify.MQTT.Password)
}
