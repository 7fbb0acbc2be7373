package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "PUBSUB"
	envConfigDefaultPath = envPrefix + "_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load resolves the config file, layers it over Default and the PUBSUB_*
// environment, validates the result and returns it with the file path.
// A missing file is created from Default so operators have something to edit.
// Callers apply flag overrides on top with UpdateFrom and call Validate again.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg := Default()
	path := resolveConfigPath(explicitPath)

	v := newViper(cfg)
	v.SetConfigFile(path)
	if err := readOrCreate(v, path, cfg, logger); err != nil {
		return cfg, path, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newViper registers every key with its default so that AutomaticEnv can
// bind PUBSUB_<KEY> for keys absent from the file.
func newViper(def Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaultValues(def) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func defaultValues(c Config) map[string]any {
	return map[string]any{
		"addr":                      c.Addr,
		"tcp_addr":                  c.TCPAddr,
		"static_dir":                c.StaticDir,
		"log_level":                 c.LogLevel,
		"read_header_timeout":       c.ReadHeaderTimeout,
		"shutdown_timeout":          c.ShutdownTimeout,
		"max_message_bytes":         c.MaxMessageBytes,
		"send_buffer":               c.SendBuffer,
		"messages_per_minute":       c.MessagesPerMinute,
		"tcp_read_bytes_per_second": c.TCPReadBytesPerSecond,
	}
}

func readOrCreate(v *viper.Viper, path string, def Config, logger *zerolog.Logger) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	if err := writeDefaultConfig(path, def); err != nil {
		// Running on defaults is fine; the file is only a convenience.
		logger.Warn().Err(err).Str("path", path).Msg("could not write default config")
		return nil
	}
	logger.Info().Str("path", path).Msg("wrote default config")
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, defaultConfigName)
	}
	return defaultConfigName
}

func writeDefaultConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
