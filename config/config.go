// Package config loads eventsheet settings. Values come from built-in
// defaults, then eventsheet.yaml, then EVENTSHEET_* environment
// variables; command-line flags override all of them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "eventsheet.yaml"
	homeConfigName    = "config.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "EVENTSHEET_"
)

// Config is the complete settings tree.
type Config struct {
	Run       RunConfig       `yaml:"run"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// RunConfig holds runner defaults.
type RunConfig struct {
	MaxTicks  int           `yaml:"max_ticks"`
	TimeDelta time.Duration `yaml:"time_delta"`
	Seed      uint64        `yaml:"seed"`
}

// StoreConfig selects the SQLite event store. An empty Path disables
// persistence.
type StoreConfig struct {
	Path           string        `yaml:"path"`
	RetentionAge   time.Duration `yaml:"retention_age"`
	RetentionCount int           `yaml:"retention_count"`
}

// TelemetryConfig selects OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Run: RunConfig{
			MaxTicks:  600,
			TimeDelta: time.Second / 60,
		},
		Telemetry: TelemetryConfig{ServiceName: "eventsheet"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load resolves the config file, applies it over the defaults and then
// applies environment overrides. It returns the file used, or "" when none
// was found.
func Load(explicitPath string) (Config, string, error) {
	cfg := Default()

	path, found, err := DiscoverPath(explicitPath)
	if err != nil {
		return cfg, "", err
	}
	if found {
		if err := cfg.loadFile(path); err != nil {
			return cfg, path, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, path, err
	}
	return cfg, path, cfg.Validate()
}

// DiscoverPath resolves the config location with first-match semantics:
// the explicit path, ./eventsheet.yaml, then ~/.eventsheet/config.yaml.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	var candidates []string
	if explicit != "" {
		candidates = []string{filepath.Clean(explicit)}
	} else {
		candidates = []string{
			filepath.Join(cwd, projectConfigName),
			filepath.Join(homeDir, ".eventsheet", homeConfigName),
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

func (c *Config) loadFile(path string) error {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %q: %w", path, err)
	}
	c.Store.Path = os.ExpandEnv(c.Store.Path)
	c.Telemetry.OTLPEndpoint = os.ExpandEnv(c.Telemetry.OTLPEndpoint)
	return nil
}

// ApplyEnv applies EVENTSHEET_* overrides read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	var errs []error
	if v, ok := env("MAX_TICKS"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("MAX_TICKS", err))
		c.Run.MaxTicks = n
	}
	if v, ok := env("TIME_DELTA"); ok {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("TIME_DELTA", err))
		c.Run.TimeDelta = d
	}
	if v, ok := env("SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		errs = append(errs, envErr("SEED", err))
		c.Run.Seed = n
	}
	if v, ok := env("STORE_PATH"); ok {
		c.Store.Path = v
	}
	if v, ok := env("RETENTION_AGE"); ok {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("RETENTION_AGE", err))
		c.Store.RetentionAge = d
	}
	if v, ok := env("RETENTION_COUNT"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("RETENTION_COUNT", err))
		c.Store.RetentionCount = n
	}
	if v, ok := env("OTLP_ENDPOINT"); ok {
		c.Telemetry.OTLPEndpoint = v
	}
	if v, ok := env("SERVICE_NAME"); ok {
		c.Telemetry.ServiceName = v
	}
	if v, ok := env("OTLP_INSECURE"); ok {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envErr("OTLP_INSECURE", err))
		c.Telemetry.Insecure = b
	}
	if v, ok := env("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := env("LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	return errors.Join(errs...)
}

func envErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.MaxTicks <= 0 {
		errs = append(errs, fmt.Errorf("run.max_ticks must be positive, got %d", c.Run.MaxTicks))
	}
	if c.Run.TimeDelta <= 0 {
		errs = append(errs, fmt.Errorf("run.time_delta must be positive, got %s", c.Run.TimeDelta))
	}
	if c.Store.RetentionAge < 0 || c.Store.RetentionCount < 0 {
		errs = append(errs, errors.New("store retention must not be negative"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Logger builds a slog logger writing to w.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
