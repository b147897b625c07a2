package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/buildconf/internal/buildconfig"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > config file > Environment variables > Defaults
type Config struct {
	Mode                 buildconfig.Mode
	Project              buildconfig.Project
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	Debug                bool
}

// fileConfig represents the configuration file structure, shared by YAML and JSONC.
type fileConfig struct {
	Mode                 string               `yaml:"mode" json:"mode"`
	Port                 string               `yaml:"port" json:"port"`
	ShutdownGracePeriod  string               `yaml:"shutdown_grace_period" json:"shutdown_grace_period"`
	ReadHeaderTimeout    string               `yaml:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout         string               `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout          string               `yaml:"idle_timeout" json:"idle_timeout"`
	EnableRequestLogging *bool                `yaml:"enable_request_logging" json:"enable_request_logging"`
	RateLimit            *fileRateLimit       `yaml:"rate_limit" json:"rate_limit"`
	Project              *buildconfig.Project `yaml:"project" json:"project"`
}

// fileRateLimit represents the rate limit section of the config file.
// Omitted keys keep their current value; an explicit 0 disables limiting.
type fileRateLimit struct {
	RPS   *float64 `yaml:"rps" json:"rps"`
	Burst *int     `yaml:"burst" json:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Mode           *string
	Root           *string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	Debug          bool
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > config file > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	applyEnvConfig(&cfg)

	if overrides != nil && overrides.ConfigFile != "" {
		fileCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
		if err := applyFileConfig(&cfg, fileCfg, filepath.Dir(overrides.ConfigFile)); err != nil {
			return Config{}, fmt.Errorf("apply config file: %w", err)
		}
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	root, err := absoluteRoot(cfg.Project.Root)
	if err != nil {
		return Config{}, err
	}
	cfg.Project.Root = root

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Mode:                 buildconfig.Production,
		Project:              buildconfig.DefaultProject("."),
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML or JSONC file, chosen by extension.
func loadFromFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &fileCfg); err != nil {
			return nil, fmt.Errorf("parse JSONC: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	}

	return &fileCfg, nil
}

// applyFileConfig applies file configuration to the Config struct. Relative
// project roots are taken relative to baseDir.
func applyFileConfig(cfg *Config, fileCfg *fileConfig, baseDir string) error {
	if fileCfg.Mode != "" {
		cfg.Mode = buildconfig.ParseMode(strings.TrimSpace(fileCfg.Mode))
	}

	if fileCfg.Port != "" {
		cfg.Port = fileCfg.Port
	}

	durations := []struct {
		raw    string
		target *time.Duration
		name   string
	}{
		{fileCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod, "shutdown_grace_period"},
		{fileCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout, "read_header_timeout"},
		{fileCfg.WriteTimeout, &cfg.WriteTimeout, "write_timeout"},
		{fileCfg.IdleTimeout, &cfg.IdleTimeout, "idle_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.target = value
	}

	if fileCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *fileCfg.EnableRequestLogging
	}

	if fileCfg.RateLimit != nil {
		if rps := fileCfg.RateLimit.RPS; rps != nil && *rps >= 0 {
			cfg.RateLimitRPS = *rps
		}
		if burst := fileCfg.RateLimit.Burst; burst != nil && *burst >= 0 {
			cfg.RateLimitBurst = *burst
		}
	}

	if fileCfg.Project != nil {
		project, err := mergeProject(*fileCfg.Project, cfg.Project)
		if err != nil {
			return err
		}
		if fileCfg.Project.Root != "" && !filepath.IsAbs(project.Root) {
			project.Root = filepath.Join(baseDir, project.Root)
		}
		cfg.Project = project
	}

	return nil
}

// mergeProject fills the unset fields of partial from defaults. Entries are
// taken as a whole: a file that names entries does not inherit the default chunks.
func mergeProject(partial, defaults buildconfig.Project) (buildconfig.Project, error) {
	base := defaults.Clone()
	if len(partial.Entry) > 0 {
		base.Entry = nil
	}

	merged := partial.Clone()
	if err := mergo.Merge(&merged, base); err != nil {
		return buildconfig.Project{}, fmt.Errorf("merge project defaults: %w", err)
	}
	return merged, nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if mode, ok := os.LookupEnv("NODE_ENV"); ok {
		cfg.Mode = buildconfig.ParseMode(strings.TrimSpace(mode))
	}

	if root := strings.TrimSpace(os.Getenv("BUILDCONF_ROOT")); root != "" {
		cfg.Project.Root = root
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Mode != nil && *overrides.Mode != "" {
		cfg.Mode = buildconfig.ParseMode(*overrides.Mode)
	}

	if overrides.Root != nil && *overrides.Root != "" {
		cfg.Project.Root = *overrides.Root
	}

	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.Debug {
		cfg.Debug = true
	}
}

// absoluteRoot resolves the project root once so the resolver never has to.
func absoluteRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root %q: %w", root, err)
	}
	return abs, nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if err := cfg.Project.Validate(); err != nil {
		return fmt.Errorf("validate project: %w", err)
	}
	return nil
}
