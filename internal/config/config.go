package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/coachviz/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Log        LogConfig        `koanf:"log" yaml:"log"`
	Providers  ProvidersConfig  `koanf:"providers" yaml:"providers"`
	Generation GenerationConfig `koanf:"generation" yaml:"generation"`
	Health     HealthConfig     `koanf:"health" yaml:"health"`
	Templates  TemplatesConfig  `koanf:"templates" yaml:"templates"`

	// File is the explicit config file that was loaded, empty when the
	// global file or defaults were used.
	File string `koanf:"-" yaml:"-"`
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
}

type ProvidersConfig struct {
	Default      string           `koanf:"default" yaml:"default"`
	AutoFallback bool             `koanf:"auto_fallback" yaml:"auto_fallback"`
	Registry     []ProviderConfig `koanf:"registry" yaml:"registry"`
}

type GenerationConfig struct {
	ExecutorCommand string `koanf:"executor_command" yaml:"executor_command"`
	AttemptTimeout  string `koanf:"attempt_timeout" yaml:"attempt_timeout"`
	ImageTimeout    string `koanf:"image_timeout" yaml:"image_timeout"`
	MaxAttempts     int    `koanf:"max_attempts" yaml:"max_attempts"`
	BaseDelay       string `koanf:"base_delay" yaml:"base_delay"`
	Pacing          string `koanf:"pacing" yaml:"pacing"`
	AspectRatio     string `koanf:"aspect_ratio" yaml:"aspect_ratio"`
	OutputDir       string `koanf:"output_dir" yaml:"output_dir"`
}

type HealthConfig struct {
	TTL           string `koanf:"ttl" yaml:"ttl"`
	Cache         string `koanf:"cache" yaml:"cache"`
	RedisAddr     string `koanf:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `koanf:"redis_password" yaml:"redis_password"`
	RedisDB       int    `koanf:"redis_db" yaml:"redis_db"`
	KeyPrefix     string `koanf:"key_prefix" yaml:"key_prefix"`
}

type TemplatesConfig struct {
	Root string `koanf:"root" yaml:"root"`
}

const (
	DefaultLogLevel                 = "info"
	DefaultProvider                 = ProviderGemini
	DefaultAutoFallback             = true
	DefaultGenerationAttemptTimeout = "5m"
	DefaultGenerationImageTimeout   = "2m"
	DefaultGenerationMaxAttempts    = 3
	DefaultGenerationBaseDelay      = "2s"
	DefaultGenerationPacing         = "1500ms"
	DefaultGenerationAspectRatio    = "1:1"
	DefaultGenerationOutputDir      = "output"
	DefaultHealthTTL                = "5m"
	DefaultHealthCache              = HealthCacheMemory
	DefaultHealthRedisAddr          = "localhost:6379"
	DefaultHealthKeyPrefix          = "coachviz:health:"
	DefaultTemplatesRoot            = "~/.coachviz/templates"

	HealthCacheMemory = "memory"
	HealthCacheRedis  = "redis"

	EnvPrefix = "COACHVIZ_"
	// EnvConfigFile names the config file when --config is not given. Child
	// generation processes receive it so they read the parent's file.
	EnvConfigFile = EnvPrefix + "CONFIG"
)

// Load resolves configuration from, in increasing precedence: built-in
// defaults, the YAML file, COACHVIZ_ environment variables (double underscore
// separates sections, e.g. COACHVIZ_HEALTH__TTL), and command-line flags.
// Providers discovered from well-known credential variables are merged last
// with MergeProviders.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level":                   DefaultLogLevel,
		"providers.default":           DefaultProvider,
		"providers.auto_fallback":     DefaultAutoFallback,
		"generation.executor_command": "",
		"generation.attempt_timeout":  DefaultGenerationAttemptTimeout,
		"generation.image_timeout":    DefaultGenerationImageTimeout,
		"generation.max_attempts":     DefaultGenerationMaxAttempts,
		"generation.base_delay":       DefaultGenerationBaseDelay,
		"generation.pacing":           DefaultGenerationPacing,
		"generation.aspect_ratio":     DefaultGenerationAspectRatio,
		"generation.output_dir":       DefaultGenerationOutputDir,
		"health.ttl":                  DefaultHealthTTL,
		"health.cache":                DefaultHealthCache,
		"health.redis_addr":           DefaultHealthRedisAddr,
		"health.redis_db":             0,
		"health.key_prefix":           DefaultHealthKeyPrefix,
		"templates.root":              DefaultTemplatesRoot,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}
	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv(EnvConfigFile))
	}

	loadedPath := ""
	if configPath != "" {
		expanded, err := pathutil.Expand(configPath)
		if err != nil {
			return nil, err
		}
		if expanded, err = filepath.Abs(expanded); err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := k.Load(file.Provider(expanded), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", expanded, err)
		}
		loadedPath = expanded
	} else if globalPath, err := pathutil.AppDir("config.yaml"); err == nil {
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.File = loadedPath

	applyRegistryDefaults(k, cfg.Providers.Registry)
	cfg.Providers.Registry = MergeProviders(cfg.Providers.Registry, DiscoverEnvProviders(os.Getenv))

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyRegistryDefaults fills fields a file entry left out. The zero value of
// enabled and priority is meaningful, so presence is checked on the raw tree.
func applyRegistryDefaults(k *koanf.Koanf, registry []ProviderConfig) {
	raw := k.Slices("providers.registry")
	for i := range registry {
		registry[i].Name = strings.ToLower(strings.TrimSpace(registry[i].Name))

		var entry *koanf.Koanf
		if i < len(raw) {
			entry = raw[i]
		}
		if entry == nil || !entry.Exists("enabled") {
			registry[i].Enabled = true
		}
		if entry == nil || !entry.Exists("priority") {
			registry[i].Priority = DefaultPriority(registry[i].Name)
		}
	}
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	root, err := pathutil.Expand(cfg.Templates.Root)
	if err != nil {
		return err
	}
	cfg.Templates.Root = root

	outputDir, err := pathutil.Expand(cfg.Generation.OutputDir)
	if err != nil {
		return err
	}
	if outputDir != "" && !filepath.IsAbs(outputDir) {
		if abs, err := filepath.Abs(outputDir); err == nil {
			outputDir = abs
		}
	}
	cfg.Generation.OutputDir = outputDir

	return nil
}

// Provider returns the registry entry for name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	if c == nil {
		return ProviderConfig{}, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range c.Providers.Registry {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Validate rejects values that cannot be used at runtime.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Providers.Registry))
	for _, p := range c.Providers.Registry {
		if !IsKnownProvider(p.Name) {
			return fmt.Errorf("unknown provider %q (supported: %s)", p.Name, strings.Join(KnownProviders(), ", "))
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("provider %q is configured more than once", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	switch c.Health.Cache {
	case HealthCacheMemory, HealthCacheRedis:
	default:
		return fmt.Errorf("unsupported health cache %q (supported: memory, redis)", c.Health.Cache)
	}

	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("generation.max_attempts must be at least 1")
	}

	for name, value := range map[string]string{
		"generation.attempt_timeout": c.Generation.AttemptTimeout,
		"generation.image_timeout":   c.Generation.ImageTimeout,
		"generation.base_delay":      c.Generation.BaseDelay,
		"generation.pacing":          c.Generation.Pacing,
		"health.ttl":                 c.Health.TTL,
	} {
		if _, err := DurationOrDefault(value, "0s"); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
