package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/bigsmall/internal/manifest"
	"github.com/efebarandurmaz/bigsmall/internal/score"
)

// Config holds all application configuration.
type Config struct {
	Run       RunConfig       `mapstructure:"run"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Health    HealthConfig    `mapstructure:"health"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

// RunConfig controls scoring and simulation.
type RunConfig struct {
	Name       string  `mapstructure:"name"`
	Iterations int     `mapstructure:"iterations"`
	Mode       string  `mapstructure:"mode"`
	MinScore   float64 `mapstructure:"min_score"`
	MinDegree  int     `mapstructure:"min_degree"`
	Workers    int     `mapstructure:"workers"`
	Seed       uint64  `mapstructure:"seed"`
	OutputDir  string  `mapstructure:"output_dir"`

	// SkipUnchanged reuses an existing run directory whose inputs match.
	SkipUnchanged bool `mapstructure:"skip_unchanged"`
}

type ReferenceConfig struct {
	URI      string   `mapstructure:"uri"`
	CacheDir string   `mapstructure:"cache_dir"`
	S3       S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`

	// Static keys. Empty keys are looked up in the secrets provider, then
	// the default AWS chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// Chunks is the number of parallel simulation activities per workflow.
	Chunks int `mapstructure:"chunks"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"otlp_endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
	Insecure    bool    `mapstructure:"insecure"`
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

// SecretsConfig selects where credentials left empty in the config are
// looked up: "env", "file" (a JSON object) or "dir" (one file per key).
type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	Path     string `mapstructure:"path"`
}

// ConfigError reports a setting that makes a run impossible.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.name", manifest.DefaultName)
	v.SetDefault("run.iterations", 1)
	v.SetDefault("run.mode", string(score.ModeCombinedLog))
	v.SetDefault("run.min_score", 0.0)
	v.SetDefault("run.min_degree", 0)
	v.SetDefault("run.workers", 0)
	v.SetDefault("run.seed", 0)
	v.SetDefault("run.output_dir", ".")
	v.SetDefault("run.skip_unchanged", false)
	v.SetDefault("reference.uri", "reference")
	v.SetDefault("reference.cache_dir", "")
	v.SetDefault("reference.s3.region", "us-east-1")
	v.SetDefault("reference.s3.endpoint", "")
	v.SetDefault("reference.s3.path_style", false)
	v.SetDefault("reference.s3.access_key_id", "")
	v.SetDefault("reference.s3.secret_access_key", "")
	v.SetDefault("reference.s3.session_token", "")
	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "bigsmall")
	v.SetDefault("temporal.chunks", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("health.addr", ":8081")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.path", "")
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks configuration. Settings that make a run impossible are
// returned as a *ConfigError; soft issues come back as warnings. An empty
// run name is replaced by the default name with a warning.
func (c *Config) Validate() ([]string, error) {
	var warnings []string

	if strings.TrimSpace(c.Run.Name) == "" {
		warnings = append(warnings, fmt.Sprintf("run name is empty, using %q", manifest.DefaultName))
		c.Run.Name = manifest.DefaultName
	}
	if strings.ContainsAny(c.Run.Name, `/\`) {
		return warnings, &ConfigError{Field: "run.name", Reason: "must not contain path separators"}
	}
	if c.Run.Iterations < 1 {
		return warnings, &ConfigError{Field: "run.iterations", Reason: fmt.Sprintf("%d is less than 1", c.Run.Iterations)}
	}
	mode, err := score.ParseMode(c.Run.Mode)
	if err != nil {
		return warnings, &ConfigError{Field: "run.mode", Reason: err.Error()}
	}
	if c.Run.MinScore < 0 {
		return warnings, &ConfigError{Field: "run.min_score", Reason: "must not be negative"}
	}
	if c.Run.MinDegree < 0 {
		return warnings, &ConfigError{Field: "run.min_degree", Reason: "must not be negative"}
	}
	if c.Run.Workers < 0 {
		return warnings, &ConfigError{Field: "run.workers", Reason: "must not be negative"}
	}

	if mode == score.ModeCombinedLog && (c.Run.MinScore > 0 || c.Run.MinDegree > 0) {
		warnings = append(warnings, "min_score and min_degree only apply to directional_sqrt scoring and are ignored")
	}
	if c.Run.Iterations > 1 && c.Run.Iterations < 100 {
		warnings = append(warnings, fmt.Sprintf("%d simulation iterations give unstable intervals; 1000 or more is recommended", c.Run.Iterations))
	}
	if c.Run.Workers > 4*runtime.NumCPU() {
		warnings = append(warnings, fmt.Sprintf("%d workers is far above the %d available CPUs", c.Run.Workers, runtime.NumCPU()))
	}
	switch c.Secrets.Provider {
	case "", "env":
		if c.Graph.URI != "" && c.Graph.Password == "" && os.Getenv("BIGSMALL_GRAPH_PASSWORD") == "" {
			warnings = append(warnings, fmt.Sprintf("graph uri '%s' is configured but password is empty", c.Graph.URI))
		}
	case "file", "dir":
		if c.Secrets.Path == "" {
			return warnings, &ConfigError{Field: "secrets.path", Reason: fmt.Sprintf("required by the %s provider", c.Secrets.Provider)}
		}
	default:
		return warnings, &ConfigError{Field: "secrets.provider", Reason: fmt.Sprintf("unknown provider %q", c.Secrets.Provider)}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}
	if c.Temporal.Chunks < 0 {
		warnings = append(warnings, fmt.Sprintf("temporal chunks %d is negative, using 1", c.Temporal.Chunks))
		c.Temporal.Chunks = 1
	}

	return warnings, nil
}

// Load reads configuration from an optional file and the environment.
// Variables are prefixed BIGSMALL_, e.g. BIGSMALL_RUN_ITERATIONS.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BIGSMALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}
