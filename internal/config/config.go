package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papapumpkin/comet/internal/fault"
)

// Release modes accepted by release_mode.
const (
	ReleaseDisabled  = "disabled"
	ReleaseEnabled   = "enabled"
	ReleaseAggregate = "aggregate"
)

// DefaultMaxBodySize keeps proposal bodies under the hosting platform's
// 65536 character payload ceiling.
const DefaultMaxBodySize = 60000

// Config holds all runtime configuration for a comet run.
// Values are populated from .comet.yaml, COMET_* env vars, GitHub Actions
// env vars, and CLI flags.
type Config struct {
	VersionCommand string   `mapstructure:"version_command"`
	PublishCommand string   `mapstructure:"publish_command"`
	ReleaseMode    string   `mapstructure:"release_mode"`
	Title          string   `mapstructure:"title"`
	CommitMessage  string   `mapstructure:"commit_message"`
	Branch         string   `mapstructure:"branch"`
	SHA            string   `mapstructure:"sha"`
	Repository     string   `mapstructure:"repository"`
	Token          string   `mapstructure:"token"`
	APIURL         string   `mapstructure:"api_url"`
	MaxBodySize    int      `mapstructure:"max_body_size"`
	Ignore         []string `mapstructure:"ignore"`
	SetupGitUser   bool     `mapstructure:"setup_git_user"`
	CollectErrors  bool     `mapstructure:"collect_release_errors"` // finish every release write before failing
	WorkDir        string   `mapstructure:"work_dir"`
	OutputFile     string   `mapstructure:"output_file"`
	ReportFile     string   `mapstructure:"report_file"`
	EventsFile     string   `mapstructure:"events_file"`
	MetricsFile    string   `mapstructure:"metrics_file"`
	Verbose        bool     `mapstructure:"verbose"`
	LogLevel       string   `mapstructure:"log_level"`
}

// envBindings maps config keys to the CI environment variables that can
// supply them when no COMET_* variable is set.
var envBindings = map[string][]string{
	"token":       {"COMET_TOKEN", "GITHUB_TOKEN"},
	"repository":  {"COMET_REPOSITORY", "GITHUB_REPOSITORY"},
	"branch":      {"COMET_BRANCH", "GITHUB_REF_NAME"},
	"sha":         {"COMET_SHA", "GITHUB_SHA"},
	"output_file": {"COMET_OUTPUT_FILE", "GITHUB_OUTPUT"},
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("version_command", "changeset version")
	viper.SetDefault("publish_command", "")
	viper.SetDefault("release_mode", ReleaseEnabled)
	viper.SetDefault("title", "Version Packages")
	viper.SetDefault("commit_message", "Version Packages")
	viper.SetDefault("branch", "")
	viper.SetDefault("sha", "")
	viper.SetDefault("repository", "")
	viper.SetDefault("token", "")
	viper.SetDefault("api_url", "")
	viper.SetDefault("max_body_size", DefaultMaxBodySize)
	viper.SetDefault("ignore", []string{})
	viper.SetDefault("setup_git_user", true)
	viper.SetDefault("collect_release_errors", false)
	viper.SetDefault("work_dir", ".")
	viper.SetDefault("output_file", "")
	viper.SetDefault("report_file", "")
	viper.SetDefault("events_file", "")
	viper.SetDefault("metrics_file", "")
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_level", "info")

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := viper.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// HasPublish reports whether a publish tool is configured.
func (c Config) HasPublish() bool {
	return strings.TrimSpace(c.PublishCommand) != ""
}

// Validate checks the settings a run needs before any side effect happens.
// Every problem is reported as a fault.KindConfig error.
func (c Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, fault.Config("token", errors.New("a hosting API token is required (set COMET_TOKEN or GITHUB_TOKEN)")))
	}
	owner, name, ok := strings.Cut(c.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		errs = append(errs, fault.Config("repository", fmt.Errorf("expected owner/name, got %q", c.Repository)))
	}
	if strings.TrimSpace(c.VersionCommand) == "" {
		errs = append(errs, fault.Config("version_command", errors.New("must not be empty")))
	}
	switch c.ReleaseMode {
	case ReleaseDisabled, ReleaseEnabled, ReleaseAggregate:
	default:
		errs = append(errs, fault.Config("release_mode", fmt.Errorf("unknown mode %q (want %s, %s or %s)",
			c.ReleaseMode, ReleaseDisabled, ReleaseEnabled, ReleaseAggregate)))
	}
	if c.MaxBodySize <= 0 {
		errs = append(errs, fault.Config("max_body_size", fmt.Errorf("must be positive, got %d", c.MaxBodySize)))
	}
	return errors.Join(errs...)
}
