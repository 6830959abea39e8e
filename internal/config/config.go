// Package config loads mergebot's TOML configuration file (spec §6
// "Configuration table"). Grounded on the teacher's internal/config/roles.go
// BurntSushi/toml loader idiom: a typed struct with toml tags, a Duration
// wrapper implementing encoding.Text(Un)Marshaler so humans write "30s"
// instead of a raw integer of nanoseconds, and a single LoadFile entrypoint.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values like "30s" or "2m" parse
// directly into it, matching the teacher's RoleHealthConfig fields.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is mergebot's full configuration, loaded from one TOML file. The
// state-machine fields mirror spec §6's Configuration table verbatim; the
// fields under the "ambient" comment are this implementation's own, since a
// runnable process needs them even though the spec's core doesn't name them.
type Config struct {
	IntegrationLabel             string   `toml:"integration_label"`
	TopPriorityLabels            []string `toml:"top_priority_labels"`
	RequiresAllStatusChecks      bool     `toml:"requires_all_status_checks"`
	StatusChecksTimeout          Duration `toml:"status_checks_timeout"`
	IdleMergeServiceCleanupDelay Duration `toml:"idle_merge_service_cleanup_delay"`
	BotUser                      int64    `toml:"bot_user"`

	// Ambient: infrastructure the spec's state machine doesn't name but a
	// runnable process needs.
	Owner              string `toml:"owner"`
	Repo               string `toml:"repo"`
	GitHubToken        string `toml:"github_token,omitempty"`
	GitHubTokenEnv     string `toml:"github_token_env"`
	WebhookSecretEnv   string `toml:"webhook_secret_env"`
	LogLevel           string `toml:"log_level"`
	BootstrapConcurrency int  `toml:"bootstrap_concurrency"`
	ListenAddr         string `toml:"listen_addr"`
}

// defaults applied to any field left zero after parsing the file.
func (c *Config) applyDefaults() {
	if c.IntegrationLabel == "" {
		c.IntegrationLabel = "merge"
	}
	if c.StatusChecksTimeout.Duration == 0 {
		c.StatusChecksTimeout = Duration{5 * time.Minute}
	}
	if c.IdleMergeServiceCleanupDelay.Duration == 0 {
		c.IdleMergeServiceCleanupDelay = Duration{10 * time.Minute}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BootstrapConcurrency <= 0 {
		c.BootstrapConcurrency = 8
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.GitHubTokenEnv == "" {
		c.GitHubTokenEnv = "MERGEBOT_GITHUB_TOKEN"
	}
	if c.WebhookSecretEnv == "" {
		c.WebhookSecretEnv = "MERGEBOT_WEBHOOK_SECRET"
	}
}

// LoadFile reads and parses a TOML config file at path, applying defaults
// for every field the file leaves unset.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Token resolves the GitHub token either directly from the config file (if
// set) or from the environment variable named by GitHubTokenEnv.
func (c *Config) Token() (string, error) {
	if c.GitHubToken != "" {
		return c.GitHubToken, nil
	}
	if v := os.Getenv(c.GitHubTokenEnv); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no GitHub token: set github_token or export %s", c.GitHubTokenEnv)
}

// WebhookSecret resolves the webhook signing secret from the environment.
func (c *Config) WebhookSecret() string {
	return os.Getenv(c.WebhookSecretEnv)
}
