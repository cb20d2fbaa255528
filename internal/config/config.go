// Package config loads bot configuration from a YAML file with
// environment fallbacks, and hot-reloads it on change.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so configs can say "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Telegram holds the transport adapter settings.
type Telegram struct {
	Token       string        `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

// Rate holds the sliding-window quota caps.
type Rate struct {
	MinuteMax int `yaml:"minute_max"`
	HourMax   int `yaml:"hour_max"`
}

// Kiro holds the agent container settings.
type Kiro struct {
	Runtime       string        `yaml:"runtime"`
	Image         string        `yaml:"image"`
	Container     string        `yaml:"container"`
	HostWorkspace string        `yaml:"host_workspace"`
	Workspace     string        `yaml:"workspace"`
	AgentBin      string        `yaml:"agent_bin"`
	Models        []string      `yaml:"models"`
	DefaultModel  string        `yaml:"default_model"`
	PromptTimeout Duration      `yaml:"prompt_timeout"`
	FileTimeout   Duration      `yaml:"file_timeout"`
	StartTimeout  Duration      `yaml:"start_timeout"`
}

// LLM holds the free-form chat provider settings. An empty APIURL
// disables free-form chat.
type LLM struct {
	APIURL    string        `yaml:"api_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
}

// Config is the full bot configuration.
type Config struct {
	Prefix   string   `yaml:"prefix"`
	Owner    string   `yaml:"owner"`    // identity seeded as owner at startup
	RoleDB   string   `yaml:"role_db"`  // path to the SQLite role database
	Telegram Telegram `yaml:"telegram"`
	Rate     Rate     `yaml:"rate"`
	Kiro     Kiro     `yaml:"kiro"`
	LLM      LLM      `yaml:"llm"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Prefix: "/",
		RoleDB: "carik.db",
		Telegram: Telegram{
			PollTimeout: Duration(30 * time.Second),
		},
		Rate: Rate{
			MinuteMax: 1,
			HourMax:   20,
		},
		Kiro: Kiro{
			Runtime:       "docker",
			Image:         "carikbot/kiro-agent:latest",
			Container:     "carik-kiro",
			HostWorkspace: "/var/lib/carik/workspace",
			Workspace:     "/workspace",
			AgentBin:      "kiro",
			Models:        []string{"sonnet", "opus", "haiku"},
			DefaultModel:  "sonnet",
			PromptTimeout: Duration(5 * time.Minute),
			FileTimeout:   Duration(30 * time.Second),
			StartTimeout:  Duration(2 * time.Minute),
		},
		LLM: LLM{
			Model:     "llama-3.1-8b-instant",
			MaxTokens: 800,
			Timeout:   Duration(60 * time.Second),
		},
	}
}

// Load reads configuration from a YAML file. A missing file returns
// defaults; invalid YAML returns an error. Secrets fall back to
// environment variables so they can stay out of the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("CARIK_LLM_API_KEY")
	}
	if cfg.Owner == "" {
		cfg.Owner = os.Getenv("CARIK_OWNER")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/"
	}
	return cfg, nil
}
