// Package config loads telos configuration from yaml files under
// <root>/config. The root directory comes from TELOS_ROOT (falling back to
// the current working directory); the data directory is always <root>/data.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all telos configuration.
type Config struct {
	// Resolved directories, not read from yaml.
	DataDir   string `yaml:"-"`
	ConfigDir string `yaml:"-"`

	Beat   BeatConfig   `yaml:"beat"`
	Agent  AgentConfig  `yaml:"agent"`
	LLM    LLMConfig    `yaml:"llm"`
	Server ServerConfig `yaml:"server"`

	// Telegram is nil unless config/telegram.yml exists.
	Telegram *TelegramConfig `yaml:"telegram"`
}

// BeatConfig configures the orchestrator's scheduling loop.
type BeatConfig struct {
	IntervalMinutes int     `yaml:"interval_minutes"`
	IntentThreshold float64 `yaml:"intent_threshold"`
}

// Interval returns the beat ticker period.
func (b BeatConfig) Interval() time.Duration {
	return time.Duration(b.IntervalMinutes) * time.Minute
}

// AgentConfig configures the ReAct runtime.
type AgentConfig struct {
	MaxReactSteps int    `yaml:"max_react_steps"`
	Persona       string `yaml:"persona"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	BindAddr string `yaml:"bind_addr"`
}

// TelegramConfig configures the chat bridge.
type TelegramConfig struct {
	BotToken         string  `yaml:"bot_token"`
	DefaultChatID    int64   `yaml:"default_chat_id"`
	APIBase          string  `yaml:"api_base"`
	PollSeconds      int     `yaml:"poll_seconds"`
	DefaultAlignment float64 `yaml:"default_alignment"`
}

// Load reads beat.yml, agent.yml, llm.yml and (optionally) telegram.yml
// from <root>/config and applies defaults.
func Load() (*Config, error) {
	root := os.Getenv("TELOS_ROOT")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		root = cwd
	}
	return LoadFromRoot(root)
}

// LoadFromRoot loads configuration rooted at an explicit directory.
func LoadFromRoot(root string) (*Config, error) {
	cfg := &Config{
		DataDir:   filepath.Join(root, "data"),
		ConfigDir: filepath.Join(root, "config"),
	}

	if err := loadYAML(filepath.Join(cfg.ConfigDir, "beat.yml"), &cfg.Beat); err != nil {
		return nil, err
	}
	if err := loadYAML(filepath.Join(cfg.ConfigDir, "agent.yml"), &cfg.Agent); err != nil {
		return nil, err
	}
	if err := loadYAML(filepath.Join(cfg.ConfigDir, "llm.yml"), &cfg.LLM); err != nil {
		return nil, err
	}

	telegramPath := filepath.Join(cfg.ConfigDir, "telegram.yml")
	if _, err := os.Stat(telegramPath); err == nil {
		tg := &TelegramConfig{}
		if err := loadYAML(telegramPath, tg); err != nil {
			return nil, err
		}
		cfg.Telegram = tg
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Beat.IntervalMinutes <= 0 {
		c.Beat.IntervalMinutes = 5
	}
	if c.Beat.IntentThreshold == 0 {
		c.Beat.IntentThreshold = 0.5
	}
	if c.Agent.MaxReactSteps <= 0 {
		c.Agent.MaxReactSteps = 1
	}
	if c.Agent.Persona == "" {
		c.Agent.Persona = "TelosOps"
	}
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = os.Getenv("TELOS_SERVER_BIND")
	}
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = "0.0.0.0:8080"
	}
	c.LLM.applyDefaults()
	if c.Telegram != nil {
		if c.Telegram.APIBase == "" {
			c.Telegram.APIBase = "https://api.telegram.org"
		}
		if c.Telegram.PollSeconds <= 0 {
			c.Telegram.PollSeconds = 2
		}
		if c.Telegram.DefaultAlignment == 0 {
			c.Telegram.DefaultAlignment = 0.5
		}
	}
}

func loadYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading yaml %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing yaml %s: %w", path, err)
	}
	return nil
}
