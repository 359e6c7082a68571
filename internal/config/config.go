package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the supervisor tunables.
const (
	DefaultFailureThreshold = 3
	DefaultCooldownSeconds  = 1800
	DefaultStuckConfidence  = 0.7
	DefaultJudgeTimeoutSec  = 30
)

// DefaultStuckMilestones are the elapsed-time checkpoints, in minutes,
// at which a running task is evaluated for being stuck.
var DefaultStuckMilestones = []int{30, 60, 120}

// Config is the root configuration for an overseer project.
type Config struct {
	Version int `yaml:"version"`

	// Circuit breaker.
	FailureThreshold int `yaml:"failure_threshold,omitempty"`
	CooldownSeconds  int `yaml:"cooldown_seconds,omitempty"`

	// Stuck detection.
	StuckMilestones []int   `yaml:"stuck_milestones,omitempty,flow"`
	StuckConfidence float64 `yaml:"stuck_confidence,omitempty"`

	// AI judgment.
	JudgeTimeoutSec int              `yaml:"judge_timeout_sec,omitempty"`
	Judges          map[string]Judge `yaml:"judges"` // keyed by tier: fast, thorough

	Worker   Worker   `yaml:"worker"`
	Platform Platform `yaml:"platform"`

	// Checklist is the line-oriented task-list file workers tick off.
	Checklist string `yaml:"checklist,omitempty"`
}

// Judge describes one AI-judgment model tier and how to invoke it.
type Judge struct {
	Mode       string   `yaml:"mode"`                  // "cli" or "api"
	Cmd        string   `yaml:"cmd,omitempty"`         // CLI command to spawn
	Args       []string `yaml:"args,omitempty"`        // CLI arguments
	Provider   string   `yaml:"provider,omitempty"`    // API provider: openai, anthropic
	Model      string   `yaml:"model,omitempty"`       // Model name for API mode
	APIKeyEnv  string   `yaml:"api_key_env,omitempty"` // Env var name containing API key
	TimeoutSec int      `yaml:"timeout_sec,omitempty"` // Per-tier override (0 = config default)
}

// Worker describes how to spawn the external coding worker for a task.
// The task id, repo and branch are appended by the dispatcher.
type Worker struct {
	Cmd  string   `yaml:"cmd"`
	Args []string `yaml:"args,omitempty"`
}

// Platform holds the source-control hosting settings used for PR lookups
// and advisory notifications.
type Platform struct {
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	TokenEnv string `yaml:"token_env,omitempty"` // default GITHUB_TOKEN
	BaseURL  string `yaml:"base_url,omitempty"`  // default https://api.github.com
}

// Threshold returns the effective breaker failure threshold.
func (c *Config) Threshold() int {
	if c.FailureThreshold > 0 {
		return c.FailureThreshold
	}
	return DefaultFailureThreshold
}

// Cooldown returns the effective breaker cooldown duration.
func (c *Config) Cooldown() time.Duration {
	secs := c.CooldownSeconds
	if secs <= 0 {
		secs = DefaultCooldownSeconds
	}
	return time.Duration(secs) * time.Second
}

// Milestones returns the effective stuck-detection milestones, ascending.
func (c *Config) Milestones() []int {
	if len(c.StuckMilestones) > 0 {
		return c.StuckMilestones
	}
	return DefaultStuckMilestones
}

// Confidence returns the effective stuck-notification confidence threshold.
func (c *Config) Confidence() float64 {
	if c.StuckConfidence > 0 {
		return c.StuckConfidence
	}
	return DefaultStuckConfidence
}

// JudgeTimeout returns the effective judge timeout for a tier.
func (c *Config) JudgeTimeout(tier string) time.Duration {
	if j, ok := c.Judges[tier]; ok && j.TimeoutSec > 0 {
		return time.Duration(j.TimeoutSec) * time.Second
	}
	if c.JudgeTimeoutSec > 0 {
		return time.Duration(c.JudgeTimeoutSec) * time.Second
	}
	return DefaultJudgeTimeoutSec * time.Second
}

// Load reads the config file at the given path, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a starter config with the stock tunables and an
// example judge per tier.
func DefaultConfig() *Config {
	return &Config{
		Version:          1,
		FailureThreshold: DefaultFailureThreshold,
		CooldownSeconds:  DefaultCooldownSeconds,
		StuckMilestones:  append([]int(nil), DefaultStuckMilestones...),
		StuckConfidence:  DefaultStuckConfidence,
		JudgeTimeoutSec:  DefaultJudgeTimeoutSec,
		Judges: map[string]Judge{
			"fast":     {Mode: "cli", Cmd: "claude", Args: []string{"--print"}},
			"thorough": {Mode: "api", Provider: "anthropic", Model: "claude-sonnet-4-5", APIKeyEnv: "ANTHROPIC_API_KEY"},
		},
		Worker:    Worker{Cmd: "claude", Args: []string{"--print", "--dangerously-skip-permissions"}},
		Checklist: "TASKS.md",
	}
}

// applyEnv layers recognized OVERSEER_* environment variables over the
// file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("OVERSEER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.FailureThreshold = n
		}
	}
	if v := os.Getenv("OVERSEER_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CooldownSeconds = n
		}
	}
	if v := os.Getenv("OVERSEER_STUCK_MILESTONES"); v != "" {
		if ms := parseMilestones(v); len(ms) > 0 {
			c.StuckMilestones = ms
		}
	}
	if v := os.Getenv("OVERSEER_STUCK_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			c.StuckConfidence = f
		}
	}
	if v := os.Getenv("OVERSEER_JUDGE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.JudgeTimeoutSec = n
		}
	}
}

// parseMilestones parses a comma-separated minute list like "30,60,120".
func parseMilestones(v string) []int {
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil
		}
		out = append(out, n)
	}
	return out
}

func (c *Config) validate() error {
	for tier, j := range c.Judges {
		if j.Mode != "cli" && j.Mode != "api" {
			return fmt.Errorf("judge %q: mode must be 'cli' or 'api', got %q", tier, j.Mode)
		}
		if j.Mode == "cli" && j.Cmd == "" {
			return fmt.Errorf("judge %q: cmd is required for cli mode", tier)
		}
		if j.Mode == "api" && j.Provider == "" {
			return fmt.Errorf("judge %q: provider is required for api mode", tier)
		}
	}
	for i := 1; i < len(c.StuckMilestones); i++ {
		if c.StuckMilestones[i] <= c.StuckMilestones[i-1] {
			return fmt.Errorf("stuck_milestones must be strictly ascending, got %v", c.StuckMilestones)
		}
	}
	if c.StuckConfidence < 0 || c.StuckConfidence > 1 {
		return fmt.Errorf("stuck_confidence must be within [0,1], got %v", c.StuckConfidence)
	}
	return nil
}
