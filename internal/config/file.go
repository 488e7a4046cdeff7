// CLAUDE:SUMMARY Defines placebot config structs, parses the YAML file, applies defaults and PLACEBOT_* env overrides.
// Package config loads placebot configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvPassword = "PLACEBOT_PASSWORD"
	EnvTarget   = "PLACEBOT_TARGET"
	EnvLogLevel = "PLACEBOT_LOG_LEVEL"
)

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("config: invalid")

// Config is the top-level placebot configuration.
type Config struct {
	// Target is the root descriptor reference.
	Target   string `yaml:"target"`
	Username string `yaml:"username"`
	// Password is never read from the file; see EnvPassword.
	Password string `yaml:"-"`

	API      APIConfig     `yaml:"api"`
	Canvas   CanvasConfig  `yaml:"canvas"`
	Loop     LoopConfig    `yaml:"loop"`
	Journal  JournalConfig `yaml:"journal"`
	Status   StatusConfig  `yaml:"status"`
	LogLevel string        `yaml:"log_level"` // debug | info | warn | error
}

// APIConfig locates the canvas service.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	LoginPath   string        `yaml:"login_path"`
	DrawPath    string        `yaml:"draw_path"`
	BoardPath   string        `yaml:"board_path"`
	HeaderBytes int           `yaml:"header_bytes"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxBytes    int64         `yaml:"max_bytes"`
	// AllowPrivate permits loopback and private addresses (local test
	// servers). Off by default.
	AllowPrivate bool `yaml:"allow_private"`
}

// CanvasConfig sizes the board.
type CanvasConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoopConfig controls sleeps between cycles.
type LoopConfig struct {
	IdleInterval   time.Duration `yaml:"idle_interval"`
	FailureBackoff time.Duration `yaml:"failure_backoff"`
}

// JournalConfig locates the SQLite journal. An empty path keeps it in memory.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig enables the status server when Addr is set.
type StatusConfig struct {
	Addr         string `yaml:"addr"`
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvPassword); v != "" {
		c.Password = v
	}
	if v := getenv(EnvTarget); v != "" {
		c.Target = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://www.reddit.com"
	}
	if c.API.LoginPath == "" {
		c.API.LoginPath = "/api/login/"
	}
	if c.API.DrawPath == "" {
		c.API.DrawPath = "/api/place/draw.json"
	}
	if c.API.BoardPath == "" {
		c.API.BoardPath = "/api/place/board-bitmap"
	}
	if c.API.HeaderBytes == 0 {
		c.API.HeaderBytes = 4
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "placebot/1.0"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.MaxBytes <= 0 {
		c.API.MaxBytes = 16 << 20
	}
	if c.Canvas.Width <= 0 {
		c.Canvas.Width = 1000
	}
	if c.Canvas.Height <= 0 {
		c.Canvas.Height = 1000
	}
	if c.Loop.IdleInterval <= 0 {
		c.Loop.IdleInterval = 10 * time.Second
	}
	if c.Loop.FailureBackoff <= 0 {
		c.Loop.FailureBackoff = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports missing settings. Credentials are only required when
// needCredentials is set (the run command places pixels; check does not).
func (c *Config) Validate(needCredentials bool) error {
	var problems []string
	if c.Target == "" {
		problems = append(problems, "target is required")
	}
	if needCredentials {
		if c.Username == "" {
			problems = append(problems, "username is required")
		}
		if c.Password == "" {
			problems = append(problems, EnvPassword+" is required")
		}
	}
	if c.Canvas.Width%2 != 0 {
		problems = append(problems, "canvas.width must be even")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
