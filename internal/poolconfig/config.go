// Package poolconfig loads the data-only, non-generic half of a Pool's
// configuration (sizes, delays, timeouts) from YAML with environment
// variable overrides, the way internal/config does it in the services
// this pool is meant to be embedded into. The factory and hook
// functions are code, not data, and stay in the caller's Go source;
// Apply merges a Settings onto a pool.Config[R] built around them.
package poolconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pool "github.com/zx80/proxy-pattern-pool"
)

// Settings is the YAML-serializable subset of pool.Config.
type Settings struct {
	MaxSize           int64         `yaml:"max_size"`
	MinSize           int64         `yaml:"min_size"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxUse            uint64        `yaml:"max_use"`
	MaxAvailDelay     time.Duration `yaml:"max_avail_delay"`
	MaxUsingDelay     time.Duration `yaml:"max_using_delay"`
	MaxUsingDelayKill time.Duration `yaml:"max_using_delay_kill"`
	HealthFreq        int           `yaml:"health_freq"`
	Delay             time.Duration `yaml:"delay"`

	// StartHousekeeper mirrors pool.Config.StartHousekeeper: nil means
	// "decide automatically".
	StartHousekeeper *bool `yaml:"start_housekeeper"`

	LogLevel string `yaml:"log_level"`
}

// werkzeugWorkaroundVar is the environment variable legacy deployments
// set to disable the housekeeper in a process that is about to be
// replaced by a reloader's forked worker: the pool itself never reads
// this, only Load does, on its caller's behalf.
const werkzeugWorkaroundVar = "PPP_WERKZEUG_WORKAROUND"

// Load reads Settings from a YAML file, applies environment variable
// overrides, and validates the result.
func Load(configPath string) (*Settings, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read pool config file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate pool config: %w", err)
	}
	return &s, nil
}

// Default returns the Settings matching pool.DefaultConfig's tuning.
func Default() Settings {
	return Settings{
		MinSize:    1,
		HealthFreq: 1,
		LogLevel:   "info",
	}
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("PPP_MAX_SIZE"); v != "" {
		if n, err := parseInt64(v); err == nil {
			s.MaxSize = n
		}
	}
	if v := os.Getenv("PPP_MIN_SIZE"); v != "" {
		if n, err := parseInt64(v); err == nil {
			s.MinSize = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if werkzeugWorkaroundEnabled() {
		disabled := false
		s.StartHousekeeper = &disabled
	}
}

func werkzeugWorkaroundEnabled() bool {
	v := os.Getenv(werkzeugWorkaroundVar)
	return v != "" && v != "0" && v != "false"
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// Validate checks Settings for internal consistency, independent of R.
func (s *Settings) Validate() error {
	if s.MaxSize < 0 {
		return fmt.Errorf("%w: max_size must not be negative", pool.ErrPoolConfig)
	}
	if s.MinSize < 0 {
		return fmt.Errorf("%w: min_size must not be negative", pool.ErrPoolConfig)
	}
	if s.MaxSize > 0 && s.MinSize > s.MaxSize {
		return fmt.Errorf("%w: min_size must not exceed max_size", pool.ErrPoolConfig)
	}
	if s.HealthFreq < 0 {
		return fmt.Errorf("%w: health_freq must not be negative", pool.ErrPoolConfig)
	}
	if s.MaxUsingDelayKill > 0 && s.MaxUsingDelay <= 0 {
		return fmt.Errorf("%w: max_using_delay_kill requires max_using_delay", pool.ErrPoolConfig)
	}
	return nil
}

// Apply copies Settings onto a pool.Config, leaving Fun and the hooks
// the caller already set untouched. HealthFreq of 0 is left at cfg's
// existing value, since pool.Config requires it at least 1.
func Apply[R comparable](s Settings, cfg *pool.Config[R]) {
	cfg.MaxSize = s.MaxSize
	cfg.MinSize = s.MinSize
	cfg.Timeout = s.Timeout
	cfg.MaxUse = s.MaxUse
	cfg.MaxAvailDelay = s.MaxAvailDelay
	cfg.MaxUsingDelay = s.MaxUsingDelay
	cfg.MaxUsingDelayKill = s.MaxUsingDelayKill
	if s.HealthFreq > 0 {
		cfg.HealthFreq = s.HealthFreq
	}
	cfg.Delay = s.Delay
	if s.StartHousekeeper != nil {
		cfg.StartHousekeeper = s.StartHousekeeper
	}
}
