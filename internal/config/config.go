// Package config loads agent settings from .env, a YAML file and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vthunder/demerzel/internal/authorize"
	"github.com/vthunder/demerzel/internal/effectors"
	"github.com/vthunder/demerzel/internal/filter"
	"github.com/vthunder/demerzel/internal/ledger"
	"github.com/vthunder/demerzel/internal/logging"
	"github.com/vthunder/demerzel/internal/profiling"
	"github.com/vthunder/demerzel/internal/reflex"
	"github.com/vthunder/demerzel/internal/types"
)

const (
	DefaultPath      = "demerzel.yaml"
	DefaultStatePath = "state"
	DefaultTick      = 250 * time.Millisecond
	DefaultLEDPath   = "/sys/class/leds/led0/brightness"
)

// KnownActuators are the actuator kinds a config-defined tool may bind to
var KnownActuators = []string{"led_on", "led_off", "record"}

// DiscordConfig holds the optional Discord channel used as a text
// recognizer and as the target of discord.post
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
	OwnerID   string `yaml:"owner_id"`
}

// Enabled reports whether a bot token is configured
func (d DiscordConfig) Enabled() bool {
	return d.Token != ""
}

// ToolConfig adds a tool to the registry, bound to a built-in actuator kind
// and invoked by any of its phrases. Tools that require explicit intent are
// confirmed before they run.
type ToolConfig struct {
	authorize.Tool `yaml:",inline"`
	Actuator       string   `yaml:"actuator"`
	Phrases        []string `yaml:"phrases"`
	Reply          string   `yaml:"reply"` // for "record"
}

// Config is the whole agent configuration
type Config struct {
	StatePath     string        `yaml:"state_path"`
	Debug         bool          `yaml:"debug"`
	LedgerBackend string        `yaml:"ledger_backend"`
	TTSCommand    string        `yaml:"tts_command"`
	BeepCommand   string        `yaml:"beep_command"`
	LEDPath       string        `yaml:"led_path"`
	Tick          time.Duration `yaml:"tick"`
	Profiling     string        `yaml:"profiling"` // off, minimal, detailed
	Discord       DiscordConfig `yaml:"discord"`

	Dialogue reflex.Config            `yaml:"dialogue"`
	Echo     filter.EchoConfig        `yaml:"echo"`
	Gate     authorize.GateConfig     `yaml:"gate"`
	Boundary effectors.BoundaryConfig `yaml:"boundary"`
	Tools    []ToolConfig             `yaml:"tools"`
}

// Default returns the stock configuration
func Default() Config {
	return Config{
		StatePath:     DefaultStatePath,
		LedgerBackend: ledger.BackendSQLite,
		LEDPath:       DefaultLEDPath,
		Tick:          DefaultTick,
		Dialogue:      reflex.DefaultConfig(),
		Echo:          filter.DefaultEchoConfig(),
		Gate:          authorize.GateConfig{PermitBucket: authorize.DefaultPermitBucket},
		Boundary: effectors.BoundaryConfig{
			PermitMaxAge: effectors.DefaultPermitMaxAge,
			Rate:         effectors.DefaultRate,
			Burst:        effectors.DefaultBurst,
		},
	}
}

// Load reads .env (optional), then the YAML file at path (or $DEMERZEL_CONFIG,
// or demerzel.yaml; a missing file is fine), then environment overrides, and
// validates the result.
func Load(path string) (Config, error) {
	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		logging.Debug("config", "No .env file found, using environment variables")
	} else {
		logging.Info("config", "Loaded .env file")
	}

	if path == "" {
		path = os.Getenv("DEMERZEL_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debug("config", "No config file at %s, using defaults", path)
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	logging.Info("config", "Loaded %s", path)
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("STATE_PATH", &c.StatePath)
	setString("LEDGER_BACKEND", &c.LedgerBackend)
	setString("TTS_COMMAND", &c.TTSCommand)
	setString("BEEP_COMMAND", &c.BeepCommand)
	setString("LED_PATH", &c.LEDPath)
	setString("PROFILING_LEVEL", &c.Profiling)
	setString("DISCORD_TOKEN", &c.Discord.Token)
	setString("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)
	setString("DISCORD_OWNER_ID", &c.Discord.OwnerID)

	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEBUG: %w", err)
		}
		c.Debug = debug
	}
	return nil
}

// Validate rejects settings the agent can't run safely with
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	d := c.Dialogue
	check(len(d.Aliases) > 0, "dialogue.aliases: at least one wake alias is required")
	check(inUnit(d.HardThreshold), "dialogue.hard_threshold %v not in [0,1]", d.HardThreshold)
	check(inUnit(d.SoftThreshold), "dialogue.soft_threshold %v not in [0,1]", d.SoftThreshold)
	check(d.SoftThreshold <= d.HardThreshold, "dialogue.soft_threshold %v above hard_threshold %v", d.SoftThreshold, d.HardThreshold)
	check(d.CommandWindow > 0, "dialogue.command_window must be positive")
	check(d.FollowupWindow > 0, "dialogue.followup_window must be positive")
	check(d.ConfirmWindow > 0, "dialogue.confirm_window must be positive")

	e := c.Echo
	check(e.WordsPerSecond > 0, "echo.words_per_second must be positive")
	check(e.MinDuration > 0, "echo.min_duration must be positive")
	check(e.GuardInterval > 0, "echo.guard_interval must be positive")
	check(e.SimilarityThreshold > 0 && e.SimilarityThreshold <= 1, "echo.similarity_threshold %v not in (0,1]", e.SimilarityThreshold)

	check(c.Gate.PermitBucket > 0, "gate.permit_bucket must be positive")
	check(c.Boundary.PermitMaxAge > 0, "boundary.permit_max_age must be positive")
	check(c.Boundary.Rate > 0, "boundary.actuator_rate must be positive")
	check(c.Boundary.Burst > 0, "boundary.actuator_burst must be positive")
	check(c.Tick > 0, "tick must be positive")
	check(c.StatePath != "", "state_path is required")

	if _, err := profiling.ParseLevel(c.Profiling); err != nil {
		errs = append(errs, fmt.Errorf("profiling: %w", err))
	}

	switch c.LedgerBackend {
	case ledger.BackendMemory, ledger.BackendSQLite, ledger.BackendJSONL:
	default:
		errs = append(errs, fmt.Errorf("ledger_backend %q: want memory, sqlite or jsonl", c.LedgerBackend))
	}

	for i, t := range c.Tools {
		check(strings.TrimSpace(t.Name) != "", "tools[%d]: name is required", i)
		check(slices.Contains(KnownActuators, t.Actuator), "tools[%d] %q: unknown actuator %q", i, t.Name, t.Actuator)
		check(slices.ContainsFunc(t.Phrases, func(p string) bool { return types.Normalize(p) != "" }),
			"tools[%d] %q: at least one phrase is required", i, t.Name)
	}

	return errors.Join(errs...)
}

// Commands returns the kernel commands for the configured tools
func (c Config) Commands() []reflex.Command {
	cmds := make([]reflex.Command, 0, len(c.Tools))
	for _, t := range c.Tools {
		cmds = append(cmds, reflex.Command{
			Tool:    t.Name,
			Phrases: t.Phrases,
			Confirm: t.RequiresExplicitIntent,
		})
	}
	return cmds
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
