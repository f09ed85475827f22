package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vthunder/demerzel/internal/activity"
	"github.com/vthunder/demerzel/internal/authorize"
	"github.com/vthunder/demerzel/internal/config"
	"github.com/vthunder/demerzel/internal/effectors"
	"github.com/vthunder/demerzel/internal/executive"
	"github.com/vthunder/demerzel/internal/filter"
	"github.com/vthunder/demerzel/internal/gtd"
	"github.com/vthunder/demerzel/internal/ledger"
	"github.com/vthunder/demerzel/internal/logging"
	"github.com/vthunder/demerzel/internal/profiling"
	"github.com/vthunder/demerzel/internal/reflex"
	"github.com/vthunder/demerzel/internal/senses"
)

func main() {
	log.Println("demerzel - voice command agent")
	log.Println("==============================")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	logging.SetDebug(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("[main] %v", err)
	}
	log.Println("[main] Goodbye!")
}

func run(ctx context.Context, cfg config.Config) error {
	if err := os.MkdirAll(cfg.StatePath, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	// Ledger: refuse to start on a broken chain
	store, err := ledger.OpenStore(cfg.LedgerBackend, cfg.StatePath)
	if err != nil {
		return err
	}
	l, err := ledger.New(ctx, store)
	if err != nil {
		store.Close()
		return err
	}
	defer l.Close()
	if err := l.Verify(ctx); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	seq, _ := l.Head()
	logging.Info("main", "Ledger (%s) at #%d", cfg.LedgerBackend, seq)

	registry := authorize.DefaultRegistry()
	for _, t := range cfg.Tools {
		if err := registry.Register(t.Tool); err != nil {
			return fmt.Errorf("config tool: %w", err)
		}
	}
	gate := authorize.NewGate(registry, l, cfg.Gate)
	boundary := effectors.NewBoundary(registry, l, cfg.Boundary)

	// Actuators
	tasks := gtd.NewStore(cfg.StatePath)
	if err := tasks.Load(); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	actuators := map[string]effectors.Actuator{
		"led_on":        effectors.NewLED(cfg.LEDPath, true),
		"led_off":       effectors.NewLED(cfg.LEDPath, false),
		"system.status": effectors.NewSystemStatus(),
	}
	for tool, a := range actuators {
		if err := boundary.Register(tool, a); err != nil {
			return err
		}
	}
	if err := effectors.NewTaskActuators(tasks).RegisterWith(boundary); err != nil {
		return err
	}
	for _, t := range cfg.Tools {
		if err := boundary.Register(t.Name, configActuator(cfg, t)); err != nil {
			return err
		}
	}

	// Recognizer: Discord when configured, otherwise stdin
	var rec senses.Recognizer
	if cfg.Discord.Enabled() {
		discord, err := senses.NewDiscordRecognizer(senses.DiscordConfig{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
			OwnerID:   cfg.Discord.OwnerID,
		})
		if err != nil {
			return err
		}
		// Discord poster shares the session with the recognizer
		if err := boundary.Register("discord.post", effectors.NewDiscordPoster(discord.Session(), cfg.Discord.ChannelID)); err != nil {
			return err
		}
		rec = discord
	} else {
		logging.Info("main", "No DISCORD_TOKEN, reading transcripts from stdin (prefix partials with ~)")
		rec = senses.NewLineRecognizer(os.Stdin)
	}

	for _, name := range registry.Names() {
		if !boundary.Has(name) {
			logging.Warn("main", "No actuator for %s; the boundary will refuse it", name)
		}
	}
	logging.Info("main", "Tools: %s", strings.Join(registry.Names(), ", "))

	var synth effectors.Synthesizer = effectors.NewConsoleSynthesizer(os.Stdout)
	if cfg.TTSCommand != "" {
		cs, err := effectors.NewCommandSynthesizer(cfg.TTSCommand, cfg.BeepCommand)
		if err != nil {
			return err
		}
		synth = cs
	}

	level, _ := profiling.ParseLevel(cfg.Profiling) // checked by Validate
	profiler, err := profiling.Open(level, filepath.Join(cfg.StatePath, "system", "profiling.jsonl"))
	if err != nil {
		return err
	}
	defer profiler.Close()

	kernel, err := reflex.NewKernel(cfg.Dialogue).WithCommands(cfg.Commands()...)
	if err != nil {
		return fmt.Errorf("config tool: %w", err)
	}
	act := activity.New(cfg.StatePath)
	logging.Info("main", "Activity log at %s", act.Path())

	loop, err := executive.New(executive.Config{
		Kernel:   kernel,
		Echo:     filter.NewEchoGuard(cfg.Echo),
		Gate:     gate,
		Boundary: boundary,
		Synth:    synth,
		Activity: act,
		Profiler: profiler,
		Tick:     cfg.Tick,
	})
	if err != nil {
		return err
	}

	logging.Info("main", "All subsystems started. Press Ctrl+C to stop.")
	return loop.Run(ctx, rec)
}

// configActuator builds the actuator a config-defined tool is bound to.
// Validate has already rejected unknown kinds.
func configActuator(cfg config.Config, t config.ToolConfig) effectors.Actuator {
	switch t.Actuator {
	case "led_on":
		return effectors.NewLED(cfg.LEDPath, true)
	case "led_off":
		return effectors.NewLED(cfg.LEDPath, false)
	default:
		reply := t.Reply
		if reply == "" {
			reply = "Done."
		}
		return effectors.NewRecorder(t.Name, reply, cfg.StatePath)
	}
}
