package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"DeepChat/internal/backend"
	"DeepChat/internal/chatbot"
	"DeepChat/internal/config"
	"DeepChat/internal/journal"
	"DeepChat/internal/session"
	"DeepChat/internal/telemetry"
	"DeepChat/internal/ui"
	"DeepChat/internal/ui/console"
	"DeepChat/internal/ui/tui"
)

func main() {
	var (
		configPath string
		envPath    string
		modeName   string
		plain      bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", config.DefaultConfigFile, "Path to the TOML configuration file")
	flag.StringVar(&envPath, "env", config.DefaultEnvFile, "Path to the .env file holding the API key")
	flag.StringVar(&modeName, "mode", "", "Starting mode (chat|reasoner)")
	flag.BoolVar(&plain, "plain", false, "Use the line-mode console instead of the terminal UI")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := run(configPath, envPath, modeName, plain, debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath, modeName string, plain, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Log.Debug = true
	}
	if modeName != "" {
		mode, err := session.ParseMode(modeName)
		if err != nil {
			return err
		}
		cfg.Session.DefaultMode = mode.String()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := telemetry.InitLogger(cfg.Log.Dir, cfg.Log.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	var (
		tracer trace.Tracer
		meter  metric.Meter
	)
	if cfg.Telemetry.Enabled {
		var shutdown func()
		tracer, meter, shutdown, err = telemetry.InitTelemetry(ctx, cfg.Log.Dir)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer shutdown()
	} else {
		tracer, meter = telemetry.Noop()
	}

	var requests *journal.Journal
	if cfg.Journal.Enabled {
		requests, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open request journal: %w", err)
		}
		defer requests.Close()
	}

	// a missing key does not stop startup, the surface asks for it
	creds := config.NewCredentials(envPath, cfg.API.KeyName)
	apiKey, err := creds.Resolve()
	askKey := false
	if err != nil {
		if !errors.Is(err, config.ErrMissingCredential) {
			logger.Error("failed to resolve API key", "error", err)
		}
		askKey = true
	}

	client := backend.NewClient(cfg, apiKey, logger, tracer, meter)

	opts := chatbot.Options{
		Config: cfg,
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	}
	ctrl := &ui.Controller{
		Credentials: creds,
		Client:      client,
		Transcript:  &ui.Transcript{},
		Logger:      logger,
	}
	if requests != nil {
		opts.Recorder = requests
		ctrl.Journal = requests
	}

	coord := chatbot.New(client, opts)
	coord.Start(ctx)
	defer coord.Close()
	ctrl.Coordinator = coord

	logger.Info("deepchat started",
		"config", configPath,
		"mode", coord.Mode().String(),
		"plain", plain,
		"has_key", !askKey,
		"journal", requests != nil)

	if plain {
		err = console.New(ctrl, os.Stdin, os.Stdout).Run(ctx, askKey)
	} else {
		err = tui.Run(ctx, ctrl, askKey)
	}
	if err != nil {
		logger.Error("surface exited with error", "error", err)
		return err
	}

	logger.Info("deepchat stopped", slog.Int("messages", ctrl.Transcript.Len()))
	return nil
}
