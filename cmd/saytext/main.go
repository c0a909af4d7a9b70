// Saytext is a FastAGI text-to-speech daemon. The dialplan hands it a
// phrase; saytext plays it on the call from its phrase cache or renders it
// with the configured speech engine.
//
// Usage:
//
//	saytext [flags]
//	saytext --config /path/to/saytext.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/nadzzz/saytext/docs"
	"github.com/nadzzz/saytext/internal/app"
	"github.com/nadzzz/saytext/internal/config"
	"github.com/nadzzz/saytext/internal/health"
	"github.com/nadzzz/saytext/internal/transport"
	agitransport "github.com/nadzzz/saytext/internal/transport/agi"
	grpctransport "github.com/nadzzz/saytext/internal/transport/grpc"
	httptransport "github.com/nadzzz/saytext/internal/transport/http"
	"github.com/nadzzz/saytext/internal/tts"
	"github.com/nadzzz/saytext/internal/tts/flite"
	"github.com/nadzzz/saytext/internal/tts/gtts"
	"github.com/nadzzz/saytext/internal/tts/piper"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/saytext.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("saytext %s\n", version)
		os.Exit(0)
	}

	// Load configuration and watch it for changes.
	watcher, err := config.NewWatcher(*configFile, func(c *config.Config) {
		config.SetupLogging(c.Logging)
	})
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()
	cfg := watcher.Snapshot()

	config.SetupLogging(cfg.Logging)
	slog.Info("saytext starting", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The engine is fixed for the life of the process; voice, rate and
	// cache settings follow the config file.
	synth, err := newSynthesizer(cfg)
	if err != nil {
		slog.Error("failed to initialize speech engine", "engine", cfg.Speech.Engine, "error", err)
		os.Exit(1)
	}
	defer synth.Close()
	slog.Info("speech engine ready",
		"engine", synth.Name(),
		"voice", cfg.Speech.Voice,
		"sample_rate", cfg.Speech.SampleRate,
		"use_cache", cfg.Speech.UseCache,
		"cache_dir", cfg.Speech.CacheDir)

	speaker := app.New(synth, watcher.Speech)

	var (
		transports []transport.Transport
		grpcT      *grpctransport.Transport
	)
	if cfg.Transports.AGI.Enabled {
		transports = append(transports, agitransport.New(cfg.Transports.AGI.Port, speaker))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, speaker))
	}
	if cfg.Transports.GRPC.Enabled {
		grpcT = grpctransport.New(cfg.Transports.GRPC.Port)
		transports = append(transports, grpcT)
	}

	if len(transports) == 0 {
		slog.Error("no transports enabled, enable at least one in config")
		os.Exit(1)
	}

	healthServer := health.New(cfg.Server.HealthPort)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	if grpcT != nil {
		grpcT.SetServing(true)
	}
	slog.Info("saytext ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("saytext stopped")
}

func newSynthesizer(cfg *config.Config) (tts.Synthesizer, error) {
	switch cfg.Speech.Engine {
	case "flite":
		s, err := flite.New(cfg.TTS.Flite, cfg.Speech)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "piper":
		return piper.New(cfg.TTS.Piper, cfg.Speech.Timeout), nil
	case "gtts":
		return gtts.New(cfg.TTS.GTTS, cfg.Speech.TmpDir), nil
	default:
		return nil, fmt.Errorf("unknown speech engine %q", cfg.Speech.Engine)
	}
}
