// Package app implements the say pipeline.
//
// A request is served from the cache when a rendering of the same text at
// the same rate already exists. Otherwise the text is synthesized into a
// temporary signed-linear file, copied into the cache when caching is on,
// streamed to the caller and removed.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nadzzz/saytext/internal/audio"
	"github.com/nadzzz/saytext/internal/cache"
	"github.com/nadzzz/saytext/internal/config"
	"github.com/nadzzz/saytext/internal/metrics"
	"github.com/nadzzz/saytext/internal/request"
	"github.com/nadzzz/saytext/internal/tts"
)

// ErrStreamFailed is returned when the host could not play a file.
var ErrStreamFailed = errors.New("stream file failed")

// Session is the slice of a call the pipeline needs.
type Session interface {
	// ChannelUp reports whether the call has been answered.
	ChannelUp() (bool, error)

	// Answer answers the call.
	Answer() error

	// StreamFile plays the signed-linear file at base (no extension) and
	// returns the digit that interrupted playback, or 0. It returns
	// ErrStreamFailed when the host could not play the file.
	StreamFile(base, interrupt string) (byte, error)
}

// Result is the outcome of a played phrase.
type Result struct {
	// Digit is the DTMF digit that interrupted playback, 0 if none.
	Digit byte

	// Cached is true when the phrase was played from the cache.
	Cached bool
}

// Speaker runs the cache-then-synthesize-then-stream pipeline.
type Speaker struct {
	synth    tts.Synthesizer
	settings func() config.SpeechConfig
}

// New creates a Speaker. settings is consulted once per request so that a
// config reload applies to the next call.
func New(synth tts.Synthesizer, settings func() config.SpeechConfig) *Speaker {
	return &Speaker{synth: synth, settings: settings}
}

// Say speaks req on the session.
func (s *Speaker) Say(ctx context.Context, sess Session, req *request.Request) (Result, error) {
	cfg := s.settings()
	logger := slog.With("channel", req.Channel, "uniqueid", req.UniqueID)
	logger.Debug("say request",
		"text", req.Text,
		"interrupt", req.Interrupt,
		"voice", cfg.Voice,
		"sample_rate", cfg.SampleRate)

	var (
		store      *cache.Store
		key        string
		writeCache bool
	)
	if cfg.UseCache {
		store = cache.New(cfg.CacheDir)
		key = cache.Key(req.Text)
		logger = logger.With("cache_key", key)

		switch {
		case !store.Usable(key):
			logger.Warn("cache path too long, caching skipped", "cache_dir", cfg.CacheDir)
		case store.Lookup(key, cfg.SampleRate):
			metrics.ObserveCacheLookup(true)
			logger.Debug("cache file exists")
			digit, err := s.play(sess, store.Base(key), req.Interrupt)
			if err == nil {
				return Result{Digit: digit, Cached: true}, nil
			}
			// Fall back to a fresh rendering.
			logger.Error("streaming from cache failed", "error", err)
		default:
			metrics.ObserveCacheLookup(false)
			logger.Debug("cache file does not yet exist")
			writeCache = true
		}
	}

	tmpPath, err := s.renderToFile(ctx, req.Text, cfg)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove temp file", "path", tmpPath, "error", err)
		}
	}()

	if writeCache {
		logger.Debug("saving cache file", "path", store.Path(key, cfg.SampleRate))
		if err := store.Promote(tmpPath, key, cfg.SampleRate); err != nil {
			logger.Error("failed to save cache file", "error", err)
		}
	}

	digit, err := s.play(sess, strings.TrimSuffix(tmpPath, "."+audio.Ext(cfg.SampleRate)), req.Interrupt)
	if err != nil {
		return Result{}, err
	}
	return Result{Digit: digit}, nil
}

// Render returns mono PCM for text at the configured rate, using and filling
// the cache the same way Say does.
func (s *Speaker) Render(ctx context.Context, text string) ([]byte, int, error) {
	if text == "" {
		return nil, 0, request.ErrNoText
	}

	cfg := s.settings()

	var (
		store *cache.Store
		key   string
	)
	if cfg.UseCache {
		store = cache.New(cfg.CacheDir)
		key = cache.Key(text)
		if !store.Usable(key) {
			store = nil
		} else if pcm, ok := store.Read(key, cfg.SampleRate); ok {
			metrics.ObserveCacheLookup(true)
			return pcm, cfg.SampleRate, nil
		} else {
			metrics.ObserveCacheLookup(false)
		}
	}

	pcm, err := s.synthesize(ctx, text, cfg)
	if err != nil {
		return nil, 0, err
	}

	if store != nil {
		if err := store.Write(key, cfg.SampleRate, pcm); err != nil {
			slog.Error("failed to save cache file", "cache_key", key, "error", err)
		}
	}
	return pcm, cfg.SampleRate, nil
}

func (s *Speaker) synthesize(ctx context.Context, text string, cfg config.SpeechConfig) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	pcm, err := tts.Render(ctx, s.synth, text, cfg.Voice, cfg.SampleRate)
	metrics.ObserveSynthesis(s.synth.Name(), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s synthesis: %w", s.synth.Name(), err)
	}
	return pcm, nil
}

// renderToFile synthesizes text into a new temp file and returns its path.
func (s *Speaker) renderToFile(ctx context.Context, text string, cfg config.SpeechConfig) (string, error) {
	pcm, err := s.synthesize(ctx, text, cfg)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(cfg.TmpDir, "saytext_*."+audio.Ext(cfg.SampleRate))
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(pcm); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write file %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write file %s: %w", f.Name(), err)
	}
	// The host process usually runs as another user.
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		slog.Debug("chmod of temp file failed", "path", f.Name(), "error", err)
	}

	return f.Name(), nil
}

// play answers the call if needed and streams base.
func (s *Speaker) play(sess Session, base, interrupt string) (byte, error) {
	up, err := sess.ChannelUp()
	if err != nil {
		return 0, fmt.Errorf("channel status: %w", err)
	}
	if !up {
		if err := sess.Answer(); err != nil {
			return 0, fmt.Errorf("answer: %w", err)
		}
	}
	return sess.StreamFile(base, interrupt)
}
