// Package flite implements the TTS Synthesizer on top of the CMU Flite
// command line tool.
//
// Flite renders one of its built-in voices straight into a WAV file:
//
//	flite -voice kal16 -t "text" -o out.wav
//
// kal produces 8 kHz audio, kal16, awb, rms and slt produce 16 kHz.
package flite

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nadzzz/saytext/internal/audio"
	"github.com/nadzzz/saytext/internal/config"
	"github.com/nadzzz/saytext/internal/tts"
)

// Synthesizer implements tts.Synthesizer by running the flite binary.
type Synthesizer struct {
	executor *tts.Executor
	tmpDir   string
}

// New creates a Flite synthesizer, resolving the binary from config.
func New(cfg config.FliteConfig, speech config.SpeechConfig) (*Synthesizer, error) {
	executor, err := tts.NewExecutor(cfg.Binary, speech.Timeout)
	if err != nil {
		return nil, fmt.Errorf("flite: %w", err)
	}
	return NewWithExecutor(executor, speech.TmpDir), nil
}

// NewWithExecutor creates a Flite synthesizer around an existing executor.
func NewWithExecutor(executor *tts.Executor, tmpDir string) *Synthesizer {
	return &Synthesizer{executor: executor, tmpDir: tmpDir}
}

// Name returns the engine identifier.
func (s *Synthesizer) Name() string { return "flite" }

// Synthesize renders text with the requested flite voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	voice := opts.Voice
	if voice == "" {
		voice = tts.DefaultVoice
	}

	// flite can only write its output to a named file.
	out, err := os.CreateTemp(s.tmpDir, "flite_*.wav")
	if err != nil {
		return nil, fmt.Errorf("creating flite output file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{"-voice", voice, "-t", text, "-o", outPath}
	slog.Debug("flite synthesize", "voice", voice, "text_length", len(text))

	if _, stderr, err := s.executor.Execute(ctx, args, nil); err != nil {
		return nil, fmt.Errorf("flite failed: %w: %s", err, stderr)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("reading flite output: %w", err)
	}

	wav, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decoding flite output: %w", err)
	}

	return &tts.SynthesizeResult{
		Audio:      wav.Data,
		SampleRate: wav.SampleRate,
		Channels:   wav.Channels,
	}, nil
}

// Close is a no-op; every call runs its own process.
func (s *Synthesizer) Close() error { return nil }
