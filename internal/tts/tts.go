// Package tts defines the interface for text-to-speech synthesis.
//
// Engines return audio at whatever rate they produce natively; Render
// converts it to the mono signed-linear rate the call expects.
package tts

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/nadzzz/saytext/internal/audio"
)

// ErrEmptyText is returned by engines asked to speak nothing.
var ErrEmptyText = errors.New("empty text for synthesis")

// Voices accepted in configuration. kal is rendered with kal16 when the
// target rate is 16 kHz.
var Voices = []string{"kal", "awb", "rms", "slt"}

// DefaultVoice is used for unknown voice names.
const DefaultVoice = "kal"

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Voice is the resolved engine voice (see SelectVoice).
	Voice string

	// SampleRate is the rate the caller will eventually play at. Engines may
	// use it as a hint but are free to return a different native rate.
	SampleRate int
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the engine identifier (e.g., "flite", "piper").
	Name() string

	// Synthesize generates 16-bit little-endian PCM from the given text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is raw 16-bit little-endian PCM, interleaved when Channels > 1.
	Audio []byte

	// SampleRate is the native rate of Audio in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int
}

// SelectVoice maps a configured voice name to the engine voice for rate.
func SelectVoice(name string, rate int) string {
	if !slices.Contains(Voices, name) {
		slog.Warn("unsupported voice, using default male voice",
			"voice", name, "supported", Voices, "default", DefaultVoice)
		name = DefaultVoice
	}
	if name == "kal" && rate == 16000 {
		return "kal16"
	}
	return name
}

// Render synthesizes text and returns mono PCM at rate, resampling when the
// engine's native rate differs.
func Render(ctx context.Context, s Synthesizer, text string, voice string, rate int) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	res, err := s.Synthesize(ctx, text, SynthesizeOpts{
		Voice:      SelectVoice(voice, rate),
		SampleRate: rate,
	})
	if err != nil {
		return nil, err
	}

	channels := res.Channels
	if channels == 0 {
		channels = 1
	}
	if res.SampleRate != rate || channels != 1 {
		slog.Debug("resampling synthesized audio",
			"engine", s.Name(), "from", res.SampleRate, "to", rate, "channels", channels)
		return audio.Normalize(res.Audio, channels, res.SampleRate, rate), nil
	}
	return res.Audio, nil
}
