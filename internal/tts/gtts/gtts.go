// Package gtts implements the TTS Synthesizer with Google Translate's
// speech endpoint.
//
// The endpoint returns MP3; the decoder yields 16-bit stereo PCM which the
// pipeline down-mixes and resamples for the call. Requests are rate limited
// to avoid being blocked.
package gtts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	htgotts "github.com/hegedustibor/htgo-tts"
	"golang.org/x/time/rate"

	"github.com/nadzzz/saytext/internal/config"
	"github.com/nadzzz/saytext/internal/tts"
)

const (
	// maxTextSize is the longest phrase the translate endpoint renders in
	// one request.
	maxTextSize = 200

	// badMP3Size is the size of the MP3 the endpoint returns instead of an
	// HTTP error when it refuses a phrase.
	badMP3Size = 1685
)

// ErrTextTooLong is returned for phrases over maxTextSize bytes.
var ErrTextTooLong = errors.New("text too long for gtts")

// Fetcher writes the MP3 rendering of text to dir/name.mp3 and returns its path.
type Fetcher interface {
	Fetch(text, lang, dir, name string) (string, error)
}

// translateFetcher uses htgo-tts.
type translateFetcher struct{}

func (translateFetcher) Fetch(text, lang, dir, name string) (string, error) {
	speech := htgotts.Speech{Folder: dir, Language: lang}
	return speech.CreateSpeechFile(text, name)
}

// Synthesizer implements tts.Synthesizer using Google Translate TTS.
type Synthesizer struct {
	fetcher  Fetcher
	language string
	tmpDir   string
	limiter  *rate.Limiter
}

// New creates a gTTS synthesizer from config.
func New(cfg config.GTTSConfig, tmpDir string) *Synthesizer {
	return NewWithFetcher(cfg, tmpDir, translateFetcher{})
}

// NewWithFetcher creates a gTTS synthesizer with a custom fetcher.
func NewWithFetcher(cfg config.GTTSConfig, tmpDir string, fetcher Fetcher) *Synthesizer {
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 50
	}

	return &Synthesizer{
		fetcher:  fetcher,
		language: lang,
		tmpDir:   tmpDir,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// Name returns the engine identifier.
func (s *Synthesizer) Name() string { return "gtts" }

// Synthesize fetches the MP3 for text and decodes it. The voice option is
// ignored; gTTS only knows languages.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	if len(text) > maxTextSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTextTooLong, len(text), maxTextSize)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gtts rate limit: %w", err)
	}

	dir, err := os.MkdirTemp(s.tmpDir, "gtts_")
	if err != nil {
		return nil, fmt.Errorf("creating gtts work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	slog.Debug("gtts synthesize", "language", s.language, "text_length", len(text))

	path, err := s.fetcher.Fetch(text, s.language, dir, "speech")
	if err != nil {
		return nil, fmt.Errorf("fetching gtts audio: %w", err)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("opening gtts audio: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("opening gtts audio: %w", err)
	}
	if info.Size() == badMP3Size {
		return nil, errors.New("gtts returned its error MP3, phrase rejected")
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decoding gtts mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding gtts mp3: %w", err)
	}

	return &tts.SynthesizeResult{
		Audio:      pcm,
		SampleRate: dec.SampleRate(),
		Channels:   2, // go-mp3 always decodes to stereo
	}, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }
