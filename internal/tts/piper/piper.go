// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200. saytext maps its
// flite-style voice names onto Piper voice models.
//
// A Wyoming event on the wire is one JSON header line, optionally followed
// by extra event data and a binary payload:
//
//	{"type": "...", "data_length": N, "payload_length": M}\n
//	<N bytes of JSON merged into the header's data>
//	<M bytes of payload>
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/saytext/internal/config"
	"github.com/nadzzz/saytext/internal/tts"
)

// defaultVoices maps saytext voice names to Piper voice models.
var defaultVoices = map[string]string{
	"kal":   "en_US-ryan-low",
	"kal16": "en_US-ryan-medium",
	"awb":   "en_GB-alan-medium",
	"rms":   "en_US-joe-medium",
	"slt":   "en_US-amy-medium",
}

const dialTimeout = 10 * time.Second

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint string            // host:port of the Piper Wyoming server
	voices   map[string]string // saytext voice -> Piper model
	timeout  time.Duration
}

// New creates a new Piper synthesizer from config. Voices in cfg override
// or extend the built-in mapping.
func New(cfg config.PiperConfig, timeout time.Duration) *Synthesizer {
	voices := make(map[string]string, len(defaultVoices)+len(cfg.Voices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}

	endpoint := cfg.Endpoint
	for _, scheme := range []string{"tcp://", "http://"} {
		endpoint = strings.TrimPrefix(endpoint, scheme)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synthesizer{endpoint: endpoint, voices: voices, timeout: timeout}
}

// Name returns the engine identifier.
func (s *Synthesizer) Name() string { return "piper" }

func (s *Synthesizer) model(voice string) string {
	if m := s.voices[voice]; m != "" {
		return m
	}
	return s.voices[tts.DefaultVoice]
}

// Synthesize sends text to the Piper server and returns raw PCM at Piper's native rate.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	if s.endpoint == "" {
		return nil, errors.New("no piper endpoint configured")
	}

	model := s.model(opts.Voice)
	slog.Debug("piper synthesize", "text_length", len(text), "voice", model, "endpoint", s.endpoint)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.timeout)
	}
	_ = conn.SetDeadline(deadline)

	req := event{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": model},
		},
	}
	if err := writeEvent(conn, req, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	return collectAudio(bufio.NewReader(conn))
}

// Close is a no-op; connections are per-request.
func (s *Synthesizer) Close() error { return nil }

// audioFormat is the data of an audio-start event.
type audioFormat struct {
	Rate     int
	Width    int
	Channels int
}

func parseFormat(data map[string]any) (audioFormat, error) {
	f := audioFormat{Rate: 22050, Width: 2, Channels: 1}
	if v, ok := data["rate"].(float64); ok {
		f.Rate = int(v)
	}
	if v, ok := data["width"].(float64); ok {
		f.Width = int(v)
	}
	if v, ok := data["channels"].(float64); ok {
		f.Channels = int(v)
	}
	if f.Width != 2 {
		return f, fmt.Errorf("piper: unsupported sample width %d", f.Width)
	}
	return f, nil
}

// collectAudio reads audio-start, audio-chunk* and audio-stop and returns
// the concatenated PCM.
func collectAudio(r *bufio.Reader) (*tts.SynthesizeResult, error) {
	format, _ := parseFormat(nil)
	var pcm bytes.Buffer

	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if format, err = parseFormat(evt.Data); err != nil {
				return nil, err
			}
			slog.Debug("piper audio-start", "rate", format.Rate, "channels", format.Channels)
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			slog.Debug("piper audio-stop", "pcm_bytes", pcm.Len())
			return &tts.SynthesizeResult{
				Audio:      pcm.Bytes(),
				SampleRate: format.Rate,
				Channels:   format.Channels,
			}, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("piper error: %s", msg)
		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// header is the first line of an event.
type header struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// protocolVersion is sent in every header.
const protocolVersion = "1.5.2"

// writeEvent frames evt and payload and writes them in one call. Event data
// travels after the header as data_length bytes, the layout every Wyoming
// server release accepts.
func writeEvent(w io.Writer, evt event, payload []byte) error {
	h := header{Type: evt.Type, Version: protocolVersion, PayloadLength: len(payload)}

	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
		h.DataLength = len(data)
	}

	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshalling event header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(line)
	buf.WriteByte('\n')
	buf.Write(data)
	buf.Write(payload)

	_, err = w.Write(buf.Bytes())
	return err
}

// readEvent reads one event and its payload. Data carried in the header and
// data sent after it are merged, the latter winning.
func readEvent(r *bufio.Reader) (*event, []byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: %w", bytes.TrimSpace(line), err)
	}
	if h.Type == "" || h.DataLength < 0 || h.PayloadLength < 0 {
		return nil, nil, fmt.Errorf("invalid wyoming header %q", bytes.TrimSpace(line))
	}

	evt := &event{Type: h.Type, Data: h.Data}

	if h.DataLength > 0 {
		raw := make([]byte, h.DataLength)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, nil, fmt.Errorf("reading event data: %w", err)
		}
		var extra map[string]any
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling event data: %w", err)
		}
		if evt.Data == nil {
			evt.Data = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			evt.Data[k] = v
		}
	}

	if h.PayloadLength == 0 {
		return evt, nil, nil
	}
	payload := make([]byte, h.PayloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, fmt.Errorf("reading payload: %w", err)
	}
	return evt, payload, nil
}
