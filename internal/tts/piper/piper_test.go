package piper

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nadzzz/saytext/internal/config"
	"github.com/nadzzz/saytext/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame builds an event the way wyoming servers write it: a JSON header
// line, data_length bytes of event data, then the payload.
func frame(typ string, data map[string]any, payload []byte) []byte {
	var raw []byte
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	head := fmt.Sprintf(`{"type": %q, "version": "1.5.2", "data_length": %d, "payload_length": %d}`,
		typ, len(raw), len(payload))
	out := append([]byte(head+"\n"), raw...)
	return append(out, payload...)
}

// fakePiper serves a single synthesize request, decoding it independently of
// readEvent, and reports the voice it was asked for.
func fakePiper(t *testing.T, reply ...[]byte) (string, <-chan string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	voices := make(chan string, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		var head struct {
			Type       string `json:"type"`
			DataLength int    `json:"data_length"`
		}
		if json.Unmarshal(line, &head) != nil || head.Type != "synthesize" {
			return
		}
		raw := make([]byte, head.DataLength)
		if _, err := io.ReadFull(r, raw); err != nil {
			return
		}
		var data struct {
			Text  string `json:"text"`
			Voice struct {
				Name string `json:"name"`
			} `json:"voice"`
		}
		if json.Unmarshal(raw, &data) != nil {
			return
		}
		voices <- data.Voice.Name

		for _, b := range reply {
			if _, err := conn.Write(b); err != nil {
				return
			}
		}
	}()

	return lis.Addr().String(), voices
}

func TestSynthesize(t *testing.T) {
	addr, voices := fakePiper(t,
		frame("audio-start", map[string]any{"rate": 16000, "width": 2, "channels": 1}, nil),
		frame("audio-chunk", map[string]any{"rate": 16000, "width": 2, "channels": 1}, []byte{1, 0, 2, 0}),
		frame("audio-chunk", nil, []byte{3, 0}),
		frame("audio-stop", nil, nil),
	)

	s := New(config.PiperConfig{Endpoint: "tcp://" + addr}, time.Second)
	res, err := s.Synthesize(context.Background(), "hello", tts.SynthesizeOpts{Voice: "slt"})
	require.NoError(t, err)

	assert.Equal(t, "en_US-amy-medium", <-voices)
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, res.Audio)
	assert.Equal(t, 16000, res.SampleRate)
	assert.Equal(t, 1, res.Channels)
}

func TestSynthesize_VoiceOverride(t *testing.T) {
	addr, voices := fakePiper(t, frame("audio-stop", nil, nil))

	s := New(config.PiperConfig{Endpoint: addr, Voices: map[string]string{"kal": "custom-model"}}, time.Second)
	_, err := s.Synthesize(context.Background(), "hello", tts.SynthesizeOpts{Voice: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, "custom-model", <-voices)
}

func TestSynthesize_ServerError(t *testing.T) {
	addr, _ := fakePiper(t, frame("error", map[string]any{"text": "voice not found"}, nil))

	s := New(config.PiperConfig{Endpoint: addr}, time.Second)
	_, err := s.Synthesize(context.Background(), "hello", tts.SynthesizeOpts{Voice: "kal"})
	assert.EqualError(t, err, "piper error: voice not found")
}

func TestSynthesize_UnsupportedWidth(t *testing.T) {
	addr, _ := fakePiper(t, frame("audio-start", map[string]any{"rate": 22050, "width": 4}, nil))

	s := New(config.PiperConfig{Endpoint: addr}, time.Second)
	_, err := s.Synthesize(context.Background(), "hello", tts.SynthesizeOpts{Voice: "kal"})
	assert.ErrorContains(t, err, "unsupported sample width 4")
}

func TestSynthesize_EmptyText(t *testing.T) {
	s := New(config.PiperConfig{Endpoint: "localhost:1"}, time.Second)
	_, err := s.Synthesize(context.Background(), "", tts.SynthesizeOpts{})
	assert.ErrorIs(t, err, tts.ErrEmptyText)
}

func TestWriteEvent_HeaderIsOneJSONLine(t *testing.T) {
	var buf strings.Builder
	err := writeEvent(&buf, event{Type: "synthesize", Data: map[string]any{"text": "hi"}}, nil)
	require.NoError(t, err)

	line, rest, ok := strings.Cut(buf.String(), "\n")
	require.True(t, ok)

	var head map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &head))
	assert.Equal(t, "synthesize", head["type"])
	assert.EqualValues(t, len(rest), head["data_length"])
	assert.JSONEq(t, `{"text":"hi"}`, rest)
}

func TestReadEvent_InlineData(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"type":"error","data":{"text":"boom"}}` + "\n"))
	evt, payload, err := readEvent(r)
	require.NoError(t, err)
	assert.Equal(t, "error", evt.Type)
	assert.Equal(t, "boom", evt.Data["text"])
	assert.Nil(t, payload)
}

func TestReadEvent_MergesDataAndPayload(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(string(frame("audio-chunk", map[string]any{"rate": 22050}, []byte{9, 9}))))
	evt, payload, err := readEvent(r)
	require.NoError(t, err)
	assert.Equal(t, float64(22050), evt.Data["rate"])
	assert.Equal(t, []byte{9, 9}, payload)
}

func TestReadEvent_InvalidHeader(t *testing.T) {
	_, _, err := readEvent(bufio.NewReader(strings.NewReader("57 0\n")))
	assert.ErrorContains(t, err, "invalid wyoming header")
}
