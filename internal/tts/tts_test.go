package tts

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nadzzz/saytext/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Name() string { return "mock" }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error) {
	args := m.Called(ctx, text, opts)
	if res, ok := args.Get(0).(*SynthesizeResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSynthesizer) Close() error { return nil }

func TestSelectVoice(t *testing.T) {
	assert.Equal(t, "kal", SelectVoice("kal", 8000))
	assert.Equal(t, "kal16", SelectVoice("kal", 16000))
	assert.Equal(t, "awb", SelectVoice("awb", 8000))
	assert.Equal(t, "slt", SelectVoice("slt", 16000))
	assert.Equal(t, "rms", SelectVoice("rms", 16000))
	assert.Equal(t, DefaultVoice, SelectVoice("hal9000", 8000))
	assert.Equal(t, "kal16", SelectVoice("hal9000", 16000))
}

func TestRender_Resamples(t *testing.T) {
	s := new(MockSynthesizer)
	pcm := audio.Bytes([]int16{10, 10, 20, 20, 30, 30, 40, 40})
	s.On("Synthesize", mock.Anything, "hello", SynthesizeOpts{Voice: "kal", SampleRate: 8000}).
		Return(&SynthesizeResult{Audio: pcm, SampleRate: 16000, Channels: 1}, nil)

	out, err := Render(context.Background(), s, "hello", "kal", 8000)
	require.NoError(t, err)
	assert.Equal(t, []int16{10, 20, 30, 40}, audio.Samples(out))
	s.AssertExpectations(t)
}

func TestRender_NativeRatePassesThrough(t *testing.T) {
	s := new(MockSynthesizer)
	pcm := audio.Bytes([]int16{1, 2, 3})
	s.On("Synthesize", mock.Anything, "hi", SynthesizeOpts{Voice: "kal16", SampleRate: 16000}).
		Return(&SynthesizeResult{Audio: pcm, SampleRate: 16000, Channels: 1}, nil)

	out, err := Render(context.Background(), s, "hi", "kal", 16000)
	require.NoError(t, err)
	assert.Equal(t, pcm, out)
}

func TestRender_Errors(t *testing.T) {
	s := new(MockSynthesizer)
	_, err := Render(context.Background(), s, "", "kal", 8000)
	assert.ErrorIs(t, err, ErrEmptyText)

	s.On("Synthesize", mock.Anything, "boom", mock.Anything).Return(nil, errors.New("engine down"))
	_, err = Render(context.Background(), s, "boom", "kal", 8000)
	assert.EqualError(t, err, "engine down")
}

type recordingRunner struct {
	name        string
	args        []string
	hasDeadline bool
}

func (r *recordingRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	r.name, r.args = name, args
	_, r.hasDeadline = ctx.Deadline()
	return []byte("out"), nil, nil
}

func TestExecutor_AppliesTimeout(t *testing.T) {
	r := &recordingRunner{}
	e := NewExecutorWithRunner("/usr/bin/flite", time.Second, r)

	out, _, err := e.Execute(context.Background(), []string{"-t", "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("out"), out)
	assert.Equal(t, "/usr/bin/flite", r.name)
	assert.Equal(t, []string{"-t", "hi"}, r.args)
	assert.True(t, r.hasDeadline)
}

func TestNewExecutor_MissingBinary(t *testing.T) {
	_, err := NewExecutor("saytext-no-such-binary", time.Second)
	assert.ErrorContains(t, err, "binary not found")
}
