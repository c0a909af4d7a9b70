package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/saytext/internal/audio"
)

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, text string) ([]byte, int, error) {
	args := m.Called(text)
	pcm, _ := args.Get(0).([]byte)
	return pcm, args.Int(1), args.Error(2)
}

func TestSay_JSON(t *testing.T) {
	pcm := audio.Bytes([]int16{10, -10, 20, -20})
	r := new(MockRenderer)
	r.On("Render", "Hello world").Return(pcm, 8000, nil)

	req := httptest.NewRequest(http.MethodPost, "/say", strings.NewReader(`{"text":"\"Hello world\""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	New(0, r).Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))

	wav, err := audio.DecodeWAV(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 8000, wav.SampleRate)
	assert.Equal(t, 1, wav.Channels)
	assert.Equal(t, pcm, wav.Data)
	r.AssertExpectations(t)
}

func TestSay_PlainText(t *testing.T) {
	r := new(MockRenderer)
	r.On("Render", "plain phrase").Return([]byte{0, 0}, 16000, nil)

	req := httptest.NewRequest(http.MethodPost, "/say", strings.NewReader("plain phrase"))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	rec := httptest.NewRecorder()
	New(0, r).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	r.AssertExpectations(t)
}

func TestSay_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "{"},
		{"empty text", `{"text":""}`},
		{"quoted empty text", `{"text":"\"\""}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := new(MockRenderer)
			req := httptest.NewRequest(http.MethodPost, "/say", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			New(0, r).Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			r.AssertNotCalled(t, "Render", mock.Anything)
		})
	}
}

func TestSay_RenderError(t *testing.T) {
	r := new(MockRenderer)
	r.On("Render", "boom").Return(nil, 0, errors.New("flite exited 1"))

	req := httptest.NewRequest(http.MethodPost, "/say", strings.NewReader(`{"text":"boom"}`))
	rec := httptest.NewRecorder()
	New(0, r).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "flite exited 1")
}

func TestSay_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/say", nil)
	rec := httptest.NewRecorder()
	New(0, new(MockRenderer)).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListen_CloseFromAnotherGoroutine(t *testing.T) {
	tr := New(0, new(MockRenderer))
	require.NoError(t, tr.Close(), "close before listen is a no-op")

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Listen(context.Background()) }()

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.server != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Shutdown may land before ListenAndServe starts; either way Listen returns.
	require.Eventually(t, func() bool {
		_ = tr.Close()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}
