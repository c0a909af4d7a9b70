// Package http implements the HTTP transport for saytext.
//
// POST /say renders a phrase with the same engine and cache the dialplan
// uses and returns it as a WAV file. It is handy for warming the cache from
// a provisioning script and for listening to a prompt before it goes live.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/saytext/internal/audio"
	"github.com/nadzzz/saytext/internal/metrics"
	"github.com/nadzzz/saytext/internal/request"
)

// maxBody bounds the request body; phrases are short.
const maxBody = 64 << 10

// Renderer produces mono 16-bit PCM for a phrase.
type Renderer interface {
	Render(ctx context.Context, text string) ([]byte, int, error)
}

// SayRequest is the JSON body of POST /say.
type SayRequest struct {
	// Text is the phrase to render.
	Text string `json:"text" example:"Hello world"`
}

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port     int
	renderer Renderer

	mu     sync.Mutex
	server *http.Server
}

// New creates a new HTTP transport on the given port.
func New(port int, renderer Renderer) *Transport {
	return &Transport{port: port, renderer: renderer}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the transport's routes.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /say", t.handleSay)

	// Swagger UI, serving the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// Listen starts the HTTP server.
func (t *Transport) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	t.mu.Lock()
	t.server = srv
	t.mu.Unlock()

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleSay processes a POST /say request.
//
// @Summary     Render a phrase
// @Description Synthesizes the text with the configured engine and voice, using the phrase cache
// @Description when it is enabled, and returns 16-bit mono PCM in a WAV container at the
// @Description configured sample rate. The body is JSON, or the bare phrase as text/plain.
// @Tags        say
// @Accept      json
// @Accept      plain
// @Produce     audio/wav
// @Param       request  body      SayRequest  true  "Phrase to render"
// @Success     200      {file}    binary      "WAV audio"
// @Failure     400      {string}  string      "Invalid request body or empty text"
// @Failure     500      {string}  string      "Synthesis error"
// @Router      /say [post]
func (t *Transport) handleSay(w http.ResponseWriter, r *http.Request) {
	text, err := readText(r)
	if err != nil {
		metrics.ObserveRequest(t.Name(), "bad_request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := request.Parse(text, "")
	if err != nil {
		metrics.ObserveRequest(t.Name(), "bad_request")
		http.Error(w, request.ErrNoText.Error(), http.StatusBadRequest)
		return
	}

	pcm, rate, err := t.renderer.Render(r.Context(), req.Text)
	if err != nil {
		slog.Error("render failed", "error", err)
		metrics.ObserveRequest(t.Name(), "FAILURE")
		http.Error(w, "synthesis error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.ObserveRequest(t.Name(), "SUCCESS")
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(audio.EncodeWAV(pcm, rate, 1, 2))
}

func readText(r *http.Request) (string, error) {
	body := io.LimitReader(r.Body, maxBody)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}
		return string(data), nil
	}

	var sr SayRequest
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.New("empty request body")
		}
		return "", fmt.Errorf("invalid json: %w", err)
	}
	return sr.Text, nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	t.mu.Lock()
	srv := t.server
	t.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}
