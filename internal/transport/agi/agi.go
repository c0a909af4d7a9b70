// Package agi implements the FastAGI transport for saytext.
//
// The dialplan reaches saytext with
//
//	same => n,AGI(agi://saytext-host/say,"Hello world",any)
//
// Every connection is one call. The first argument is the text, the second
// the optional interrupt digits ("any" for all). On return the channel
// variable SAYTEXT_STATUS is SUCCESS or FAILURE and SAYTEXT_DIGIT holds the
// digit that interrupted playback, if any.
//
// The audio is written to local files that the host streams, so saytext and
// the PBX must share the temp and cache directories.
package agi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/zaf/agi"

	"github.com/nadzzz/saytext/internal/app"
	"github.com/nadzzz/saytext/internal/metrics"
	"github.com/nadzzz/saytext/internal/request"
)

// Channel variables set on the caller's channel.
const (
	StatusVariable = "SAYTEXT_STATUS"
	DigitVariable  = "SAYTEXT_DIGIT"
)

// channelStateUp is the CHANNEL STATUS result for an answered line.
const channelStateUp = 6

// Sayer speaks a request on a call.
type Sayer interface {
	Say(ctx context.Context, sess app.Session, req *request.Request) (app.Result, error)
}

// Transport implements transport.Transport over FastAGI.
type Transport struct {
	port     int
	sayer    Sayer
	listener net.Listener
	conns    sync.WaitGroup
	mu       sync.Mutex
}

// New creates a new FastAGI transport on the given port.
func New(port int, sayer Sayer) *Transport {
	return &Transport{port: port, sayer: sayer}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "agi" }

// Listen accepts FastAGI connections and serves each on its own goroutine.
func (t *Transport) Listen(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("agi listen: %w", err)
	}

	t.mu.Lock()
	t.listener = lis
	t.mu.Unlock()

	slog.Info("agi transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("agi transport shutting down")
		_ = lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("agi accept: %w", err)
		}

		t.conns.Add(1)
		go func() {
			defer t.conns.Done()
			t.Serve(ctx, conn)
		}()
	}
}

// Serve runs one FastAGI session on conn and closes it.
func (t *Transport) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	sess := agi.New()
	if err := sess.Init(rw); err != nil {
		slog.Error("error parsing agi environment", "remote", conn.RemoteAddr(), "error", err)
		metrics.ObserveRequest(t.Name(), "bad_request")
		return
	}

	t.handle(ctx, sess)
}

func (t *Transport) handle(ctx context.Context, sess *agi.Session) {
	env := sess.Env
	logger := slog.With("channel", env["channel"], "uniqueid", env["uniqueid"])

	req, err := request.Parse(env["arg_1"], env["arg_2"])
	switch {
	case errors.Is(err, request.ErrMissingArgs):
		logger.Error("say requires an argument (text)", "script", env["network_script"])
		t.finish(sess, "FAILURE", 0)
		return
	case errors.Is(err, request.ErrNoText):
		logger.Warn("no text passed for synthesis")
		t.finish(sess, "SUCCESS", 0)
		return
	}
	req.Channel = env["channel"]
	req.UniqueID = env["uniqueid"]

	res, err := t.sayer.Say(ctx, session{sess}, req)
	if err != nil {
		logger.Error("say failed", "error", err)
		_, _ = sess.Verbose(fmt.Sprintf("saytext: %v", err))
		t.finish(sess, "FAILURE", 0)
		return
	}

	logger.Info("say complete", "cached", res.Cached, "digit", digitString(res.Digit))
	t.finish(sess, "SUCCESS", res.Digit)
}

func (t *Transport) finish(sess *agi.Session, status string, digit byte) {
	metrics.ObserveRequest(t.Name(), status)
	if _, err := sess.SetVariable(StatusVariable, status); err != nil {
		slog.Debug("setting status variable failed", "error", err)
		return
	}
	if digit != 0 {
		_, _ = sess.SetVariable(DigitVariable, digitString(digit))
	}
}

func digitString(d byte) string {
	if d == 0 {
		return ""
	}
	return string(rune(d))
}

// Close stops accepting connections and waits for in-flight calls.
func (t *Transport) Close() error {
	t.mu.Lock()
	lis := t.listener
	t.mu.Unlock()

	var err error
	if lis != nil {
		if cerr := lis.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	t.conns.Wait()
	return err
}

// session adapts an AGI session to app.Session.
type session struct {
	s *agi.Session
}

func (a session) ChannelUp() (bool, error) {
	rep, err := a.s.ChannelStatus()
	if err != nil {
		return false, err
	}
	return rep.Res == channelStateUp, nil
}

func (a session) Answer() error {
	rep, err := a.s.Answer()
	if err != nil {
		return err
	}
	if rep.Res == -1 {
		return errors.New("channel answer failed")
	}
	return nil
}

func (a session) StreamFile(base, interrupt string) (byte, error) {
	rep, err := a.s.StreamFile(base, interrupt)
	if err != nil {
		return 0, err
	}
	if rep.Res < 0 {
		return 0, fmt.Errorf("%w: %s", app.ErrStreamFailed, base)
	}
	return byte(rep.Res), nil
}
