// Package request defines the say request flowing from a transport into the
// speech pipeline.
package request

import (
	"errors"
	"strings"
)

// AnyDigit is the interrupt set used when the dialplan passes "any".
const AnyDigit = "0123456789*#"

var (
	// ErrMissingArgs is returned when the dialplan passed no arguments at all.
	ErrMissingArgs = errors.New("say requires an argument (text)")

	// ErrNoText is returned when the text is empty after unquoting.
	ErrNoText = errors.New("no text passed for synthesis")
)

// Request is a single say invocation.
type Request struct {
	// Text is the phrase to speak, with surrounding quotes removed.
	Text string

	// Interrupt is the set of DTMF digits that stop playback early.
	// Empty means playback cannot be interrupted.
	Interrupt string

	// Channel is the host channel name, used for logging only.
	Channel string

	// UniqueID is the host's call identifier, used for logging only.
	UniqueID string
}

// Parse builds a Request from the raw dialplan arguments.
//
// text has one pair of surrounding double quotes stripped. An interrupt of
// "any" (in any case) expands to every DTMF digit. ErrMissingArgs is returned
// when both arguments are absent, ErrNoText when only the text is empty.
func Parse(text, interrupt string) (*Request, error) {
	if text == "" && interrupt == "" {
		return nil, ErrMissingArgs
	}

	req := &Request{
		Text:      stripQuotes(strings.TrimSpace(text)),
		Interrupt: strings.TrimSpace(interrupt),
	}
	if strings.EqualFold(req.Interrupt, "any") {
		req.Interrupt = AnyDigit
	}

	if req.Text == "" {
		return req, ErrNoText
	}
	return req, nil
}

// stripQuotes removes one pair of surrounding double quotes. A lone quote
// strips to nothing.
func stripQuotes(s string) string {
	if len(s) >= 1 && s[0] == '"' && s[len(s)-1] == '"' {
		if len(s) == 1 {
			return ""
		}
		return s[1 : len(s)-1]
	}
	return s
}
