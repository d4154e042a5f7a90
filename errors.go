package depth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrTokenLimit signals that a request exceeded the model's context window.
// Callers that own a truncation strategy (research compression, report
// synthesis) detect it via IsTokenLimit and shrink their input; the retry
// middleware never retries it.
type ErrTokenLimit struct {
	Model string
	Err   error
}

func (e *ErrTokenLimit) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token limit exceeded for %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("token limit exceeded for %s", e.Model)
}

func (e *ErrTokenLimit) Unwrap() error { return e.Err }

// tokenLimitIndicators are substrings that mark a token-limit failure in raw
// provider error text. Backends vary wildly in how they phrase it, so the
// structural ErrTokenLimit check is backed by this empirical list.
var tokenLimitIndicators = []string{
	"token limit",
	"context length",
	"context_length_exceeded",
	"maximum context",
	"too many tokens",
	"token count",
	"context window",
}

// IsTokenLimit reports whether err represents a token-limit-exceeded
// condition, either structurally (ErrTokenLimit) or by matching known
// indicator phrases in the error text.
func IsTokenLimit(err error) bool {
	if err == nil {
		return false
	}
	var tl *ErrTokenLimit
	if errors.As(err, &tl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range tokenLimitIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
