package chain

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var transientPatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"eof",
	"too many requests",
	"rate limit",
	"temporarily unavailable",
	"header not found",
}

// IsTransient reports whether err is likely to succeed on retry: network
// failures, HTTP 429/5xx responses and rate limiting. Reverts, zero
// addresses and context errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReverted) || errors.Is(err, ErrZeroAddress) || errors.Is(err, ErrNoCode) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
