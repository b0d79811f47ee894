// Package runid generates and resolves deployment run identifiers.
//
// Run ids are ULIDs, so sorting them lexically sorts runs by start time.
package runid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNoMatch   = errors.New("runid: no run matches")
	ErrAmbiguous = errors.New("runid: prefix matches more than one run")
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// New generates a new run id.
func New() string {
	return NewAt(time.Now())
}

// NewAt generates a run id carrying the given start time.
func NewAt(t time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// IsValid checks if s is a well-formed run id.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time extracts the start time encoded in a run id.
func Time(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return ulid.Time(id.Time()), nil
}

// Match resolves a full id or a unique case-insensitive prefix against
// the known ids.
func Match(ids []string, prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrNoMatch)
	}

	var found []string
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			found = append(found, id)
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNoMatch, prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %s (%d candidates)", ErrAmbiguous, prefix, len(found))
	}
}
