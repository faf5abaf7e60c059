package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidEpoch indicates an epoch outside the freshness window: either
// older than one epoch duration or in the future. This bounds replay of
// stale proofs independently of the nullifier check.
var ErrInvalidEpoch = errors.New("protocol: epoch outside tolerance window")

// Epoch identifies a fixed-duration submission window: floor(unix / duration).
type Epoch int64

// EpochAt returns the epoch containing t for the given window duration.
// The duration must be at least one second; Config.UnmarshalYAML enforces
// this for file-loaded configs.
func EpochAt(t time.Time, duration time.Duration) Epoch {
	return Epoch(t.Unix() / int64(duration/time.Second))
}

// CurrentEpoch returns the epoch containing the current wall-clock time.
func CurrentEpoch(duration time.Duration) Epoch {
	return EpochAt(time.Now(), duration)
}

// String renders the epoch as its decimal public signal form.
func (e Epoch) String() string {
	return strconv.FormatInt(int64(e), 10)
}

// ParseEpoch parses the decimal public signal form. Negative epochs are
// rejected.
func ParseEpoch(s string) (Epoch, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidEpoch, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative epoch %d", ErrInvalidEpoch, n)
	}
	return Epoch(n), nil
}

// ValidateFreshness accepts an epoch only if it is the current window or the
// immediately preceding one relative to now. Anything older is a stale
// proof; anything newer claims a window that has not started.
func ValidateFreshness(e Epoch, now time.Time, duration time.Duration) error {
	current := EpochAt(now, duration)
	if e > current {
		return fmt.Errorf("%w: epoch %d is in the future (current %d)", ErrInvalidEpoch, e, current)
	}
	if e < current-1 {
		return fmt.Errorf("%w: epoch %d is stale (current %d)", ErrInvalidEpoch, e, current)
	}
	return nil
}
