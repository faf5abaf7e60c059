package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochAt(t *testing.T) {
	day := 24 * time.Hour

	// 19876 * 86400 is the first second of epoch 19876.
	start := time.Unix(19876*86400, 0)
	assert.Equal(t, Epoch(19876), EpochAt(start, day))
	assert.Equal(t, Epoch(19876), EpochAt(start.Add(day-time.Second), day))
	assert.Equal(t, Epoch(19877), EpochAt(start.Add(day), day))
	assert.Equal(t, Epoch(19875), EpochAt(start.Add(-time.Second), day))
}

func TestEpochStringRoundTrip(t *testing.T) {
	e := Epoch(19876)
	assert.Equal(t, "19876", e.String())

	parsed, err := ParseEpoch("19876")
	require.NoError(t, err)
	assert.Equal(t, e, parsed)
}

func TestParseEpochRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "abc", "-1", "19876.5", "0x42"} {
		_, err := ParseEpoch(input)
		assert.ErrorIs(t, err, ErrInvalidEpoch, "input %q", input)
	}
}

func TestValidateFreshness(t *testing.T) {
	day := 24 * time.Hour
	now := time.Unix(19876*86400+3600, 0)

	assert.NoError(t, ValidateFreshness(Epoch(19876), now, day))
	assert.NoError(t, ValidateFreshness(Epoch(19875), now, day), "previous window is still acceptable")

	assert.ErrorIs(t, ValidateFreshness(Epoch(19877), now, day), ErrInvalidEpoch, "future epoch")
	assert.ErrorIs(t, ValidateFreshness(Epoch(19874), now, day), ErrInvalidEpoch, "stale epoch")
	assert.ErrorIs(t, ValidateFreshness(Epoch(0), now, day), ErrInvalidEpoch)
}

func TestValidateFreshnessShortWindow(t *testing.T) {
	window := time.Hour
	now := time.Unix(3600*1000, 0)

	assert.NoError(t, ValidateFreshness(Epoch(1000), now, window))
	assert.NoError(t, ValidateFreshness(Epoch(999), now, window))
	assert.ErrorIs(t, ValidateFreshness(Epoch(998), now, window), ErrInvalidEpoch)
}
