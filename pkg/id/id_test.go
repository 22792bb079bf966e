package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAtIsMonotonic(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	a := NewAt(ts)
	b := NewAt(ts)

	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 30, 15, 123_000_000, time.UTC)

	got, err := Time(NewAt(ts))
	require.NoError(t, err)
	assert.True(t, got.Equal(ts), "got %s want %s", got, ts)
}

func TestTimeRejectsGarbage(t *testing.T) {
	_, err := Time("not-a-ulid")
	assert.Error(t, err)
}
