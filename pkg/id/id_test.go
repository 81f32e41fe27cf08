package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	prev := g.New()
	for i := 0; i < 100; i++ {
		next := g.New()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	fixed := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	got, err := Time(g.New())
	require.NoError(t, err)
	assert.True(t, got.Equal(fixed))

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}
