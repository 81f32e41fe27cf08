package agent

import (
	"testing"

	"github.com/rustyeddy/tradereplay/orderflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMomentumSequence(t *testing.T) {
	a, err := NewMomentum(DefaultMomentumConfig())
	require.NoError(t, err)

	cs := []float64{}
	for i := 0; i < 14; i++ {
		cs = append(cs, 100)
	}
	cs = append(cs, 102, 101, 99, 97, 103)
	s := closes(cs...)

	d, err := a.Analyze(s.Prefix(12), orderflow.Neutral())
	require.NoError(t, err)
	assert.Equal(t, Hold, d)
	assert.Equal(t, "Not enough data", a.Reasoning())

	want := []Decision{Buy, Hold, Close, Sell, Close}
	for k, w := range want {
		i := 14 + k
		d, err := a.Analyze(s.Prefix(i), orderflow.Neutral())
		require.NoError(t, err)
		assert.Equal(t, w, d, "bar %d: %s", i, a.Reasoning())
	}
}

func TestMomentumRejectsBadConfig(t *testing.T) {
	_, err := NewMomentum(MomentumConfig{Lookback: 5, Threshold: 0})
	assert.ErrorContains(t, err, "threshold")
}
