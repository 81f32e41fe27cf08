package agent

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/tradereplay/features"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/model"
	"github.com/rustyeddy/tradereplay/orderflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPredictor struct {
	probs [][]float64
}

func (p fixedPredictor) Classes() int { return len(p.probs[0]) }

func (p fixedPredictor) PredictProba(rows [][]float64) ([][]float64, error) {
	return p.probs[:min(len(rows), len(p.probs))], nil
}

func runModel(t *testing.T, a *Model, s market.Series) []Decision {
	t.Helper()
	var out []Decision
	for i := range s {
		d, err := a.Analyze(s.Prefix(i), orderflow.Neutral())
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestModelRequiresPrepare(t *testing.T) {
	a := NewModel(fixedPredictor{probs: [][]float64{{0, 1}}}, DefaultModelConfig())
	d, err := a.Analyze(closes(1), orderflow.Neutral())
	require.NoError(t, err)
	assert.Equal(t, Hold, d)
	assert.Contains(t, a.Reasoning(), "Prepare")
}

func TestModelBinary(t *testing.T) {
	p := fixedPredictor{probs: [][]float64{
		{0.4, 0.6},
		{0.45, 0.55},
		{0.6, 0.4},
		{0.7, 0.3},
		{0.3, 0.7},
		{0.5, 0.5},
	}}
	a := NewModel(p, DefaultModelConfig())
	s := closes(1, 2, 3, 4, 5, 6)
	require.NoError(t, a.Prepare(s))

	assert.Equal(t, []Decision{Buy, Hold, Close, Sell, Close, Hold}, runModel(t, a, s))
}

func TestModelMultiClass(t *testing.T) {
	p := fixedPredictor{probs: [][]float64{
		{0.3, 0.3, 0.2, 0.2},
		{0.1, 0.7, 0.1, 0.1},
		{0.1, 0.1, 0.7, 0.1},
		{0.1, 0.1, 0.1, 0.7},
		{0.1, 0.1, 0.7, 0.1},
		{0.1, 0.1, 0.1, 0.7},
	}}
	a := NewModel(p, DefaultModelConfig())
	s := closes(1, 2, 3, 4, 5, 6)
	require.NoError(t, a.Prepare(s))

	got := runModel(t, a, s)
	assert.Equal(t, []Decision{Hold, Buy, Close, Hold, Sell, Close}, got)
}

func TestModelFallsBackToLength(t *testing.T) {
	p := fixedPredictor{probs: [][]float64{{0.9, 0.1}, {0.1, 0.9}}}
	a := NewModel(p, DefaultModelConfig())
	require.NoError(t, a.Prepare(closes(1, 2)))

	// timestamps unknown to Prepare: position comes from the prefix length
	shifted := closes(1, 2)
	for i := range shifted {
		shifted[i].Time = shifted[i].Time.Add(time.Hour)
	}
	d, err := a.Analyze(shifted, orderflow.Neutral())
	require.NoError(t, err)
	assert.Equal(t, Buy, d)

	d, err = a.Analyze(closes(1, 2, 3), orderflow.Neutral())
	require.NoError(t, err)
	assert.Equal(t, Hold, d)
	assert.Contains(t, a.Reasoning(), "out of bounds")
}

func TestModelPrepareLengthMismatch(t *testing.T) {
	a := NewModel(fixedPredictor{probs: [][]float64{{0.5, 0.5}}}, DefaultModelConfig())
	assert.ErrorContains(t, a.Prepare(closes(1, 2, 3)), "1 predictions for 3 bars")
}

func linearWith(names []string) *model.Linear {
	w := make([][]float64, 2)
	for k := range w {
		w[k] = make([]float64, len(names))
	}
	return &model.Linear{Name: "test", Features: names, Weights: w, Bias: []float64{0, 0}}
}

func TestModelFactoryChecksFeatureNames(t *testing.T) {
	swapped := append([]string(nil), features.Names...)
	swapped[0], swapped[1] = swapped[1], swapped[0]

	renamed := append([]string(nil), features.Names...)
	renamed[3] = "something_else"

	tests := []struct {
		name    string
		names   []string
		wantErr string
	}{
		{name: "matching", names: features.Names},
		{name: "too few", names: features.Names[:3], wantErr: "has 3 features"},
		{name: "reordered", names: swapped, wantErr: "feature 0 is " + `"` + features.Names[1] + `"`},
		{name: "renamed", names: renamed, wantErr: `feature 3 is "something_else"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.json")
			require.NoError(t, linearWith(tt.names).Save(path))

			a, err := New("model", map[string]any{"model_path": path})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, &Model{}, a)
		})
	}
}
