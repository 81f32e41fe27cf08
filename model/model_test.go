package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binary() *Linear {
	return &Linear{
		Name:     "updown",
		Features: []string{"a", "b"},
		Weights:  [][]float64{{0, 0}, {1, -1}},
		Bias:     []float64{0, 0},
	}
}

func TestPredictProba(t *testing.T) {
	m := binary()
	require.NoError(t, m.Validate())

	p, err := m.PredictProba([][]float64{{0, 0}, {2, 0}, {0, 2}})
	require.NoError(t, err)
	require.Len(t, p, 3)

	assert.InDelta(t, 0.5, p[0][1], 1e-12)
	assert.Greater(t, p[1][1], 0.85)
	assert.Less(t, p[2][1], 0.15)
	for _, row := range p {
		assert.InDelta(t, 1, row[0]+row[1], 1e-12)
	}

	_, err = m.PredictProba([][]float64{{1}})
	assert.ErrorContains(t, err, "expects 2")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Linear)
		errMsg string
	}{
		{"one class", func(m *Linear) { m.Weights = m.Weights[:1]; m.Bias = m.Bias[:1] }, "at least 2 classes"},
		{"bias length", func(m *Linear) { m.Bias = []float64{0} }, "bias has 1"},
		{"weight width", func(m *Linear) { m.Weights[1] = []float64{1} }, "class 1 has 1 weights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := binary()
			tt.mutate(m)
			assert.ErrorContains(t, m.Validate(), tt.errMsg)
		})
	}
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, binary().Save(path))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, binary(), m)

	require.NoError(t, os.WriteFile(path, []byte(`{"name":"bad","weights":[[1]],"bias":[0]}`), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestRegistryLifecycle(t *testing.T) {
	dir := t.TempDir()
	r, err := OpenRegistry(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, registryFile))

	clock := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	require.NoError(t, binary().Save(filepath.Join(dir, "a.json")))
	require.NoError(t, binary().Save(filepath.Join(dir, "b.json")))

	a, err := r.Register(Info{Name: "xrp", Path: "a.json"})
	require.NoError(t, err)
	assert.True(t, a.Active, "first model becomes active")

	b, err := r.Register(Info{Name: "xrp", Path: "b.json"})
	require.NoError(t, err)
	assert.Equal(t, "xrp_1", b.Name)
	assert.False(t, b.Active)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "xrp_1", list[0].Name, "newest first")

	require.NoError(t, r.SetActive("xrp_1"))
	assert.Error(t, r.SetActive("missing"))

	// state survives a reopen
	r2, err := OpenRegistry(dir)
	require.NoError(t, err)
	act, ok := r2.Active()
	require.True(t, ok)
	assert.Equal(t, "xrp_1", act.Name)

	m, err := r2.LoadActive()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Classes())

	require.NoError(t, r2.Delete("xrp_1"))
	assert.NoFileExists(t, filepath.Join(dir, "b.json"))
	act, ok = r2.Active()
	require.True(t, ok)
	assert.Equal(t, "xrp", act.Name)

	_, ok = r2.Get("xrp_1")
	assert.False(t, ok)
}
