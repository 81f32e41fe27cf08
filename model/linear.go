// Package model loads pre-trained classifiers that score feature rows.
// Training happens elsewhere; this package only evaluates.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Predictor maps feature rows to class probabilities. Each output row sums
// to 1 and has Classes() entries.
type Predictor interface {
	Classes() int
	PredictProba(rows [][]float64) ([][]float64, error)
}

// Linear is a multinomial logistic model: softmax(W·x + b).
//
// Two classes are read as [down, up]; four as [hold, long, short, close].
type Linear struct {
	Name     string      `json:"name"`
	Features []string    `json:"features"`
	Weights  [][]float64 `json:"weights"`
	Bias     []float64   `json:"bias"`
}

func (m *Linear) Classes() int { return len(m.Weights) }

// Validate checks the weight matrix agrees with the feature list.
func (m *Linear) Validate() error {
	k := len(m.Weights)
	if k < 2 {
		return fmt.Errorf("model %q: need at least 2 classes, got %d", m.Name, k)
	}
	if len(m.Bias) != k {
		return fmt.Errorf("model %q: bias has %d entries for %d classes", m.Name, len(m.Bias), k)
	}
	for i, w := range m.Weights {
		if len(w) != len(m.Features) {
			return fmt.Errorf("model %q: class %d has %d weights for %d features", m.Name, i, len(w), len(m.Features))
		}
	}
	return nil
}

func (m *Linear) PredictProba(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	logits := make([]float64, len(m.Weights))
	for i, x := range rows {
		if len(x) != len(m.Features) {
			return nil, fmt.Errorf("row %d has %d features, model %q expects %d", i, len(x), m.Name, len(m.Features))
		}
		for k, w := range m.Weights {
			z := m.Bias[k]
			for j, v := range x {
				z += w[j] * v
			}
			logits[k] = z
		}
		out[i] = softmax(logits)
	}
	return out, nil
}

func softmax(z []float64) []float64 {
	hi := math.Inf(-1)
	for _, v := range z {
		hi = math.Max(hi, v)
	}
	p := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		p[i] = math.Exp(v - hi)
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

// Load reads a Linear model from a JSON file.
func Load(path string) (*Linear, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m Linear
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the model as indented JSON.
func (m *Linear) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
