package agent

import (
	"fmt"

	"github.com/rustyeddy/tradereplay/features"
	"github.com/rustyeddy/tradereplay/ledger"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/model"
	"github.com/rustyeddy/tradereplay/orderflow"
)

// ModelConfig tunes the model-backed agent. Either ModelPath or
// RegistryDir (for its active model) must be set when built by name.
type ModelConfig struct {
	ModelPath     string  `mapstructure:"model_path" json:"model_path" yaml:"model_path"`
	RegistryDir   string  `mapstructure:"registry_dir" json:"registry_dir" yaml:"registry_dir"`
	BuyThreshold  float64 `mapstructure:"buy_threshold" json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold float64 `mapstructure:"sell_threshold" json:"sell_threshold" yaml:"sell_threshold"`
	MinConfidence float64 `mapstructure:"min_confidence" json:"min_confidence" yaml:"min_confidence"`
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		RegistryDir:   "models",
		BuyThreshold:  0.55,
		SellThreshold: 0.45,
		MinConfidence: 0.40,
	}
}

// multi-class output columns
const (
	classHold = iota
	classLong
	classShort
	classClose
)

// Model scores every bar once in Prepare and then answers each Analyze
// with a lookup.
type Model struct {
	cfg       ModelConfig
	predictor model.Predictor

	probs [][]float64
	index map[int64]int

	side      ledger.Side
	reasoning string
}

func NewModel(p model.Predictor, cfg ModelConfig) *Model {
	return &Model{cfg: cfg, predictor: p}
}

func (a *Model) Reasoning() string { return a.reasoning }

// Prepare computes features and class probabilities for every bar.
func (a *Model) Prepare(series market.Series) error {
	rows := features.Compute(series)
	probs, err := a.predictor.PredictProba(rows)
	if err != nil {
		return err
	}
	if len(probs) != len(series) {
		return fmt.Errorf("model returned %d predictions for %d bars", len(probs), len(series))
	}
	a.probs = probs
	a.index = make(map[int64]int, len(series))
	for i, b := range series {
		a.index[b.Time.UnixNano()] = i
	}
	a.side = ledger.Flat
	return nil
}

func (a *Model) Analyze(visible market.Series, _ orderflow.Metrics) (Decision, error) {
	if a.probs == nil {
		a.reasoning = "No predictions - Prepare not called"
		return Hold, nil
	}
	last, ok := visible.Last()
	if !ok {
		a.reasoning = "No bars"
		return Hold, nil
	}

	pos, ok := a.index[last.Time.UnixNano()]
	if !ok {
		pos = len(visible) - 1
	}
	if pos >= len(a.probs) {
		a.reasoning = fmt.Sprintf("Index %d out of bounds (%d)", pos, len(a.probs))
		return Hold, nil
	}

	p := a.probs[pos]
	if len(p) >= 3 {
		return a.multiClass(p), nil
	}
	return a.binary(p[1]), nil
}

func (a *Model) multiClass(p []float64) Decision {
	best := 0
	for k := range p {
		if p[k] > p[best] {
			best = k
		}
	}
	conf := p[best]
	if conf < a.cfg.MinConfidence {
		a.reasoning = fmt.Sprintf("Low confidence: max_prob=%.2f < %.2f", conf, a.cfg.MinConfidence)
		return Hold
	}

	switch best {
	case classHold:
		a.reasoning = fmt.Sprintf("HOLD predicted: prob=%.2f", conf)
		return Hold

	case classLong:
		switch a.side {
		case ledger.Flat:
			a.side = ledger.Long
			a.reasoning = fmt.Sprintf("OPEN LONG: prob=%.2f", conf)
			return Buy
		case ledger.Short:
			a.side = ledger.Flat
			a.reasoning = fmt.Sprintf("CLOSE SHORT (reversal): prob_long=%.2f", conf)
			return Close
		}
		a.reasoning = fmt.Sprintf("HOLD LONG: prob=%.2f", conf)
		return Hold

	case classShort:
		switch a.side {
		case ledger.Flat:
			a.side = ledger.Short
			a.reasoning = fmt.Sprintf("OPEN SHORT: prob=%.2f", conf)
			return Sell
		case ledger.Long:
			a.side = ledger.Flat
			a.reasoning = fmt.Sprintf("CLOSE LONG (reversal): prob_short=%.2f", conf)
			return Close
		}
		a.reasoning = fmt.Sprintf("HOLD SHORT: prob=%.2f", conf)
		return Hold

	case classClose:
		if a.side != ledger.Flat {
			a.side = ledger.Flat
			a.reasoning = fmt.Sprintf("CLOSE POSITION: prob=%.2f (exit signal)", conf)
			return Close
		}
		a.reasoning = fmt.Sprintf("NO POSITION to close: prob=%.2f", conf)
		return Hold
	}

	a.reasoning = fmt.Sprintf("Unknown class: %d", best)
	return Hold
}

func (a *Model) binary(up float64) Decision {
	switch a.side {
	case ledger.Long:
		if up < 0.5 {
			a.side = ledger.Flat
			a.reasoning = fmt.Sprintf("CLOSE LONG: prob_up=%.2f (reversal)", up)
			return Close
		}
		a.reasoning = fmt.Sprintf("HOLD LONG: prob_up=%.2f", up)
		return Hold
	case ledger.Short:
		if up > 0.5 {
			a.side = ledger.Flat
			a.reasoning = fmt.Sprintf("CLOSE SHORT: prob_up=%.2f (reversal)", up)
			return Close
		}
		a.reasoning = fmt.Sprintf("HOLD SHORT: prob_up=%.2f", up)
		return Hold
	}

	switch {
	case up >= a.cfg.BuyThreshold:
		a.side = ledger.Long
		a.reasoning = fmt.Sprintf("OPEN LONG: prob_up=%.2f", up)
		return Buy
	case up <= a.cfg.SellThreshold:
		a.side = ledger.Short
		a.reasoning = fmt.Sprintf("OPEN SHORT: prob_up=%.2f", up)
		return Sell
	}
	a.reasoning = fmt.Sprintf("FLAT: prob_up=%.2f (neutral)", up)
	return Hold
}

func loadModel(cfg ModelConfig) (*model.Linear, error) {
	if cfg.ModelPath != "" {
		return model.Load(cfg.ModelPath)
	}
	reg, err := model.OpenRegistry(cfg.RegistryDir)
	if err != nil {
		return nil, err
	}
	return reg.LoadActive()
}

// checkFeatures requires the model's inputs to be features.Names in order.
func checkFeatures(m *model.Linear) error {
	if len(m.Features) != len(features.Names) {
		return fmt.Errorf("model %q has %d features, want %d", m.Name, len(m.Features), len(features.Names))
	}
	for i, name := range features.Names {
		if m.Features[i] != name {
			return fmt.Errorf("model %q feature %d is %q, want %q", m.Name, i, m.Features[i], name)
		}
	}
	return nil
}

func init() {
	Register("model", "Pre-trained classifier over engineered features, scored once before the replay",
		func(params map[string]any) (Agent, error) {
			cfg := DefaultModelConfig()
			if err := decodeParams(params, &cfg); err != nil {
				return nil, err
			}
			if cfg.SellThreshold >= cfg.BuyThreshold {
				return nil, fmt.Errorf("sell_threshold must be below buy_threshold")
			}
			m, err := loadModel(cfg)
			if err != nil {
				return nil, err
			}
			if err := checkFeatures(m); err != nil {
				return nil, err
			}
			return NewModel(m, cfg), nil
		})
}
