package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Factory builds a fresh agent from loosely typed parameters, usually read
// from config or an API request.
type Factory func(params map[string]any) (Agent, error)

// Info describes a registered agent.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entry struct {
	info    Info
	factory Factory
}

var (
	mu       sync.RWMutex
	registry = make(map[string]entry)
)

// Register makes an agent available by name. Registering a name twice
// replaces the earlier factory.
func Register(name, description string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = entry{info: Info{Name: name, Description: description}, factory: f}
}

// New builds the named agent.
func New(name string, params map[string]any) (Agent, error) {
	mu.RLock()
	e, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	a, err := e.factory(params)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	return a, nil
}

// List returns the registered agents sorted by name.
func List() []Info {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Info, 0, len(registry))
	for _, e := range registry {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// decodeParams overlays params onto out, which should already hold the
// defaults. Unknown keys are an error.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}
