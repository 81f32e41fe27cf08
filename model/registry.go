package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const registryFile = "registry.json"

// Info describes one registered model file.
type Info struct {
	Name        string             `json:"name"`
	Path        string             `json:"path"`
	CreatedAt   time.Time          `json:"created_at"`
	Description string             `json:"description,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Training    map[string]string  `json:"training_args,omitempty"`
	Active      bool               `json:"is_active"`
}

type registryDoc struct {
	Models      map[string]Info `json:"models"`
	ActiveModel string          `json:"active_model"`
}

// Registry is a directory of model files indexed by registry.json.
// It is not safe for concurrent writers.
type Registry struct {
	dir string
	doc registryDoc
	now func() time.Time
}

// OpenRegistry loads (or creates) the registry in dir.
func OpenRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("model dir: %w", err)
	}
	r := &Registry{dir: dir, now: time.Now, doc: registryDoc{Models: map[string]Info{}}}

	data, err := os.ReadFile(r.path())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return r, r.save()
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(data, &r.doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.path(), err)
	}
	if r.doc.Models == nil {
		r.doc.Models = map[string]Info{}
	}
	return r, nil
}

func (r *Registry) path() string { return filepath.Join(r.dir, registryFile) }

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path(), data, 0644)
}

// Register adds a model. A taken name gets a numeric suffix. The first
// model registered becomes active.
func (r *Registry) Register(info Info) (Info, error) {
	if info.Name == "" {
		return Info{}, fmt.Errorf("model name is required")
	}
	base := info.Name
	for n := 1; ; n++ {
		if _, taken := r.doc.Models[info.Name]; !taken {
			break
		}
		info.Name = fmt.Sprintf("%s_%d", base, n)
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = r.now().UTC()
	}
	info.Active = false
	r.doc.Models[info.Name] = info
	if r.doc.ActiveModel == "" {
		r.doc.ActiveModel = info.Name
	}
	if err := r.save(); err != nil {
		return Info{}, err
	}
	return r.decorate(info), nil
}

func (r *Registry) decorate(info Info) Info {
	info.Active = info.Name == r.doc.ActiveModel
	return info
}

// List returns all models, newest first.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.doc.Models))
	for _, info := range r.doc.Models {
		out = append(out, r.decorate(info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Registry) Get(name string) (Info, bool) {
	info, ok := r.doc.Models[name]
	if !ok {
		return Info{}, false
	}
	return r.decorate(info), true
}

func (r *Registry) Active() (Info, bool) {
	if r.doc.ActiveModel == "" {
		return Info{}, false
	}
	return r.Get(r.doc.ActiveModel)
}

func (r *Registry) SetActive(name string) error {
	if _, ok := r.doc.Models[name]; !ok {
		return fmt.Errorf("model %q not registered", name)
	}
	r.doc.ActiveModel = name
	return r.save()
}

// Delete drops a model and removes its file. If it was active, the newest
// remaining model takes over.
func (r *Registry) Delete(name string) error {
	info, ok := r.doc.Models[name]
	if !ok {
		return fmt.Errorf("model %q not registered", name)
	}
	delete(r.doc.Models, name)
	if err := os.Remove(r.resolve(info.Path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove model file: %w", err)
	}
	if r.doc.ActiveModel == name {
		r.doc.ActiveModel = ""
		if rest := r.List(); len(rest) > 0 {
			r.doc.ActiveModel = rest[0].Name
		}
	}
	return r.save()
}

// Path resolves a model's file, relative paths being under the registry dir.
func (r *Registry) Path(name string) (string, error) {
	info, ok := r.doc.Models[name]
	if !ok {
		return "", fmt.Errorf("model %q not registered", name)
	}
	return r.resolve(info.Path), nil
}

// LoadActive loads the active model.
func (r *Registry) LoadActive() (*Linear, error) {
	info, ok := r.Active()
	if !ok {
		return nil, fmt.Errorf("no active model in %s", r.dir)
	}
	return Load(r.resolve(info.Path))
}

func (r *Registry) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.dir, p)
}
