package learning

import (
	"sort"
	"sync"

	"github.com/valpere/panesync/internal/profile"
)

// PairKey identifies one model: a project and an ordered language pair.
type PairKey struct {
	Project string
	Source  string
	Target  string
}

// Registry hands out one Model per PairKey, creating it on first use.
type Registry struct {
	mu     sync.Mutex
	models map[PairKey]*Model
	opts   []Option
}

// NewRegistry returns an empty registry; opts seed every new model.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{models: make(map[PairKey]*Model), opts: opts}
}

// Model returns the model for (project, source, target). Language codes
// are canonicalized, so "es-MX" and "es" share a model.
func (r *Registry) Model(project, source, target string) *Model {
	key := PairKey{Project: project, Source: profile.Canonical(source), Target: profile.Canonical(target)}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[key]
	if !ok {
		m = NewModel(r.opts...)
		r.models[key] = m
	}
	return m
}

// Pairs lists the keys with a model, sorted.
func (r *Registry) Pairs() []PairKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PairKey, 0, len(r.models))
	for k := range r.models {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	return out
}
