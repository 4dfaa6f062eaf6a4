package registry

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/stepflow/pkg/domain"
)

// StepFunc defines the signature for a step implementation.
// It reads the state through a view and returns the partial update to merge.
type StepFunc func(ctx context.Context, state domain.View, cfg Config) (domain.Update, error)

// RouterFunc defines the signature for a router. It returns the label of the
// outgoing branch and never modifies state.
type RouterFunc func(ctx context.Context, state domain.View, cfg Config) (string, error)

// Kind distinguishes steps from routers.
type Kind string

const (
	KindStep   Kind = "step"
	KindRouter Kind = "router"
)

// Entry is the registry record for one named step or router.
type Entry struct {
	Name        string
	Kind        Kind
	Category    string
	Description string
	Writes      []string // Fields a step may update. Nil means unrestricted, empty means none.
	Labels      []string // Labels a router may return. Empty means undeclared.
	Step        StepFunc
	Router      RouterFunc
}

func (e Entry) validate() error {
	if e.Name == "" {
		return fmt.Errorf("entry name cannot be empty")
	}
	switch e.Kind {
	case KindStep:
		if e.Step == nil {
			return fmt.Errorf("step %q has no function", e.Name)
		}
	case KindRouter:
		if e.Router == nil {
			return fmt.Errorf("router %q has no function", e.Name)
		}
	default:
		return fmt.Errorf("entry %q has unknown kind %q", e.Name, e.Kind)
	}
	return nil
}

func (e Entry) clone() Entry {
	e.Writes = slices.Clone(e.Writes)
	e.Labels = slices.Clone(e.Labels)
	return e
}

// RegisterOption customizes a registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	overwrite   bool
	description string
	writes      []string
	labels      []string
}

// WithOverwrite replaces an existing entry of the same name instead of failing.
func WithOverwrite() RegisterOption {
	return func(o *registerOptions) { o.overwrite = true }
}

// Describe sets the human-readable description.
func Describe(text string) RegisterOption {
	return func(o *registerOptions) { o.description = text }
}

// Writes declares the state fields a step may update. Writes() with no
// fields declares a step that never updates state.
func Writes(fields ...string) RegisterOption {
	return func(o *registerOptions) {
		if o.writes == nil {
			o.writes = []string{}
		}
		o.writes = append(o.writes, fields...)
	}
}

// Labels declares the closed set of labels a router may return.
func Labels(labels ...string) RegisterOption {
	return func(o *registerOptions) { o.labels = append(o.labels, labels...) }
}

// Registry manages the available steps and routers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = NewRegistry() })
	return defaultReg
}

// Register adds an entry. A name that is already taken fails with a
// DuplicateNameError unless WithOverwrite is given.
func (r *Registry) Register(entry Entry, opts ...RegisterOption) error {
	o := &registerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.description != "" {
		entry.Description = o.description
	}
	if o.writes != nil {
		entry.Writes = o.writes
	}
	if len(o.labels) > 0 {
		entry.Labels = o.labels
	}
	if err := entry.validate(); err != nil {
		return err
	}
	entry = entry.clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[entry.Name]; exists && !o.overwrite {
		return &domain.DuplicateNameError{Kind: string(entry.Kind), Name: entry.Name}
	}
	r.entries[entry.Name] = entry
	return nil
}

// RegisterStep registers a step function.
func (r *Registry) RegisterStep(name, category string, fn StepFunc, opts ...RegisterOption) error {
	return r.Register(Entry{Name: name, Kind: KindStep, Category: category, Step: fn}, opts...)
}

// RegisterRouter registers a router function.
func (r *Registry) RegisterRouter(name, category string, fn RouterFunc, opts ...RegisterOption) error {
	return r.Register(Entry{Name: name, Kind: KindRouter, Category: category, Router: fn}, opts...)
}

// Lookup returns the entry for name. A miss fails with a NotFoundError that
// lists the registered names.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, &domain.NotFoundError{Kind: "step", Name: name, Available: r.namesLocked()}
	}
	return e.clone(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Unregister removes name. It reports whether an entry was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	delete(r.entries, name)
	return ok
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List enumerates entries sorted by name, restricted to category when it is not empty.
// Each iteration works on a snapshot taken when it starts.
func (r *Registry) List(category string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		r.mu.RLock()
		snapshot := make([]Entry, 0, len(r.entries))
		for _, e := range r.entries {
			if category == "" || e.Category == category {
				snapshot = append(snapshot, e.clone())
			}
		}
		r.mu.RUnlock()

		sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Name < snapshot[j].Name })
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}

// Categories returns the distinct non-empty categories in sorted order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range r.entries {
		if e.Category != "" {
			seen[e.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
