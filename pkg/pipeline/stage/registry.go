package stage

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrAlreadyRegistered = errors.New("strategy already registered")
)

type key struct {
	family Family
	name   string
}

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[key]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[key]Factory)}
}

// Register binds a factory to a known strategy name.
func (r *Registry) Register(family Family, name string, factory Factory) error {
	if !Known(family, name) {
		return errors.Wrapf(ErrUnknownStrategy, "%s strategy %q", family, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{family, name}
	if _, ok := r.factories[k]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "%s strategy %q", family, name)
	}
	r.factories[k] = factory

	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(family Family, name string, factory Factory) {
	err := r.Register(family, name, factory)
	if err != nil {
		panic(err)
	}
}

// Validate checks that name disables the stage or resolves to a registered factory.
func (r *Registry) Validate(family Family, name string) error {
	if name == Off {
		return nil
	}
	if !Known(family, name) {
		return errors.Wrapf(ErrUnknownStrategy, "%s strategy %q is not one of %v", family, name, known[family])
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.factories[key{family, name}]; !ok {
		return errors.Wrapf(ErrUnknownStrategy, "%s strategy %q has no registered implementation", family, name)
	}

	return nil
}

// Build creates the executor selected by params.
func (r *Registry) Build(params Params) (Executor, error) {
	err := r.Validate(params.Family, params.Name)
	if err != nil {
		return nil, err
	}
	if params.Name == Off {
		return nil, errors.Wrapf(ErrUnknownStrategy, "%s stage is disabled", params.Family)
	}

	r.mu.RLock()
	factory := r.factories[key{params.Family, params.Name}]
	r.mu.RUnlock()

	exec, err := factory(params)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to build %s strategy %q", params.Family, params.Name)
	}

	return exec, nil
}
