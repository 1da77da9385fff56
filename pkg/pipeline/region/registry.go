package region

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultMinLength is the minimum length of an auto-detected region.
const DefaultMinLength = 3

// Sizer is a model whose units can be counted.
type Sizer interface {
	Len() int
}

// Detector finds regions on a model when none were supplied.
type Detector[M Sizer] interface {
	Detect(model M, minLength int) (Set, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc[M Sizer] func(model M, minLength int) (Set, error)

// Detect calls f.
func (f DetectorFunc[M]) Detect(model M, minLength int) (Set, error) {
	return f(model, minLength)
}

// RegistryOption configures a Registry.
type RegistryOption[M Sizer] func(r *Registry[M])

// WithDetector sets the detector used when no explicit region is supplied.
func WithDetector[M Sizer](detector Detector[M]) RegistryOption[M] {
	return func(r *Registry[M]) {
		r.detector = detector
	}
}

// WithMinLength sets the minimum length of auto-detected regions.
func WithMinLength[M Sizer](minLength int) RegistryOption[M] {
	return func(r *Registry[M]) {
		r.minLength = minLength
	}
}

// Registry resolves the region set of a run. Resolution happens once, later calls
// return a copy of the same set.
type Registry[M Sizer] struct {
	mu        sync.Mutex
	explicit  Set
	detector  Detector[M]
	minLength int

	resolved Set
	detected bool
	done     bool
}

// NewRegistry creates a registry over the explicit regions, which may be empty.
func NewRegistry[M Sizer](explicit Set, opts ...RegistryOption[M]) *Registry[M] {
	r := &Registry[M]{
		explicit:  explicit.Clone(),
		minLength: DefaultMinLength,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the regions of the run, verified against the model.
func (r *Registry[M]) Resolve(model M) (Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.resolved.Clone(), nil
	}

	regions := r.explicit.Clone()
	if len(regions) == 0 && r.detector != nil {
		detected, err := r.detector.Detect(model, r.minLength)
		if err != nil {
			return nil, errors.Wrap(err, "unable to detect regions")
		}
		regions = detected
		r.detected = true
	}

	err := regions.Verify(model.Len())
	if err != nil {
		return nil, err
	}

	r.resolved = regions
	r.done = true

	return regions.Clone(), nil
}

// AutoDetected reports whether the resolved set came from the detector.
func (r *Registry[M]) AutoDetected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.detected
}
