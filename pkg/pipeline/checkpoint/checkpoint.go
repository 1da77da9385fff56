// Package checkpoint persists model snapshots keyed by run tag and stage label so that an
// interrupted run can resume after its last completed stage.
package checkpoint

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
)

// Stage labels.
const (
	LabelInitial      = "initial"
	LabelInitialBuild = "initial_build"
	LabelRemodel      = "remodel"
	// LabelIntermediate keeps the intermediate snapshot apart from the relax one.
	LabelIntermediate = "intermediate"
	LabelRelax        = "relax"
	LabelRefine       = "refine"
	LabelFinalRelax   = "ffrelax"
)

var (
	ErrNotFound     = errors.New("checkpoint not found")
	ErrTagMustBeSet = errors.New("tag must be set")
)

// Record is one persisted checkpoint.
type Record struct {
	ID          string    `json:"id"`
	Tag         string    `json:"tag"`
	Label       string    `json:"label"`
	Snapshot    []byte    `json:"snapshot,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Closed      bool      `json:"closed"`
	DebugScore  *float64  `json:"debug_score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasSnapshot reports whether the record carries a model.
func (r *Record) HasSnapshot() bool {
	return r != nil && len(r.Snapshot) > 0
}

// Backend stores records. Load returns ErrNotFound when no record exists.
type Backend interface {
	Load(tag, label string) (*Record, error)
	Save(rec *Record) error
	Delete(tag, label string) error
	List(tag string) ([]*Record, error)
	Clear(tag string) error
}

// Option configures a Checkpointer.
type Option func(c *Checkpointer)

// WithLogger sets the logger. A nil logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checkpointer) {
		c.logger = logger
	}
}

// WithClock sets the time source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Checkpointer) {
		c.now = now
	}
}

// SaveOption tweaks one saved record.
type SaveOption func(rec *Record)

// WithClosed stores the closure state reached by the stage.
func WithClosed(closed bool) SaveOption {
	return func(rec *Record) {
		rec.Closed = closed
	}
}

// NotRecoverable marks the record as a fallback snapshot that does not complete a stage.
func NotRecoverable() SaveOption {
	return func(rec *Record) {
		rec.Recoverable = false
	}
}

// Checkpointer saves and recovers model snapshots through a backend.
type Checkpointer struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a checkpointer over the backend.
func New(backend Backend, opts ...Option) *Checkpointer {
	c := &Checkpointer{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.logger = c.logger.With(slog.String("component", "checkpoint"))

	return c
}

// Backend returns the underlying backend.
func (c *Checkpointer) Backend() Backend {
	return c.backend
}

// Checkpoint persists a snapshot of pose unless one already exists for (tag, label) and
// force is false.
func (c *Checkpointer) Checkpoint(pose *model.Pose, tag, label string, force bool, opts ...SaveOption) error {
	if tag == "" {
		return ErrTagMustBeSet
	}

	existing, err := c.backend.Load(tag, label)
	switch {
	case errors.Is(err, ErrNotFound):
		existing = nil
	case err != nil:
		return errors.Wrapf(err, "unable to load checkpoint %s/%s", tag, label)
	}
	if existing.HasSnapshot() && !force {
		c.logger.Debug("checkpoint exists", slog.String("tag", tag), slog.String("label", label))
		return nil
	}

	snapshot, err := Encode(pose)
	if err != nil {
		return errors.Wrapf(err, "unable to encode checkpoint %s/%s", tag, label)
	}

	rec := &Record{
		ID:          uuid.NewString(),
		Tag:         tag,
		Label:       label,
		Snapshot:    snapshot,
		Recoverable: true,
		CreatedAt:   c.now().UTC(),
	}
	if existing != nil {
		rec.DebugScore = existing.DebugScore
	}
	for _, opt := range opts {
		opt(rec)
	}

	err = c.backend.Save(rec)
	if err != nil {
		return errors.Wrapf(err, "unable to save checkpoint %s/%s", tag, label)
	}
	c.logger.Debug("checkpoint saved", slog.String("tag", tag), slog.String("label", label), slog.Int("bytes", len(snapshot)))

	return nil
}

// Recover overwrites pose with the snapshot saved under (tag, label) and returns its record.
// With considerOnlyFinal only records completing a stage are used. When nothing is recovered
// and onFailUseInput is false, pose falls back to the initial snapshot of the tag if there
// is one, and the call still reports false. Missing or unreadable records never fail.
func (c *Checkpointer) Recover(pose *model.Pose, tag, label string, considerOnlyFinal, onFailUseInput bool) (*Record, bool) {
	rec, snapshot, ok := c.load(tag, label)
	if ok && (!considerOnlyFinal || rec.Recoverable) {
		pose.CopyFrom(snapshot)
		c.logger.Info("checkpoint recovered", slog.String("tag", tag), slog.String("label", label))

		return rec, true
	}

	if !onFailUseInput && label != LabelInitial {
		if _, initial, ok := c.load(tag, LabelInitial); ok {
			pose.CopyFrom(initial)
			c.logger.Info("fell back to initial snapshot", slog.String("tag", tag), slog.String("label", label))
		}
	}

	return nil, false
}

func (c *Checkpointer) load(tag, label string) (*Record, *model.Pose, bool) {
	rec, err := c.backend.Load(tag, label)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, false
	}
	if err != nil {
		c.logger.Warn("checkpoint unreadable, ignoring it",
			slog.String("tag", tag), slog.String("label", label), slog.String("error", err.Error()))
		return nil, nil, false
	}
	if !rec.HasSnapshot() {
		return nil, nil, false
	}
	snapshot, err := Decode(rec.Snapshot)
	if err != nil {
		c.logger.Warn("checkpoint corrupt, ignoring it",
			slog.String("tag", tag), slog.String("label", label), slog.String("error", err.Error()))
		return nil, nil, false
	}

	return rec, snapshot, true
}

// Debug records a diagnostic score for (tag, label) and logs its change since the previous one.
func (c *Checkpointer) Debug(tag, label string, score float64) {
	rec, err := c.backend.Load(tag, label)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &Record{ID: uuid.NewString(), Tag: tag, Label: label, CreatedAt: c.now().UTC()}
	case err != nil:
		c.logger.Warn("unable to load checkpoint for debug score",
			slog.String("tag", tag), slog.String("label", label), slog.String("error", err.Error()))
		return
	}

	attrs := []any{slog.String("tag", tag), slog.String("label", label), slog.Float64("score", score)}
	if rec.DebugScore != nil {
		attrs = append(attrs, slog.Float64("previous", *rec.DebugScore), slog.Float64("delta", score-*rec.DebugScore))
	}
	c.logger.Debug("checkpoint score", attrs...)

	rec.DebugScore = &score
	err = c.backend.Save(rec)
	if err != nil {
		c.logger.Warn("unable to save debug score",
			slog.String("tag", tag), slog.String("label", label), slog.String("error", err.Error()))
	}
}

// Invalidate removes one checkpoint.
func (c *Checkpointer) Invalidate(tag, label string) error {
	err := c.backend.Delete(tag, label)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrapf(err, "unable to delete checkpoint %s/%s", tag, label)
	}

	return nil
}

// List returns every record of the tag.
func (c *Checkpointer) List(tag string) ([]*Record, error) {
	recs, err := c.backend.List(tag)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list checkpoints of %s", tag)
	}

	return recs, nil
}

// Clear removes every record of the tag.
func (c *Checkpointer) Clear(tag string) error {
	err := c.backend.Clear(tag)
	if err != nil {
		return errors.Wrapf(err, "unable to clear checkpoints of %s", tag)
	}

	return nil
}
