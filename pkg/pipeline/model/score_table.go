package model

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Entry is one named metric.
type Entry struct {
	Name  string
	Value float64
}

// ScoreTable is an ordered mapping from metric name to value. Setting an existing
// name keeps its original position.
type ScoreTable struct {
	keys   []string
	values map[string]float64
}

// NewScoreTable creates an empty table.
func NewScoreTable() *ScoreTable {
	return &ScoreTable{values: make(map[string]float64)}
}

// Set records a metric.
func (s *ScoreTable) Set(name string, value float64) {
	if s.values == nil {
		s.values = make(map[string]float64)
	}
	if _, ok := s.values[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.values[name] = value
}

// Get returns a metric.
func (s *ScoreTable) Get(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Has reports whether a metric was recorded.
func (s *ScoreTable) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Len returns the number of metrics.
func (s *ScoreTable) Len() int {
	return len(s.keys)
}

// Keys returns the metric names in insertion order.
func (s *ScoreTable) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Entries returns the metrics in insertion order.
func (s *ScoreTable) Entries() []Entry {
	out := make([]Entry, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Entry{Name: k, Value: s.values[k]})
	}

	return out
}

// MarshalJSON writes the metrics as an object keeping insertion order.
func (s *ScoreTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for idx, k := range s.keys {
		if idx > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to encode metric name %q", k)
		}
		value, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, errors.Wrapf(err, "unable to encode metric %q", k)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
