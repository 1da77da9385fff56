package checkpoint

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const recordExt = ".json"

// FileBackend stores one JSON file per record under dir/<tag>/<label>.json.
type FileBackend struct {
	mu  sync.Mutex
	dir string
}

// NewFileBackend creates a backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (f *FileBackend) tagDir(tag string) string {
	return filepath.Join(f.dir, url.PathEscape(tag))
}

func (f *FileBackend) path(tag, label string) string {
	return filepath.Join(f.tagDir(tag), url.PathEscape(label)+recordExt)
}

func (f *FileBackend) Load(tag, label string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return readRecord(f.path(tag, label))
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	var rec Record
	err = json.Unmarshal(data, &rec)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode %s", path)
	}

	return &rec, nil
}

// Save writes the record to a temp file first, then renames it so that a crash never
// leaves a half written record behind.
func (f *FileBackend) Save(rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode record")
	}

	path := f.path(rec.Tag, rec.Label)
	err = os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", filepath.Dir(path))
	}

	tmpPath := path + ".tmp"
	err = os.WriteFile(tmpPath, data, 0o644)
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", tmpPath)
	}

	return errors.Wrapf(os.Rename(tmpPath, path), "unable to move %s into place", tmpPath)
}

func (f *FileBackend) Delete(tag, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(tag, label))
	if os.IsNotExist(err) {
		return ErrNotFound
	}

	return errors.Wrap(err, "unable to remove record")
}

func (f *FileBackend) List(tag string) ([]*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.tagDir(tag))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s", f.tagDir(tag))
	}

	var out []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		rec, err := readRecord(filepath.Join(f.tagDir(tag), entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortRecords(out)

	return out, nil
}

func (f *FileBackend) Clear(tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return errors.Wrap(os.RemoveAll(f.tagDir(tag)), "unable to clear records")
}

var _ Backend = (*FileBackend)(nil)
