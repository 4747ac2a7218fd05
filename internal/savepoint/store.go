package savepoint

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const fileExt = ".md"

// Store is a content-addressed, resumable artifact store scoped to one
// story directory at a time. The zero value is usable but unbound; call
// SetStory before any other operation.
type Store struct {
	root      string
	storyName string
	storyDir  string
}

// New creates a Store rooted at the given savepoint directory (the parent of
// all per-story directories).
func New(root string) *Store {
	return &Store{root: root}
}

// SetStory binds the store to "<root>/<storyName>/", creating the directory
// if it doesn't already exist.
func (s *Store) SetStory(storyName string) error {
	dir := filepath.Join(s.root, storyName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("savepoint: create story directory %q: %w", dir, err)
	}
	s.storyName = storyName
	s.storyDir = dir
	return nil
}

// StoryDir returns the bound story's root directory, or "" if unbound.
func (s *Store) StoryDir() string { return s.storyDir }

func (s *Store) path(stepID string) (string, error) {
	if s.storyDir == "" {
		return "", ErrNotBound
	}
	clean := filepath.Clean(stepID)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("savepoint: invalid step id %q", stepID)
	}
	return filepath.Join(s.storyDir, clean+fileExt), nil
}

// Save writes value atomically to step_id, overwriting any existing file.
// Nested step ids (containing "/") create the necessary subdirectories.
func (s *Store) Save(stepID string, value Value) error {
	target, err := s.path(stepID)
	if err != nil {
		return err
	}

	encoded, err := encode(value)
	if err != nil {
		return fmt.Errorf("savepoint: encode %q: %w", stepID, err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("savepoint: create directory %q: %w", dir, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%s", uuid.NewString()))
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("savepoint: write temp file for %q: %w", stepID, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("savepoint: rename into place for %q: %w", stepID, err)
	}
	return nil
}

// Has reports whether step_id exists.
func (s *Store) Has(stepID string) (bool, error) {
	target, err := s.path(stepID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("savepoint: stat %q: %w", stepID, err)
}

// Load returns the value stored at step_id, or found=false if absent ("absent"
// is a distinct signal from an empty value).
func (s *Store) Load(stepID string) (value Value, found bool, err error) {
	target, err := s.path(stepID)
	if err != nil {
		return Value{}, false, err
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("savepoint: read %q: %w", stepID, err)
	}

	v, err := decode(raw)
	if err != nil {
		return Value{}, false, fmt.Errorf("savepoint: decode %q: %w", stepID, err)
	}
	return v, true, nil
}

// LoadWithMetadata returns {_frontmatter, _body} for step_id, or a
// {legacy_data: true} wrapper for pre-frontmatter files. Returns found=false
// if absent.
func (s *Store) LoadWithMetadata(stepID string) (meta Metadata, found bool, err error) {
	target, err := s.path(stepID)
	if err != nil {
		return nil, false, err
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("savepoint: read %q: %w", stepID, err)
	}

	text := string(raw)
	if !strings.HasPrefix(text, frontmatterDelim) {
		return Metadata{"legacy_data": true, "content": strings.TrimRight(text, "\n")}, true, nil
	}

	v, err := decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("savepoint: decode %q: %w", stepID, err)
	}

	rest := strings.TrimPrefix(text, frontmatterDelim+"\n")
	end := strings.Index(rest, "\n"+frontmatterDelim)
	body := strings.TrimPrefix(rest[end+len("\n"+frontmatterDelim):], "\n")

	var fmValue any
	if v.Kind == KindStructured {
		fmValue = v.Structured
	} else {
		fmValue = map[string]any{"_type": v.Kind.String()}
	}

	return Metadata{"_frontmatter": fmValue, "_body": strings.TrimRight(body, "\n")}, true, nil
}

// Delete removes step_id; it is a no-op if absent.
func (s *Store) Delete(stepID string) error {
	target, err := s.path(stepID)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("savepoint: delete %q: %w", stepID, err)
	}
	return nil
}

// ListAll recursively enumerates every savepoint under the bound story.
// Corrupted entries are logged and skipped rather than failing the whole
// enumeration.
func (s *Store) ListAll() ([]Entry, error) {
	if s.storyDir == "" {
		return nil, ErrNotBound
	}

	var entries []Entry
	err := filepath.WalkDir(s.storyDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(s.storyDir, path)
		if err != nil {
			return err
		}
		stepID := strings.TrimSuffix(filepath.ToSlash(rel), fileExt)

		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[Savepoint] skipping %q: read error: %v", stepID, err)
			return nil
		}
		v, err := decode(raw)
		if err != nil {
			log.Printf("[Savepoint] skipping corrupt entry %q: %v", stepID, err)
			return nil
		}
		entries = append(entries, Entry{StepID: stepID, Value: v})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("savepoint: list all: %w", err)
	}
	return entries, nil
}
