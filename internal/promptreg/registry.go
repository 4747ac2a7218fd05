// Package promptreg loads templated prompt text assets from a directory
// tree keyed by dotted id (e.g. "chapters.outline_core" maps to
// "<root>/chapters/outline_core.txt") and substitutes "{name}" placeholders.
// Templates themselves are opaque assets external to this package; multiple
// registries can coexist (e.g. critique templates under a separate root).
package promptreg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ErrTemplateError is returned for unresolved variables or a missing asset.
var ErrTemplateError = errors.New("promptreg: template error")

var placeholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Registry loads prompt templates from one root directory.
type Registry struct {
	root string
	ext  string

	mu    sync.RWMutex
	cache map[string]string
}

// New creates a Registry rooted at dir. Template files are expected to use
// the given extension (".txt" if empty).
func New(dir string, ext string) *Registry {
	if ext == "" {
		ext = ".txt"
	}
	return &Registry{root: dir, ext: ext, cache: make(map[string]string)}
}

// Load resolves prompt_id (dotted or slash-separated path segments) against
// the registry's root, substitutes variables, and returns the rendered
// string. A variable referenced by the template but absent from variables
// is a fatal ErrTemplateError.
func (r *Registry) Load(promptID string, variables map[string]string) (string, error) {
	raw, err := r.loadRaw(promptID)
	if err != nil {
		return "", err
	}

	var missing []string
	rendered := placeholder.ReplaceAllStringFunc(raw, func(match string) string {
		name := match[1 : len(match)-1]
		val, ok := variables[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: prompt %q missing variables: %s", ErrTemplateError, promptID, strings.Join(missing, ", "))
	}
	return rendered, nil
}

func (r *Registry) loadRaw(promptID string) (string, error) {
	r.mu.RLock()
	if raw, ok := r.cache[promptID]; ok {
		r.mu.RUnlock()
		return raw, nil
	}
	r.mu.RUnlock()

	segments := strings.FieldsFunc(promptID, func(c rune) bool { return c == '.' || c == '/' })
	path := filepath.Join(r.root, filepath.Join(segments...)+r.ext)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: prompt %q: %v", ErrTemplateError, promptID, err)
	}

	raw := string(data)
	r.mu.Lock()
	r.cache[promptID] = raw
	r.mu.Unlock()
	return raw, nil
}
