// Package envfile builds the environment snapshot the callers read secrets from.
// Values come from the process environment and an optional KEY=VALUE file; the
// file never overrides a key that is already present.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

const (
	GeminiAPIKey         = "GEMINI_API_KEY"
	GoogleAIStudioAPIKey = "GOOGLE_AI_STUDIO_API_KEY"
	OpenAIAPIKey         = "OPENAI_API_KEY"
	AnthropicAPIKey      = "ANTHROPIC_API_KEY"
)

// Env is a set of environment variables that only grows through
// set-if-absent operations.
type Env struct {
	values map[string]string
}

func New(base map[string]string) *Env {
	values := make(map[string]string, len(base))
	for key, value := range base {
		values[key] = value
	}
	return &Env{values: values}
}

// FromEnviron parses entries in the os.Environ format.
func FromEnviron(environ []string) *Env {
	env := New(nil)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env.values[key] = value
	}
	return env
}

// Load snapshots environ, merges the file at path and applies the
// GEMINI_API_KEY fallback for GOOGLE_AI_STUDIO_API_KEY.
func Load(path string, environ []string) (*Env, error) {
	env := FromEnviron(environ)
	if err := env.LoadFile(path); err != nil {
		return nil, err
	}
	env.Derive(GoogleAIStudioAPIKey, GeminiAPIKey)
	return env, nil
}

// LoadFile merges KEY=VALUE lines from path. A missing file is not an error.
func (e *Env) LoadFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()

	if err := e.Parse(f); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	return nil
}

// Parse merges KEY=VALUE lines from r. Blank lines, lines starting with '#'
// and lines without '=' are skipped.
func (e *Env) Parse(r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		e.parseLine(line)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (e *Env) parseLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	e.SetDefault(key, strings.TrimSpace(value))
}

// SetDefault sets key only if it is not defined yet and reports whether it did.
func (e *Env) SetDefault(key, value string) bool {
	if _, ok := e.values[key]; ok {
		return false
	}
	e.values[key] = value
	return true
}

// Derive copies source into target when target is unset or empty and
// source is non-empty.
func (e *Env) Derive(target, source string) bool {
	if e.Get(target) != "" {
		return false
	}
	value := e.Get(source)
	if value == "" {
		return false
	}
	e.values[target] = value
	return true
}

func (e *Env) Get(key string) string {
	return e.values[key]
}

func (e *Env) Lookup(key string) (string, bool) {
	value, ok := e.values[key]
	return value, ok
}

func (e *Env) Len() int {
	return len(e.values)
}
