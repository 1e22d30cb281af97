// Package source supplies template lists to the engine: line-oriented
// template files, CUE catalogs, and a watcher that feeds runtime additions.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/roach88/omnilink/internal/types"
)

// Source supplies an ordered list of raw templates.
type Source interface {
	Load() ([]string, error)
}

// Static is a fixed template list.
type Static []string

// Load returns a copy of the list.
func (s Static) Load() ([]string, error) {
	return append([]string(nil), s...), nil
}

// File is a line-oriented template file.
type File struct {
	// Path is the file to read. Relative paths are tried as given, then
	// against BaseDir, then against the working directory.
	Path string

	// BaseDir is optional.
	BaseDir string
}

// Load resolves and reads the file.
func (f File) Load() ([]string, error) {
	return LoadFile(f.Path, f.BaseDir)
}

// LoadError reports a template file that could not be found or read.
type LoadError struct {
	Path  string
	Tried []string
	Err   error
}

func (e *LoadError) Error() string {
	if len(e.Tried) > 0 {
		return fmt.Sprintf("templates file %s: %v (tried: %s)", e.Path, e.Err, strings.Join(e.Tried, ", "))
	}
	return fmt.Sprintf("templates file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Resolve finds path on disk. Absolute paths are used as is.
func Resolve(path, baseDir string) (string, error) {
	candidates := []string{path}
	if !filepath.IsAbs(path) {
		if baseDir != "" {
			candidates = append(candidates, filepath.Join(baseDir, path))
		}
		if wd, err := os.Getwd(); err == nil {
			candidates = append(candidates, filepath.Join(wd, path))
		}
	}

	var tried []string
	for _, c := range candidates {
		tried = append(tried, c)
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", &LoadError{Path: path, Tried: tried, Err: os.ErrNotExist}
}

// LoadFile resolves path and parses the templates in it.
func LoadFile(path, baseDir string) ([]string, error) {
	resolved, err := Resolve(path, baseDir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, &LoadError{Path: resolved, Err: err}
	}
	defer f.Close()

	templates, err := Parse(f)
	if err != nil {
		return nil, &LoadError{Path: resolved, Err: err}
	}
	return templates, nil
}

// Parse reads one template per line.
//
// Blank lines and lines starting with '#' are skipped. A line wrapped in
// matching single or double quotes is unquoted and trimmed again. A
// leading byte-order mark (UTF-8 or UTF-16) selects the decoding; input
// without one is read as UTF-8.
func Parse(r io.Reader) ([]string, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	var out []string
	scanner := bufio.NewScanner(decoded)
	for scanner.Scan() {
		if s, ok := parseLine(scanner.Text()); ok {
			out = append(out, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return out, nil
}

func parseLine(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", false
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s, s != ""
}

// Register compiles every template from src into sink, in order.
// The first failure aborts; templates before it stay registered.
func Register(src Source, sink Sink) error {
	templates, err := src.Load()
	if err != nil {
		return err
	}
	for _, t := range templates {
		if err := sink.AddTemplate(t); err != nil {
			return err
		}
	}
	return nil
}

// Sink receives templates. *engine.Engine implements it.
type Sink interface {
	AddTemplate(template string) error
	Templates() []string
}

// Catalog is a CUE template catalog. Loading it registers the catalog's
// custom types into Types before returning the templates.
type Catalog struct {
	Path  string
	Types *types.Registry
}

// Load reads the catalog and applies its types.
func (c Catalog) Load() ([]string, error) {
	cat, err := LoadCatalog(c.Path)
	if err != nil {
		return nil, err
	}
	if c.Types != nil {
		if err := cat.Apply(c.Types); err != nil {
			return nil, err
		}
	}
	return cat.Templates, nil
}

// IsNotFound reports whether err is a missing-file LoadError.
func IsNotFound(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && errors.Is(le.Err, os.ErrNotExist)
}
