// Package security guards snapshot imports: a path is opened only when it
// resolves, after symlinks, to a regular file of a known format inside one of
// the configured directories.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the snapshot formats the server reads: Excel
// workbooks and JSON cell maps.
var DefaultExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".json"}

var (
	// ErrNotAllowed indicates the path resolves outside the allow-list.
	ErrNotAllowed = errors.New("security: path not allowed")
	// ErrUnsupportedExtension indicates a format the loader cannot read.
	ErrUnsupportedExtension = errors.New("security: unsupported file extension")
	// ErrNotFound indicates the file does not exist.
	ErrNotFound = errors.New("security: file not found")
	// ErrTooLarge indicates the file exceeds the configured size cap.
	ErrTooLarge = errors.New("security: file too large")
)

// Manager holds canonical allow-list roots and the accepted extensions.
type Manager struct {
	roots    []string
	exts     map[string]struct{}
	maxBytes int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxBytes rejects files larger than n bytes. Zero means no cap.
func WithMaxBytes(n int64) Option {
	return func(m *Manager) { m.maxBytes = n }
}

// NewManager canonicalises allowDirs (absolute, symlinks resolved) and
// validates that each one is a directory. A nil extension list means
// DefaultExtensions.
func NewManager(allowDirs []string, extensions []string, opts ...Option) (*Manager, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	m := &Manager{exts: make(map[string]struct{}, len(extensions))}
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") || len(e) < 2 {
			return nil, fmt.Errorf("security: invalid extension: %q", e)
		}
		m.exts[e] = struct{}{}
	}

	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		root, err := canonical(d)
		if err != nil {
			return nil, fmt.Errorf("security: allow-list entry %q: %w", d, err)
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("security: stat %q: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("security: allow-list entry is not a directory: %q", root)
		}
		m.roots = append(m.roots, root)
	}

	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// AllowedDirectories returns a copy of the canonical roots.
func (m *Manager) AllowedDirectories() []string {
	return append([]string(nil), m.roots...)
}

// ValidateConfig reports an empty allow-list. Callers treat that as "path
// imports disabled" rather than a fatal error.
func (m *Manager) ValidateConfig() error {
	if len(m.roots) == 0 {
		return errors.New("security: no allowed directories configured")
	}
	return nil
}

// Allows reports whether ext (with leading dot) is an accepted extension.
func (m *Manager) Allows(ext string) bool {
	_, ok := m.exts[strings.ToLower(ext)]
	return ok
}

// ValidateOpenPath returns the canonical path of input when it may be opened.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrNotAllowed
	}
	if !m.Allows(filepath.Ext(input)) {
		return "", ErrUnsupportedExtension
	}

	real, err := canonical(input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: resolve: %w", err)
	}
	// A symlink may point at a file with a different extension.
	if !m.Allows(filepath.Ext(real)) {
		return "", ErrUnsupportedExtension
	}
	if !m.contains(real) {
		return "", ErrNotAllowed
	}

	info, err := os.Stat(real)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotAllowed
	}
	if m.maxBytes > 0 && info.Size() > m.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, info.Size(), m.maxBytes)
	}
	return real, nil
}

// contains reports whether path lies strictly below one of the roots.
func (m *Manager) contains(path string) bool {
	for _, root := range m.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(real), nil
}
