package imaging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidRef is returned for references that escape the storage root.
var ErrInvalidRef = errors.New("invalid image reference")

// Storage is the canonical image store. References are slash-separated
// paths relative to its root, e.g. "herramientas/taladro.webp".
type Storage struct {
	root string
}

func NewStorage(root string) *Storage {
	return &Storage{root: root}
}

func (s *Storage) Root() string {
	return s.root
}

// CleanRef normalizes separators and rejects absolute or escaping paths.
func CleanRef(ref string) (string, error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, `\`, "/"))
	if ref == "" || strings.HasPrefix(ref, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	cleaned := path.Clean(ref)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return cleaned, nil
}

// Path maps a reference to its location on disk.
func (s *Storage) Path(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

// Exists reports whether ref names a regular file.
func (s *Storage) Exists(ref string) bool {
	info, err := os.Stat(s.Path(ref))
	return err == nil && info.Mode().IsRegular()
}

// Available returns want, or want with a _1, _2, ... suffix, picking the
// first name that is either free or already owned by own.
func (s *Storage) Available(want, own string) string {
	dir, file := path.Split(want)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	candidate := want
	for i := 1; candidate != own && s.Exists(candidate); i++ {
		candidate = fmt.Sprintf("%s%s_%d%s", dir, base, i, ext)
	}
	return candidate
}

func (s *Storage) Read(ref string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", ref, err)
	}
	return data, nil
}

func (s *Storage) Write(ref string, data []byte) error {
	p := s.Path(ref)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create image folder for %s: %w", ref, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write image %s: %w", ref, err)
	}
	return nil
}

// EnsureDir creates a folder under the root; an existing folder is fine.
func (s *Storage) EnsureDir(dir string) error {
	if dir == "" {
		return os.MkdirAll(s.root, 0o755)
	}
	clean, err := CleanRef(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Path(clean), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}
	return nil
}
