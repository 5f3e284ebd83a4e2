package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/checksum"
)

// FS implements Provider on the local file system as <root>/<projectID>/<name>.
type FS struct {
	root string // absolute path to attachments directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// plainName accepts a single path element that is not hidden.
func plainName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) ||
		filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// projectDir resolves the directory of a project and rejects anything that
// escapes the root.
func (f *FS) projectDir(projectID string) (string, error) {
	if err := plainName(projectID); err != nil {
		return "", err
	}
	abs := filepath.Join(f.root, projectID)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: path escapes root", ErrInvalidName)
	}
	return abs, nil
}

func (f *FS) filePath(projectID, name string) (string, error) {
	dir, err := f.projectDir(projectID)
	if err != nil {
		return "", err
	}
	if err := plainName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// List returns metadata for every file of a project.
func (f *FS) List(projectID string) ([]File, error) {
	dir, err := f.projectDir(projectID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}

	out := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", e.Name(), err)
		}
		sum, err := checksum.File(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", e.Name(), err)
		}
		out = append(out, File{
			Name:      e.Name(),
			Size:      info.Size(),
			Checksum:  sum,
			UpdatedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(projectID, name string) ([]byte, error) {
	abs, err := f.filePath(projectID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(projectID, name string, content []byte) (File, error) {
	abs, err := f.filePath(projectID, name)
	if err != nil {
		return File{}, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return File{}, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".monteerly-tmp-*")
	if err != nil {
		return File{}, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return File{}, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return File{}, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return File{}, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return File{}, fmt.Errorf("storage: rename: %w", err)
	}
	success = true

	info, err := os.Stat(abs)
	if err != nil {
		return File{}, fmt.Errorf("storage: stat: %w", err)
	}
	return File{
		Name:      name,
		Size:      info.Size(),
		Checksum:  checksum.Sum(content),
		UpdatedAt: info.ModTime().UTC(),
	}, nil
}

// Delete removes one file.
func (f *FS) Delete(projectID, name string) error {
	abs, err := f.filePath(projectID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: %s: %w", name, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}

// DeleteAll removes a project's directory.
func (f *FS) DeleteAll(projectID string) error {
	dir, err := f.projectDir(projectID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("storage: delete project files: %w", err)
	}
	return nil
}
