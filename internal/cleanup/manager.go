// Package cleanup implements the filesystem housekeeping behind the
// httpapi cleanup endpoints. Manager stays deliberately thin: plain
// directory-size walking over the inbox tree, nothing clever.
package cleanup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"amphigory/internal/httpapi"
)

// Manager lists, deletes, and promotes leftover per-disc working folders
// under root (typically ControllerConfig.InboxDir) up to libraryRoot
// (its parent directory, where finished media ultimately lives).
type Manager struct {
	root        string
	libraryRoot string
}

// NewManager constructs a Manager rooted at root, promoting folders to
// libraryRoot on MoveToLibraryRoot.
func NewManager(root, libraryRoot string) *Manager {
	return &Manager{root: root, libraryRoot: libraryRoot}
}

// ListFolders enumerates immediate subdirectories of root with their total
// size, for the cleanup view.
func (m *Manager) ListFolders() ([]httpapi.CleanupFolder, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cleanup: list folders: %w", err)
	}

	var folders []httpapi.CleanupFolder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		size, err := dirSize(filepath.Join(m.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("cleanup: size %s: %w", e.Name(), err)
		}
		folders = append(folders, httpapi.CleanupFolder{Name: e.Name(), SizeBytes: size})
	}
	return folders, nil
}

// DeleteFolder removes a per-disc working folder and everything under it.
func (m *Manager) DeleteFolder(name string) error {
	path, err := m.resolve(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", httpapi.ErrNotFound, name)
		}
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("cleanup: delete %s: %w", name, err)
	}
	return nil
}

// MoveToLibraryRoot promotes a whole per-disc working folder from root up
// into the library root with a single rename. An insert task differs: it
// moves one encoded file out of its per-disc folder into root itself.
func (m *Manager) MoveToLibraryRoot(name string) error {
	src, err := m.resolve(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", httpapi.ErrNotFound, name)
		}
		return err
	}
	if err := os.MkdirAll(m.libraryRoot, 0o755); err != nil {
		return fmt.Errorf("cleanup: prepare library root: %w", err)
	}
	dest := filepath.Join(m.libraryRoot, name)
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("cleanup: move %s to library root: %w", name, err)
	}
	return nil
}

// resolve guards against a folder name that escapes root via path
// traversal, since name arrives from an HTTP path segment.
func (m *Manager) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("cleanup: invalid folder name %q", name)
	}
	return filepath.Join(m.root, name), nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}
