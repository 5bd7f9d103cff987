// Package hostfs is the filesystem seen from the host side: existence checks,
// inode numbers and extension-based file discovery.
package hostfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FS is the filesystem collaborator used by the scanner and path reconciler.
type FS interface {
	Exists(path string) bool
	Inode(path string) (uint64, error)
	// Find returns every regular file under root whose name ends with ext,
	// in lexical order.
	Find(root, ext string) ([]string, error)
}

// OS implements FS on the real filesystem.
type OS struct{}

func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OS) Inode(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return inodeOf(info)
}

func (OS) Find(root, ext string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Only an unwalkable root fails the search; unreadable entries
			// below it are skipped.
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ext) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// MemFS is an in-memory FS for tests. Directories are implied by file paths;
// inode numbers are assigned explicitly with SetInode.
type MemFS struct {
	mu     sync.RWMutex
	files  map[string]bool
	inodes map[string]uint64
}

func NewMemFS(files ...string) *MemFS {
	m := &MemFS{files: make(map[string]bool), inodes: make(map[string]uint64)}
	for _, f := range files {
		m.AddFile(f)
	}
	return m
}

func (m *MemFS) AddFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = true
}

func (m *MemFS) SetInode(path string, ino uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inodes[filepath.Clean(path)] = ino
}

func (m *MemFS) Exists(path string) bool {
	path = filepath.Clean(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.files[path] {
		return true
	}
	if _, ok := m.inodes[path]; ok {
		return true
	}
	prefix := path + string(filepath.Separator)
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

func (m *MemFS) Inode(path string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ino, ok := m.inodes[filepath.Clean(path)]
	if !ok {
		return 0, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return ino, nil
}

func (m *MemFS) Find(root, ext string) ([]string, error) {
	root = filepath.Clean(root)
	prefix := root + string(filepath.Separator)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for f := range m.files {
		if strings.HasPrefix(f, prefix) && strings.HasSuffix(filepath.Base(f), ext) {
			paths = append(paths, f)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
