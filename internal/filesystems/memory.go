package filesystems

import (
	"fmt"
	"io/fs"
	"iter"
	"path"
	"sort"
	"strings"
	"time"
)

// MemoryFS implements FileSystem over an in-memory tree. Tests use it to lay
// out service contexts and config files without touching disk.
type MemoryFS struct {
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemoryFS creates a new MemoryFS instance
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

// AddFile adds a file to the memory filesystem, creating parent directories
func (mfs *MemoryFS) AddFile(name string, content []byte) {
	mfs.files[path.Clean(name)] = content
	mfs.addParents(name)
}

// AddDir adds a directory to the memory filesystem
func (mfs *MemoryFS) AddDir(name string) {
	mfs.dirs[path.Clean(name)] = true
	mfs.addParents(name)
}

func (mfs *MemoryFS) addParents(name string) {
	dir := path.Dir(name)
	for dir != "." && dir != "/" {
		mfs.dirs[dir] = true
		dir = path.Dir(dir)
	}
}

func (mfs *MemoryFS) ReadFile(name string) ([]byte, error) {
	content, exists := mfs.files[path.Clean(name)]
	if !exists {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	return content, nil
}

func (mfs *MemoryFS) Stat(name string) (FileInfo, error) {
	cleanName := path.Clean(name)
	if cleanName == "." || mfs.dirs[cleanName] {
		return &memoryFileInfo{
			name:    path.Base(cleanName),
			mode:    fs.ModeDir | 0755,
			modTime: time.Now(),
			isDir:   true,
		}, nil
	}
	if content, exists := mfs.files[cleanName]; exists {
		return &memoryFileInfo{
			name:    path.Base(cleanName),
			size:    int64(len(content)),
			mode:    0644,
			modTime: time.Now(),
		}, nil
	}
	return nil, fmt.Errorf("not found: %s", name)
}

func (mfs *MemoryFS) ReadDir(name string) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		cleanName := path.Clean(name)

		if cleanName != "." && !mfs.dirs[cleanName] {
			yield(nil, fmt.Errorf("directory not found: %s", name))
			return
		}

		prefix := cleanName
		if prefix != "." {
			prefix += "/"
		}

		// Direct children only, files and dirs alike
		seen := make(map[string]bool)
		entries := make([]string, 0)
		collect := func(p string) {
			if cleanName == "." {
				if strings.Contains(p, "/") {
					p = strings.SplitN(p, "/", 2)[0]
				}
			} else {
				if !strings.HasPrefix(p, prefix) {
					return
				}
				p = strings.SplitN(strings.TrimPrefix(p, prefix), "/", 2)[0]
			}
			if p != "" && !seen[p] {
				entries = append(entries, p)
				seen[p] = true
			}
		}
		for filePath := range mfs.files {
			collect(filePath)
		}
		for dirPath := range mfs.dirs {
			collect(dirPath)
		}

		sort.Strings(entries)

		for _, entry := range entries {
			fullPath := entry
			if cleanName != "." {
				fullPath = path.Join(cleanName, entry)
			}

			_, isFile := mfs.files[fullPath]
			dirEntry := &memoryDirEntry{
				name:     entry,
				isDir:    !isFile,
				mfs:      mfs,
				fullPath: fullPath,
			}

			if !yield(dirEntry, nil) {
				return
			}
		}
	}
}

func (mfs *MemoryFS) Walk(root string, fn WalkFunc) error {
	cleanRoot := path.Clean(root)

	var walkDir func(string) error
	walkDir = func(dir string) error {
		info, err := mfs.Stat(dir)
		if err != nil {
			return fn(dir, nil, err)
		}

		if err := fn(dir, info, nil); err != nil {
			if err == SkipDir && info.IsDir() {
				return nil
			}
			return err
		}

		if info.IsDir() {
			for entry, err := range mfs.ReadDir(dir) {
				if err != nil {
					continue
				}
				if err := walkDir(path.Join(dir, entry.Name())); err != nil {
					return err
				}
			}
		}

		return nil
	}

	return walkDir(cleanRoot)
}

func (mfs *MemoryFS) Join(elem ...string) string {
	return path.Join(elem...)
}

func (mfs *MemoryFS) Base(p string) string {
	return path.Base(p)
}

func (mfs *MemoryFS) Dir(p string) string {
	return path.Dir(p)
}

func (mfs *MemoryFS) Rel(basepath, targpath string) (string, error) {
	base := path.Clean(basepath)
	targ := path.Clean(targpath)
	if base == targ {
		return ".", nil
	}
	if base == "." {
		return targ, nil
	}
	if strings.HasPrefix(targ, base+"/") {
		return strings.TrimPrefix(targ, base+"/"), nil
	}
	return "", fmt.Errorf("cannot make %s relative to %s", targpath, basepath)
}

type memoryDirEntry struct {
	name     string
	isDir    bool
	mfs      *MemoryFS
	fullPath string
}

func (e *memoryDirEntry) Name() string { return e.name }
func (e *memoryDirEntry) IsDir() bool  { return e.isDir }

func (e *memoryDirEntry) Type() fs.FileMode {
	if e.isDir {
		return fs.ModeDir
	}
	return 0
}

func (e *memoryDirEntry) Info() (FileInfo, error) {
	return e.mfs.Stat(e.fullPath)
}

type memoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (i *memoryFileInfo) Name() string       { return i.name }
func (i *memoryFileInfo) Size() int64        { return i.size }
func (i *memoryFileInfo) Mode() fs.FileMode  { return i.mode }
func (i *memoryFileInfo) ModTime() time.Time { return i.modTime }
func (i *memoryFileInfo) IsDir() bool        { return i.isDir }
func (i *memoryFileInfo) Sys() interface{}   { return nil }
