package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File is one candidate fragment file yielded by a Source.
type File struct {
	Name string // base filename, e.g. stack-core@1.0.0.yaml
	Path string // display path for diagnostics and lock pinning
	Data []byte
}

// Source yields candidate fragment files from one provenance tier.
// Injecting sources keeps the catalog free of ambient filesystem state, so
// it can be exercised fully in memory.
type Source interface {
	// Label names the tier for diagnostics, e.g. "bundled" or "local".
	Label() string
	// Files returns all candidate files. A missing backing directory is
	// not an error; it yields no files.
	Files() ([]File, error)
}

// DirSource reads fragment candidates from a local directory,
// non-recursively.
type DirSource struct {
	Dir  string
	Name string
}

// NewDirSource creates a Source over dir, labeled label.
func NewDirSource(dir, label string) *DirSource {
	return &DirSource{Dir: dir, Name: label}
}

// Label implements Source.
func (s *DirSource) Label() string { return s.Name }

// Files implements Source.
func (s *DirSource) Files() ([]File, error) {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(s.Dir, entry.Name())
		data, err := os.ReadFile(path) // #nosec G304 -- path is under the configured fragments dir
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: entry.Name(), Path: path, Data: data})
	}
	return files, nil
}

// FSSource reads fragment candidates from an fs.FS, typically the embedded
// bundled defaults.
type FSSource struct {
	FS   fs.FS
	Root string
	Name string
}

// NewFSSource creates a Source over root inside fsys, labeled label.
func NewFSSource(fsys fs.FS, root, label string) *FSSource {
	return &FSSource{FS: fsys, Root: root, Name: label}
}

// Label implements Source.
func (s *FSSource) Label() string { return s.Name }

// Files implements Source.
func (s *FSSource) Files() ([]File, error) {
	entries, err := fs.ReadDir(s.FS, s.Root)
	if err != nil {
		// An absent embedded directory means no bundled tier.
		return nil, nil
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := entry.Name()
		data, err := fs.ReadFile(s.FS, s.Root+"/"+name)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: name, Path: s.Name + ":" + name, Data: data})
	}
	return files, nil
}

// MemorySource is an in-memory Source for tests and synthetic catalogs.
type MemorySource struct {
	Name    string
	Entries map[string][]byte // filename -> raw bytes
}

// NewMemorySource creates an empty in-memory source labeled label.
func NewMemorySource(label string) *MemorySource {
	return &MemorySource{Name: label, Entries: make(map[string][]byte)}
}

// Add stores a file under filename.
func (s *MemorySource) Add(filename string, data []byte) *MemorySource {
	s.Entries[filename] = data
	return s
}

// Label implements Source.
func (s *MemorySource) Label() string { return s.Name }

// Files implements Source.
func (s *MemorySource) Files() ([]File, error) {
	files := make([]File, 0, len(s.Entries))
	for name, data := range s.Entries {
		files = append(files, File{Name: name, Path: s.Name + ":" + name, Data: data})
	}
	return files, nil
}
