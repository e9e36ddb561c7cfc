package descriptor

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry holds descriptors by contract name
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Names must be unique.
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.Name()]; exists {
		return fmt.Errorf("contract %s already registered", d.Name())
	}
	r.descriptors[d.Name()] = d
	return nil
}

// Get returns the descriptor registered under name
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[name]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", name)
	}
	return d, nil
}

// Names returns the registered contract names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFS loads every *.json artifact and every *.abi/*.bin pair under root
func (r *Registry) LoadFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		var d *Descriptor
		switch path.Ext(p) {
		case ".json":
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", p, err)
			}
			d, err = Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		case ".abi":
			d, err = loadPair(fsys, p)
			if err != nil {
				return err
			}
		default:
			return nil
		}

		slog.Debug("Loaded contract artifact", "contract", d.Name(), "path", p, "functions", len(d.Functions()))
		return r.Register(d)
	})
}

// LoadDir loads artifacts from a directory on disk
func (r *Registry) LoadDir(dir string) error {
	return r.LoadFS(os.DirFS(dir), ".")
}

// LoadFile loads a single artifact (.json) or ABI file with a sibling .bin
func LoadFile(file string) (*Descriptor, error) {
	dir, base := filepath.Split(file)
	if dir == "" {
		dir = "."
	}
	fsys := os.DirFS(dir)
	if filepath.Ext(base) == ".abi" {
		return loadPair(fsys, base)
	}
	data, err := fs.ReadFile(fsys, base)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return Parse(data)
}

func loadPair(fsys fs.FS, abiPath string) (*Descriptor, error) {
	abiJSON, err := fs.ReadFile(fsys, abiPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", abiPath, err)
	}
	binPath := strings.TrimSuffix(abiPath, ".abi") + ".bin"
	bin, err := fs.ReadFile(fsys, binPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", binPath, err)
	}
	name := strings.TrimSuffix(path.Base(abiPath), ".abi")
	return New(name, abiJSON, string(bin))
}
