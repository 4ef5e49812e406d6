// Package canister provides in-memory canister management for local runs and
// tests: a wasm module repository and a manager tracking installed versions.
package canister

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/engine"
	"golang.org/x/mod/semver"
)

const moduleExt = ".wasm"

// Repository serves wasm modules by semantic version.
type Repository struct {
	mu      sync.RWMutex
	modules map[string][]byte
}

var _ engine.WasmRepository = (*Repository)(nil)

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{modules: make(map[string][]byte)}
}

// LoadRepository reads every "<version>.wasm" file at the root of fsys.
func LoadRepository(fsys fs.FS) (*Repository, error) {
	repo := NewRepository()
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read wasm directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != moduleExt {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if err := repo.Add(strings.TrimSuffix(entry.Name(), moduleExt), data); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// Add registers a module under version.
func (r *Repository) Add(version string, wasm []byte) error {
	if !semver.IsValid(version) {
		return fmt.Errorf("version %q is not a semantic version", version)
	}
	if len(wasm) == 0 {
		return fmt.Errorf("module %s is empty", version)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[version] = append([]byte(nil), wasm...)
	return nil
}

// GetByVersion returns the module registered under version.
func (r *Repository) GetByVersion(ctx context.Context, version string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	wasm, ok := r.modules[version]
	if !ok {
		return nil, fmt.Errorf("module %s not found", version)
	}
	return append([]byte(nil), wasm...), nil
}

// AvailableVersions lists registered versions in ascending order.
func (r *Repository) AvailableVersions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := make([]string, 0, len(r.modules))
	for version := range r.modules {
		versions = append(versions, version)
	}
	semver.Sort(versions)
	return versions, nil
}
