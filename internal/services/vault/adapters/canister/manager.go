package canister

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/engine"
)

// Canister is the recorded status of one managed canister.
type Canister struct {
	ID          string
	Version     string
	ModuleHash  string
	Controllers []string
}

// Manager tracks installed canisters in memory.
type Manager struct {
	mu        sync.Mutex
	canisters map[string]*Canister
}

var _ engine.CanisterManager = (*Manager)(nil)

func NewManager() *Manager {
	return &Manager{canisters: make(map[string]*Canister)}
}

// Install records a canister running version.
func (m *Manager) Install(canisterID, version string, controllers []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canisters[canisterID] = &Canister{
		ID:          canisterID,
		Version:     version,
		Controllers: slices.Clone(controllers),
	}
}

// Status returns a copy of the canister record.
func (m *Manager) Status(canisterID string) (Canister, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.canisters[canisterID]
	if !ok {
		return Canister{}, false
	}
	out := *c
	out.Controllers = slices.Clone(c.Controllers)
	return out, true
}

func (m *Manager) Version(ctx context.Context, canisterID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookup(canisterID)
	if err != nil {
		return "", err
	}
	return c.Version, nil
}

// Upgrade installs wasm as version. An empty module is refused.
func (m *Manager) Upgrade(ctx context.Context, canisterID string, wasm []byte, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(wasm) == 0 {
		return engine.Reject("wasm module is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookup(canisterID)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(wasm)
	c.Version = version
	c.ModuleHash = hex.EncodeToString(sum[:])
	return nil
}

// UpdateControllers replaces the canister controllers.
func (m *Manager) UpdateControllers(ctx context.Context, canisterID string, controllers []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(controllers) == 0 {
		return engine.Reject("a canister needs at least one controller")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookup(canisterID)
	if err != nil {
		return err
	}
	c.Controllers = slices.Clone(controllers)
	return nil
}

func (m *Manager) lookup(canisterID string) (*Canister, error) {
	c, ok := m.canisters[canisterID]
	if !ok {
		return nil, fmt.Errorf("canister %s is not installed", canisterID)
	}
	return c, nil
}
