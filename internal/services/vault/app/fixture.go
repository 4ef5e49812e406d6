package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixture seeds the in-memory ledger and canister used by a local vault.
type Fixture struct {
	Balances map[string]uint64 `yaml:"balances"`
	Canister CanisterFixture   `yaml:"canister"`
	// Versions registers placeholder modules when no wasm directory is set.
	Versions []string `yaml:"versions"`
}

// CanisterFixture describes the canister the vault controls.
type CanisterFixture struct {
	Version     string   `yaml:"version"`
	Controllers []string `yaml:"controllers"`
}

const defaultCanisterVersion = "v1.0.0"

// loadFixture reads a YAML fixture. A missing path yields the defaults.
func loadFixture(path string) (Fixture, error) {
	var fixture Fixture
	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Fixture{}, fmt.Errorf("fixture: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &fixture); err != nil {
				return Fixture{}, fmt.Errorf("fixture: parse %s: %w", path, err)
			}
		}
	}
	fixture.applyDefaults()
	return fixture, nil
}

func (f *Fixture) applyDefaults() {
	if f.Balances == nil {
		f.Balances = map[string]uint64{}
	}
	if strings.TrimSpace(f.Canister.Version) == "" {
		f.Canister.Version = defaultCanisterVersion
	}
	if len(f.Versions) == 0 {
		f.Versions = []string{f.Canister.Version}
	}
}
