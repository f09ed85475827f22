package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by OpenStore
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendJSONL  = "jsonl"
)

// OpenStore opens the named backend under the state directory
func OpenStore(backend, statePath string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite, "":
		if err := os.MkdirAll(statePath, 0755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		return OpenSQLite(filepath.Join(statePath, "ledger.db"))
	case BackendJSONL:
		return OpenJSONL(filepath.Join(statePath, "ledger.jsonl"))
	}
	return nil, fmt.Errorf("unknown ledger backend %q", backend)
}

// ErrReadOnly is returned by Append on a store opened with OpenStoreReadOnly
var ErrReadOnly = errors.New("ledger opened read-only")

// OpenStoreReadOnly opens an existing ledger for inspection. Nothing is
// created or migrated; a missing ledger is an error.
func OpenStoreReadOnly(backend, statePath string) (Store, error) {
	var path string
	switch backend {
	case BackendSQLite, "":
		path = filepath.Join(statePath, "ledger.db")
	case BackendJSONL:
		path = filepath.Join(statePath, "ledger.jsonl")
	case BackendMemory:
		return nil, fmt.Errorf("the memory backend does not persist anything to inspect")
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("ledger not found: %w", err)
	}
	if backend == BackendJSONL {
		return &JSONLStore{path: path, readOnly: true}, nil
	}
	return OpenSQLiteReadOnly(path)
}
