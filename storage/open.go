package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Supported storage engines.
const (
	EngineMemory  = "memory"
	EngineLevelDB = "leveldb"
	EngineBolt    = "bolt"
)

// Open constructs the named backend rooted in dataDir.
func Open(engine, dataDir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case EngineMemory:
		return NewMemDB(), nil
	case "", EngineLevelDB:
		if strings.TrimSpace(dataDir) == "" {
			return nil, fmt.Errorf("storage: data dir required for leveldb")
		}
		return NewLevelDB(filepath.Join(dataDir, "ledger"))
	case EngineBolt:
		if strings.TrimSpace(dataDir) == "" {
			return nil, fmt.Errorf("storage: data dir required for bolt")
		}
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
		return NewBoltDB(filepath.Join(dataDir, "ledger.db"))
	default:
		return nil, fmt.Errorf("storage: unknown engine %q", engine)
	}
}
