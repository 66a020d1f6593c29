package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// Record keys
const (
	KeyApplied      = "applied"
	KeyPreviousHome = "previous-home"
	KeyDNDAltered   = "dnd-altered"
	KeyTarget       = "target"
)

// recordFile is the file name of the record inside its namespace directory
const recordFile = "kiosk_prefs.toml"

// record is the on-disk layout: a flat key-value table
type record struct {
	Applied      bool   `toml:"applied"`
	PreviousHome string `toml:"previous-home,omitempty"`
	DNDAltered   bool   `toml:"dnd-altered,omitempty"`
	Target       string `toml:"target,omitempty"`
}

// FileStore persists the session record as a TOML file under
// <dir>/<namespace>/kiosk_prefs.toml. Writes are atomic.
type FileStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStore creates a store whose namespace is the agent's own package
func NewFileStore(dir, namespace string, logger *zap.Logger) (*FileStore, error) {
	if !types.ValidPackageName(namespace) {
		return nil, fmt.Errorf("invalid store namespace %q", namespace)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   filepath.Join(dir, namespace, recordFile),
		logger: logger,
	}, nil
}

// Path returns the record location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record. A missing record yields the default Idle state.
func (s *FileStore) Load(ctx context.Context) (types.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return types.SessionState{}, nil
	}
	if err != nil {
		return types.SessionState{}, fmt.Errorf("failed to read session record: %w", err)
	}

	var rec record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return types.SessionState{}, fmt.Errorf("failed to decode session record %s: %w", s.path, err)
	}
	return s.decode(rec), nil
}

// Save writes the record atomically (temp file, fsync, rename)
func (s *FileStore) Save(ctx context.Context, state types.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(encode(state))
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, recordFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session record: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to commit session record: %w", err)
	}
	return nil
}

// decode converts the on-disk layout. A malformed previous-home or target is
// dropped: it is never acted on.
func (s *FileStore) decode(rec record) types.SessionState {
	state := types.SessionState{Applied: rec.Applied, DNDAltered: rec.DNDAltered}
	if rec.Target != "" {
		if types.ValidPackageName(rec.Target) {
			state.Target = rec.Target
		} else {
			s.logger.Warn("Ignoring malformed target",
				zap.String("key", KeyTarget),
				zap.String("value", rec.Target),
			)
		}
	}
	if rec.PreviousHome == "" {
		return state
	}
	home, err := types.ParseComponent(rec.PreviousHome)
	if err != nil {
		s.logger.Warn("Ignoring malformed previous home",
			zap.String("key", KeyPreviousHome),
			zap.String("value", rec.PreviousHome),
			zap.Error(err),
		)
		return state
	}
	state.PreviousHome = &home
	return state
}

func encode(state types.SessionState) record {
	rec := record{Applied: state.Applied, DNDAltered: state.DNDAltered, Target: state.Target}
	if state.PreviousHome != nil {
		rec.PreviousHome = state.PreviousHome.String()
	}
	return rec
}
