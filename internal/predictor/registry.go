package predictor

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ModelStore persists fitted artifacts, one per horizon.
type ModelStore interface {
	Load(horizon string) (*Model, error)
	Save(m *Model) error
}

// FileStore keeps one JSON artifact per horizon under a directory,
// model_<horizon>.json.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(horizon string) string {
	return filepath.Join(s.Dir, "model_"+horizon+".json")
}

func (s *FileStore) Load(horizon string) (*Model, error) {
	data, err := os.ReadFile(s.path(horizon))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no artifact for horizon %s", ErrModelUnavailable, horizon)
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", horizon, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("load model %s: %w", horizon, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *FileStore) Save(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("save model %s: %w", m.Horizon, err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("save model %s: %w", m.Horizon, err)
	}

	// Write-then-rename so a crashed save never leaves a truncated artifact.
	tmp := s.path(m.Horizon) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save model %s: %w", m.Horizon, err)
	}
	if err := os.Rename(tmp, s.path(m.Horizon)); err != nil {
		return fmt.Errorf("save model %s: %w", m.Horizon, err)
	}
	return nil
}

// Registry holds the loaded models for the process. It is constructed and
// injected by whoever owns the process lifecycle; there is no package-level
// model state. Reads are concurrent-safe; Put replaces a horizon's model
// atomically after retraining.
type Registry struct {
	store ModelStore

	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry(store ModelStore) *Registry {
	return &Registry{
		store:  store,
		models: make(map[string]*Model),
	}
}

// LoadAll pulls every horizon's artifact from the store. A horizon with no
// artifact is logged and skipped; its requests fail later with
// ErrModelUnavailable while the other horizons keep serving.
func (r *Registry) LoadAll(horizons []string) {
	for _, h := range horizons {
		m, err := r.store.Load(h)
		if err != nil {
			log.Printf("predictor: horizon %s not loaded: %v", h, err)
			continue
		}
		r.Put(m)
		log.Printf("predictor: loaded %s model %s (rmse %.2f, %d train rows)", h, m.Version, m.RMSE, m.TrainRows)
	}
}

// Get returns the fitted model for a horizon, or ErrModelUnavailable.
func (r *Registry) Get(horizon string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[horizon]
	if !ok {
		return nil, fmt.Errorf("%w: horizon %s", ErrModelUnavailable, horizon)
	}
	return m, nil
}

// Put installs a model for its horizon, replacing any previous one.
func (r *Registry) Put(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Horizon] = m
}

// Horizons lists the horizons that currently have a loaded model.
func (r *Registry) Horizons() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for h := range r.models {
		out = append(out, h)
	}
	return out
}
