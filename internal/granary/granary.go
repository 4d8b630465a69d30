// Package granary maintains a bounded ring of named configuration
// snapshots ("silos") that ratoon can roll back to after a boot loop.
package granary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rootgraft/graftd/internal/config"
)

// MaxAutoSilos bounds the ring: creating a new silo beyond this count
// prunes the oldest.
const MaxAutoSilos = 5

// Silo is one named configuration snapshot.
type Silo struct {
	ID             string        `json:"id"`
	Timestamp      uint64        `json:"timestamp"`
	Label          string        `json:"label"`
	Reason         string        `json:"reason"`
	ConfigSnapshot config.Config `json:"config_snapshot"`
}

// Store manages the silo ring under dir.
type Store struct {
	Dir string
}

func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// Create snapshots cfg as a new silo named silo_<unixTimestamp> (with a
// _<n> suffix when that id is already taken), then prunes anything past
// MaxAutoSilos, newest first.
func (s *Store) Create(cfg config.Config, label, reason string, unixTimestamp uint64) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create granary dir: %w", err)
	}

	id := fmt.Sprintf("silo_%d", unixTimestamp)
	for n := 1; ; n++ {
		if _, err := os.Stat(s.path(id)); err != nil {
			break
		}
		id = fmt.Sprintf("silo_%d_%d", unixTimestamp, n)
	}
	silo := Silo{
		ID:             id,
		Timestamp:      unixTimestamp,
		Label:          label,
		Reason:         reason,
		ConfigSnapshot: cfg,
	}

	data, err := json.MarshalIndent(silo, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return "", err
	}

	s.pruneOld()
	return id, nil
}

// List returns every silo, newest first.
func (s *Store) List() ([]Silo, error) {
	var silos []Silo

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return silos, nil
		}
		return nil, fmt.Errorf("read granary dir: %w", err)
	}

	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		var silo Silo
		if json.Unmarshal(data, &silo) == nil {
			silos = append(silos, silo)
		}
	}

	sort.Slice(silos, func(i, j int) bool { return silos[i].Timestamp > silos[j].Timestamp })
	return silos, nil
}

// Delete removes a named silo.
func (s *Store) Delete(id string) error {
	path := s.path(id)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("silo %s not found", id)
	}
	return os.Remove(path)
}

// Restore writes a silo's config snapshot back out to configPath,
// making it the active configuration.
func (s *Store) Restore(id, configPath string) (Silo, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return Silo{}, fmt.Errorf("silo %s not found", id)
	}
	var silo Silo
	if err := json.Unmarshal(data, &silo); err != nil {
		return Silo{}, fmt.Errorf("decode silo %s: %w", id, err)
	}
	if err := silo.ConfigSnapshot.Save(configPath); err != nil {
		return Silo{}, fmt.Errorf("restore silo %s: %w", id, err)
	}
	return silo, nil
}

// RestoreLatest restores the newest silo, used by Ratoon's bootloop
// rollback.
func (s *Store) RestoreLatest(configPath string) (Silo, error) {
	silos, err := s.List()
	if err != nil {
		return Silo{}, err
	}
	if len(silos) == 0 {
		return Silo{}, fmt.Errorf("no silos found in granary")
	}
	return s.Restore(silos[0].ID, configPath)
}

func (s *Store) pruneOld() {
	silos, err := s.List()
	if err != nil || len(silos) <= MaxAutoSilos {
		return
	}
	for _, silo := range silos[MaxAutoSilos:] {
		_ = os.Remove(s.path(silo.ID))
	}
}
