// Package file implements the distributor baseline store as a small JSON file
// on local disk, written atomically via rename.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// StateStore persists the distribution baseline at a fixed path.
type StateStore struct {
	path string
}

// NewStateStore creates a StateStore writing to path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

type stateJSON struct {
	LastFeeBalanceBase string    `json:"lastFeeBalanceBase"`
	LastRunTimestamp   time.Time `json:"lastRunTimestamp"`
}

// Load reads the baseline. A missing file is a zero baseline, so the first
// run treats the entire observed fee balance as new growth.
func (s *StateStore) Load() (*domain.DistributionState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &domain.DistributionState{LastFeeBalanceBase: new(big.Int)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read state: %w", err)
	}

	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("file: decode state: %w", err)
	}

	balance := new(big.Int)
	if raw.LastFeeBalanceBase != "" {
		if _, ok := balance.SetString(raw.LastFeeBalanceBase, 10); !ok {
			return nil, fmt.Errorf("file: malformed baseline balance %q", raw.LastFeeBalanceBase)
		}
	}
	return &domain.DistributionState{
		LastFeeBalanceBase: balance,
		LastRunTimestamp:   raw.LastRunTimestamp,
	}, nil
}

// Save writes the baseline atomically: temp file in the same directory, fsync,
// rename over the target.
func (s *StateStore) Save(st *domain.DistributionState) error {
	raw := stateJSON{
		LastFeeBalanceBase: st.LastFeeBalanceBase.String(),
		LastRunTimestamp:   st.LastRunTimestamp,
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("file: create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file: sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file: replace state: %w", err)
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
