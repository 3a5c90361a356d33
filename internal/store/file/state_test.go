package file

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

func TestLoadMissingFileIsZeroBaseline(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastFeeBalanceBase.Sign() != 0 {
		t.Fatalf("baseline = %s, want 0", st.LastFeeBalanceBase)
	}
	if !st.LastRunTimestamp.IsZero() {
		t.Fatalf("timestamp = %s, want zero", st.LastRunTimestamp)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path)

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	balance, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if err := store.Save(&domain.DistributionState{
		LastFeeBalanceBase: balance,
		LastRunTimestamp:   ts,
	}); err != nil {
		t.Fatal(err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastFeeBalanceBase.Cmp(balance) != 0 {
		t.Fatalf("baseline = %s, want %s", st.LastFeeBalanceBase, balance)
	}
	if !st.LastRunTimestamp.Equal(ts) {
		t.Fatalf("timestamp = %s, want %s", st.LastRunTimestamp, ts)
	}
}

func TestSaveOverwritesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path)

	for _, bal := range []int64{100, 200} {
		if err := store.Save(&domain.DistributionState{
			LastFeeBalanceBase: big.NewInt(bal),
			LastRunTimestamp:   time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastFeeBalanceBase.Int64() != 200 {
		t.Fatalf("baseline = %s, want latest save", st.LastFeeBalanceBase)
	}
}

func TestLoadRejectsMalformedBalance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"lastFeeBalanceBase":"abc"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStateStore(path).Load(); err == nil {
		t.Fatal("malformed balance accepted")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStateStore(path).Load(); err == nil {
		t.Fatal("malformed json accepted")
	}
}
