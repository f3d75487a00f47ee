package crypto_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shmstate-org/shmstate/pkg/crypto"
	"github.com/shmstate-org/shmstate/pkg/shm"
	"github.com/shmstate-org/shmstate/pkg/store"
)

func newBlob(t *testing.T, suffix string) *store.Blob {
	t.Helper()
	name := fmt.Sprintf("test_%d_%s", os.Getpid(), suffix)
	seg, _, err := shm.OpenOrCreate(name, store.BlobSize(crypto.PayloadSize), true)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	t.Cleanup(seg.Close)
	return store.NewBlob(seg, shm.NewFileLock(name, 2*time.Second), crypto.PayloadSize)
}

func TestRefreshGeneratesFirstPair(t *testing.T) {
	m := crypto.NewManager(newBlob(t, "keys_first"), nil, 2048, 5*time.Minute)

	pair, err := m.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if pair != nil {
		t.Fatalf("cold region returned a pair")
	}

	changed, err := m.Refresh(false)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !changed {
		t.Fatalf("first Refresh must rotate")
	}

	pair, err = m.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if pair == nil || pair.Private == nil || pair.Public == nil {
		t.Fatalf("no usable pair after Refresh")
	}
	if pair.Private.N.Cmp(pair.Public.N) != 0 {
		t.Fatalf("private and public keys do not match")
	}
	if got := pair.Private.N.BitLen(); got != 2048 {
		t.Fatalf("key size = %d bits; want 2048", got)
	}
	if time.Since(pair.RotatedAt) > time.Minute {
		t.Fatalf("RotatedAt = %v; want roughly now", pair.RotatedAt)
	}
}

func TestRefreshFreshPairIsNoop(t *testing.T) {
	m := crypto.NewManager(newBlob(t, "keys_noop"), nil, 2048, time.Hour)

	if _, err := m.Refresh(false); err != nil {
		t.Fatalf("initial Refresh failed: %v", err)
	}
	before, err := m.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}

	changed, err := m.Refresh(false)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if changed {
		t.Fatalf("Refresh rotated a fresh pair")
	}

	after, err := m.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if before.Private.N.Cmp(after.Private.N) != 0 {
		t.Fatalf("pair changed without rotation")
	}
}

func TestRefreshForceRotates(t *testing.T) {
	m := crypto.NewManager(newBlob(t, "keys_force"), nil, 2048, time.Hour)

	if _, err := m.Refresh(false); err != nil {
		t.Fatalf("initial Refresh failed: %v", err)
	}
	before, _ := m.Current()

	changed, err := m.Refresh(true)
	if err != nil {
		t.Fatalf("forced Refresh failed: %v", err)
	}
	if !changed {
		t.Fatalf("forced Refresh must rotate")
	}

	after, _ := m.Current()
	if before.Private.N.Cmp(after.Private.N) == 0 {
		t.Fatalf("forced rotation produced the same key")
	}
}

func TestLastRotation(t *testing.T) {
	m := crypto.NewManager(newBlob(t, "keys_stamp"), nil, 2048, time.Hour)

	stamp, err := m.LastRotation()
	if err != nil {
		t.Fatalf("LastRotation failed: %v", err)
	}
	if !stamp.IsZero() {
		t.Fatalf("cold region rotation stamp = %v; want zero", stamp)
	}

	if _, err := m.Refresh(false); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	stamp, err = m.LastRotation()
	if err != nil {
		t.Fatalf("LastRotation failed: %v", err)
	}
	if time.Since(stamp) > time.Minute {
		t.Fatalf("rotation stamp = %v; want roughly now", stamp)
	}
}

func TestPersistedPairRestoredAfterColdStart(t *testing.T) {
	dir := t.TempDir()
	disk := crypto.NewDiskStore(dir)

	first := crypto.NewManager(newBlob(t, "keys_persist_a"), disk, 2048, time.Hour)
	if _, err := first.Refresh(false); err != nil {
		t.Fatalf("initial Refresh failed: %v", err)
	}
	original, err := first.Current()
	if err != nil || original == nil {
		t.Fatalf("Current failed: %v", err)
	}

	// Fresh shared region, same disk store: the persisted pair must come back
	// instead of a newly generated one.
	second := crypto.NewManager(newBlob(t, "keys_persist_b"), disk, 2048, time.Hour)
	changed, err := second.Refresh(false)
	if err != nil {
		t.Fatalf("cold Refresh failed: %v", err)
	}
	if !changed {
		t.Fatalf("cold Refresh must fill the region")
	}

	restored, err := second.Current()
	if err != nil || restored == nil {
		t.Fatalf("Current after restore failed: %v", err)
	}
	if original.Private.N.Cmp(restored.Private.N) != 0 {
		t.Fatalf("restored pair differs from the persisted one")
	}
}
