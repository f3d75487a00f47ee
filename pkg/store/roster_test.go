package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shmstate-org/shmstate/pkg/shm"
	"github.com/shmstate-org/shmstate/pkg/store"
)

func newRoster(t *testing.T, suffix string) *store.Roster {
	t.Helper()
	name := regionName(suffix)
	seg, _, err := shm.OpenOrCreate(name, store.RosterSize, true)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	t.Cleanup(seg.Close)
	return store.NewRoster(seg, shm.NewFileLock(name, 2*time.Second))
}

func TestRosterRegisterAndPids(t *testing.T) {
	r := newRoster(t, "roster_basic")

	want := []int{4001, 4002, 4003}
	for i, pid := range want {
		count, err := r.Register(pid)
		if err != nil {
			t.Fatalf("Register(%d) failed: %v", pid, err)
		}
		if count != i+1 {
			t.Fatalf("Register(%d) count = %d; want %d", pid, count, i+1)
		}
	}

	pids, err := r.Pids()
	if err != nil {
		t.Fatalf("Pids failed: %v", err)
	}
	if len(pids) != len(want) {
		t.Fatalf("Pids = %v; want %v", pids, want)
	}
	for i := range want {
		if pids[i] != want[i] {
			t.Fatalf("Pids = %v; want %v (registration order)", pids, want)
		}
	}
}

func TestRosterEmpty(t *testing.T) {
	r := newRoster(t, "roster_empty")

	pids, err := r.Pids()
	if err != nil {
		t.Fatalf("Pids failed: %v", err)
	}
	if len(pids) != 0 {
		t.Fatalf("fresh roster = %v; want empty", pids)
	}
}

func TestRosterFull(t *testing.T) {
	r := newRoster(t, "roster_full")

	for i := 0; i < store.RosterSlots; i++ {
		if _, err := r.Register(10_000 + i); err != nil {
			t.Fatalf("Register #%d failed: %v", i, err)
		}
	}

	if _, err := r.Register(99_999); !errors.Is(err, store.ErrRosterFull) {
		t.Fatalf("Register on full roster error = %v; want ErrRosterFull", err)
	}

	pids, err := r.Pids()
	if err != nil {
		t.Fatalf("Pids failed: %v", err)
	}
	if len(pids) != store.RosterSlots {
		t.Fatalf("roster holds %d pids; want %d", len(pids), store.RosterSlots)
	}
}
