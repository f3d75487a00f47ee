package store_test

import (
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/shmstate-org/shmstate/pkg/record"
	"github.com/shmstate-org/shmstate/pkg/shm"
	"github.com/shmstate-org/shmstate/pkg/store"
)

var ringSchema = record.NewSchema(
	record.Field{Name: "seq", Size: 8},
	record.Field{Name: "body", Size: 16},
)

func regionName(suffix string) string {
	return fmt.Sprintf("test_%d_%s", os.Getpid(), suffix)
}

func newRing(t *testing.T, suffix string, capacity int) *store.Ring {
	t.Helper()
	name := regionName(suffix)
	seg, _, err := shm.OpenOrCreate(name, store.RingSize(ringSchema, capacity), true)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	if seg == nil {
		t.Fatalf("segment %q unavailable", name)
	}
	t.Cleanup(seg.Close)
	return store.NewRing(seg, shm.NewFileLock(name, 2*time.Second), ringSchema, capacity)
}

func appendSeq(t *testing.T, r *store.Ring, from, to int) {
	t.Helper()
	for i := from; i < to; i++ {
		rec := map[string]string{"seq": strconv.Itoa(i), "body": "entry"}
		if err := r.Append(rec); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}
}

func seqs(recs []map[string]string) []int {
	out := make([]int, 0, len(recs))
	for _, rec := range recs {
		n, _ := strconv.Atoi(rec["seq"])
		out = append(out, n)
	}
	return out
}

func TestRingReadLastOrder(t *testing.T) {
	r := newRing(t, "ring_order", 10)
	appendSeq(t, r, 0, 5)

	recs, err := r.ReadLast(3)
	if err != nil {
		t.Fatalf("ReadLast failed: %v", err)
	}
	got := seqs(recs)
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v; want %v (oldest first)", got, want)
		}
	}
}

func TestRingWrapsAndKeepsNewest(t *testing.T) {
	r := newRing(t, "ring_wrap", 4)
	appendSeq(t, r, 0, 10) // 10 appends into 4 slots

	recs, err := r.ReadLast(4)
	if err != nil {
		t.Fatalf("ReadLast failed: %v", err)
	}
	got := seqs(recs)
	want := []int{6, 7, 8, 9}
	if len(got) != 4 {
		t.Fatalf("got %d records; want 4", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v; want %v", got, want)
		}
	}
}

func TestRingReadLastClampsToCount(t *testing.T) {
	r := newRing(t, "ring_clamp", 10)
	appendSeq(t, r, 0, 3)

	recs, err := r.ReadLast(50)
	if err != nil {
		t.Fatalf("ReadLast failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records; want 3", len(recs))
	}
}

func TestRingReadEmptyAndNonPositive(t *testing.T) {
	r := newRing(t, "ring_empty", 4)

	recs, err := r.ReadLast(4)
	if err != nil {
		t.Fatalf("ReadLast on empty ring failed: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("empty ring returned %d records", len(recs))
	}

	if recs, _ := r.ReadLast(0); recs != nil {
		t.Fatalf("ReadLast(0) = %v; want nil", recs)
	}
	if recs, _ := r.ReadLast(-1); recs != nil {
		t.Fatalf("ReadLast(-1) = %v; want nil", recs)
	}
}

func TestRingSkipsCorruptSlot(t *testing.T) {
	capacity := 4
	name := regionName("ring_corrupt")
	seg, _, err := shm.OpenOrCreate(name, store.RingSize(ringSchema, capacity), true)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	t.Cleanup(seg.Close)
	r := store.NewRing(seg, shm.NewFileLock(name, 2*time.Second), ringSchema, capacity)

	appendSeq(t, r, 0, 3)

	// Poke a wrong declared size into the middle slot (header 8 bytes, each
	// slot is 4 + record size).
	slotOff := 8 + 1*(4+ringSchema.Size())
	seg.PutUint32At(slotOff, 9999)

	recs, err := r.ReadLast(3)
	if err != nil {
		t.Fatalf("ReadLast failed: %v", err)
	}
	got := seqs(recs)
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("got %v; want [0 2] with the corrupt slot skipped", got)
	}
}

func TestRingAppendWithRunsUnderLock(t *testing.T) {
	r := newRing(t, "ring_with", 4)

	ran := false
	err := r.AppendWith(map[string]string{"seq": "1", "body": "x"}, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("AppendWith failed: %v", err)
	}
	if !ran {
		t.Fatalf("companion callback did not run")
	}

	failErr := fmt.Errorf("companion failed")
	err = r.AppendWith(map[string]string{"seq": "2", "body": "y"}, func() error {
		return failErr
	})
	if err != failErr {
		t.Fatalf("AppendWith error = %v; want the companion error", err)
	}

	// The failed append must not have written a record.
	recs, err := r.ReadLast(4)
	if err != nil {
		t.Fatalf("ReadLast failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records after failed companion; want 1", len(recs))
	}
}
