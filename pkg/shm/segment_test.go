package shm_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/shmstate-org/shmstate/pkg/shm"
)

// regionName builds a per-run unique region name so parallel test binaries
// never collide on the shared objects.
func regionName(suffix string) string {
	return fmt.Sprintf("test_%d_%s", os.Getpid(), suffix)
}

func TestOpenOrCreateCreates(t *testing.T) {
	name := regionName("create")

	seg, result, err := shm.OpenOrCreate(name, 64, true)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	defer seg.Close()

	if result != shm.Created {
		t.Fatalf("result = %s; want created", result)
	}
	if !seg.IsCreator() {
		t.Fatalf("creating process must own teardown")
	}
	if seg.Size() != 64 {
		t.Fatalf("Size() = %d; want 64", seg.Size())
	}
}

func TestOpenOrCreateAttaches(t *testing.T) {
	name := regionName("attach")

	creator, result, err := shm.OpenOrCreate(name, 64, true)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer creator.Close()
	if result != shm.Created {
		t.Fatalf("first open result = %s; want created", result)
	}

	attached, result, err := shm.OpenOrCreate(name, 64, true)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer attached.Close()

	if result != shm.Attached {
		t.Fatalf("second open result = %s; want attached", result)
	}
	if attached.IsCreator() {
		t.Fatalf("attaching process must not own teardown")
	}

	// Both handles see the same bytes.
	creator.PutUint32At(0, 0xBEEF)
	if got := attached.Uint32At(0); got != 0xBEEF {
		t.Fatalf("attached handle read %#x; want 0xBEEF", got)
	}
}

func TestOpenOrCreateUnavailableWithoutCreate(t *testing.T) {
	seg, result, err := shm.OpenOrCreate(regionName("missing"), 64, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg != nil || result != shm.Unavailable {
		t.Fatalf("got (%v, %s); want (nil, unavailable)", seg, result)
	}
}

func TestOpenOrCreateRecreatesOnSizeMismatch(t *testing.T) {
	name := regionName("stale")

	old, result, err := shm.OpenOrCreate(name, 32, true)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if result != shm.Created {
		t.Fatalf("first open result = %s; want created", result)
	}
	old.PutUint32At(0, 7)

	// Same name, different layout: the stale object must be replaced and the
	// fresh region must come up zeroed.
	fresh, result, err := shm.OpenOrCreate(name, 64, true)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer fresh.Close()

	if result != shm.Recreated {
		t.Fatalf("reopen result = %s; want recreated", result)
	}
	if !fresh.IsCreator() {
		t.Fatalf("recreating process must own teardown")
	}
	if got := fresh.Uint32At(0); got != 0 {
		t.Fatalf("recreated region not zeroed, read %d", got)
	}
	old.Close()
}

func TestSizeMismatchWithoutCreateKeepsRegion(t *testing.T) {
	name := regionName("mismatch_attach")

	live, result, err := shm.OpenOrCreate(name, 32, true)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer live.Close()
	if result != shm.Created {
		t.Fatalf("first open result = %s; want created", result)
	}
	live.PutUint32At(0, 42)

	// An attach-only caller with the wrong size must back off without
	// touching the live region.
	seg, result, err := shm.OpenOrCreate(name, 64, false)
	if err != nil {
		t.Fatalf("mismatched attach errored: %v", err)
	}
	if seg != nil || result != shm.Unavailable {
		seg.Close()
		t.Fatalf("mismatched attach got (%v, %s); want (nil, unavailable)", seg, result)
	}

	// The original region is intact, data included.
	again, result, err := shm.OpenOrCreate(name, 32, false)
	if err != nil {
		t.Fatalf("reattach failed: %v", err)
	}
	defer again.Close()
	if result != shm.Attached {
		t.Fatalf("reattach result = %s; want attached", result)
	}
	if got := again.Uint32At(0); got != 42 {
		t.Fatalf("region data lost after mismatched attach: read %d, want 42", got)
	}
}

func TestCloseTwiceIsNoop(t *testing.T) {
	seg, _, err := shm.OpenOrCreate(regionName("doubleclose"), 16, true)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	seg.Close()
	seg.Close()
}

func TestCreatorRemovesRegion(t *testing.T) {
	name := regionName("cleanup")

	seg, _, err := shm.OpenOrCreate(name, 16, true)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	seg.Close()

	after, result, err := shm.OpenOrCreate(name, 16, false)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if after != nil || result != shm.Unavailable {
		after.Close()
		t.Fatalf("region survived creator close: (%v, %s)", after, result)
	}
}

func TestInvalidSize(t *testing.T) {
	if _, _, err := shm.OpenOrCreate(regionName("badsize"), 0, true); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestNonCreatorCloseKeepsRegion(t *testing.T) {
	name := regionName("keep")

	creator, _, err := shm.OpenOrCreate(name, 16, true)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer creator.Close()

	attached, _, err := shm.OpenOrCreate(name, 16, true)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	attached.Close()

	// The region must still be reachable after a non-creator detaches.
	again, result, err := shm.OpenOrCreate(name, 16, false)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again == nil || result != shm.Attached {
		t.Fatalf("region gone after non-creator close: result %s", result)
	}
	again.Close()
}
