package store_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shmstate-org/shmstate/pkg/shm"
	"github.com/shmstate-org/shmstate/pkg/store"
)

func newBlob(t *testing.T, suffix string, capacity int) *store.Blob {
	t.Helper()
	name := regionName(suffix)
	seg, _, err := shm.OpenOrCreate(name, store.BlobSize(capacity), true)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	t.Cleanup(seg.Close)
	return store.NewBlob(seg, shm.NewFileLock(name, 2*time.Second), capacity)
}

func TestBlobColdRead(t *testing.T) {
	b := newBlob(t, "blob_cold", 64)

	version, payload, err := b.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if version != 0 || payload != nil {
		t.Fatalf("cold blob = (%d, %v); want (0, nil)", version, payload)
	}
}

func TestBlobWriteRead(t *testing.T) {
	b := newBlob(t, "blob_rw", 64)

	want := []byte("settings payload")
	if err := b.Write(1724400000, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	version, payload, err := b.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if version != 1724400000 {
		t.Fatalf("version = %d; want 1724400000", version)
	}
	if !bytes.Equal(payload, want) {
		t.Fatalf("payload = %q; want %q", payload, want)
	}
}

func TestBlobReplaceShrinks(t *testing.T) {
	b := newBlob(t, "blob_shrink", 64)

	if err := b.Write(1, []byte("a much longer first payload")); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := b.Write(2, []byte("short")); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	version, payload, err := b.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if version != 2 || string(payload) != "short" {
		t.Fatalf("got (%d, %q); want (2, short) with no trailing garbage", version, payload)
	}
}

func TestBlobRejectsOverCapacity(t *testing.T) {
	b := newBlob(t, "blob_reject", 8)

	if err := b.Write(1, []byte("fits")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	err := b.Write(2, []byte("this does not fit"))
	if !errors.Is(err, store.ErrCapacityExceeded) {
		t.Fatalf("over-capacity Write error = %v; want ErrCapacityExceeded", err)
	}

	// The previous payload and version must be untouched.
	version, payload, readErr := b.Read()
	if readErr != nil {
		t.Fatalf("Read failed: %v", readErr)
	}
	if version != 1 || string(payload) != "fits" {
		t.Fatalf("got (%d, %q) after rejected write; want (1, fits)", version, payload)
	}
}
