// Package shm manages named fixed-size shared memory regions visible to
// every worker process of one service instance, plus the advisory file locks
// that serialize access to them. Regions are plain files mapped with
// MAP_SHARED; on Linux they live in /dev/shm so the bytes never hit disk.
package shm

import (
	"fmt"
	"os"
	"time"

	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/util"
)

const segmentPrefix = "shmstate_"

const (
	initLockTimeout = time.Second
	initAttempts    = 5
	initRetryDelay  = 150 * time.Millisecond
)

// AttachResult reports how OpenOrCreate obtained (or failed to obtain) a
// region, so recovery paths are handled exhaustively instead of caught
// generically.
type AttachResult int

const (
	// Unavailable means no region exists and none was created. With
	// create=false this is the normal cold-start answer, not an error.
	Unavailable AttachResult = iota
	// Attached means an existing region of the expected size was mapped.
	Attached
	// Created means this process won the creation race and owns teardown.
	Created
	// Recreated means a stale region with a mismatched size was removed and
	// a fresh one created. The process owns teardown, same as Created.
	Recreated
)

func (r AttachResult) String() string {
	switch r {
	case Attached:
		return "attached"
	case Created:
		return "created"
	case Recreated:
		return "recreated"
	default:
		return "unavailable"
	}
}

// IsCreator reports whether the process that obtained this result is
// responsible for deleting the OS object at shutdown.
func (r AttachResult) IsCreator() bool {
	return r == Created || r == Recreated
}

// Segment is one process's handle to a named shared memory region.
type Segment struct {
	name    string
	path    string
	size    int
	file    *os.File
	buf     []byte
	creator bool
	closed  bool
}

func (s *Segment) Name() string { return s.name }
func (s *Segment) Size() int    { return s.size }

// IsCreator reports whether this handle owns deletion of the OS object.
func (s *Segment) IsCreator() bool { return s.creator }

// OpenOrCreate attaches to the region called name, creating it with exactly
// size bytes when it does not exist and create is true. Creation races
// between simultaneously starting processes are absorbed by a short-timeout
// init lock (separate from the region's data lock) and a bounded retry loop.
//
// A (nil, Unavailable, nil) return means the region does not exist and the
// caller asked not to create it, or retries were exhausted; the caller must
// treat the store as cold.
func OpenOrCreate(name string, size int, create bool) (*Segment, AttachResult, error) {
	if size <= 0 {
		return nil, Unavailable, fmt.Errorf("segment %q: invalid size %d", name, size)
	}
	initLock := NewFileLock(name+".init", initLockTimeout)

	for attempt := 1; attempt <= initAttempts; attempt++ {
		if err := initLock.Acquire(); err != nil {
			util.Debug("waiting for init lock on segment %q, attempt %d/%d", name, attempt, initAttempts)
			time.Sleep(initRetryDelay)
			continue
		}
		seg, result, err := openOrCreateLocked(name, size, create)
		initLock.Release()
		if err != nil {
			util.Warn("initializing segment %q: %v", name, err)
			time.Sleep(initRetryDelay)
			continue
		}
		return seg, result, nil
	}

	util.Error("failed to initialize segment %q after %d attempts", name, initAttempts)
	return nil, Unavailable, nil
}

// openOrCreateLocked does one open-or-create pass. The init lock is held.
func openOrCreateLocked(name string, size int, create bool) (*Segment, AttachResult, error) {
	path := segmentPath(name)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return nil, Unavailable, fmt.Errorf("stat %s: %w", path, statErr)
		}
		if int(info.Size()) == size {
			seg, mapErr := mapSegment(name, path, f, size, false)
			if mapErr != nil {
				f.Close()
				return nil, Unavailable, mapErr
			}
			return seg, Attached, nil
		}

		// Stale object from a previous run with a different layout. Only a
		// creating caller may replace it; attach-only callers back off so a
		// misconfigured inspector cannot tear down a live pool.
		f.Close()
		if !create {
			util.Warn("segment %q has size %d, want %d; leaving it in place", name, info.Size(), size)
			return nil, Unavailable, nil
		}
		util.Warn("segment %q has size %d, want %d; removing stale region", name, info.Size(), size)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, Unavailable, fmt.Errorf("remove stale segment %s: %w", path, rmErr)
		}
		metrics.SegmentRecreations.Inc()
		seg, createErr := createSegment(name, path, size)
		if createErr != nil {
			return nil, Unavailable, createErr
		}
		return seg, Recreated, nil

	case os.IsNotExist(err):
		if !create {
			return nil, Unavailable, nil
		}
		seg, createErr := createSegment(name, path, size)
		if createErr != nil {
			return nil, Unavailable, createErr
		}
		util.Debug("created shared memory for %q (%d bytes)", name, size)
		return seg, Created, nil

	default:
		return nil, Unavailable, fmt.Errorf("open segment %s: %w", path, err)
	}
}

func createSegment(name, path string, size int) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("resize segment %s: %w", path, err)
	}
	seg, err := mapSegment(name, path, f, size, true)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return seg, nil
}

func mapSegment(name, path string, f *os.File, size int, creator bool) (*Segment, error) {
	buf, err := mapFile(f, size)
	if err != nil {
		return nil, fmt.Errorf("mmap segment %s: %w", path, err)
	}
	return &Segment{
		name:    name,
		path:    path,
		size:    size,
		file:    f,
		buf:     buf,
		creator: creator,
	}, nil
}

// Close unmaps and closes this process's handle. The creator additionally
// removes the OS object. Closing twice, or unlinking an already-removed
// region, is a no-op.
func (s *Segment) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true

	if err := unmapFile(s.buf); err != nil {
		util.Error("unmapping segment %q: %v", s.name, err)
	}
	s.buf = nil
	if err := s.file.Close(); err != nil {
		util.Error("closing segment %q: %v", s.name, err)
	}
	if s.creator {
		util.Debug("[Creator] unlinking shared memory %q", s.name)
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			util.Error("unlinking segment %q: %v", s.name, err)
		}
	}
}
