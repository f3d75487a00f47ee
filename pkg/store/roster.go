package store

import (
	"errors"
	"fmt"

	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/pkg/shm"
)

// ErrRosterFull means more processes tried to register than the roster has
// slots for.
var ErrRosterFull = errors.New("pid roster is full")

const (
	rosterHeaderSize = 4 // registered count:u32
	// RosterSlots bounds the worker pool size.
	RosterSlots = 255
	// RosterSize is the segment size for the PID roster region.
	RosterSize = rosterHeaderSize + RosterSlots*4
)

// Roster is the append-only PID registry written once by each worker at
// startup. Entries are never removed during a process-group lifetime; the
// count only grows.
type Roster struct {
	seg  *shm.Segment
	lock *shm.FileLock
}

func NewRoster(seg *shm.Segment, lock *shm.FileLock) *Roster {
	return &Roster{seg: seg, lock: lock}
}

// Register appends pid and returns the new registered count.
func (r *Roster) Register(pid int) (int, error) {
	if err := r.lock.Acquire(); err != nil {
		return 0, fmt.Errorf("roster register: %w", err)
	}
	defer r.lock.Release()

	count := r.seg.Uint32At(0)
	if count >= RosterSlots {
		return int(count), ErrRosterFull
	}
	r.seg.PutInt32At(rosterHeaderSize+int(count)*4, int32(pid))
	count++
	r.seg.PutUint32At(0, count)

	metrics.RegisteredWorkers.Set(float64(count))
	return int(count), nil
}

// Pids returns every registered PID in registration order.
func (r *Roster) Pids() ([]int, error) {
	if err := r.lock.Acquire(); err != nil {
		return nil, fmt.Errorf("roster read: %w", err)
	}
	defer r.lock.Release()

	count := int(r.seg.Uint32At(0))
	if count > RosterSlots {
		count = RosterSlots
	}
	pids := make([]int, 0, count)
	for i := 0; i < count; i++ {
		pids = append(pids, int(r.seg.Int32At(rosterHeaderSize+i*4)))
	}
	return pids, nil
}
