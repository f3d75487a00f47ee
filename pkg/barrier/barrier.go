// Package barrier implements the one-shot startup registration barrier:
// every worker announces its PID in the shared roster, waits (bounded) for
// the rest of the pool, and the lowest PID becomes the leader for one-time
// diagnostics. Leadership grants no write authority over any store.
package barrier

import (
	"os"
	"sort"
	"time"

	"github.com/shmstate-org/shmstate/pkg/store"
	"github.com/shmstate-org/shmstate/util"
)

const pollInterval = 50 * time.Millisecond

// DefaultTimeout bounds how long a worker waits for the rest of the pool.
const DefaultTimeout = 10 * time.Second

type Barrier struct {
	roster *store.Roster
	pid    int
}

func New(roster *store.Roster) *Barrier {
	return &Barrier{roster: roster, pid: os.Getpid()}
}

func (b *Barrier) Pid() int { return b.pid }

// Pids returns the current roster contents.
func (b *Barrier) Pids() ([]int, error) { return b.roster.Pids() }

// Register announces this process in the roster. Called exactly once per
// process at startup.
func (b *Barrier) Register() (int, error) {
	return b.roster.Register(b.pid)
}

// WaitForQuorum polls the roster until expected processes have registered or
// timeout elapses. On timeout it logs the degraded quorum and returns the
// partial roster; it never blocks past timeout plus one poll interval.
func (b *Barrier) WaitForQuorum(expected int, timeout time.Duration) ([]int, error) {
	deadline := time.Now().Add(timeout)
	for {
		pids, err := b.roster.Pids()
		if err != nil {
			return nil, err
		}
		if len(pids) >= expected {
			return pids, nil
		}
		if time.Now().After(deadline) {
			util.Warn("registration barrier timeout: expected %d workers, only %d registered (pids: %v)",
				expected, len(pids), pids)
			return pids, nil
		}
		time.Sleep(pollInterval)
	}
}

// IsLeader reports whether self is the lowest PID in the roster. Exactly one
// process satisfies this for any non-empty roster.
func IsLeader(pids []int, self int) bool {
	if len(pids) == 0 {
		return false
	}
	min := pids[0]
	for _, p := range pids[1:] {
		if p < min {
			min = p
		}
	}
	return self == min
}

// Announce logs the assembled pool once, from the leader only.
func (b *Barrier) Announce(pids []int) {
	if !IsLeader(pids, b.pid) {
		return
	}
	sorted := append([]int(nil), pids...)
	sort.Ints(sorted)
	util.Info("server is running on %d processes: %v", len(sorted), sorted)
}
