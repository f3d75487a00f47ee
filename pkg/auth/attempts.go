// Package auth keeps the cross-worker login-attempt history in a shared ring
// and implements the brute-force ban policy on top of it: N failures inside
// the window lock the source IP out until unlock_time. The locked check runs
// upstream, before any new attempt is appended.
package auth

import (
	"strconv"
	"time"

	"github.com/shmstate-org/shmstate/pkg/record"
	"github.com/shmstate-org/shmstate/pkg/store"
	"github.com/shmstate-org/shmstate/util"
)

// DefaultCapacity is the attempt ring capacity.
const DefaultCapacity = 1000

const usernameSize = 64

// Schema is the wire layout of one attempt record. Numeric fields travel as
// decimal strings, matching the fixed text widths.
var Schema = record.NewSchema(
	record.Field{Name: "ip", Size: 39}, // longest textual IPv6 form
	record.Field{Name: "timestamp", Size: 16},
	record.Field{Name: "username", Size: usernameSize},
	record.Field{Name: "success", Size: 1},
	record.Field{Name: "unlock_time", Size: 16},
)

// Attempt is one decoded login attempt.
type Attempt struct {
	IP         string
	Timestamp  int64
	Username   string
	Success    bool
	UnlockTime int64 // unix seconds the ban expires, 0 when no ban was set
}

// Policy holds the brute-force limits.
type Policy struct {
	MaxAttempts int           // failures that trigger a ban
	Window      time.Duration // how far back failures are counted
	Lockout     time.Duration // ban duration once triggered
}

// DefaultPolicy mirrors the service defaults: 5 attempts per 10 minutes,
// 10 minute lockout.
var DefaultPolicy = Policy{
	MaxAttempts: 5,
	Window:      10 * time.Minute,
	Lockout:     10 * time.Minute,
}

// Tracker records attempts and evaluates the ban policy.
type Tracker struct {
	ring   *store.Ring
	policy Policy
}

func NewTracker(ring *store.Ring, policy Policy) *Tracker {
	return &Tracker{ring: ring, policy: policy}
}

// Record appends one attempt to the shared history.
func (t *Tracker) Record(a Attempt) error {
	success := "0"
	if a.Success {
		success = "1"
	}
	return t.ring.Append(map[string]string{
		"ip":          a.IP,
		"timestamp":   strconv.FormatInt(a.Timestamp, 10),
		"username":    util.SafeTruncate(a.Username, usernameSize, ""),
		"success":     success,
		"unlock_time": strconv.FormatInt(a.UnlockTime, 10),
	})
}

// Attempts returns the retained history with timestamp >= since, oldest
// first. Unparseable timestamps decode as zero rather than failing the read.
func (t *Tracker) Attempts(since int64) ([]Attempt, error) {
	recs, err := t.ring.ReadLast(t.ring.Capacity())
	if err != nil {
		return nil, err
	}
	attempts := make([]Attempt, 0, len(recs))
	for _, rec := range recs {
		a := Attempt{
			IP:       rec["ip"],
			Username: rec["username"],
			Success:  rec["success"] == "1",
		}
		a.Timestamp, _ = strconv.ParseInt(rec["timestamp"], 10, 64)
		a.UnlockTime, _ = strconv.ParseInt(rec["unlock_time"], 10, 64)
		if a.Timestamp >= since {
			attempts = append(attempts, a)
		}
	}
	return attempts, nil
}

// LockedUntil reports whether ip has an active ban at time now. A ban is
// active when the IP's most recent attempt carries unlock_time > now.
func (t *Tracker) LockedUntil(ip string, now int64) (int64, bool, error) {
	attempts, err := t.Attempts(0)
	if err != nil {
		return 0, false, err
	}
	var last *Attempt
	for i := range attempts {
		if attempts[i].IP == ip {
			last = &attempts[i]
		}
	}
	if last == nil || last.UnlockTime <= now {
		return 0, false, nil
	}
	return last.UnlockTime, true, nil
}

// RecordFailure appends a failed attempt and, when it is the Nth failure
// since the last success inside the window, sets the ban. Returns the unlock
// time, or 0 when no ban was triggered.
func (t *Tracker) RecordFailure(ip, username string, now int64) (int64, error) {
	attempts, err := t.Attempts(0)
	if err != nil {
		return 0, err
	}

	var forIP []Attempt
	for _, a := range attempts {
		if a.IP == ip {
			forIP = append(forIP, a)
		}
	}
	lastSuccess := -1
	for i := len(forIP) - 1; i >= 0; i-- {
		if forIP[i].Success {
			lastSuccess = i
			break
		}
	}
	windowStart := now - int64(t.policy.Window/time.Second)
	failed := 0
	for _, a := range forIP[lastSuccess+1:] {
		if !a.Success && a.Timestamp >= windowStart {
			failed++
		}
	}

	// The attempt being recorded counts toward the limit.
	var unlockTime int64
	if failed+1 >= t.policy.MaxAttempts {
		unlockTime = now + int64(t.policy.Lockout/time.Second)
	}

	recErr := t.Record(Attempt{
		IP:         ip,
		Username:   username,
		Timestamp:  now,
		Success:    false,
		UnlockTime: unlockTime,
	})
	if recErr != nil {
		return 0, recErr
	}
	if unlockTime > 0 {
		util.Info("IP %s is now banned until %s after %d failed attempts",
			ip, time.Unix(unlockTime, 0).Format("02.01.2006 15:04:05"), failed+1)
	}
	return unlockTime, nil
}

// RecordSuccess appends a successful attempt, resetting the failure streak.
func (t *Tracker) RecordSuccess(ip, username string, now int64) error {
	return t.Record(Attempt{IP: ip, Username: username, Timestamp: now, Success: true})
}
