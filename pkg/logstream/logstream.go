// Package logstream is the rolling shared log: a fixed-width record ring
// visible to every worker, paired with a wrapping shared counter of total
// log events. Appends are best-effort; a busy lock must never take down a
// request.
package logstream

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shmstate-org/shmstate/pkg/record"
	"github.com/shmstate-org/shmstate/pkg/store"
	"github.com/shmstate-org/shmstate/util"
)

const (
	timeLayout  = "2006-01-02 15:04:05"
	messageSize = 1300
)

// DefaultCapacity is the ring capacity used when the config does not
// override it.
const DefaultCapacity = 1000

// CounterMax bounds the shared log-event counter; incrementing wraps.
const CounterMax = 2_000_000_000

// Schema is the wire layout of one shared log record.
var Schema = record.NewSchema(
	record.Field{Name: "asctime", Size: 19},
	record.Field{Name: "msecs", Size: 3},
	record.Field{Name: "module", Size: 20},
	record.Field{Name: "funcName", Size: 25},
	record.Field{Name: "process", Size: 5},
	record.Field{Name: "session_id", Size: 4},
	record.Field{Name: "levelname", Size: 3},
	record.Field{Name: "message", Size: messageSize},
)

// Entry is one decoded shared log record.
type Entry struct {
	Time      time.Time
	Module    string
	Function  string
	Level     string // three-letter tag (DBG/INF/WRN/ERR/FTL)
	SessionID string
	Process   int
	Message   string
}

type Stream struct {
	ring    *store.Ring
	counter *store.Counter
}

func NewStream(ring *store.Ring, counter *store.Counter) *Stream {
	return &Stream{ring: ring, counter: counter}
}

// Append increments the shared log counter and writes the record, both under
// the ring's single lock acquisition so the pair stays consistent. A lock
// timeout surfaces as shm.ErrLockTimeout; the emit path swallows it.
func (s *Stream) Append(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Process == 0 {
		e.Process = os.Getpid()
	}

	rec := map[string]string{
		"asctime":    e.Time.Format(timeLayout),
		"msecs":      fmt.Sprintf("%03d", e.Time.Nanosecond()/1e6),
		"module":     e.Module,
		"funcName":   e.Function,
		"process":    strconv.Itoa(e.Process),
		"session_id": SessionID(ctx),
		"levelname":  e.Level,
		"message":    util.SafeTruncate(e.Message, messageSize, util.TruncationSuffix),
	}

	return s.ring.AppendWith(rec, func() error {
		_, err := s.counter.Increment()
		return err
	})
}

// ReadLast returns up to n entries, oldest first.
func (s *Stream) ReadLast(n int) ([]Entry, error) {
	recs, err := s.ring.ReadLast(n)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, decodeEntry(rec))
	}
	return entries, nil
}

// Count returns the shared log-event counter.
func (s *Stream) Count() (uint32, error) {
	return s.counter.Value()
}

func decodeEntry(rec map[string]string) Entry {
	e := Entry{
		Module:    rec["module"],
		Function:  rec["funcName"],
		Level:     rec["levelname"],
		SessionID: rec["session_id"],
		Message:   rec["message"],
	}
	if t, err := time.ParseInLocation(timeLayout, rec["asctime"], time.Local); err == nil {
		if ms, msErr := strconv.Atoi(rec["msecs"]); msErr == nil {
			t = t.Add(time.Duration(ms) * time.Millisecond)
		}
		e.Time = t
	}
	e.Process, _ = strconv.Atoi(rec["process"])
	return e
}
