// Package store provides the typed shared memory stores: fixed-capacity ring
// buffers of binary records, single-word scalars and counters, a versioned
// blob cache, and the append-only PID roster. Every operation brackets its
// reads and writes with the owning region's file lock.
package store

import (
	"fmt"

	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/pkg/record"
	"github.com/shmstate-org/shmstate/pkg/shm"
)

const (
	ringHeaderSize = 8 // count:u32 + next:u32
	slotHeaderSize = 4 // declared record size:u32
)

// Ring is a fixed-capacity circular log of fixed-width records. Once full,
// each append permanently overwrites the oldest entry.
type Ring struct {
	seg      *shm.Segment
	lock     *shm.FileLock
	schema   record.Schema
	capacity int
}

// RingSize returns the segment size needed for a ring of the given schema
// and capacity.
func RingSize(schema record.Schema, capacity int) int {
	return ringHeaderSize + capacity*(slotHeaderSize+schema.Size())
}

func NewRing(seg *shm.Segment, lock *shm.FileLock, schema record.Schema, capacity int) *Ring {
	return &Ring{seg: seg, lock: lock, schema: schema, capacity: capacity}
}

func (r *Ring) Capacity() int { return r.capacity }

// Append serializes rec and writes it at the next slot.
func (r *Ring) Append(rec map[string]string) error {
	return r.AppendWith(rec, nil)
}

// AppendWith runs before inside the ring's critical section and then appends
// rec, so a companion update (such as the shared log counter) and the append
// happen under one lock acquisition.
func (r *Ring) AppendWith(rec map[string]string, before func() error) error {
	if err := r.lock.Acquire(); err != nil {
		return fmt.Errorf("ring %q append: %w", r.seg.Name(), err)
	}
	defer r.lock.Release()

	if before != nil {
		if err := before(); err != nil {
			return err
		}
	}

	packed := r.schema.Pack(rec)
	count := r.seg.Uint32At(0)
	next := r.seg.Uint32At(4)
	if next >= uint32(r.capacity) {
		next = 0
	}

	off := ringHeaderSize + int(next)*(slotHeaderSize+r.schema.Size())
	r.seg.PutUint32At(off, uint32(r.schema.Size()))
	r.seg.PutBytesAt(off+slotHeaderSize, packed)

	next = (next + 1) % uint32(r.capacity)
	if count < uint32(r.capacity) {
		count++
	}
	r.seg.PutUint32At(0, count)
	r.seg.PutUint32At(4, next)

	metrics.RingAppends.WithLabelValues(r.seg.Name()).Inc()
	return nil
}

// ReadLast returns up to n of the most recently appended records in
// insertion order (oldest first). Slots whose declared size does not match
// the schema are skipped, never fatal.
func (r *Ring) ReadLast(n int) ([]map[string]string, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > r.capacity {
		n = r.capacity
	}

	if err := r.lock.Acquire(); err != nil {
		return nil, fmt.Errorf("ring %q read: %w", r.seg.Name(), err)
	}
	defer r.lock.Release()

	count := int(r.seg.Uint32At(0))
	next := int(r.seg.Uint32At(4))
	if count > r.capacity {
		count = r.capacity
	}
	num := count
	if n < num {
		num = n
	}
	if num == 0 {
		return nil, nil
	}

	slotSize := slotHeaderSize + r.schema.Size()
	start := ((next-num)%r.capacity + r.capacity) % r.capacity

	out := make([]map[string]string, 0, num)
	for i := 0; i < num; i++ {
		idx := (start + i) % r.capacity
		off := ringHeaderSize + idx*slotSize
		if int(r.seg.Uint32At(off)) != r.schema.Size() {
			metrics.RingDecodeSkips.WithLabelValues(r.seg.Name()).Inc()
			continue
		}
		out = append(out, r.schema.Unpack(r.seg.BytesAt(off+slotHeaderSize, r.schema.Size())))
	}
	return out, nil
}
