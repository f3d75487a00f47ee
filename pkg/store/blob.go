package store

import (
	"errors"
	"fmt"

	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/pkg/shm"
)

// ErrCapacityExceeded means a blob write was larger than the region body.
// The write is rejected and the previously stored blob is left untouched.
var ErrCapacityExceeded = errors.New("payload exceeds blob capacity")

// blob header: version:int64 at 0, length:u32 at 8, 4 reserved bytes.
const blobHeaderSize = 16

// Blob is a whole-value replace/read byte buffer tagged with a version
// stamp. The stamp is opaque here; callers compare it against an external
// freshness source (a file mtime, a rotation time) to decide staleness.
type Blob struct {
	seg      *shm.Segment
	lock     *shm.FileLock
	capacity int
}

// BlobSize returns the segment size needed for a blob with the given body
// capacity.
func BlobSize(capacity int) int {
	return blobHeaderSize + capacity
}

func NewBlob(seg *shm.Segment, lock *shm.FileLock, capacity int) *Blob {
	return &Blob{seg: seg, lock: lock, capacity: capacity}
}

func (b *Blob) Capacity() int { return b.capacity }

// Write replaces the stored blob. All-or-nothing: an over-capacity payload
// is rejected without modifying the stored header or body. The payload goes
// last so a reader under the same lock never sees a mismatched length/body
// pair.
func (b *Blob) Write(version int64, payload []byte) error {
	if err := b.lock.Acquire(); err != nil {
		return fmt.Errorf("blob %q write: %w", b.seg.Name(), err)
	}
	defer b.lock.Release()

	if len(payload) > b.capacity {
		metrics.BlobWritesRejected.WithLabelValues(b.seg.Name()).Inc()
		return fmt.Errorf("blob %q: %w (%d > %d)", b.seg.Name(), ErrCapacityExceeded, len(payload), b.capacity)
	}

	b.seg.PutUint32At(8, uint32(len(payload)))
	b.seg.PutInt64At(0, version)
	b.seg.PutBytesAt(blobHeaderSize, payload)
	return nil
}

// Read returns the version stamp and a copy of the payload. A zero or
// out-of-range stored length yields (version, nil): the cold or corrupted
// case, not an error.
func (b *Blob) Read() (int64, []byte, error) {
	if err := b.lock.Acquire(); err != nil {
		return 0, nil, fmt.Errorf("blob %q read: %w", b.seg.Name(), err)
	}
	defer b.lock.Release()

	version := b.seg.Int64At(0)
	n := int(b.seg.Uint32At(8))
	if n <= 0 || n > b.capacity {
		return version, nil, nil
	}
	return version, b.seg.BytesAt(blobHeaderSize, n), nil
}
