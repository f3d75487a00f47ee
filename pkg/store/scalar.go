package store

import "github.com/shmstate-org/shmstate/pkg/shm"

// Segment sizes for the scalar regions. Values occupy one aligned word; the
// lock exists to serialize logical read-modify-write, not the raw memory op.
const (
	IntScalarSize   = 4
	FloatScalarSize = 8
)

// IntScalar is a single 4-byte integer region, used for flags.
type IntScalar struct {
	seg  *shm.Segment
	lock *shm.FileLock
}

func NewIntScalar(seg *shm.Segment, lock *shm.FileLock) *IntScalar {
	return &IntScalar{seg: seg, lock: lock}
}

func (s *IntScalar) Read() (int32, error) {
	if err := s.lock.Acquire(); err != nil {
		return 0, err
	}
	defer s.lock.Release()
	return s.seg.Int32At(0), nil
}

func (s *IntScalar) Write(v int32) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()
	s.seg.PutInt32At(0, v)
	return nil
}

// FloatScalar is a single 8-byte float region, used for the boot timestamp.
type FloatScalar struct {
	seg  *shm.Segment
	lock *shm.FileLock
}

func NewFloatScalar(seg *shm.Segment, lock *shm.FileLock) *FloatScalar {
	return &FloatScalar{seg: seg, lock: lock}
}

func (s *FloatScalar) Read() (float64, error) {
	if err := s.lock.Acquire(); err != nil {
		return 0, err
	}
	defer s.lock.Release()
	return s.seg.Float64At(0), nil
}

func (s *FloatScalar) Write(v float64) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()
	s.seg.PutFloat64At(0, v)
	return nil
}

// Counter is a wrapping unsigned counter. The value always stays in
// [0, max); incrementing at max-1 wraps back to zero.
type Counter struct {
	seg  *shm.Segment
	lock *shm.FileLock
	max  uint32
}

// NewCounter builds a counter wrapping at max. A zero max means no explicit
// bound: the counter then wraps at the natural uint32 limit.
func NewCounter(seg *shm.Segment, lock *shm.FileLock, max uint32) *Counter {
	return &Counter{seg: seg, lock: lock, max: max}
}

// Increment advances the counter by one modulo max and returns the new
// value, all under the region lock.
func (c *Counter) Increment() (uint32, error) {
	if err := c.lock.Acquire(); err != nil {
		return 0, err
	}
	defer c.lock.Release()
	v := c.seg.Uint32At(0) + 1
	if c.max > 0 {
		v %= c.max
	}
	c.seg.PutUint32At(0, v)
	return v, nil
}

func (c *Counter) Value() (uint32, error) {
	if err := c.lock.Acquire(); err != nil {
		return 0, err
	}
	defer c.lock.Release()
	return c.seg.Uint32At(0), nil
}
