package shm

import (
	"encoding/binary"
	"math"
)

// Fixed-width primitive access at byte offsets. All values are little-endian.
// None of these take the region lock; serializing read-modify-write sequences
// is the calling store's responsibility.

func (s *Segment) Uint32At(off int) uint32 {
	return binary.LittleEndian.Uint32(s.buf[off : off+4])
}

func (s *Segment) PutUint32At(off int, v uint32) {
	binary.LittleEndian.PutUint32(s.buf[off:off+4], v)
}

func (s *Segment) Int32At(off int) int32 {
	return int32(s.Uint32At(off))
}

func (s *Segment) PutInt32At(off int, v int32) {
	s.PutUint32At(off, uint32(v))
}

func (s *Segment) Int64At(off int) int64 {
	return int64(binary.LittleEndian.Uint64(s.buf[off : off+8]))
}

func (s *Segment) PutInt64At(off int, v int64) {
	binary.LittleEndian.PutUint64(s.buf[off:off+8], uint64(v))
}

func (s *Segment) Float64At(off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(s.buf[off : off+8]))
}

func (s *Segment) PutFloat64At(off int, v float64) {
	binary.LittleEndian.PutUint64(s.buf[off:off+8], math.Float64bits(v))
}

// BytesAt returns a copy of n bytes starting at off.
func (s *Segment) BytesAt(off, n int) []byte {
	out := make([]byte, n)
	copy(out, s.buf[off:off+n])
	return out
}

func (s *Segment) PutBytesAt(off int, data []byte) {
	copy(s.buf[off:off+len(data)], data)
}
