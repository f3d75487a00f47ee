//go:build unix

package shm

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// segmentPath returns the backing file path for a named region. /dev/shm is
// preferred so the mapping stays memory-resident; other unixes fall back to
// the system temp directory.
func segmentPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", segmentPrefix+name)
	}
	return filepath.Join(os.TempDir(), segmentPrefix+name)
}

func mapFile(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func unmapFile(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return unix.Munmap(buf)
}
