// Package settings caches the service's structured configuration in a
// versioned shared blob so every worker sees one consistent copy without
// re-parsing the backing file. The version stamp is the file's mtime; a
// cheap stat decides whether the cached payload is still fresh. All
// shared-memory round trips are explicit method calls.
package settings

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/exp/mmap"
	"gopkg.in/yaml.v3"

	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/pkg/store"
)

// DefaultCapacity bounds the serialized settings payload.
const DefaultCapacity = 64 * 1024

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Cache is the shared settings store backed by one YAML file.
type Cache struct {
	blob *store.Blob
	path string
}

func NewCache(blob *store.Blob, path string) *Cache {
	return &Cache{blob: blob, path: path}
}

// Load returns the current settings, refreshing the shared blob from the
// backing file when its mtime differs from the stored version stamp.
func (c *Cache) Load() (map[string]any, error) {
	info, statErr := os.Stat(c.path)
	if statErr != nil {
		// No backing file: serve whatever an earlier writer cached.
		_, data, err := c.Cached()
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, fmt.Errorf("settings file %s: %w", c.path, statErr)
		}
		return data, nil
	}
	mtime := info.ModTime().Unix()

	version, payload, err := c.blob.Read()
	if err != nil {
		return nil, err
	}
	if version == mtime && payload != nil {
		return decodePayload(payload)
	}
	return c.refresh(mtime)
}

// Cached returns the stored version stamp and settings without touching the
// backing file. A nil map means the cache is cold.
func (c *Cache) Cached() (int64, map[string]any, error) {
	version, payload, err := c.blob.Read()
	if err != nil {
		return 0, nil, err
	}
	if payload == nil {
		return version, nil, nil
	}
	data, err := decodePayload(payload)
	if err != nil {
		return version, nil, err
	}
	return version, data, nil
}

// Set replaces the cached settings under an explicit version stamp.
func (c *Cache) Set(version int64, data map[string]any) error {
	payload, err := cbor.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return c.blob.Write(version, payload)
}

// Field resolves a dot-separated path ("ldap.base_dn") against the current
// settings. The second return is false when any path element is missing.
func (c *Cache) Field(path string) (any, bool, error) {
	data, err := c.Load()
	if err != nil {
		return nil, false, err
	}
	var value any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false, nil
		}
		value, ok = m[part]
		if !ok {
			return nil, false, nil
		}
	}
	return value, true, nil
}

func (c *Cache) refresh(mtime int64) (map[string]any, error) {
	raw, err := readFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read settings file %s: %w", c.path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", c.path, err)
	}
	if err := c.Set(mtime, data); err != nil {
		return nil, err
	}
	metrics.SettingsReloads.Inc()
	return data, nil
}

func decodePayload(payload []byte) (map[string]any, error) {
	var data map[string]any
	if err := decMode.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("decode cached settings: %w", err)
	}
	return data, nil
}

// readFile reads the whole backing file through a read-only mapping.
func readFile(path string) ([]byte, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, r.Len())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}
