package crypto

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/shmstate-org/shmstate/pkg/shm"
)

const (
	masterKeyFile = "crypto_master.key"
	keyPairFile   = "rsa_keypair.enc"

	diskLockTimeout = 5 * time.Second
)

// DiskStore persists the key pair across process-group restarts: CBOR
// payload sealed with XChaCha20-Poly1305 under a locally generated master
// key. File access is serialized with its own advisory lock since several
// workers may rotate concurrently.
type DiskStore struct {
	dir  string
	lock *shm.FileLock
}

type diskPayload struct {
	PrivatePEM []byte `cbor:"private_key"`
	PublicPEM  []byte `cbor:"public_key"`
	CreatedAt  int64  `cbor:"created_at"`
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{
		dir:  dir,
		lock: shm.NewFileLock("crypto_disk", diskLockTimeout),
	}
}

// Save seals and writes the pair. The master key is created on first use.
func (d *DiskStore) Save(privPEM, pubPEM []byte, createdAt time.Time) error {
	if err := d.lock.Acquire(); err != nil {
		return err
	}
	defer d.lock.Release()

	key, err := d.masterKey()
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}

	plain, err := cbor.Marshal(diskPayload{
		PrivatePEM: privPEM,
		PublicPEM:  pubPEM,
		CreatedAt:  createdAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode key pair: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)

	path := filepath.Join(d.dir, keyPairFile)
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return fmt.Errorf("write key pair file: %w", err)
	}
	return nil
}

// Load reads and opens the persisted pair. A missing file returns all-nil;
// a corrupt or unsealable file is an error so the caller can regenerate.
func (d *DiskStore) Load() (privPEM, pubPEM []byte, createdAt time.Time, err error) {
	if err := d.lock.Acquire(); err != nil {
		return nil, nil, time.Time{}, err
	}
	defer d.lock.Release()

	path := filepath.Join(d.dir, keyPairFile)
	sealed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, time.Time{}, nil
	}
	if err != nil {
		return nil, nil, time.Time{}, err
	}

	key, err := d.masterKey()
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, nil, time.Time{}, fmt.Errorf("key pair file %s is truncated", path)
	}

	plain, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], nil)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("decrypt key pair file %s: %w", path, err)
	}

	var payload diskPayload
	if err := cbor.Unmarshal(plain, &payload); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("decode key pair file %s: %w", path, err)
	}
	return payload.PrivatePEM, payload.PublicPEM, time.Unix(payload.CreatedAt, 0), nil
}

// masterKey returns the local sealing key, generating it on first use.
func (d *DiskStore) masterKey() ([]byte, error) {
	path := filepath.Join(d.dir, masterKeyFile)
	if key, err := os.ReadFile(path); err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("master key file %s holds %d bytes, want %d", path, len(key), chacha20poly1305.KeySize)
		}
		return key, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write master key file: %w", err)
	}
	return key, nil
}
