// Package crypto manages the rotating RSA key pair shared by all workers.
// The current pair lives in a versioned shared blob (version stamp = rotation
// unix seconds) and is additionally persisted to disk sealed with a local
// master key, so a restarted process group does not hand out fresh keys
// mid-session.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/pkg/store"
	"github.com/shmstate-org/shmstate/util"
)

const (
	// PEM slot capacities; a 2048-bit PKCS#8 private PEM runs ~1700-1800
	// bytes, a SubjectPublicKeyInfo public PEM ~450.
	privCapacity = 4096
	pubCapacity  = 1024

	payloadHeaderSize = 8 // privLen:u32 + pubLen:u32

	// PayloadSize is the fixed blob body: length header plus both padded
	// PEM slots. The blob's stored length is always exactly this.
	PayloadSize = payloadHeaderSize + privCapacity + pubCapacity
)

const (
	DefaultKeySize        = 2048
	DefaultRotationPeriod = 5 * time.Minute
)

// KeyPair is the decoded shared key material.
type KeyPair struct {
	Private   *rsa.PrivateKey
	Public    *rsa.PublicKey
	RotatedAt time.Time
}

// Manager reads and rotates the shared key pair.
type Manager struct {
	blob     *store.Blob
	disk     *DiskStore // nil disables at-rest persistence
	keySize  int
	rotation time.Duration
}

func NewManager(blob *store.Blob, disk *DiskStore, keySize int, rotation time.Duration) *Manager {
	return &Manager{blob: blob, disk: disk, keySize: keySize, rotation: rotation}
}

// Current returns the shared key pair, or nil when none has been written yet.
func (m *Manager) Current() (*KeyPair, error) {
	version, payload, err := m.blob.Read()
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	privPEM, pubPEM, err := unpackPayload(payload)
	if err != nil {
		return nil, err
	}
	if privPEM == nil {
		return nil, nil
	}
	pair, err := parsePEM(privPEM, pubPEM)
	if err != nil {
		return nil, err
	}
	pair.RotatedAt = time.Unix(version, 0)
	return pair, nil
}

// LastRotation returns the rotation stamp without decoding the keys.
func (m *Manager) LastRotation() (time.Time, error) {
	version, payload, err := m.blob.Read()
	if err != nil {
		return time.Time{}, err
	}
	if payload == nil {
		return time.Time{}, nil
	}
	return time.Unix(version, 0), nil
}

// Refresh rotates the pair when it is missing or older than the rotation
// period (always when force is set). A cold shared region is first refilled
// from the disk copy when that copy is still fresh. Returns whether the
// shared pair changed.
func (m *Manager) Refresh(force bool) (bool, error) {
	now := time.Now()

	pair, err := m.Current()
	if err != nil {
		return false, err
	}
	if !force && pair != nil && now.Sub(pair.RotatedAt) < m.rotation {
		return false, nil
	}

	if pair == nil && !force && m.disk != nil {
		privPEM, pubPEM, createdAt, loadErr := m.disk.Load()
		if loadErr != nil {
			util.Warn("loading persisted key pair: %v", loadErr)
		} else if privPEM != nil && now.Sub(createdAt) < m.rotation {
			if err := m.setPEM(privPEM, pubPEM, createdAt); err != nil {
				return false, err
			}
			util.Info("restored RSA key pair from disk (rotated %s)", createdAt.Format(time.RFC3339))
			return true, nil
		}
	}

	return true, m.rotate(now)
}

func (m *Manager) rotate(now time.Time) error {
	priv, err := rsa.GenerateKey(rand.Reader, m.keySize)
	if err != nil {
		return fmt.Errorf("generate RSA key: %w", err)
	}
	privPEM, pubPEM, err := encodePEM(priv)
	if err != nil {
		return err
	}
	if err := m.setPEM(privPEM, pubPEM, now); err != nil {
		return err
	}
	if m.disk != nil {
		if err := m.disk.Save(privPEM, pubPEM, now); err != nil {
			util.Error("persisting rotated key pair: %v", err)
		}
	}
	metrics.KeyRotations.Inc()
	util.Info("rotated RSA key pair (%d bits)", m.keySize)
	return nil
}

func (m *Manager) setPEM(privPEM, pubPEM []byte, rotatedAt time.Time) error {
	payload, err := packPayload(privPEM, pubPEM)
	if err != nil {
		return err
	}
	return m.blob.Write(rotatedAt.Unix(), payload)
}

func packPayload(privPEM, pubPEM []byte) ([]byte, error) {
	if len(privPEM) > privCapacity {
		return nil, fmt.Errorf("private key PEM is %d bytes, slot holds %d", len(privPEM), privCapacity)
	}
	if len(pubPEM) > pubCapacity {
		return nil, fmt.Errorf("public key PEM is %d bytes, slot holds %d", len(pubPEM), pubCapacity)
	}
	payload := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(privPEM)))
	binary.LittleEndian.PutUint32(payload[4:8], uint32(len(pubPEM)))
	copy(payload[payloadHeaderSize:], privPEM)
	copy(payload[payloadHeaderSize+privCapacity:], pubPEM)
	return payload, nil
}

func unpackPayload(payload []byte) (privPEM, pubPEM []byte, err error) {
	if len(payload) != PayloadSize {
		return nil, nil, fmt.Errorf("key payload is %d bytes, want %d", len(payload), PayloadSize)
	}
	privLen := binary.LittleEndian.Uint32(payload[0:4])
	pubLen := binary.LittleEndian.Uint32(payload[4:8])
	if privLen == 0 || pubLen == 0 {
		return nil, nil, nil
	}
	if privLen > privCapacity || pubLen > pubCapacity {
		return nil, nil, fmt.Errorf("key payload declares lengths %d/%d beyond slot capacity", privLen, pubLen)
	}
	privPEM = payload[payloadHeaderSize : payloadHeaderSize+privLen]
	pubPEM = payload[payloadHeaderSize+privCapacity : payloadHeaderSize+privCapacity+pubLen]
	return privPEM, pubPEM, nil
}

func encodePEM(priv *rsa.PrivateKey) (privPEM, pubPEM []byte, err error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}

func parsePEM(privPEM, pubPEM []byte) (*KeyPair, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("private key slot holds no PEM block")
	}
	privAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := privAny.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key slot holds a %T, want RSA", privAny)
	}

	block, _ = pem.Decode(pubPEM)
	if block == nil {
		return nil, fmt.Errorf("public key slot holds no PEM block")
	}
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key slot holds a %T, want RSA", pubAny)
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}
