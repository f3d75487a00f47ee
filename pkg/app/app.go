// Package app assembles the shared-state layer: it opens (or attaches to)
// every region once per process, wires the typed stores, and owns startup
// and teardown ordering. Callers receive an *App and pass it on explicitly;
// there are no package-level singletons.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shmstate-org/shmstate/pkg/auth"
	"github.com/shmstate-org/shmstate/pkg/barrier"
	"github.com/shmstate-org/shmstate/pkg/config"
	"github.com/shmstate-org/shmstate/pkg/crypto"
	"github.com/shmstate-org/shmstate/pkg/logstream"
	"github.com/shmstate-org/shmstate/pkg/settings"
	"github.com/shmstate-org/shmstate/pkg/shm"
	"github.com/shmstate-org/shmstate/pkg/store"
	"github.com/shmstate-org/shmstate/util"
)

// Region names. Process-wide unique; the backing objects carry a common
// prefix added by pkg/shm.
const (
	RegionLogs        = "logs"
	RegionLogsCounter = "logs_counter"
	RegionAuth        = "auth"
	RegionSettings    = "settings"
	RegionCrypto      = "crypto"
	RegionShutdown    = "shutdown"
	RegionBootTime    = "boot_time"
	RegionPids        = "pids"
)

// App is one process's handle to every shared region.
type App struct {
	cfg      *config.Config
	segments []*shm.Segment

	Logs     *logstream.Stream
	Auth     *auth.Tracker
	Settings *settings.Cache
	Keys     *crypto.Manager
	Barrier  *barrier.Barrier

	shutdown *store.IntScalar
	bootTime *store.FloatScalar

	teeing atomic.Bool
	closed atomic.Bool
}

// Open creates or attaches every region. With create=false (attach-only
// tools) a missing region is an error naming the cold store.
func Open(cfg *config.Config, create bool) (*App, error) {
	a := &App{cfg: cfg}

	open := func(name string, size int) (*shm.Segment, error) {
		seg, result, err := shm.OpenOrCreate(name, size, create)
		if err != nil {
			return nil, err
		}
		if seg == nil {
			return nil, fmt.Errorf("segment %q is not available (result: %s)", name, result)
		}
		a.segments = append(a.segments, seg)
		return seg, nil
	}
	lock := func(name string) *shm.FileLock {
		return shm.NewFileLock(name, cfg.LockTimeout)
	}

	logsSeg, err := open(RegionLogs, store.RingSize(logstream.Schema, cfg.LogBufferSize))
	if err != nil {
		a.Close()
		return nil, err
	}
	counterSeg, err := open(RegionLogsCounter, store.IntScalarSize)
	if err != nil {
		a.Close()
		return nil, err
	}
	authSeg, err := open(RegionAuth, store.RingSize(auth.Schema, cfg.AuthBufferSize))
	if err != nil {
		a.Close()
		return nil, err
	}
	settingsSeg, err := open(RegionSettings, store.BlobSize(cfg.SettingsCapacity))
	if err != nil {
		a.Close()
		return nil, err
	}
	cryptoSeg, err := open(RegionCrypto, store.BlobSize(crypto.PayloadSize))
	if err != nil {
		a.Close()
		return nil, err
	}
	shutdownSeg, err := open(RegionShutdown, store.IntScalarSize)
	if err != nil {
		a.Close()
		return nil, err
	}
	bootSeg, err := open(RegionBootTime, store.FloatScalarSize)
	if err != nil {
		a.Close()
		return nil, err
	}
	pidsSeg, err := open(RegionPids, store.RosterSize)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Logs = logstream.NewStream(
		store.NewRing(logsSeg, lock(RegionLogs), logstream.Schema, cfg.LogBufferSize),
		store.NewCounter(counterSeg, lock(RegionLogsCounter), logstream.CounterMax),
	)
	a.Auth = auth.NewTracker(
		store.NewRing(authSeg, lock(RegionAuth), auth.Schema, cfg.AuthBufferSize),
		auth.Policy{
			MaxAttempts: cfg.MaxLoginAttempts,
			Window:      cfg.AuthWindow,
			Lockout:     cfg.AuthLockout,
		},
	)
	a.Settings = settings.NewCache(
		store.NewBlob(settingsSeg, lock(RegionSettings), cfg.SettingsCapacity),
		cfg.SettingsPath,
	)

	var disk *crypto.DiskStore
	if cfg.PersistKeys {
		disk = crypto.NewDiskStore(cfg.DataDir)
	}
	a.Keys = crypto.NewManager(
		store.NewBlob(cryptoSeg, lock(RegionCrypto), crypto.PayloadSize),
		disk, cfg.RSAKeySize, cfg.KeyRotationPeriod,
	)

	a.shutdown = store.NewIntScalar(shutdownSeg, lock(RegionShutdown))
	a.bootTime = store.NewFloatScalar(bootSeg, lock(RegionBootTime))
	a.Barrier = barrier.New(store.NewRoster(pidsSeg, lock(RegionPids)))

	return a, nil
}

// Startup runs the one-shot registration barrier: announce this PID, wait
// (bounded) for the rest of the pool, and let the leader log the roster.
func (a *App) Startup() error {
	if _, err := a.Barrier.Register(); err != nil {
		return err
	}
	pids, err := a.Barrier.WaitForQuorum(a.cfg.AppWorkers, a.cfg.BarrierTimeout)
	if err != nil {
		return err
	}
	a.Barrier.Announce(pids)
	return nil
}

// MarkBoot stores the process-group boot timestamp.
func (a *App) MarkBoot(t time.Time) error {
	return a.bootTime.Write(float64(t.UnixNano()) / 1e9)
}

// BootTime returns the stored boot timestamp; zero when never set.
func (a *App) BootTime() (time.Time, error) {
	v, err := a.bootTime.Read()
	if err != nil {
		return time.Time{}, err
	}
	if v == 0 {
		return time.Time{}, nil
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), nil
}

// RequestShutdown raises the shared shutdown flag for every worker.
func (a *App) RequestShutdown() error {
	return a.shutdown.Write(1)
}

func (a *App) ShutdownRequested() (bool, error) {
	v, err := a.shutdown.Read()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// InstallLogTee mirrors every process log line into the shared log ring.
// Failures (including a busy lock) are swallowed: the hot logging path must
// never take down a request. The atomic guard stops the tee from feeding on
// log lines produced while it is itself appending.
func (a *App) InstallLogTee() {
	util.SetEmitter(func(level util.LogLevel, message string) {
		if !a.teeing.CompareAndSwap(false, true) {
			return
		}
		defer a.teeing.Store(false)
		_ = a.Logs.Append(context.Background(), logstream.Entry{
			Module:  "shmstate",
			Level:   level.Short(),
			Message: message,
		})
	})
}

// Close detaches every region; creator handles additionally remove the OS
// objects. Safe to call more than once.
func (a *App) Close() {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	util.SetEmitter(nil)
	for _, seg := range a.segments {
		seg.Close()
	}
	a.segments = nil
}
