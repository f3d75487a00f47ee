package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RingAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmstate_ring_appends_total",
		Help: "Total number of records appended per ring buffer region",
	}, []string{"region"})

	RingDecodeSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmstate_ring_decode_skips_total",
		Help: "Total number of ring slots skipped due to a declared-size mismatch",
	}, []string{"region"})

	LockTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmstate_lock_timeouts_total",
		Help: "Total number of region lock acquisitions that exceeded their budget",
	}, []string{"lock"})

	SegmentRecreations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmstate_segment_recreations_total",
		Help: "Total number of stale shared memory regions removed and recreated",
	})

	BlobWritesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shmstate_blob_writes_rejected_total",
		Help: "Total number of blob writes rejected for exceeding region capacity",
	}, []string{"region"})

	RegisteredWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shmstate_registered_workers",
		Help: "Number of worker processes registered in the startup roster",
	})

	KeyRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmstate_key_rotations_total",
		Help: "Total number of RSA key pair rotations performed by this process",
	})

	SettingsReloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmstate_settings_reloads_total",
		Help: "Total number of settings cache refreshes from the backing file",
	})
)
