// Package bench measures shared-ring throughput under lock contention. It
// runs against scratch regions so a live pool is never disturbed.
package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shmstate-org/shmstate/pkg/logstream"
	"github.com/shmstate-org/shmstate/pkg/shm"
	"github.com/shmstate-org/shmstate/pkg/store"
	"github.com/shmstate-org/shmstate/util"
)

const lockTimeout = 10 * time.Second

type BenchmarkRunner struct {
	Region            string
	Capacity          int
	NumWriters        int
	NumReaders        int
	MessagesPerWriter int
	ReadBatch         int
}

func NewBenchmarkRunner(region string, capacity, writers, readers, messages, readBatch int) *BenchmarkRunner {
	return &BenchmarkRunner{
		Region:            region,
		Capacity:          capacity,
		NumWriters:        writers,
		NumReaders:        readers,
		MessagesPerWriter: messages,
		ReadBatch:         readBatch,
	}
}

func (b *BenchmarkRunner) Run() error {
	ringName := b.Region
	counterName := b.Region + "_counter"

	ringSeg, _, err := shm.OpenOrCreate(ringName, store.RingSize(logstream.Schema, b.Capacity), true)
	if err != nil {
		return fmt.Errorf("open bench ring: %w", err)
	}
	if ringSeg == nil {
		return fmt.Errorf("bench ring %q is not available", ringName)
	}
	defer ringSeg.Close()

	counterSeg, _, err := shm.OpenOrCreate(counterName, store.IntScalarSize, true)
	if err != nil {
		return fmt.Errorf("open bench counter: %w", err)
	}
	if counterSeg == nil {
		return fmt.Errorf("bench counter %q is not available", counterName)
	}
	defer counterSeg.Close()

	stream := logstream.NewStream(
		store.NewRing(ringSeg, shm.NewFileLock(ringName, lockTimeout), logstream.Schema, b.Capacity),
		store.NewCounter(counterSeg, shm.NewFileLock(counterName, lockTimeout), logstream.CounterMax),
	)

	totalMessages := b.NumWriters * b.MessagesPerWriter
	start := time.Now()

	var mu sync.Mutex
	var errs []error

	var writers sync.WaitGroup
	for i := 0; i < b.NumWriters; i++ {
		writers.Add(1)
		go func(wid int) {
			defer writers.Done()
			if err := b.runWriter(stream, wid); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("writer %d: %w", wid, err))
				mu.Unlock()
			}
		}(i)
	}

	// Readers hammer ReadLast until the writers finish.
	stop := make(chan struct{})
	var readers sync.WaitGroup
	var reads int64
	for i := 0; i < b.NumReaders; i++ {
		readers.Add(1)
		go func(rid int) {
			defer readers.Done()
			n := b.runReader(stream, rid, stop)
			mu.Lock()
			reads += n
			mu.Unlock()
		}(i)
	}

	writers.Wait()
	close(stop)
	readers.Wait()

	duration := time.Since(start)
	throughput := float64(totalMessages) / duration.Seconds()

	fmt.Printf("\n🧪 BENCHMARK RESULT [shared ring] 🧪\n")
	fmt.Printf("-------------------------------------\n")
	fmt.Printf(" Writers       : %d\n", b.NumWriters)
	fmt.Printf(" Readers       : %d\n", b.NumReaders)
	fmt.Printf(" Ring capacity : %d\n", b.Capacity)
	fmt.Printf(" Total appends : %d\n", totalMessages)
	fmt.Printf(" Read batches  : %d\n", reads)
	fmt.Printf(" Duration      : %v\n", duration)
	fmt.Printf(" Throughput    : %.2f appends/sec\n", throughput)
	fmt.Printf("-------------------------------------\n")

	if len(errs) > 0 {
		return fmt.Errorf("%d writer(s) failed, first error: %w", len(errs), errs[0])
	}
	return nil
}

func (b *BenchmarkRunner) runWriter(stream *logstream.Stream, wid int) error {
	ctx := logstream.WithSessionID(context.Background(), logstream.NewSessionID())
	for i := 0; i < b.MessagesPerWriter; i++ {
		err := stream.Append(ctx, logstream.Entry{
			Module:   "bench",
			Function: "runWriter",
			Level:    "INF",
			Message:  fmt.Sprintf("bench-msg-W%d-Msg%d", wid, i),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *BenchmarkRunner) runReader(stream *logstream.Stream, rid int, stop <-chan struct{}) int64 {
	var batches int64
	for {
		select {
		case <-stop:
			return batches
		default:
		}
		if _, err := stream.ReadLast(b.ReadBatch); err != nil {
			util.Warn("reader %d: %v", rid, err)
			return batches
		}
		batches++
	}
}
