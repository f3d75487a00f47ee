package util_test

import (
	"sync"
	"testing"

	"github.com/shmstate-org/shmstate/util"
)

func TestSetLevelFiltersEmit(t *testing.T) {
	defer util.SetLevel(util.LogLevelInfo)
	defer util.SetEmitter(nil)

	var mu sync.Mutex
	var got []string
	util.SetEmitter(func(level util.LogLevel, message string) {
		mu.Lock()
		got = append(got, message)
		mu.Unlock()
	})

	util.SetLevel(util.LogLevelWarn)
	util.Info("filtered out")
	util.Warn("kept %d", 1)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "kept 1" {
		t.Fatalf("emitted lines = %v; want just %q", got, "kept 1")
	}
}

// Loggers run on every goroutine, so installing and removing the emitter
// while other goroutines log must be safe under the race detector.
func TestConcurrentEmitterSwap(t *testing.T) {
	defer util.SetEmitter(nil)

	var count sync.WaitGroup
	stop := make(chan struct{})

	count.Add(2)
	go func() {
		defer count.Done()
		for i := 0; i < 200; i++ {
			util.SetEmitter(func(level util.LogLevel, message string) {})
			util.SetEmitter(nil)
			util.SetLevel(util.LogLevelInfo)
		}
		close(stop)
	}()
	go func() {
		defer count.Done()
		for {
			select {
			case <-stop:
				return
			default:
				util.Info("swap check")
			}
		}
	}()
	count.Wait()
}
