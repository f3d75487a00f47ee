package main

import (
	"flag"
	"log"

	"github.com/shmstate-org/shmstate/pkg/bench"
)

func main() {
	region := flag.String("region", "bench", "scratch region name for the benchmark ring")
	capacity := flag.Int("capacity", 1000, "ring capacity in records")
	writers := flag.Int("writers", 8, "number of concurrent writers")
	readers := flag.Int("readers", 2, "number of concurrent readers")
	messages := flag.Int("messages", 1000, "appends per writer")
	readBatch := flag.Int("read-batch", 50, "records per ReadLast call")
	flag.Parse()

	runner := bench.NewBenchmarkRunner(*region, *capacity, *writers, *readers, *messages, *readBatch)
	if err := runner.Run(); err != nil {
		log.Fatalf("❌ Benchmark failed: %v", err)
	}
}
