package main

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/krisalay/dashcache/ledger"
	"github.com/spf13/cobra"
)

var (
	benchKeys       int
	benchGoroutines int
	benchOps        int
	benchEntries    int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load the cache store and compare incremental against full balance runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStack()
		if err != nil {
			return err
		}
		defer s.Close()

		benchStore(s)
		if err := benchLedger(s); err != nil {
			return err
		}
		return s.printMetrics()
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchKeys, "keys", 10000, "keys to preload")
	benchCmd.Flags().IntVar(&benchGoroutines, "goroutines", 200, "concurrent readers")
	benchCmd.Flags().IntVar(&benchOps, "ops", 5000, "reads per goroutine")
	benchCmd.Flags().IntVar(&benchEntries, "entries", 20000, "ledger entries")
}

func benchStore(s *stack) {
	c := s.cache

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("Shards       :", s.cfg.Shards)
	fmt.Println("Preload Keys :", benchKeys)
	fmt.Println("Goroutines   :", benchGoroutines)
	fmt.Println("Ops/Goroutine:", benchOps)

	keys := make([]string, benchKeys)
	for i := range keys {
		keys[i] = "members:id=" + strconv.Itoa(i)
		c.Set(keys[i], i)
	}

	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(benchGoroutines)
	for i := 0; i < benchGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < benchOps; j++ {
				c.Get(keys[(id+j)%len(keys)])
			}
		}(i)
	}
	wg.Wait()

	duration := time.Since(start)
	totalOps := benchGoroutines * benchOps

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
}

func benchLedger(s *stack) error {
	fmt.Println("\n================ BALANCE ENGINE =================")

	page := make([]ledger.Entry, benchEntries)
	for i := range page {
		kind := ledger.Income
		if i%3 == 0 {
			kind = ledger.Expense
		}
		page[i] = ledger.Entry{ID: "tx-" + strconv.Itoa(benchEntries-i), Kind: kind, Amount: float64(i%97) + 0.25}
	}

	start := time.Now()
	if _, err := ledger.Compute(page, 1000); err != nil {
		return err
	}
	full := time.Since(start)

	if _, err := s.ledger.Compute(page, 1000, "bench"); err != nil {
		return err
	}
	grown := append([]ledger.Entry{{ID: "tx-new", Kind: ledger.Income, Amount: 5}}, page...)

	start = time.Now()
	res, err := s.ledger.ComputeResult(grown, 1000, "bench")
	if err != nil {
		return err
	}
	incremental := time.Since(start)

	fmt.Printf("Entries          : %d\n", benchEntries)
	fmt.Printf("Full run         : %v\n", full)
	fmt.Printf("Extended run     : %v (path=%s, recomputed=%d)\n", incremental, res.Path, res.Recomputed)
	return nil
}
