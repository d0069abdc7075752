package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krisalay/dashcache/ledger"
	"github.com/krisalay/dashcache/loader"
	"github.com/krisalay/dashcache/types"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through cache, loader and balance engine behavior",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStack()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := runDemo(cmd.Context(), s); err != nil {
			return err
		}
		return s.printMetrics()
	},
}

// remote pretends to be the document store.
func remote(name string, value any, calls *atomic.Int32) types.LoadFunc {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		fmt.Printf("STORE  → fetch %s\n", name)
		time.Sleep(20 * time.Millisecond)
		return value, nil
	}
}

func runDemo(ctx context.Context, s *stack) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c := s.cache

	fmt.Println("\n==================== SYSTEM BOOT ====================")
	fmt.Println("SHARDS      :", s.cfg.Shards)
	fmt.Println("DEFAULT TTL :", s.cfg.DefaultTTL)
	for ns, ttl := range s.cfg.Namespaces {
		fmt.Printf("TTL %-9s: %s\n", ns, ttl)
	}
	for _, p := range loader.Priorities() {
		fmt.Printf("TIER %-8s: %s\n", p, s.cfg.TierDelays[p.String()])
	}

	// ====================================================
	fmt.Println("\n==================== 1) CACHE MISS / HIT ====================")
	var calls atomic.Int32
	v, err := c.FetchWithCache(ctx, "stats", 0, remote("stats", 42, &calls))
	if err != nil {
		return err
	}
	fmt.Println("CACHE  → stats =", v)
	v, _ = c.FetchWithCache(ctx, "stats", 0, remote("stats", 42, &calls))
	fmt.Println("CACHE  → stats =", v, "(producer calls:", calls.Load(), ")")

	// ====================================================
	fmt.Println("\n==================== 2) TTL OVERRIDE ====================")
	c.Set("events:upcoming", []string{"agm", "picnic"})
	time.Sleep(60 * time.Millisecond)
	_, ok := c.GetWithTTL("events:upcoming", 50*time.Millisecond)
	fmt.Println("CACHE  → events:upcoming fresh under 50ms window:", ok)

	// ====================================================
	fmt.Println("\n==================== 3) SINGLEFLIGHT ====================")
	calls.Store(0)
	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			val, _ := c.FetchWithCache(ctx, "members:page=1", 0, remote("members:page=1", 120, &calls))
			fmt.Printf("GOROUTINE-%d → members:page=1 = %v\n", id, val)
		}(i)
	}
	wg.Wait()
	fmt.Println("STORE  → producer calls:", calls.Load())

	// ====================================================
	fmt.Println("\n==================== 4) INVALIDATE NAMESPACE ====================")
	c.Set("members:page=2", 120)
	n := c.InvalidateMatching(types.MatchNamespace("members"))
	fmt.Println("CACHE  → removed", n, "members entries, remaining keys:", c.Keys(nil))

	// ====================================================
	fmt.Println("\n==================== 5) PRIORITY LOADER ====================")
	start := time.Now()
	stamp := func(name string, value any) types.LoadFunc {
		return func(ctx context.Context) (any, error) {
			fmt.Printf("LOADER → %-9s requested at +%s\n", name, time.Since(start).Round(10*time.Millisecond))
			return value, nil
		}
	}
	low := s.loader.Schedule(loader.Low, "birthdays", 0, stamp("birthdays", []string{"ann"}))
	crit := s.loader.Schedule(loader.Critical, "transactions:recent", 0, stamp("recent", 7))
	failing := s.loader.Schedule(loader.High, "events:stats", 0, func(context.Context) (any, error) {
		return nil, errors.New("quota exceeded")
	})
	for _, r := range []*loader.Request{crit, failing, low} {
		val, err := r.Wait(ctx)
		fmt.Printf("LOADER → %-20s value=%v err=%v state=%s\n", r.Key, val, err, s.loader.Status(r.Key).Status)
	}

	// ====================================================
	fmt.Println("\n==================== 6) REFRESH ====================")
	val, _ := s.loader.RefreshWith("birthdays", stamp("birthdays", []string{"ann", "bob"})).Wait(ctx)
	cached, _ := c.Get("birthdays")
	fmt.Println("LOADER → refreshed birthdays =", val, "cached =", cached)

	// ====================================================
	fmt.Println("\n==================== 7) RUNNING BALANCE ====================")
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = ulid.Make().String()
	}
	page := []ledger.Entry{
		{ID: ids[1], Kind: ledger.Expense, Amount: 25},
		{ID: ids[2], Kind: ledger.Income, Amount: 100},
		{ID: ulid.Make().String(), Kind: ledger.Income, Amount: 40, Virtual: true},
	}
	res, err := s.ledger.ComputeResult(page, 50, "account:main")
	if err != nil {
		return err
	}
	printBalances(page, res)

	page = append([]ledger.Entry{{ID: ids[0], Kind: ledger.Income, Amount: 12.5}}, page...)
	res, err = s.ledger.ComputeResult(page, 50, "account:main")
	if err != nil {
		return err
	}
	printBalances(page, res)

	_, err = s.ledger.Compute([]ledger.Entry{{ID: ids[3], Kind: ledger.Income, Amount: -1}}, 0, "")
	fmt.Println("LEDGER → negative amount rejected:", err)

	// ====================================================
	fmt.Println("\n==================== 8) SESSION END ====================")
	s.session.EndSession()
	fmt.Println("CACHE  → entries after logout:", c.Len())
	return nil
}

func printBalances(page []ledger.Entry, res ledger.Result) {
	fmt.Printf("LEDGER → path=%s recomputed=%d\n", res.Path, res.Recomputed)
	for _, e := range page {
		if b, ok := res.Balances.Get(e.ID); ok {
			fmt.Printf("  %s %-7s %8.2f → %s\n", e.ID, e.Kind, e.Amount, b.StringFixed(2))
		} else {
			fmt.Printf("  %s %-7s %8.2f (part, not accumulated)\n", e.ID, e.Kind, e.Amount)
		}
	}
}
