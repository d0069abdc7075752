package main

import (
	"fmt"

	cache "github.com/krisalay/dashcache"
	"github.com/krisalay/dashcache/config"
	"github.com/krisalay/dashcache/engine"
	"github.com/krisalay/dashcache/ledger"
	"github.com/krisalay/dashcache/loader"
	"github.com/krisalay/dashcache/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dashcache",
	Short: "Dashboard cache, priority loader and running-balance engine",
	Long: `dashcache wires the TTL cache store, the priority loader and the
incremental balance engine the way a dashboard process would, and lets
you watch them work (demo) or load them (bench).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.AddCommand(demoCmd, benchCmd)
}

// stack is one process worth of shared caches.
type stack struct {
	cfg      *config.Config
	registry *prometheus.Registry
	cache    *cache.ShardedCache
	loader   *loader.Loader
	ledger   *ledger.Engine
	session  *cache.SessionHook
}

func newStack() (*stack, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	tiers, err := cfg.Tiers()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c := cache.NewShardedCache(cfg.Shards, engine.NewCacheEngine(cfg.NamespaceTTL(), m))

	l, err := loader.NewLoader(c, tiers, m)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	balances := ledger.NewEngine(m)

	return &stack{
		cfg:      cfg,
		registry: reg,
		cache:    c,
		loader:   l,
		ledger:   balances,
		session:  cache.NewSessionHook(c, l, balances),
	}, nil
}

func (s *stack) Close() {
	s.loader.Close()
}

// printMetrics dumps every non-zero sample in the registry.
func (s *stack) printMetrics() error {
	families, err := s.registry.Gather()
	if err != nil {
		return err
	}

	fmt.Println("\n==================== METRICS ====================")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf("%s=%s ", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil && m.GetCounter().GetValue() > 0:
				fmt.Printf("%-40s %-22s %v\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetHistogram() != nil && m.GetHistogram().GetSampleCount() > 0:
				fmt.Printf("%-40s %-22s count=%d sum=%.3f\n", mf.GetName(), labels,
					m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
	return nil
}
