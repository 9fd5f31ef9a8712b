package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mathrand "math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	portal "github.com/dppd-rp/portal"
	"github.com/dppd-rp/portal/permission"
)

type loadtestOptions struct {
	sessions    int
	concurrency int
	ops         int
	redisURL    string
}

func newLoadtestCommand() *cobra.Command {
	opts := &loadtestOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure session resolution and permission check latency",
		Long: `Seed sessions through the engine, then resolve random session cookies and
run page permission checks from concurrent workers, reporting throughput and
p50/p95/p99 latency per phase.

Without --redis-url an in-process miniredis is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), *opts)
		},
	}
	cmd.Flags().IntVar(&opts.sessions, "sessions", 10000, "number of sessions to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 50000, "operations per phase")
	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "redis url; empty starts miniredis")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("sessions, concurrency, and ops must be > 0")
	}

	var rdb *redis.Client
	if opts.redisURL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	} else {
		var err error
		rdb, err = openRedis(ctx, opts.redisURL)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "using redis from --redis-url")
	}
	defer rdb.Close()

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	cfg := portal.DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.Session.RedisPrefix = "loadtest"
	engine, err := portal.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSecret(secret).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	user := permission.Principal{
		ID:          "loadtest",
		Username:    "loadtest",
		DisplayName: "Load Test",
		Role:        permission.RoleCustom,
		Permissions: []string{permission.PermRoster},
	}

	fmt.Fprintf(out, "seeding %d sessions...\n", opts.sessions)
	startSeed := time.Now()
	tokens := make([]string, opts.sessions)
	for i := range tokens {
		issued, err := engine.CreateSession(ctx, user)
		if err != nil {
			return fmt.Errorf("seed session: %w", err)
		}
		tokens[i] = issued.Token
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runPhase(opts.ops, opts.concurrency, func(r *mathrand.Rand) bool {
		_, ok := engine.Session(ctx, tokens[r.IntN(len(tokens))])
		return ok
	})
	pages := []string{permission.PageRoster, permission.PageEvents, permission.PageWarehouse}
	authorizeStats := runPhase(opts.ops, opts.concurrency, func(r *mathrand.Rand) bool {
		engine.Authorize(ctx, &user, pages[r.IntN(len(pages))], permission.ActionView, permission.CheckOptions{})
		return true
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "resolve", resolveStats)
	printStats(out, "authorize", authorizeStats)
	return nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

// runPhase runs op ops times across workers; op reports success.
func runPhase(ops, concurrency int, op func(r *mathrand.Rand) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker uint64) {
			defer wg.Done()
			r := mathrand.New(mathrand.NewPCG(uint64(time.Now().UnixNano()), worker))
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				if !op(r) {
					failures.Add(1)
				}
				latencies[i] = time.Since(t0)
			}
		}(uint64(w))
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	slices.Sort(samples)
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 0.50),
		p95:      percentile(samples, 0.95),
		p99:      percentile(samples, 0.99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(float64(len(samples)-1) * p)
	return samples[max(0, min(idx, len(samples)-1))]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s throughput=%.0f ops/s p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures, s.total.Round(time.Millisecond), s.opsPerS,
		s.p50, s.p95, s.p99)
}
