// Command weeverytrip-loadtest drives many concurrent diary API calls through
// one engine while access tokens are revoked underneath it, and reports how many
// refresh calls the backend saw.
//
// A healthy run shows refresh calls close to the number of revocations, not to
// the number of 401s.
//
//	go run ./cmd/weeverytrip-loadtest --requests 20000 --concurrency 64 --revoke-every 50ms
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	weeverytrip "github.com/NemnemForStudy/WeEveryTrip-sub000"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/internal/fakebackend"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/metrics/export/prometheus"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/middleware"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	requests       int
	concurrency    int
	revokeEvery    time.Duration
	refreshLatency time.Duration
	store          string
	redisAddr      string
	logLevel       string
	printMetrics   bool
}

func main() {
	// .env feeds the flag env sources, so it must load before parsing.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	f := &flags{}

	app := &cli.Command{
		Name:  "weeverytrip-loadtest",
		Usage: "Hammer the refresh path with concurrent requests",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "requests", Value: 20000, Usage: "API requests to send", Destination: &f.requests},
			&cli.IntFlag{Name: "concurrency", Value: 64, Usage: "concurrent workers", Destination: &f.concurrency},
			&cli.DurationFlag{Name: "revoke-every", Value: 50 * time.Millisecond, Usage: "revoke the current access token at this interval", Destination: &f.revokeEvery},
			&cli.DurationFlag{Name: "refresh-latency", Value: 5 * time.Millisecond, Usage: "artificial delay on each refresh response", Destination: &f.refreshLatency},
			&cli.StringFlag{Name: "store", Value: "memory", Usage: "token store: memory or redis", Sources: cli.EnvVars("WEEVERYTRIP_STORE"), Destination: &f.store},
			&cli.StringFlag{Name: "redis-addr", Usage: "redis address; miniredis is started when empty", Sources: cli.EnvVars("REDIS_ADDR", "WEEVERYTRIP_REDIS_ADDR"), Destination: &f.redisAddr},
			&cli.StringFlag{Name: "log-level", Value: "warn", Sources: cli.EnvVars("WEEVERYTRIP_LOG_LEVEL"), Destination: &f.logLevel},
			&cli.BoolFlag{Name: "metrics", Usage: "print engine metrics after the run", Destination: &f.printMetrics},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return run(ctx, f)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	if f.requests <= 0 || f.concurrency <= 0 {
		return errors.New("requests and concurrency must be > 0")
	}

	level, err := zerolog.ParseLevel(f.logLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	backend, err := fakebackend.New(fakebackend.Options{RefreshLatency: f.refreshLatency})
	if err != nil {
		return err
	}
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	cfg := weeverytrip.DefaultConfig()
	cfg.Refresh.BaseURL = srv.URL
	cfg.Audit.Enabled = false

	builder := weeverytrip.New().WithLogger(logger)

	switch weeverytrip.StoreBackend(f.store) {
	case weeverytrip.StoreMemory:
		cfg.Store.Backend = weeverytrip.StoreMemory
	case weeverytrip.StoreRedis:
		cfg.Store.Backend = weeverytrip.StoreRedis
		client, cleanup, err := openRedis(f.redisAddr, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		builder = builder.WithRedis(client)
	default:
		return fmt.Errorf("unsupported store %q", f.store)
	}

	engine, err := builder.WithConfig(cfg).Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	access, refreshToken, err := backend.Login("loadtest-user")
	if err != nil {
		return err
	}
	if err := engine.EstablishSession(ctx, weeverytrip.TokenPair{AccessToken: access, RefreshToken: refreshToken}); err != nil {
		return err
	}

	client := middleware.NewClient(engine, srv.Client().Transport)

	revokeCtx, stopRevoking := context.WithCancel(ctx)
	revocations := make(chan int64, 1)
	go func() {
		revocations <- revokeLoop(revokeCtx, engine.Store(), backend, f.revokeEvery)
	}()

	stats, err := runRequests(ctx, client, srv.URL+"/api/posts", f.requests, f.concurrency)
	stopRevoking()
	revoked := <-revocations
	if err != nil {
		return err
	}

	be := backend.Stats()
	fmt.Println("---- results ----")
	printStats("requests", stats)
	fmt.Printf("revocations=%d refresh_calls=%d backend_401s=%d reuse_revoked=%d session_valid=%t\n",
		revoked, be.RefreshCalls, be.Unauthorized, be.ReuseRevoked, engine.Session().IsValid())

	if f.printMetrics {
		fmt.Println("---- metrics ----")
		fmt.Print(prometheus.NewPrometheusExporter(engine).Render())
	}
	return nil
}

func openRedis(addr string, logger zerolog.Logger) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info().Str("addr", addr).Msg("using redis")
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info().Str("addr", mr.Addr()).Msg("using miniredis")
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// revokeLoop revokes whatever access token is stored at each tick and returns
// how many distinct tokens it revoked.
func revokeLoop(ctx context.Context, store tokenstore.Store, backend *fakebackend.Backend, every time.Duration) int64 {
	if every <= 0 {
		return 0
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var (
		count int64
		last  string
	)
	for {
		select {
		case <-ctx.Done():
			return count
		case <-ticker.C:
			token, ok, err := store.Get(ctx, tokenstore.KeyAccess)
			if err != nil || !ok || token == last {
				continue
			}
			backend.RevokeAccess(token)
			last = token
			count++
		}
	}
}

func runRequests(ctx context.Context, client *http.Client, url string, ops, concurrency int) (phaseStats, error) {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				i := atomic.AddInt64(&cursor, 1) - 1
				if i >= int64(ops) {
					return nil
				}
				req, err := http.NewRequestWithContext(gctx, http.MethodGet, url, nil)
				if err != nil {
					return err
				}
				t0 := time.Now()
				resp, err := client.Do(req)
				d := time.Since(t0)
				if err != nil {
					return err
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	err := g.Wait()
	return computeStats(time.Since(start), latencies, failures), err
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

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d non_2xx=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
