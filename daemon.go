package testd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-testd/coordinator"
	"github.com/ethereum-optimism/infra/op-testd/events"
	"github.com/ethereum-optimism/infra/op-testd/registry"
	"github.com/ethereum-optimism/infra/op-testd/runner"
	"github.com/ethereum-optimism/infra/op-testd/store"
)

const shutdownGrace = 30 * time.Second

// Daemon assembles the registry, the test engine, the coordinator and the
// HTTP surface, and owns their shutdown ordering.
type Daemon struct {
	log    log.Logger
	cfg    *Config
	reg    *registry.Registry
	coord  *coordinator.Coordinator
	server *Server

	// runCtx outlives any single request and bounds in-flight test runs.
	runCtx    context.Context
	cancelRun context.CancelFunc

	redisClient redis.UniversalClient
	metricsSrv  *http.Server

	fatal        chan error
	shutdownOnce sync.Once
}

func NewDaemon(logger log.Logger, cfg *Config) (*Daemon, error) {
	reg, err := registry.NewRegistry(registry.Config{
		Log:           logger,
		SuiteManifest: cfg.Runner.SuiteManifest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load suite manifest: %w", err)
	}

	engine, err := runner.NewGoTestRunner(runner.Config{
		Log:      logger,
		Registry: reg,
		WorkDir:  cfg.Runner.WorkDir,
		GoBinary: cfg.Runner.GoBinary,
		Package:  cfg.Runner.Package,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	var cleaner store.Cleaner = store.NoopCleaner{}
	var redisClient redis.UniversalClient
	if cfg.Redis.URL != "" {
		redisClient, err = store.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		if err := store.CheckRedisConnection(redisClient); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		cleaner = store.NewRedisCleaner(redisClient, cfg.Redis.Namespace, logger)
	} else {
		logger.Warn("no redis configured, post-run data cleanup is disabled")
	}

	coord, err := coordinator.New(coordinator.Config{
		Log:               logger,
		Registry:          reg,
		Runner:            engine,
		Cleaner:           cleaner,
		HeartbeatInterval: time.Duration(cfg.Stream.HeartbeatInterval),
	}, nil, nil)
	if err != nil {
		return nil, err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	d := &Daemon{
		log:         logger,
		cfg:         cfg,
		reg:         reg,
		coord:       coord,
		runCtx:      runCtx,
		cancelRun:   cancelRun,
		redisClient: redisClient,
		fatal:       make(chan error, 2),
	}
	d.server = NewServer(logger, cfg.Server, cfg.Version, reg, coord, runCtx)
	return d, nil
}

// Start binds the API listener and, if enabled, the metrics listener.
// Serving happens in the background; later failures surface on Fatal.
func (d *Daemon) Start() error {
	d.log.Info("daemon starting", "suites", d.reg.TopLevelCount())

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("failed to bind api listener: %w", err)
	}
	go func() {
		if err := d.server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.fatal <- fmt.Errorf("api server failed: %w", err)
		}
	}()

	if d.cfg.Metrics.Enabled {
		addr := net.JoinHostPort(d.cfg.Metrics.Host, strconv.Itoa(d.cfg.Metrics.Port))
		hdlr := http.NewServeMux()
		hdlr.Handle("/metrics", promhttp.Handler())
		d.metricsSrv = &http.Server{Addr: addr, Handler: hdlr}
		d.log.Info("starting metrics server", "addr", addr)
		go func() {
			if err := d.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.fatal <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}
	return nil
}

// Fatal delivers unrecoverable listener errors.
func (d *Daemon) Fatal() <-chan error {
	return d.fatal
}

// Coordinator exposes the run coordinator for one-shot invocation.
func (d *Daemon) Coordinator() *coordinator.Coordinator {
	return d.coord
}

// RunContext is the context bounding test execution.
func (d *Daemon) RunContext() context.Context {
	return d.runCtx
}

// Shutdown drains the daemon exactly once. New runs are rejected first,
// connected clients get a shutdown event, then the listeners drain; an
// in-flight run is given shutdownGrace to finish before its context is cut.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.log.Info("daemon shutting down")
		d.coord.State().BeginShutdown()
		d.coord.Connections().BroadcastAndClear(events.Shutdown("daemon is shutting down"))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		var g errgroup.Group
		g.Go(func() error {
			return d.server.Shutdown(ctx)
		})
		if d.metricsSrv != nil {
			g.Go(func() error {
				return d.metricsSrv.Shutdown(ctx)
			})
		}
		if err := g.Wait(); err != nil {
			d.log.Error("listener shutdown failed", "err", err)
		}

		// Anything still executing after the drain window is abandoned.
		d.cancelRun()

		if d.redisClient != nil {
			if err := d.redisClient.Close(); err != nil {
				d.log.Error("redis close failed", "err", err)
			}
		}
		d.log.Info("daemon stopped")
	})
}
