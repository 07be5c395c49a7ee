package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stellarops/stellarops/internal/actor"
	"github.com/stellarops/stellarops/internal/alarms"
	"github.com/stellarops/stellarops/internal/breaker"
	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/executor"
	"github.com/stellarops/stellarops/internal/health"
	"github.com/stellarops/stellarops/internal/httpapi"
	"github.com/stellarops/stellarops/internal/infra/bus"
	"github.com/stellarops/stellarops/internal/infra/metrics"
	"github.com/stellarops/stellarops/internal/infra/selfheal"
	"github.com/stellarops/stellarops/internal/orbital"
	"github.com/stellarops/stellarops/internal/queue"
	"github.com/stellarops/stellarops/internal/registry"
	"github.com/stellarops/stellarops/internal/store/sqlitestore"
	"github.com/stellarops/stellarops/internal/telemetry/aggregate"
	"github.com/stellarops/stellarops/internal/telemetry/ingest"
	"github.com/stellarops/stellarops/internal/ws"
)

// Daemon is the StellarOps runtime. It wires together the store, bus,
// actor registry, command queue and executor, telemetry pipeline, health
// monitor, orbital refresh client, WebSocket hub, and HTTP API into one
// running process.
type Daemon struct {
	Config Config

	Store      *sqlitestore.Store
	Bus        *bus.Bus
	Registry   *registry.Registry
	Queue      *queue.Queue
	Executor   *executor.Executor
	Alarms     *alarms.Manager
	Ingester   *ingest.Ingester
	Aggregator *aggregate.Aggregator
	Health     *health.Monitor
	Orbital    *orbital.Client
	Breakers   *breaker.Registry
	AutoHealer *AutoHealer
	Hub        *ws.Hub
	API        *httpapi.Server

	cancel context.CancelFunc
}

// New loads the on-disk/environment configuration and wires a Daemon.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires a Daemon from an explicit configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	dbDir := cfg.Database.Dir
	if dbDir == "" {
		dbDir = StellarOpsHome()
	}
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	store, err := sqlitestore.Open(dbDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{Config: cfg, Store: store}

	d.Bus = bus.New()

	d.Breakers = breaker.NewRegistry()
	d.Breakers.OnEvent(wireBreakerMetrics)
	for name, bc := range cfg.Breakers {
		d.Breakers.Configure(name, breakerConfigFrom(bc))
	}

	d.Alarms = alarms.New(store, d.Bus, alarms.DefaultConfig())

	regCfg := registry.DefaultConfig()
	d.Registry = registry.New(context.Background(), regCfg,
		func(ctx context.Context, sat domain.Satellite) domain.ActorHandle {
			return actor.Start(ctx, sat)
		},
		func(h domain.ActorHandle) <-chan struct{} {
			return h.(*actor.Actor).Done()
		},
		d.Alarms,
	)

	queueCfg := queue.Config{Tick: durationMS(cfg.Queue.TickIntervalMS, 5*time.Second)}
	d.Queue = queue.New(store, d.Bus, queueCfg)

	stations := newStaticStationProvider(cfg)
	d.Executor = executor.New(d.Queue, d.Registry, stations)

	aggCfg := aggregate.Config{
		PersistInterval: durationMS(cfg.Telemetry.AggregatorPersistIntervalMS, 60*time.Second),
		CleanupInterval: durationMS(cfg.Telemetry.AggregatorCleanupIntervalMS, 5*time.Minute),
	}
	d.Aggregator = aggregate.New(store, d.Bus, aggCfg)

	ingestCfg := ingest.Config{
		RetentionDays: int(cfg.Telemetry.RetentionDays),
		Thresholds:    domain.DefaultThresholds(),
	}
	d.Ingester = ingest.New(store, d.Registry, d.Aggregator, d.Alarms, ingestCfg)

	healthCfg := health.Config{
		CheckInterval:    durationMS(cfg.Health.CheckIntervalMS, 30*time.Second),
		HeartbeatTimeout: durationMS(cfg.Health.HeartbeatTimeoutMS, 120*time.Second),
		Thresholds:       domain.DefaultThresholds(),
	}
	d.Health = health.New(d.Registry, d.Aggregator, d.Alarms, d.Bus, healthCfg)
	d.Ingester.WithHealthNotifier(d.Health)

	orbCfg := orbital.Config{
		BaseURL:        cfg.Orbital.ServiceURL,
		RequestTimeout: 5 * time.Second,
		RefreshEvery:   durationMS(cfg.Orbital.RefreshEveryMS, 6*time.Hour),
	}
	d.Orbital = orbital.New(orbCfg, store, d.Breakers.Get(orbital.BreakerName))

	d.AutoHealer = NewAutoHealer(d.Queue, d.Health, d.Alarms, d.Bus, selfheal.DefaultConfig())

	d.Hub = ws.New(d.Bus, store, d.Queue, d.Alarms, d.Registry, anonymousAuthenticator, ws.DefaultConfig())

	d.API = httpapi.NewServer(store, d.Queue, d.Alarms, d.Hub)
	d.API.SetTelemetrySink(d.Ingester)
	d.API.SetIncidentSink(d.AutoHealer.Mesh())
	if cfg.API.Metrics {
		d.API.EnableMetrics()
	}

	return d, nil
}

// Serve starts the background workers and the HTTP server, blocking until
// the process is asked to shut down.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Queue.Start(ctx)
	go d.Alarms.Start(ctx)
	go d.Aggregator.Start(ctx)
	go d.Health.Start(ctx)
	go d.Orbital.RunPeriodic(ctx, d.Registry.ListIDs)
	go d.runTelemetryCleanup(ctx)
	go d.AutoHealer.Run(ctx)

	dispatches := d.Bus.Subscribe(queue.DispatchTopic)
	go func() {
		for {
			select {
			case <-ctx.Done():
				dispatches.Unsubscribe()
				return
			case msg, ok := <-dispatches.C():
				if !ok {
					return
				}
				ev, ok := msg.(queue.DispatchEvent)
				if !ok {
					continue
				}
				go d.Executor.Handle(ev)
			}
		}
	}()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.API.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Health.Stop()
		d.Aggregator.Stop()
		d.Alarms.Stop()
		d.Queue.Stop()
		d.Orbital.Stop()
		d.Registry.Shutdown()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.Store.Close()
	}()

	log.Printf("[daemon] stellarops serving on http://%s", addr)
	if d.Orbital.Enabled() {
		log.Printf("[daemon] orbital service refresh enabled (%s)", d.Config.Orbital.ServiceURL)
	}
	if d.Config.API.Metrics {
		log.Printf("[daemon] metrics: http://%s/metrics", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources without waiting for a signal.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Registry != nil {
		d.Registry.Shutdown()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
}

// runTelemetryCleanup sweeps telemetry past retention on the aggregator's
// cleanup cadence, since the ingester exposes the operation but runs no
// loop of its own.
func (d *Daemon) runTelemetryCleanup(ctx context.Context) {
	interval := durationMS(d.Config.Telemetry.AggregatorCleanupIntervalMS, 5*time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := d.Ingester.CleanupOldTelemetry(ctx); err != nil {
				log.Printf("[daemon] telemetry cleanup: %v", err)
			} else if n > 0 {
				log.Printf("[daemon] telemetry cleanup: deleted %d events", n)
			}
		}
	}
}

// anonymousAuthenticator allows every WebSocket join; spec.md §1 scopes
// real authentication out, so every session acts as itself.
func anonymousAuthenticator(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	return token, true
}

func durationMS(ms int64, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func breakerConfigFrom(bc BreakerConfig) breaker.Config {
	if bc.WindowFailures == 0 && bc.WindowMS == 0 {
		return breaker.DefaultConfig()
	}
	fallback := breaker.FallbackError
	switch bc.Fallback {
	case "skip":
		fallback = breaker.FallbackSkip
	case "cached_or_error":
		fallback = breaker.FallbackCachedOrError
	}
	return breaker.Config{
		WindowFailures: bc.WindowFailures,
		Window:         durationMS(bc.WindowMS, 10*time.Second),
		Refresh:        durationMS(bc.RefreshMS, 30*time.Second),
		Fallback:       fallback,
	}
}

// wireBreakerMetrics updates the circuit-breaker gauges/counters from
// internal/breaker's event hook, the composition root being the one place
// that's allowed to know about every named breaker in the process.
func wireBreakerMetrics(ev breaker.Event) {
	metrics.CircuitState.WithLabelValues(ev.Breaker).Set(float64(ev.State))
	if ev.Kind == "melt" {
		metrics.CircuitTrips.WithLabelValues(ev.Breaker).Inc()
	}
}
