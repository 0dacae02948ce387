package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/troian/healthcheck"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/VolantMQ/alarmping/alarm"
	"github.com/VolantMQ/alarmping/configuration"
	"github.com/VolantMQ/alarmping/metrics"
	"github.com/VolantMQ/alarmping/persistence"
	"github.com/VolantMQ/alarmping/pinger"
	"github.com/VolantMQ/alarmping/transport"
	"github.com/VolantMQ/alarmping/wakelock"
)

// nolint: golint
var (
	ErrLeaseStuck  = errors.New("wake lease held too long")
	ErrNotStarted  = errors.New("keepalive not started")
	ErrInterrupted = errors.New("interrupted")
)

const maxReconnectDelay = 30 * time.Second

type httpServer struct {
	mux    *http.ServeMux
	server *http.Server
}

type appContext struct {
	config   *configuration.Config
	http     *httpServer
	health   healthcheck.Handler
	metrics  metrics.IFace
	registry *prometheus.Registry
	persist  persistence.Provider
	timers   alarm.Service
	locks    wakelock.Provider
	pinger   *pinger.Alarm

	wsLock sync.Mutex
	ws     *transport.WS
}

func newHTTPServer(port string) *httpServer {
	srv := &httpServer{
		mux: http.NewServeMux(),
	}

	srv.server = &http.Server{
		Addr:    ":" + port,
		Handler: srv.mux,
	}

	return srv
}

func logBuildInfo() {
	logger.Info("starting service...")
	logger.Infof("\n\tbuild info:\n"+
		"\t\tcommit : %s\n"+
		"\t\tbranch : %s\n"+
		"\t\tstate  : %s\n"+
		"\t\tsummary: %s\n"+
		"\t\tdate   : %s\n"+
		"\t\tversion: %s\n", GitCommit, GitBranch, GitState, GitSummary, BuildDate, Version)
}

func loadConfig() (*configuration.Config, error) {
	config, err := configuration.ReadConfig(configFile)
	if err != nil {
		return nil, err
	}

	if err = configuration.ConfigureLoggers(&config.System.Log); err != nil {
		return nil, err
	}

	logger = configuration.GetHumanLogger()

	return config, nil
}

func loadPersistence(c configuration.AuditConfig) (persistence.Provider, persistence.Audit, error) {
	pc, err := persistence.FromConfig(c)
	if err != nil {
		return nil, nil, err
	}

	p, err := persistence.New(pc)
	if err != nil {
		return nil, nil, err
	}

	a, err := p.Audit()
	if err != nil {
		return nil, nil, multierr.Append(err, p.Shutdown())
	}

	return p, a, nil
}

func newAppContext(config *configuration.Config, registry *prometheus.Registry) (*appContext, error) {
	ctx := &appContext{
		config:   config,
		http:     newHTTPServer(config.System.HTTP.DefaultPort),
		health:   healthcheck.NewHandler(),
		metrics:  metrics.New(),
		registry: registry,
	}

	var err error
	var audit persistence.Audit

	logger.Info("loading persistence")
	if ctx.persist, audit, err = loadPersistence(config.Audit); err != nil {
		return nil, err
	}
	logger.Infof("\tusing audit backend [%s]", config.Audit.Backend)

	logger.Info("configuring timers")
	if ctx.timers, err = alarm.NewService(config.Alarm.Backend, configuration.GetLogger().Named("alarm")); err != nil {
		return nil, multierr.Append(err, ctx.persist.Shutdown())
	}
	logger.Infof("\texact wake: %t, idle bypass: %t, mode: %s",
		ctx.timers.SupportsExactWake(), ctx.timers.SupportsIdleBypass(), alarm.BestMode(ctx.timers))

	logger.Info("configuring wake locks")
	if ctx.locks, err = wakelock.NewProvider(config.WakeLock.Backend); err != nil {
		return nil, multierr.Append(err, ctx.persist.Shutdown())
	}

	ctx.pinger, err = pinger.New(pinger.Config{
		Timers:    ctx.timers,
		WakeLocks: ctx.locks,
		Observer: wakelock.Observers(
			ctx.metrics.WakeLocks(),
			persistence.NewObserver(audit, configuration.GetLogger().Named("persistence")),
		),
		Metrics: ctx.metrics,
		Log:     configuration.GetLogger().Named("pinger"),
	})
	if err != nil {
		return nil, multierr.Combine(err, ctx.locks.Close(), ctx.persist.Shutdown())
	}

	if err = ctx.registry.Register(ctx.metrics); err != nil {
		return nil, ctx.abort(err)
	}

	_ = ctx.health.AddLivenessCheck("wakelock", ctx.wakeLockCheck)
	_ = ctx.health.AddReadinessCheck("pinger", ctx.pingerCheck)

	ctx.http.mux.Handle("/live", ctx.health)
	ctx.http.mux.Handle("/ready", ctx.health)
	ctx.http.mux.Handle("/metrics", promhttp.HandlerFor(ctx.registry, promhttp.HandlerOpts{}))

	return ctx, nil
}

// abort release everything acquired by newAppContext
func (ctx *appContext) abort(err error) error {
	ctx.pinger.Close()

	return multierr.Combine(err, ctx.locks.Close(), ctx.persist.Shutdown())
}

// wakeLockCheck fails if some lease outlived keepalive round trip
func (ctx *appContext) wakeLockCheck() error {
	g := ctx.pinger.Guard()
	if g == nil {
		return nil
	}

	c := &ctx.config.Client
	limit := 2*c.KeepAlivePeriod() + c.PingTimeoutPeriod()

	if held := g.OldestHeld(); held > limit {
		return ErrLeaseStuck
	}

	return nil
}

func (ctx *appContext) pingerCheck() error {
	if !ctx.pinger.State().Started {
		return ErrNotStarted
	}

	return nil
}

func (ctx *appContext) dial(c context.Context) (*transport.WS, error) {
	cl := &ctx.config.Client

	ws, err := transport.Dial(c, transport.Config{
		URL:         cl.URL,
		ClientID:    cl.ID,
		KeepAlive:   cl.KeepAlivePeriod(),
		PingTimeout: cl.PingTimeoutPeriod(),
		Scheduler:   ctx.pinger,
		Log:         configuration.GetLogger().Named("transport"),
	})
	if err != nil {
		return nil, err
	}

	if err = ctx.pinger.Init(ws); err != nil {
		return nil, multierr.Append(err, ws.Close())
	}

	if err = ctx.pinger.Start(); err != nil {
		return nil, multierr.Append(err, ws.Close())
	}

	ctx.wsLock.Lock()
	ctx.ws = ws
	ctx.wsLock.Unlock()

	return ws, nil
}

func (ctx *appContext) disconnect() error {
	ctx.pinger.Stop()

	ctx.wsLock.Lock()
	ws := ctx.ws
	ctx.ws = nil
	ctx.wsLock.Unlock()

	if ws == nil {
		return nil
	}

	return ws.Close()
}

// keepConnected dial broker and redial on connection loss if reconnect enabled.
// Returns once signal received
func (ctx *appContext) keepConnected(sig <-chan os.Signal) error {
	delay := time.Second

	for {
		c, cancel := context.WithCancel(context.Background())
		stop := make(chan struct{})
		watcher := make(chan bool, 1)

		go func() {
			select {
			case <-sig:
				cancel()
				watcher <- true
			case <-stop:
				watcher <- false
			}
		}()

		ws, err := ctx.dial(c)
		close(stop)
		interrupted := <-watcher
		cancel()

		if interrupted {
			return ErrInterrupted
		}

		if err != nil {
			if !ctx.config.Client.AutomaticReconnect {
				return err
			}

			logger.Warnw("connect failed", "retryIn", delay, "error", err)

			select {
			case s := <-sig:
				logger.Info("service received signal: ", s.String())
				return nil
			case <-time.After(delay):
			}

			if delay *= 2; delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}

			continue
		}

		delay = time.Second

		select {
		case s := <-sig:
			logger.Info("service received signal: ", s.String())
			return nil
		case <-ws.Done():
			logger.Warnw("connection lost", "error", ws.Err())
			_ = ctx.disconnect()

			if !ctx.config.Client.AutomaticReconnect {
				return ws.Err()
			}
		}
	}
}

func (ctx *appContext) shutdown() error {
	err := ctx.disconnect()

	ctx.pinger.Close()

	if g := ctx.pinger.Guard(); g != nil {
		if n := g.ReleaseAll(); n > 0 {
			logger.Warnf("released %d outstanding wake leases", n)
		}
	}

	return multierr.Combine(
		err,
		ctx.http.server.Shutdown(context.Background()),
		ctx.locks.Close(),
		ctx.persist.Shutdown(),
	)
}

func run(_ *cli.Context) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	defer logger.Info("service stopped")

	logBuildInfo()
	logger.Info("working directory: ", configuration.WorkDir)

	ctx, err := newAppContext(config, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Panic("http server panic", zap.Any("panic", r))
			}
		}()
		logger.Info("starting http server on " + ctx.http.server.Addr)
		_ = ctx.http.server.ListenAndServe()
		logger.Info("stopped http server on " + ctx.http.server.Addr)
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	runErr := ctx.keepConnected(ch)
	if runErr == ErrInterrupted {
		runErr = nil
	}

	return multierr.Append(runErr, ctx.shutdown())
}
