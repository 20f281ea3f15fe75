package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/jobdone/api/events"
	"github.com/kilianp07/jobdone/config"
	"github.com/kilianp07/jobdone/core/broker"
	"github.com/kilianp07/jobdone/core/idempotency"
	coremetrics "github.com/kilianp07/jobdone/core/metrics"
	"github.com/kilianp07/jobdone/core/store"
	_ "github.com/kilianp07/jobdone/infra/idempotency"
	"github.com/kilianp07/jobdone/infra/logger"
	_ "github.com/kilianp07/jobdone/infra/metrics"
	"github.com/kilianp07/jobdone/infra/mqtt"
	_ "github.com/kilianp07/jobdone/infra/store"
)

const shutdownTimeout = 5 * time.Second

// Service runs the broker with its MQTT bridge and HTTP surface.
type Service struct {
	Broker *broker.Broker

	store  store.EventStore
	cache  idempotency.Cache
	sink   coremetrics.Sink
	mqtt   *mqtt.Server
	http   *http.Server
	addr   string
	log    logger.Logger
	ready  chan struct{}
	mu     sync.Mutex
	listen net.Addr
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("docksets: %w", err)
	}
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	cache, err := idempotency.New(cfg.Idempotency)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("idempotency: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = cache.Close()
		_ = st.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	b, err := broker.New(broker.Options{
		Catalog:       cat,
		Store:         st,
		Idempotency:   cache,
		Metrics:       sink,
		Logger:        logger.New("broker"),
		SyncLimit:     cfg.Broker.SyncLimit,
		SessionBuffer: cfg.Broker.SessionBuffer,
	})
	if err != nil {
		_ = cache.Close()
		_ = st.Close()
		return nil, err
	}
	svc := &Service{Broker: b, store: st, cache: cache, sink: sink, log: logg, ready: make(chan struct{})}

	if cfg.MQTT.Broker != "" {
		srv, err := mqtt.NewServer(cfg.MQTT, b, logger.New("mqtt"))
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt server: %w", err)
		}
		svc.mqtt = srv
	}
	if cfg.HTTP.Enabled() {
		reg := prometheus.NewRegistry()
		svc.addr = cfg.HTTP.Addr
		svc.http = &http.Server{
			Handler: events.NewRouter(b, events.Options{
				RateLimit:  cfg.HTTP.RateLimit,
				RateWindow: cfg.HTTP.RateWindow,
				Registerer: reg,
				Gatherer:   prometheus.Gatherers{reg, prometheus.DefaultGatherer},
				Logger:     logger.New("http"),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return svc, nil
}

// Run starts the service and blocks until the context is cancelled or a
// component fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Broker.Run(ctx) })

	if s.mqtt != nil {
		if err := s.mqtt.Start(ctx); err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if s.http != nil {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("http listen: %w", err)
		}
		s.mu.Lock()
		s.listen = ln.Addr()
		s.mu.Unlock()
		s.log.Infof("http listening on %s", ln.Addr())
		g.Go(func() error {
			if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return s.http.Shutdown(shutdownCtx)
		})
	}
	close(s.ready)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Ready is closed once every component has started.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Addr returns the HTTP listen address once Ready, or nil.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listen
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.mqtt != nil {
		errs = append(errs, s.mqtt.Close())
	}
	errs = append(errs, s.Broker.Close(), s.cache.Close(), s.store.Close())
	if c, ok := s.sink.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
