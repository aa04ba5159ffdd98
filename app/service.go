// Package app assembles the coordinator service from its parts.
package app

import (
	"context"
	"fmt"

	"github.com/medbox-iot/medbox/config"
	"github.com/medbox-iot/medbox/core/dispense"
	"github.com/medbox-iot/medbox/core/events"
	"github.com/medbox-iot/medbox/core/history"
	corelivestate "github.com/medbox-iot/medbox/core/livestate"
	coremetrics "github.com/medbox-iot/medbox/core/metrics"
	coremqtt "github.com/medbox-iot/medbox/core/mqtt"
	"github.com/medbox-iot/medbox/core/planner"
	"github.com/medbox-iot/medbox/core/telemetry"
	"github.com/medbox-iot/medbox/infra/livestate"
	"github.com/medbox-iot/medbox/infra/logger"
	"github.com/medbox-iot/medbox/infra/metrics"
	"github.com/medbox-iot/medbox/infra/mqtt"
	"github.com/medbox-iot/medbox/infra/store"
	"github.com/medbox-iot/medbox/internal/eventbus"
)

// Service orchestrates the MQTT connector, the dispense pipeline, the
// plan scheduler and the telemetry monitors.
type Service struct {
	Coordinator *dispense.Coordinator
	Dispenser   *dispense.Dispenser
	Scheduler   *planner.Scheduler
	Bridge      *corelivestate.Bridge
	Store       *store.Store
	Cache       *livestate.CacheStore

	connector *mqtt.PahoConnector
	bus       eventbus.EventBus
	sink      coremetrics.Sink
	log       logger.Logger

	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	db, err := store.Open(cfg.Store, logger.New("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	connector, err := mqtt.NewPahoConnector(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt connector: %w", err)
	}

	sink, err := buildSink(cfg, db)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	cache := livestate.NewCacheStore()
	prefix := cfg.MQTT.TopicPrefix

	coordinator, err := dispense.NewCoordinator(connector, prefix, cfg.Dispense.AckTimeout(), logger.New("coordinator"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	recorder := history.NewRecorder(db, logger.New("history"))
	dispenser, err := dispense.NewDispenser(coordinator, recorder, bus, logger.New("dispenser"))
	if err != nil {
		return nil, fmt.Errorf("dispenser: %w", err)
	}

	connector.AddHandler(telemetry.NewLevelMonitor(cache, prefix, bus, logger.New("levels")).Handle)
	connector.AddHandler(telemetry.NewStatusMonitor(cache, prefix, bus, logger.New("status")).Handle)
	connector.AddHandler(eventLogger(prefix, logger.New("box-events")))

	scheduler, err := planner.New(db, dispenser, cfg.Scheduler.Interval(), logger.New("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	bridge, err := corelivestate.NewBridge(cache, dispenser, cfg.Dispense.DefaultBox, cfg.Bridge.Interval(), logger.New("bridge"))
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	return &Service{
		Coordinator: coordinator,
		Dispenser:   dispenser,
		Scheduler:   scheduler,
		Bridge:      bridge,
		Store:       db,
		Cache:       cache,
		connector:   connector,
		bus:         bus,
		sink:        sink,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
	}, nil
}

// eventLogger surfaces device event frames. The box publishes free-form
// diagnostics there; nothing acts on them yet.
func eventLogger(prefix string, log logger.Logger) coremqtt.Handler {
	return func(topic string, payload []byte) {
		t, err := coremqtt.ParseTopic(topic)
		if err != nil || t.Prefix != prefix || t.Kind != coremqtt.KindEvents {
			return
		}
		log.Debugf("box %s event: %s", t.BoxID, payload)
	}
}

func buildSink(cfg *config.Config, db *store.Store) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		mags, err := db.Magazines(context.Background())
		if err != nil {
			return nil, fmt.Errorf("load magazines: %w", err)
		}
		sink, err := metrics.NewPromSink(mags)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return metrics.NewMultiSink(sinks...), nil
	}
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Scheduler.Run(ctx)
	go s.Bridge.Run(ctx)
	go s.consumeEvents(ctx)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// consumeEvents forwards bus events to the metrics sink.
func (s *Service) consumeEvents(ctx context.Context) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.record(ev)
		}
	}
}

func (s *Service) record(ev eventbus.Event) {
	var err error
	switch e := ev.(type) {
	case events.DispenseEvent:
		err = s.sink.RecordDispense(e)
	case events.StatusEvent:
		if rec, ok := s.sink.(coremetrics.StatusRecorder); ok {
			err = rec.RecordStatus(e)
		}
	case events.LevelEvent:
		if rec, ok := s.sink.(coremetrics.LevelRecorder); ok {
			err = rec.RecordLevels(e)
		}
	}
	if err != nil {
		s.log.Errorf("metrics record: %v", err)
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.connector.Disconnect()
	s.bus.Close()
	return s.Store.Close()
}
