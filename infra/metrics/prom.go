package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medbox-iot/medbox/core/events"
	coremetrics "github.com/medbox-iot/medbox/core/metrics"
	"github.com/medbox-iot/medbox/core/model"
)

// PromSink records dispense outcomes and box telemetry in Prometheus
// metrics.
type PromSink struct {
	dispenses *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	online    *prometheus.GaugeVec
	fill      *prometheus.GaugeVec

	magazines map[string]model.Magazine
}

// NewPromSink registers dispense metrics on the default Prometheus
// registerer. The magazines are used to translate raw sensor distances
// into fill percentages; pass nil to skip reservoir gauges.
func NewPromSink(magazines []model.Magazine) (*PromSink, error) {
	return NewPromSinkWithRegistry(magazines, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(magazines []model.Magazine, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispenses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medbox_dispense_total",
		Help: "Total number of dispense attempts",
	}, []string{"box_id", "origin", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medbox_dispense_ack_seconds",
		Help:    "Time between dispense command publish and acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"box_id"})
	online := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "medbox_box_online",
		Help: "Whether the box is currently online (1) or offline (0)",
	}, []string{"box_id"})
	fill := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "medbox_magazine_fill_percent",
		Help: "Estimated fill level of each magazine",
	}, []string{"box_id", "magazine"})

	if err := reg.Register(dispenses); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			dispenses = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(online); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			online = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fill); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fill = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	byKey := make(map[string]model.Magazine, len(magazines))
	for _, m := range magazines {
		byKey[m.SensorKey] = m
	}
	return &PromSink{
		dispenses: dispenses,
		latency:   latency,
		online:    online,
		fill:      fill,
		magazines: byKey,
	}, nil
}

// RecordDispense increments the outcome counter and observes the ack
// latency when the attempt reached the device.
func (s *PromSink) RecordDispense(ev events.DispenseEvent) error {
	s.dispenses.WithLabelValues(ev.BoxID, string(ev.Origin), string(ev.Status)).Inc()
	if ev.Latency > 0 {
		s.latency.WithLabelValues(ev.BoxID).Observe(ev.Latency.Seconds())
	}
	return nil
}

// RecordStatus sets the connectivity gauge.
func (s *PromSink) RecordStatus(ev events.StatusEvent) error {
	v := 0.0
	if ev.Online {
		v = 1
	}
	s.online.WithLabelValues(ev.BoxID).Set(v)
	return nil
}

// RecordLevels converts known sensor readings into fill percentages.
// Readings for sensors without a magazine calibration are skipped.
func (s *PromSink) RecordLevels(ev events.LevelEvent) error {
	for key, dist := range ev.Readings {
		mag, ok := s.magazines[key]
		if !ok {
			continue
		}
		s.fill.WithLabelValues(ev.BoxID, mag.Name).Set(mag.FillPercent(dist))
	}
	return nil
}

var (
	_ coremetrics.Sink           = (*PromSink)(nil)
	_ coremetrics.StatusRecorder = (*PromSink)(nil)
	_ coremetrics.LevelRecorder  = (*PromSink)(nil)
)
