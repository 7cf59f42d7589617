// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cozytime"

type Metrics struct {
	registry *prometheus.Registry

	Frames      *prometheus.CounterVec
	Forwarded   *prometheus.CounterVec
	SinkErrors  *prometheus.CounterVec
	Temperature *prometheus.GaugeVec
	Humidity    *prometheus.GaugeVec
	RSSI        *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Manufacturer-data frames seen, by decode result.",
		}, []string{"result"}),
		Forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_forwarded_total",
			Help:      "Readings handed to telemetry sinks, by station.",
		}, []string{"station"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Telemetry sink failures, by sink.",
		}, []string{"sink"}),
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last decoded temperature.",
		}, []string{"station"}),
		Humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last decoded relative humidity.",
		}, []string{"station"}),
		RSSI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rssi_dbm",
			Help:      "Signal strength of the last decoded advertisement.",
		}, []string{"station"}),
	}
	reg.MustRegister(
		m.Frames, m.Forwarded, m.SinkErrors,
		m.Temperature, m.Humidity, m.RSSI,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveFrame counts a decode outcome; reason is "" for a success.
func (m *Metrics) ObserveFrame(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	m.Frames.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveReading(station string, temperature, humidity float64, rssi int) {
	if m == nil {
		return
	}
	m.Temperature.WithLabelValues(station).Set(temperature)
	m.Humidity.WithLabelValues(station).Set(humidity)
	m.RSSI.WithLabelValues(station).Set(float64(rssi))
}

func (m *Metrics) ObserveForward(station string) {
	if m == nil {
		return
	}
	m.Forwarded.WithLabelValues(station).Inc()
}

func (m *Metrics) ObserveSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
