package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/model"
)

var linkStates = []brokerlink.State{
	brokerlink.Disconnected,
	brokerlink.Connecting,
	brokerlink.Connected,
	brokerlink.Reconnecting,
	brokerlink.Failed,
}

// Metrics sdružuje Prometheus kolektory všech služeb.
// Implementuje ingest.Recorder, threshold.Recorder i brokerlink.Observer.
type Metrics struct {
	registry *prometheus.Registry

	readingsRecorded prometheus.Counter
	readingsExceeded prometheus.Counter
	readingsCleared  prometheus.Counter
	lastReading      prometheus.Gauge
	thresholdAppends prometheus.Counter
	lastThreshold    prometheus.Gauge

	linkState  *prometheus.GaugeVec
	linkErrors *prometheus.CounterVec
	liveValue  prometheus.Gauge
}

// New vytvoří vlastní registry (ne globální), aby šlo metriky v testech
// vytvářet opakovaně.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: reg,
		readingsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermowatch_readings_recorded_total", Help: "Persisted temperature readings.", ConstLabels: labels,
		}),
		readingsExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermowatch_readings_exceeded_total", Help: "Persisted readings above their threshold snapshot.", ConstLabels: labels,
		}),
		readingsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermowatch_readings_cleared_total", Help: "Readings removed by bulk clear.", ConstLabels: labels,
		}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermowatch_last_reading_celsius", Help: "Value of the last persisted reading.", ConstLabels: labels,
		}),
		thresholdAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermowatch_threshold_appends_total", Help: "Threshold rows appended.", ConstLabels: labels,
		}),
		lastThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermowatch_last_threshold_celsius", Help: "Value of the last appended threshold.", ConstLabels: labels,
		}),
		linkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thermowatch_broker_link_state", Help: "1 for the current broker link state.", ConstLabels: labels,
		}, []string{"state"}),
		linkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermowatch_broker_link_errors_total", Help: "Broker link errors by kind.", ConstLabels: labels,
		}, []string{"kind"}),
		liveValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermowatch_live_temperature_celsius", Help: "Last decoded value from the broker.", ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.readingsRecorded, m.readingsExceeded, m.readingsCleared, m.lastReading,
		m.thresholdAppends, m.lastThreshold,
		m.linkState, m.linkErrors, m.liveValue,
	)
	m.setLinkState(brokerlink.Disconnected)
	return m
}

// Handler vrací /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ReadingRecorded(r model.Reading) {
	m.readingsRecorded.Inc()
	m.lastReading.Set(r.Value)
	if r.Exceeded() {
		m.readingsExceeded.Inc()
	}
}

func (m *Metrics) ReadingsCleared(n int64) {
	m.readingsCleared.Add(float64(n))
}

func (m *Metrics) ThresholdAppended(value float64) {
	m.thresholdAppends.Inc()
	m.lastThreshold.Set(value)
}

func (m *Metrics) OnStateChange(_, to brokerlink.State) {
	m.setLinkState(to)
}

func (m *Metrics) OnValue(r model.LiveReading) {
	m.liveValue.Set(r.Value)
}

func (m *Metrics) OnError(err *brokerlink.Error) {
	m.linkErrors.WithLabelValues(err.Kind.String()).Inc()
}

func (m *Metrics) setLinkState(current brokerlink.State) {
	for _, s := range linkStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.linkState.WithLabelValues(s.String()).Set(v)
	}
}
