package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "azad_hub"

// Metrics exposes Prometheus collectors that report hub activity. All methods
// are safe to call on a nil receiver.
type Metrics struct {
	contentPeers      prometheus.Gauge
	controlConnected  prometheus.Gauge
	advertisedPeriods prometheus.Gauge
	messages          *prometheus.CounterVec
	deliveryFailures  *prometheus.CounterVec
	externalRequests  *prometheus.CounterVec
}

// MustNewMetrics registers the hub collectors with reg. Collectors already
// present in reg are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		contentPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "content_peers",
			Help:      "Number of registered content peers.",
		}),
		controlConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "control_connected",
			Help:      "1 when a control session is attached.",
		}),
		advertisedPeriods: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "advertised_periods",
			Help:      "Number of distinct periods advertised by content peers.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by sender role and action.",
		}, []string{"role", "action"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Sends that failed, by target role.",
		}, []string{"target"}),
		externalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_requests_total",
			Help:      "Cross-extension requests by outcome.",
		}, []string{"outcome"}),
	}

	m.contentPeers = registerOrReuse(reg, m.contentPeers)
	m.controlConnected = registerOrReuse(reg, m.controlConnected)
	m.advertisedPeriods = registerOrReuse(reg, m.advertisedPeriods)
	m.messages = registerOrReuse(reg, m.messages)
	m.deliveryFailures = registerOrReuse(reg, m.deliveryFailures)
	m.externalRequests = registerOrReuse(reg, m.externalRequests)

	return m
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (m *Metrics) SetContentPeers(n int) {
	if m == nil {
		return
	}
	m.contentPeers.Set(float64(n))
}

func (m *Metrics) SetControlConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.controlConnected.Set(1)
		return
	}
	m.controlConnected.Set(0)
}

func (m *Metrics) SetAdvertisedPeriods(n int) {
	if m == nil {
		return
	}
	m.advertisedPeriods.Set(float64(n))
}

func (m *Metrics) IncMessage(role string, action string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(role, action).Inc()
}

func (m *Metrics) IncDeliveryFailure(target string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) IncExternalRequest(outcome string) {
	if m == nil {
		return
	}
	m.externalRequests.WithLabelValues(outcome).Inc()
}
