package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the avatar relay.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	motionRequestsTotal prometheus.Counter
	motionFailuresTotal prometheus.Counter
	chatRequestsTotal   prometheus.Counter
	chatFailuresTotal   prometheus.Counter
	animationsInstalled prometheus.Counter
	animationsDiscarded prometheus.Counter
	framesSampledTotal  prometheus.Counter
	activeSessions      prometheus.Gauge
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// New creates and registers the relay metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry:            prometheus.NewRegistry(),
		requestsTotal:       counter("avatar_requests_total", "Total number of HTTP requests received"),
		errorsTotal:         counter("avatar_errors_total", "Total number of HTTP responses with error status (4xx or 5xx)"),
		motionRequestsTotal: counter("avatar_motion_requests_total", "Requests sent to the text-to-motion service"),
		motionFailuresTotal: counter("avatar_motion_failures_total", "Text-to-motion requests that failed"),
		chatRequestsTotal:   counter("avatar_chat_requests_total", "Requests sent to the chat service"),
		chatFailuresTotal:   counter("avatar_chat_failures_total", "Chat requests that failed"),
		animationsInstalled: counter("avatar_animations_installed_total", "Animations that became current on a session"),
		animationsDiscarded: counter("avatar_animations_discarded_total", "Animation responses discarded as stale"),
		framesSampledTotal:  counter("avatar_frames_sampled_total", "Pose samples applied to session skeletons"),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avatar_active_sessions",
			Help: "Number of live avatar sessions",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.motionRequestsTotal,
		m.motionFailuresTotal,
		m.chatRequestsTotal,
		m.chatFailuresTotal,
		m.animationsInstalled,
		m.animationsDiscarded,
		m.framesSampledTotal,
		m.activeSessions,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// ObserveMotion records one text-to-motion call and whether it failed.
func (m *Metrics) ObserveMotion(err error) {
	m.motionRequestsTotal.Inc()
	if err != nil {
		m.motionFailuresTotal.Inc()
	}
}

// ObserveChat records one chat call and whether it failed.
func (m *Metrics) ObserveChat(err error) {
	m.chatRequestsTotal.Inc()
	if err != nil {
		m.chatFailuresTotal.Inc()
	}
}

// ObserveInstall records whether a fetched animation was installed or discarded as stale.
func (m *Metrics) ObserveInstall(installed bool) {
	if installed {
		m.animationsInstalled.Inc()
	} else {
		m.animationsDiscarded.Inc()
	}
}

// IncFramesSampled increments the sampled frames counter.
func (m *Metrics) IncFramesSampled() { m.framesSampledTotal.Inc() }

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
