package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// SIP metrics
	SIPRequestsReceived *prometheus.CounterVec
	SIPRequestsSent     *prometheus.CounterVec
	SIPResponsesSent    *prometheus.CounterVec
	ParseErrors         prometheus.Counter

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Heartbeat metrics
	HeartbeatsSent       prometheus.Counter
	HeartbeatsUnanswered prometheus.Counter

	// Relay metrics
	RelayStarts  *prometheus.CounterVec
	RelaysActive prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus.
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		SIPRequestsReceived = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gbsim_sip_requests_received_total",
				Help: "Total number of SIP requests received from the platform",
			},
			[]string{"method"},
		)

		SIPRequestsSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gbsim_sip_requests_sent_total",
				Help: "Total number of SIP requests sent to the platform",
			},
			[]string{"method"},
		)

		SIPResponsesSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gbsim_sip_responses_sent_total",
				Help: "Total number of SIP responses sent to the platform",
			},
			[]string{"status_code"},
		)

		ParseErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gbsim_sip_parse_errors_total",
				Help: "Total number of inbound datagrams dropped as unparseable",
			},
		)

		SessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gbsim_sessions_active",
				Help: "Number of active call sessions",
			},
		)

		SessionsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gbsim_sessions_total",
				Help: "Total number of call sessions established",
			},
		)

		HeartbeatsSent = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gbsim_heartbeats_sent_total",
				Help: "Total number of keepalive messages sent",
			},
		)

		HeartbeatsUnanswered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gbsim_heartbeats_unanswered_total",
				Help: "Total number of keepalives with no response within the wait window",
			},
		)

		RelayStarts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gbsim_relay_starts_total",
				Help: "Total number of media relay start attempts",
			},
			[]string{"status"},
		)

		RelaysActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gbsim_relays_active",
				Help: "Number of running media relays",
			},
		)

		registry.MustRegister(
			SIPRequestsReceived,
			SIPRequestsSent,
			SIPResponsesSent,
			ParseErrors,
			SessionsActive,
			SessionsTotal,
			HeartbeatsSent,
			HeartbeatsUnanswered,
			RelayStarts,
			RelaysActive,
		)

		logger.Debug("Prometheus metrics registered")
	})
}

// The Inc helpers are safe to call before Init (tests construct components
// without the metrics registry).

func IncRequestReceived(method string) {
	if SIPRequestsReceived != nil {
		SIPRequestsReceived.WithLabelValues(method).Inc()
	}
}

func IncRequestSent(method string) {
	if SIPRequestsSent != nil {
		SIPRequestsSent.WithLabelValues(method).Inc()
	}
}

func IncResponseSent(statusCode int) {
	if SIPResponsesSent != nil {
		SIPResponsesSent.WithLabelValues(fmt.Sprint(statusCode)).Inc()
	}
}

func IncParseError() {
	if ParseErrors != nil {
		ParseErrors.Inc()
	}
}

func IncHeartbeatSent() {
	if HeartbeatsSent != nil {
		HeartbeatsSent.Inc()
	}
}

func IncHeartbeatUnanswered() {
	if HeartbeatsUnanswered != nil {
		HeartbeatsUnanswered.Inc()
	}
}

func IncRelayStart(status string) {
	if RelayStarts != nil {
		RelayStarts.WithLabelValues(status).Inc()
	}
}

func AddSession() {
	if SessionsActive != nil {
		SessionsActive.Inc()
		SessionsTotal.Inc()
	}
}

func RemoveSession() {
	if SessionsActive != nil {
		SessionsActive.Dec()
	}
}

func AddRelay() {
	if RelaysActive != nil {
		RelaysActive.Inc()
	}
}

func RemoveRelay() {
	if RelaysActive != nil {
		RelaysActive.Dec()
	}
}

// Serve exposes the registry on /metrics. Port 0 disables exposition.
func Serve(port int, logger *logrus.Logger) {
	if port == 0 || registry == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.WithField("addr", addr).Info("Metrics endpoint listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.WithError(err).Warn("Metrics endpoint stopped")
		}
	}()
}
