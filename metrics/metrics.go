package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeApproved = "approved"
	OutcomeDeclined = "declined"
	OutcomeFailed   = "failed"

	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

type Recorder interface {
	IncJoinRequests(outcome string)
	IncDeliveries(status string)
	IncStoreErrors(op string)
	IncAdminActions(action string)
}

type Prometheus struct {
	joinRequests *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	adminActions *prometheus.CounterVec
}

func (m *Prometheus) IncJoinRequests(outcome string) {
	m.joinRequests.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) IncDeliveries(status string) {
	m.deliveries.WithLabelValues(status).Inc()
}

func (m *Prometheus) IncStoreErrors(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Prometheus) IncAdminActions(action string) {
	m.adminActions.WithLabelValues(action).Inc()
}

func New(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		joinRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "joinbot_join_requests_total",
			Help: "Join requests handled, by outcome",
		}, []string{"outcome"}),

		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "joinbot_welcome_deliveries_total",
			Help: "Welcome message deliveries, by status",
		}, []string{"status"}),

		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "joinbot_store_errors_total",
			Help: "Storage failures, by operation",
		}, []string{"op"}),

		adminActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "joinbot_admin_actions_total",
			Help: "Settings changes made by chat admins, by action",
		}, []string{"action"}),
	}
}

// Noop returns a Recorder for when metrics are disabled
func Noop() Recorder {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) IncJoinRequests(_ string) {}
func (noopMetrics) IncDeliveries(_ string)   {}
func (noopMetrics) IncStoreErrors(_ string)  {}
func (noopMetrics) IncAdminActions(_ string) {}
