package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records reactor activity in Prometheus metrics
type Collector struct {
	registry *prometheus.Registry

	logins               *prometheus.CounterVec
	queries              *prometheus.CounterVec
	subscriptionsStarted *prometheus.CounterVec
	subscriptionsEnded   *prometheus.CounterVec
	subscriptionMessages *prometheus.CounterVec
	activeSubscriptions  *prometheus.GaugeVec
	resubscribeAttempts  *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"result"},
		),
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_queries_total",
				Help: "Total number of GraphQL queries sent over HTTP",
			},
			[]string{"operation", "result"},
		),
		subscriptionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_subscriptions_started_total",
				Help: "Total number of subscriptions opened",
			},
			[]string{"subscription"},
		),
		subscriptionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_subscriptions_ended_total",
				Help: "Total number of subscriptions ended",
			},
			[]string{"subscription", "reason"},
		),
		subscriptionMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_subscription_messages_total",
				Help: "Total number of data messages received on subscriptions",
			},
			[]string{"subscription"},
		),
		activeSubscriptions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "puzzle_active_subscriptions",
				Help: "Number of open subscriptions",
			},
			[]string{"subscription"},
		),
		resubscribeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_resubscribe_attempts_total",
				Help: "Total number of resubscribe attempts",
			},
			[]string{"subscription"},
		),
	}
}

// Handler exposes the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordLogin records a login attempt
func (c *Collector) RecordLogin(success bool) {
	c.logins.WithLabelValues(result(success)).Inc()
}

// RecordQuery records an HTTP GraphQL operation
func (c *Collector) RecordQuery(operation string, success bool) {
	c.queries.WithLabelValues(operation, result(success)).Inc()
}

// SubscriptionStarted records an opened subscription
func (c *Collector) SubscriptionStarted(subscription string) {
	c.subscriptionsStarted.WithLabelValues(subscription).Inc()
	c.activeSubscriptions.WithLabelValues(subscription).Inc()
}

// SubscriptionEnded records the end of an opened subscription
func (c *Collector) SubscriptionEnded(subscription, reason string) {
	c.subscriptionsEnded.WithLabelValues(subscription, reason).Inc()
	c.activeSubscriptions.WithLabelValues(subscription).Dec()
}

// RecordMessage records a data message
func (c *Collector) RecordMessage(subscription string) {
	c.subscriptionMessages.WithLabelValues(subscription).Inc()
}

// RecordResubscribe records a resubscribe attempt
func (c *Collector) RecordResubscribe(subscription string) {
	c.resubscribeAttempts.WithLabelValues(subscription).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
