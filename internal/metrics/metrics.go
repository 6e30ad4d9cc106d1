// Package metrics holds the Prometheus collectors for the OTP flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeStorage     = "storage_failure"
	OutcomeDelivery    = "delivery_failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
	OutcomeSignFailure = "sign_failure"
	OutcomeLocked      = "locked"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	OTPIssued      *prometheus.CounterVec
	OTPVerified    *prometheus.CounterVec
	UsersCreated   prometheus.Counter
	DeliverySecs   prometheus.Histogram
	RequestsByCode *prometheus.CounterVec
}

// New creates the collectors on a fresh registry with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		OTPIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_issued_total",
			Help: "OTP issue attempts by outcome",
		}, []string{"outcome"}),
		OTPVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_verified_total",
			Help: "OTP verification attempts by outcome",
		}, []string{"outcome"}),
		UsersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otp_users_created_total",
			Help: "Users created on first send-code",
		}),
		DeliverySecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "otp_sms_delivery_seconds",
			Help:    "Latency of SMS delivery calls",
			Buckets: prometheus.DefBuckets,
		}),
		RequestsByCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OTPIssued,
		m.OTPVerified,
		m.UsersCreated,
		m.DeliverySecs,
		m.RequestsByCode,
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
