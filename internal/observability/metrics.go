// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/accountd/accountd/internal/auth"
)

const namespace = "accountd"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	FlowsTotal          *prometheus.CounterVec
	TokensPurgedTotal   *prometheus.CounterVec
	MailTotal           *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_flows_total",
				Help:      "Account flows by name and outcome",
			},
			[]string{"flow", "outcome"},
		),
		TokensPurgedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_purged_total",
				Help:      "Tokens removed by maintenance purges by kind",
			},
			[]string{"kind"},
		),
		MailTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mail_total",
				Help:      "Outbound mail by kind and status",
			},
			[]string{"kind", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.FlowsTotal, m.TokensPurgedTotal, m.MailTotal, m.HTTPRequestsTotal, m.HTTPRequestDuration)
	return m
}

// RecordFlow counts a flow outcome: "ok" or the error kind.
func (m *Metrics) RecordFlow(flow string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = auth.KindOf(err).String()
	}
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordPurge counts the rows removed by one purge.
func (m *Metrics) RecordPurge(r auth.PurgeReport) {
	m.TokensPurgedTotal.WithLabelValues("refresh_expired").Add(float64(r.ExpiredRefreshTokens))
	m.TokensPurgedTotal.WithLabelValues("refresh_revoked").Add(float64(r.RevokedRefreshTokens))
	m.TokensPurgedTotal.WithLabelValues(string(auth.KindEmailVerification)).Add(float64(r.VerificationTokens))
	m.TokensPurgedTotal.WithLabelValues(string(auth.KindPasswordReset)).Add(float64(r.ResetTokens))
}

// RecordMail counts one mail dispatch attempt.
func (m *Metrics) RecordMail(kind auth.MessageKind, status string) {
	m.MailTotal.WithLabelValues(string(kind), status).Inc()
}

// RecordHTTP counts one served request.
func (m *Metrics) RecordHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ auth.FlowRecorder = (*Metrics)(nil)
