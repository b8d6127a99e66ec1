// Package metrics exposes Prometheus collectors for the credential and tenant
// subsystem. This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token rejection reasons. These are telemetry labels only; clients always
// see the same generic error.
const (
	ReasonNotFound   = "not_found"
	ReasonConsumed   = "consumed"
	ReasonExpired    = "expired"
	ReasonReused     = "reused"
	ReasonRevoked    = "revoked"
	ReasonMalformed  = "malformed"
	ReasonMembership = "membership"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processhub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "processhub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	credentialsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processhub_credentials_issued_total",
		Help: "Credentials issued by kind (magic_link, session, refresh)",
	}, []string{"kind"})

	tokenRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processhub_token_rejections_total",
		Help: "Rejected credentials by kind and internal reason",
	}, []string{"kind", "reason"})

	refreshFamiliesRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processhub_refresh_families_revoked_total",
		Help: "Refresh token families revoked by cause (reuse, sign_out)",
	}, []string{"cause"})

	tenantScopeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processhub_tenant_scope_total",
		Help: "Tenant scope resolutions at the authorization boundary",
	}, []string{"result"})

	credentialsPurged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processhub_credentials_purged_total",
		Help: "Expired credential records deleted by the purge job",
	}, []string{"kind"})

	decryptionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processhub_field_decryption_failures_total",
		Help: "Stored field values that failed authentication on decrypt",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveIssued counts an issued credential.
func ObserveIssued(kind string) {
	credentialsIssued.WithLabelValues(kind).Inc()
}

// ObserveRejection counts a rejected credential with its internal reason.
func ObserveRejection(kind, reason string) {
	tokenRejections.WithLabelValues(kind, reason).Inc()
}

func ObserveFamilyRevoked(cause string) {
	refreshFamiliesRevoked.WithLabelValues(cause).Inc()
}

// ObserveTenantScope records whether a request resolved a tenant.
func ObserveTenantScope(result string) {
	tenantScopeDecisions.WithLabelValues(result).Inc()
}

func ObservePurged(kind string, count int64) {
	if count <= 0 {
		return
	}
	credentialsPurged.WithLabelValues(kind).Add(float64(count))
}

func ObserveDecryptionFailure() {
	decryptionFailures.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
