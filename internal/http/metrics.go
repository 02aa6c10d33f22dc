package http

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	// Métricas de dominio
	decisionsTotal     *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	jwksFetchesTotal   *prometheus.CounterVec
)

// RegisterMetrics inicializa las métricas y devuelve el handler de /metrics.
func RegisterMetrics(registry prometheus.Registerer) (http.Handler, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"})

		decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policygate_decisions_total",
			Help: "Decisiones firmadas emitidas por resultado",
		}, []string{"result"}) // result: allow|deny

		verificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policygate_token_verifications_total",
			Help: "Verificaciones de tokens entrantes por outcome",
		}, []string{"outcome"}) // outcome: ok|malformed_token|signature_invalid|token_expired|...

		jwksFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policygate_jwks_fetches_total",
			Help: "Fetches del key-set remoto por resultado",
		}, []string{"result"}) // result: ok|error

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			decisionsTotal, verificationsTotal, jwksFetchesTotal,
		} {
			if err := registerCollector(registry, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}

	// Gatherer global por compatibilidad: las métricas se registran allí.
	return promhttp.Handler(), nil
}

// WithMetrics instrumenta requests HTTP (contadores, latencia, inflight).
func WithMetrics(next http.Handler) http.Handler {
	if next == nil {
		return nil
	}
	if httpRequestsTotal == nil || httpRequestDuration == nil || httpInflight == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		pathLabel := r.URL.Path
		if pathLabel == "" {
			pathLabel = "/"
		}

		httpInflight.WithLabelValues(method, pathLabel).Inc()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, pathLabel).Dec()
			httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// RecordDecision registra una decisión emitida.
func RecordDecision(success bool) {
	if decisionsTotal == nil {
		return
	}
	result := "deny"
	if success {
		result = "allow"
	}
	decisionsTotal.WithLabelValues(result).Inc()
}

// RecordVerification registra el outcome de una verificación entrante.
func RecordVerification(outcome string) {
	if verificationsTotal != nil {
		verificationsTotal.WithLabelValues(outcome).Inc()
	}
}

// RecordJWKSFetch registra el resultado de un fetch del key-set remoto.
func RecordJWKSFetch(ok bool) {
	if jwksFetchesTotal == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	jwksFetchesTotal.WithLabelValues(result).Inc()
}
