package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

const requestIDHeader = "X-Request-Id"

type contextKey int

const requestIDKey contextKey = iota

// requestMetrics counts and times counter requests by method and outcome.
type requestMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newRequestMetrics(registerer prometheus.Registerer) *requestMetrics {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counter_http_requests_total",
			Help: "Counter http requests by method, status and outcome",
		},
		[]string{"method", "status", "outcome"})

	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "counter_http_request_duration_seconds",
			Help:    "Duration of counter http requests by method and outcome",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		},
		[]string{"method", "outcome"})

	registerer.MustRegister(requests, latency)

	return &requestMetrics{
		requests: requests,
		latency:  latency,
	}
}

func (m *requestMetrics) ServeHTTP(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()

	ww := negroni.NewResponseWriter(w)
	next(ww, r)

	outcome := requestOutcome(ww.Status())
	m.requests.WithLabelValues(r.Method, strconv.Itoa(ww.Status()), outcome).Inc()
	m.latency.WithLabelValues(r.Method, outcome).Observe(time.Since(start).Seconds())
}

// requestOutcome maps a response status onto the failure kinds writeError uses.
func requestOutcome(status int) string {
	switch {
	case status < 400:
		return "ok"
	case status == http.StatusMethodNotAllowed:
		return "not_allowed"
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	case status < 500:
		return "rejected"
	default:
		return "failed"
	}
}

// requestID reuses the caller's X-Request-Id or generates one, and echoes it back.
func requestID(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	id := r.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.New().String()
	}

	w.Header().Set(requestIDHeader, id)
	next(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type loggingMiddleware struct {
	logger *logrus.Logger
}

func NewLoggingMiddleware(logger *logrus.Logger) negroni.Handler {
	return &loggingMiddleware{logger: logger}
}

func (l *loggingMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()

	ww := negroni.NewResponseWriter(w)
	next(ww, r)

	l.logger.WithFields(logrus.Fields{
		"request_id": requestIDFrom(r.Context()),
		"method":     r.Method,
		"path":       r.URL.EscapedPath(),
		"status":     ww.Status(),
		"duration":   time.Since(start),
	}).Debug("request")
}
