package http

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// DebugServer serves metrics and the health check on a separate listener.
type DebugServer struct {
	server *http.Server
	logger *logrus.Logger
}

// NewDebugServer serves /metrics from gatherer and /healthz on addr.
func NewDebugServer(gatherer prometheus.Gatherer, logger *logrus.Logger, addr string) *DebugServer {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &DebugServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: logger,
	}
}

// Handler returns the debug routes.
func (s *DebugServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *DebugServer) Start() error {
	return listenAndServe(s.server, s.logger, "debug")
}

func (s *DebugServer) Stop(err error) {
	shutdown(s.server, s.logger, time.Second, err)
}
