package http

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

type options struct {
	listen          string
	shutdownTimeout time.Duration
	maxBodyBytes    int64
}

// Option configures a Server.
type Option func(o *options)

// WithListen sets the address the server listens on.
func WithListen(addr string) Option {
	return func(o *options) {
		o.listen = addr
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// WithMaxBodyBytes limits the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		o.maxBodyBytes = n
	}
}

func defaultOptions() options {
	return options{
		listen:          ":8082",
		shutdownTimeout: 5 * time.Second,
		maxBodyBytes:    1 << 20,
	}
}

// Server exposes a CounterService over http, one counter per url path.
type Server struct {
	server  *http.Server
	handler http.Handler
	logger  *logrus.Logger
	opts    options
}

// New builds a Server routing GET, POST and PUT on any path to counterService.
// Request metrics are registered on registerer.
func New(
	counterService CounterService,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	opts ...Option) *Server {

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	h := &counterHandler{
		counters:     counterService,
		logger:       logger,
		maxBodyBytes: o.maxBodyBytes,
	}

	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleOPTIONS = false
	router.HandleMethodNotAllowed = true
	router.MethodNotAllowed = http.HandlerFunc(h.handleUnsupported)
	router.GET("/*name", h.handleGet)
	router.POST("/*name", h.handleIncrement)
	router.PUT("/*name", h.handleSet)

	n := negroni.New()
	n.Use(negroni.HandlerFunc(requestID))
	n.Use(NewLoggingMiddleware(logger))
	n.Use(newRequestMetrics(registerer))
	n.UseHandler(router)

	return &Server{
		server: &http.Server{
			Addr:    o.listen,
			Handler: n,
		},
		handler: n,
		logger:  logger,
		opts:    o,
	}
}

// Handler returns the complete handler chain, middlewares included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and blocks until the server is stopped.
func (s *Server) Start() error {
	return listenAndServe(s.server, s.logger, "counter")
}

// Stop shuts the server down, waiting at most the shutdown timeout for
// in-flight requests.
func (s *Server) Stop(err error) {
	shutdown(s.server, s.logger, s.opts.shutdownTimeout, err)
}

func listenAndServe(server *http.Server, logger *logrus.Logger, name string) error {
	logger.WithField("addr", server.Addr).Infof("starting %s http server", name)

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

func shutdown(server *http.Server, logger *logrus.Logger, timeout time.Duration, cause error) {
	logger.WithError(cause).Info("stopping http server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("http server shutdown")
	}
}
