package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
)

type appService interface {
	Subscribe(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, bool)
	Unsubscribe(ctx context.Context, id domain.SubscriberID) bool
	Watch(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	Unwatch(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	SetInterval(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error)
	Subscriber(id domain.SubscriberID) (*domain.Subscriber, error)
	Info(ctx context.Context, region string) (string, error)
	Regions() []string
	PollOnce(ctx context.Context) ([]domain.Report, error)
	Running() bool
}

type Server struct {
	echo *echo.Echo
	port string

	app            appService
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	liveFeed       liveFeed

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the HTTP API. feed may be nil, in which case the live
// report feed route is not registered.
func NewServer(port string, app appService, feed liveFeed, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		port:           port,
		app:            app,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
		liveFeed:       feed,
		healthChecks:   healthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
