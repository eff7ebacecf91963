package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/electionwatch/internal/domain"
)

// --- Mock implementations ---

type mockAppService struct {
	subscribeFn   func(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, bool)
	unsubscribeFn func(ctx context.Context, id domain.SubscriberID) bool
	watchFn       func(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	unwatchFn     func(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	setIntervalFn func(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error)
	subscriberFn  func(id domain.SubscriberID) (*domain.Subscriber, error)
	infoFn        func(ctx context.Context, region string) (string, error)
	pollOnceFn    func(ctx context.Context) ([]domain.Report, error)
	regions       []string
	running       bool
}

func (m *mockAppService) Subscribe(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, bool) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, id)
	}
	return &domain.Subscriber{ID: id}, true
}

func (m *mockAppService) Unsubscribe(ctx context.Context, id domain.SubscriberID) bool {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, id)
	}
	return false
}

func (m *mockAppService) Watch(ctx context.Context, id domain.SubscriberID, region string) (string, error) {
	if m.watchFn != nil {
		return m.watchFn(ctx, id, region)
	}
	return region, nil
}

func (m *mockAppService) Unwatch(ctx context.Context, id domain.SubscriberID, region string) (string, error) {
	if m.unwatchFn != nil {
		return m.unwatchFn(ctx, id, region)
	}
	return region, nil
}

func (m *mockAppService) SetInterval(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error) {
	if m.setIntervalFn != nil {
		return m.setIntervalFn(ctx, id, interval)
	}
	return &domain.Subscriber{ID: id, PollInterval: interval}, nil
}

func (m *mockAppService) Subscriber(id domain.SubscriberID) (*domain.Subscriber, error) {
	if m.subscriberFn != nil {
		return m.subscriberFn(id)
	}
	return nil, domain.ErrSubscriberNotFound
}

func (m *mockAppService) Info(ctx context.Context, region string) (string, error) {
	if m.infoFn != nil {
		return m.infoFn(ctx, region)
	}
	return "", domain.ErrUnknownRegion
}

func (m *mockAppService) Regions() []string {
	return m.regions
}

func (m *mockAppService) PollOnce(ctx context.Context) ([]domain.Report, error) {
	if m.pollOnceFn != nil {
		return m.pollOnceFn(ctx)
	}
	return nil, nil
}

func (m *mockAppService) Running() bool {
	return m.running
}

type mockLiveFeed struct {
	serveFn func(w http.ResponseWriter, r *http.Request, id domain.SubscriberID) error
}

func (m *mockLiveFeed) Serve(w http.ResponseWriter, r *http.Request, id domain.SubscriberID) error {
	if m.serveFn != nil {
		return m.serveFn(w, r, id)
	}
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

// --- Test helpers ---

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:      echo.New(),
		app:       app,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withLiveFeed(feed liveFeed) func(*Server) {
	return func(s *Server) {
		s.liveFeed = feed
	}
}

func withMetricsHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// do sends a request through the full router and middleware chain.
func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
