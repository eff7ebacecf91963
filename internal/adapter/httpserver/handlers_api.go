package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/electionwatch/internal/domain"
	apperrors "github.com/pscheid92/electionwatch/internal/platform/errors"
)

type subscriberResponse struct {
	ID                  string    `json:"id"`
	State               string    `json:"state"`
	Watchlist           []string  `json:"watchlist"`
	PollIntervalMinutes int64     `json:"poll_interval_minutes"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type intervalRequest struct {
	Minutes *int64 `json:"minutes"`
}

type pollResponse struct {
	Reports       []domain.Report `json:"reports"`
	DeliveryError string          `json:"delivery_error,omitempty"`
}

func (s *Server) registerAPIRoutes(rateLimit echo.MiddlewareFunc) {
	api := s.echo.Group("/api", rateLimit)

	api.POST("/subscribers/:id", s.handleSubscribe)
	api.GET("/subscribers/:id", s.handleGetSubscriber)
	api.DELETE("/subscribers/:id", s.handleUnsubscribe)
	api.PUT("/subscribers/:id/watchlist/:region", s.handleWatch)
	api.DELETE("/subscribers/:id/watchlist/:region", s.handleUnwatch)
	api.PUT("/subscribers/:id/interval", s.handleSetInterval)

	api.GET("/regions", s.handleRegions)
	api.GET("/regions/:region", s.handleRegionInfo)

	api.POST("/poll", s.handlePoll)
}

func (s *Server) handleSubscribe(c echo.Context) error {
	id, err := subscriberID(c)
	if err != nil {
		return err
	}

	sub, created := s.app.Subscribe(c.Request().Context(), id)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return writeJSON(c, status, toSubscriberResponse(sub))
}

func (s *Server) handleGetSubscriber(c echo.Context) error {
	id, err := subscriberID(c)
	if err != nil {
		return err
	}

	sub, err := s.app.Subscriber(id)
	if err != nil {
		return mapDomainError(err).WithField("subscriber_id", string(id))
	}
	return writeJSON(c, http.StatusOK, toSubscriberResponse(sub))
}

func (s *Server) handleUnsubscribe(c echo.Context) error {
	id, err := subscriberID(c)
	if err != nil {
		return err
	}

	if !s.app.Unsubscribe(c.Request().Context(), id) {
		return apperrors.NotFoundError("subscriber not found").WithField("subscriber_id", string(id))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleWatch(c echo.Context) error {
	id, err := subscriberID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	region, err := s.app.Watch(ctx, id, c.Param("region"))
	if err != nil {
		return mapDomainError(err).WithField("region", c.Param("region"))
	}

	sub, err := s.app.Subscriber(id)
	if err != nil {
		return mapDomainError(err).WithField("subscriber_id", string(id))
	}
	return writeJSON(c, http.StatusOK, map[string]any{
		"region":     region,
		"subscriber": toSubscriberResponse(sub),
	})
}

func (s *Server) handleUnwatch(c echo.Context) error {
	id, err := subscriberID(c)
	if err != nil {
		return err
	}

	if _, err := s.app.Unwatch(c.Request().Context(), id, c.Param("region")); err != nil {
		return mapDomainError(err).
			WithField("subscriber_id", string(id)).
			WithField("region", c.Param("region"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSetInterval(c echo.Context) error {
	id, err := subscriberID(c)
	if err != nil {
		return err
	}

	var req intervalRequest
	if err := c.Bind(&req); err != nil || req.Minutes == nil {
		return apperrors.ValidationError(`body must be {"minutes": <integer>}`)
	}
	if *req.Minutes > domain.MaxIntervalMinutes {
		return apperrors.ValidationError(fmt.Sprintf("minutes must be at most %d", domain.MaxIntervalMinutes)).
			WithField("minutes", *req.Minutes)
	}

	sub, err := s.app.SetInterval(c.Request().Context(), id, time.Duration(*req.Minutes)*time.Minute)
	if err != nil {
		return mapDomainError(err).WithField("minutes", *req.Minutes)
	}
	return writeJSON(c, http.StatusOK, toSubscriberResponse(sub))
}

func (s *Server) handleRegions(c echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string][]string{"regions": s.app.Regions()})
}

func (s *Server) handleRegionInfo(c echo.Context) error {
	text, err := s.app.Info(c.Request().Context(), c.Param("region"))
	if err != nil {
		return mapDomainError(err).WithField("region", c.Param("region"))
	}
	if err := c.String(http.StatusOK, text); err != nil {
		return fmt.Errorf("failed to send text response: %w", err)
	}
	return nil
}

// handlePoll runs a cycle for every subscriber. Reports whose delivery failed
// are still returned: their baselines have already advanced.
func (s *Server) handlePoll(c echo.Context) error {
	reports, err := s.app.PollOnce(c.Request().Context())
	resp := pollResponse{Reports: reports}
	if resp.Reports == nil {
		resp.Reports = []domain.Report{}
	}

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDeliveryFailed):
		resp.DeliveryError = err.Error()
	default:
		return apperrors.ExternalError("upstream poll failed", err)
	}
	return writeJSON(c, http.StatusOK, resp)
}

func subscriberID(c echo.Context) (domain.SubscriberID, error) {
	id := c.Param("id")
	if id == "" || len(id) > 128 {
		return "", apperrors.ValidationError("invalid subscriber id").WithField("id", id)
	}
	return domain.SubscriberID(id), nil
}

// mapDomainError turns core sentinels into structured HTTP errors.
func mapDomainError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrSubscriberNotFound):
		return apperrors.NotFoundError("subscriber not found")
	case errors.Is(err, domain.ErrUnknownRegion):
		return apperrors.NotFoundError("unknown region")
	case errors.Is(err, domain.ErrNotWatching):
		return apperrors.NotFoundError("region not on watchlist")
	case errors.Is(err, domain.ErrRegionNotReported):
		return apperrors.NotFoundError("region not reported upstream")
	case errors.Is(err, domain.ErrInvalidInterval):
		return apperrors.ValidationError("interval must not be negative")
	case errors.Is(err, domain.ErrNoSnapshot):
		return apperrors.UnavailableError("no election data available yet", err)
	default:
		return apperrors.InternalError("internal server error", err)
	}
}

func toSubscriberResponse(sub *domain.Subscriber) subscriberResponse {
	watchlist := sub.Watchlist
	if watchlist == nil {
		watchlist = []string{}
	}
	return subscriberResponse{
		ID:                  string(sub.ID),
		State:               sub.State().String(),
		Watchlist:           watchlist,
		PollIntervalMinutes: int64(sub.PollInterval / time.Minute),
		CreatedAt:           sub.CreatedAt,
		UpdatedAt:           sub.UpdatedAt,
	}
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
