package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/electionwatch/internal/adapter/livefeed"
	"github.com/pscheid92/electionwatch/internal/domain"
	apperrors "github.com/pscheid92/electionwatch/internal/platform/errors"
)

type liveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, id domain.SubscriberID) error
}

func (s *Server) registerLiveFeedRoutes() {
	if s.liveFeed == nil {
		return
	}
	s.echo.GET("/ws/subscribers/:id/reports", s.handleLiveFeed)
}

func (s *Server) handleLiveFeed(c echo.Context) error {
	id, err := subscriberID(c)
	if err != nil {
		return err
	}

	if _, err := s.app.Subscriber(id); err != nil {
		return mapDomainError(err).WithField("subscriber_id", string(id))
	}

	if err := s.liveFeed.Serve(c.Response(), c.Request(), id); err != nil {
		switch {
		case errors.Is(err, livefeed.ErrTooManyClients):
			return apperrors.ConflictError("too many live feed connections").WithField("subscriber_id", string(id))
		case errors.Is(err, livefeed.ErrClosed):
			return apperrors.UnavailableError("live feed is shutting down", err)
		default:
			return apperrors.InternalError("live feed failed", err)
		}
	}
	return nil
}
