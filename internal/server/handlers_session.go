package server

import (
	"fmt"
	"net/http"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/httperrors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type startSessionRequest struct {
	BroadcasterID string `json:"broadcaster_id"`
	Title         string `json:"title"`
}

type sessionResponse struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Title       string `json:"title"`
	PlaybackURL string `json:"playback_url,omitempty"`
	ViewerCount int    `json:"viewer_count"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:          s.ID.String(),
		State:       string(s.State),
		Title:       s.Title,
		PlaybackURL: s.PlaybackURL,
		ViewerCount: s.ViewerCount,
	}
}

func (s *Server) handleStartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return httperrors.ValidationError("invalid request body")
	}
	if req.BroadcasterID == "" {
		return httperrors.ValidationError("broadcaster_id is required")
	}

	sess, err := s.app.StartSession(c.Request().Context(), req.BroadcasterID, req.Title)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, toSessionResponse(sess)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGoLive(c echo.Context) error {
	broadcasterID := c.Param("broadcaster_id")
	if err := s.app.GoLive(c.Request().Context(), broadcasterID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "live"})
}

func (s *Server) handleEndSession(c echo.Context) error {
	broadcasterID := c.Param("broadcaster_id")
	if err := s.app.EndSession(c.Request().Context(), broadcasterID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleResetSession(c echo.Context) error {
	s.app.ResetSession(c.Request().Context(), c.Param("broadcaster_id"))
	return c.JSON(http.StatusOK, map[string]string{"status": "idle"})
}

func (s *Server) handleCurrentSession(c echo.Context) error {
	state, current := s.app.SessionState(c.Param("broadcaster_id"))
	resp := map[string]any{"state": string(state)}
	if current != nil {
		resp["session"] = toSessionResponse(current)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperrors.ValidationError("invalid session id").WithContext("id", c.Param("id"))
	}

	sess, err := s.app.GetSession(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}
