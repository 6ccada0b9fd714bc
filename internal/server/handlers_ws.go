package server

import (
	"log/slog"
	"net/http"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/httperrors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const maxInboundMessageSize = 512

// handleWebSocket attaches a viewer to a session's event stream. The socket
// is outbound-only; inbound frames are read solely to service pings and to
// detect disconnect.
func (s *Server) handleWebSocket(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperrors.ValidationError("invalid session id")
	}
	viewerID := c.QueryParam("viewer_id")
	if viewerID == "" {
		return httperrors.ValidationError("viewer_id is required")
	}

	ctx := c.Request().Context()
	sess, err := s.app.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State != domain.StateLive && sess.State != domain.StateReady {
		return httperrors.ValidationError("session is not accepting viewers").
			WithContext("state", string(sess.State))
	}

	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		return echo.NewHTTPError(http.StatusTooManyRequests, string(reason))
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.limits.Release(ip)
		return httperrors.InternalError("websocket upgrade failed", err)
	}

	if err := s.hub.Register(sessionID, viewerID, conn); err != nil {
		s.limits.Release(ip)
		slog.WarnContext(ctx, "Websocket registration rejected",
			"session_id", sessionID.String(), "viewer_id", viewerID, "error", err)
		return nil
	}

	conn.SetReadLimit(maxInboundMessageSize)
	go s.readPump(sessionID, ip, conn)
	return nil
}

func (s *Server) readPump(sessionID uuid.UUID, ip string, conn *websocket.Conn) {
	defer s.limits.Release(ip)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Unregister(sessionID, conn)
			return
		}
	}
}
