package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Broadcaster session lifecycle
	s.echo.POST("/api/sessions", s.handleStartSession)
	s.echo.POST("/api/broadcasters/:broadcaster_id/live", s.handleGoLive)
	s.echo.POST("/api/broadcasters/:broadcaster_id/end", s.handleEndSession)
	s.echo.POST("/api/broadcasters/:broadcaster_id/reset", s.handleResetSession)
	s.echo.GET("/api/broadcasters/:broadcaster_id/session", s.handleCurrentSession)
	s.echo.GET("/api/sessions/:id", s.handleGetSession)

	// Gameplay events
	s.echo.POST("/api/sessions/:id/gifts", s.handleSendGift)
	s.echo.POST("/api/sessions/:id/battles", s.handleReportBattle)
	s.echo.POST("/api/creators/:creator_id/watchtime", s.handleRecordWatchTime)

	// Ranking reads
	s.echo.GET("/api/creators/:creator_id/progress", s.handleProgress)
	s.echo.GET("/api/leaderboard", s.handleLeaderboard)

	// Moderation
	s.echo.POST("/api/moderation/corrections", s.handleCorrectScore)
	s.echo.GET("/api/creators/:creator_id/audit", s.handleAuditTrail)

	// Viewer websocket
	s.echo.GET("/ws/sessions/:id", s.handleWebSocket)
}
