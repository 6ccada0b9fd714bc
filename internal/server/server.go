// Package server exposes the realtime core over HTTP and websocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/config"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/httperrors"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/platform/correlation"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/ranking"
	ws "github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// appService is the application-layer surface the handlers need.
type appService interface {
	StartSession(ctx context.Context, broadcasterID, title string) (*domain.Session, error)
	GoLive(ctx context.Context, broadcasterID string) error
	EndSession(ctx context.Context, broadcasterID string) error
	ResetSession(ctx context.Context, broadcasterID string)
	SessionState(broadcasterID string) (domain.SessionState, *domain.Session)
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)

	SendGift(ctx context.Context, sessionID uuid.UUID, gift domain.GiftPayload) (domain.ComboPayload, error)
	ReportBattle(ctx context.Context, sessionID uuid.UUID, battle domain.BattlePayload) (*domain.CreatorSeasonScore, error)
	RecordWatchTime(ctx context.Context, creatorID string, points int64) (*domain.CreatorSeasonScore, error)

	CorrectScore(ctx context.Context, c domain.Correction) (*domain.AuditEntry, error)
	Progress(ctx context.Context, creatorID string) (*ranking.Progress, error)
	Leaderboard(ctx context.Context) ([]domain.RankedScore, error)
	AuditTrail(ctx context.Context, creatorID string) ([]domain.AuditEntry, error)
}

// pinger is the minimal health-check surface of a backing store.
type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo              *echo.Echo
	config            *config.Config
	app               appService
	hub               *ws.Hub
	upgrader          websocket.Upgrader
	limits            *ConnectionLimits
	correctionLimiter *rate.Limiter
	redisPing         pinger
	postgresPing      pinger
	startTime         time.Time
}

func NewServer(cfg *config.Config, app appService, hub *ws.Hub, redisPing, postgresPing pinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(httperrors.Middleware())

	srv := &Server{
		echo:              e,
		config:            cfg,
		app:               app,
		hub:               hub,
		upgrader:          websocket.Upgrader{},
		limits:            NewConnectionLimits(int64(cfg.MaxClientsPerSession)*4, 32, 10, 20),
		correctionLimiter: rate.NewLimiter(rate.Limit(cfg.CorrectionRatePerSec), cfg.CorrectionRateBurst),
		redisPing:         redisPing,
		postgresPing:      postgresPing,
		startTime:         time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// correlationMiddleware attaches a correlation ID to every request context so
// all request-scoped logs can be tied together.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get("X-Correlation-ID")
			if id == "" {
				id = correlation.NewID()
			}
			c.SetRequest(req.WithContext(correlation.WithID(req.Context(), id)))
			c.Response().Header().Set("X-Correlation-ID", id)
			return next(c)
		}
	}
}
