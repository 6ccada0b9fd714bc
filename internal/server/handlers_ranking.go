package server

import (
	"net/http"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/httperrors"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleProgress(c echo.Context) error {
	progress, err := s.app.Progress(c.Request().Context(), c.Param("creator_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, progress)
}

type leaderboardRow struct {
	Rank           int    `json:"rank"`
	CreatorID      string `json:"creator_id"`
	CompositeScore int64  `json:"composite_score"`
}

func (s *Server) handleLeaderboard(c echo.Context) error {
	board, err := s.app.Leaderboard(c.Request().Context())
	if err != nil {
		return err
	}

	rows := make([]leaderboardRow, len(board))
	for i, r := range board {
		rows[i] = leaderboardRow{Rank: r.Rank, CreatorID: r.CreatorID, CompositeScore: r.CompositeScore}
	}
	return c.JSON(http.StatusOK, map[string]any{"leaderboard": rows})
}

type correctionRequest struct {
	CreatorID string `json:"creator_id"`
	NewScore  int64  `json:"new_score"`
	Reason    string `json:"reason"`
	ActorID   string `json:"actor_id"`
}

func (s *Server) handleCorrectScore(c echo.Context) error {
	if !s.correctionLimiter.Allow() {
		return httperrors.RateLimitedError("correction rate limit exceeded, retry later")
	}

	var req correctionRequest
	if err := c.Bind(&req); err != nil {
		return httperrors.ValidationError("invalid request body")
	}

	entry, err := s.app.CorrectScore(c.Request().Context(), domain.Correction{
		CreatorID: req.CreatorID,
		NewScore:  req.NewScore,
		Reason:    req.Reason,
		ActorID:   req.ActorID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"audit_id":  entry.ID.String(),
		"old_score": entry.OldScore,
		"new_score": entry.NewScore,
		"old_tier":  entry.OldTier,
		"new_tier":  entry.NewTier,
	})
}

type auditEntryResponse struct {
	ID        string `json:"id"`
	OldScore  int64  `json:"old_score"`
	NewScore  int64  `json:"new_score"`
	OldTier   string `json:"old_tier"`
	NewTier   string `json:"new_tier"`
	Reason    string `json:"reason"`
	ActorID   string `json:"actor_id"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleAuditTrail(c echo.Context) error {
	trail, err := s.app.AuditTrail(c.Request().Context(), c.Param("creator_id"))
	if err != nil {
		return err
	}

	entries := make([]auditEntryResponse, len(trail))
	for i, e := range trail {
		entries[i] = auditEntryResponse{
			ID:        e.ID.String(),
			OldScore:  e.OldScore,
			NewScore:  e.NewScore,
			OldTier:   e.OldTier,
			NewTier:   e.NewTier,
			Reason:    e.Reason,
			ActorID:   e.ActorID,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"audit": entries})
}
