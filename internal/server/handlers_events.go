package server

import (
	"net/http"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/httperrors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type sendGiftRequest struct {
	SenderID  string `json:"sender_id"`
	CreatorID string `json:"creator_id"`
	GiftID    string `json:"gift_id"`
	Amount    int64  `json:"amount"`
}

func (s *Server) handleSendGift(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperrors.ValidationError("invalid session id")
	}

	var req sendGiftRequest
	if err := c.Bind(&req); err != nil {
		return httperrors.ValidationError("invalid request body")
	}
	if req.CreatorID == "" {
		return httperrors.ValidationError("creator_id is required")
	}
	if req.Amount <= 0 {
		return httperrors.ValidationError("amount must be positive")
	}

	combo, err := s.app.SendGift(c.Request().Context(), sessionID, domain.GiftPayload{
		SenderID:  req.SenderID,
		CreatorID: req.CreatorID,
		GiftID:    req.GiftID,
		Amount:    req.Amount,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"combo_count":     combo.ComboCount,
		"hype_multiplier": combo.HypeMultiplier,
	})
}

type reportBattleRequest struct {
	WinnerID string `json:"winner_id"`
	LoserID  string `json:"loser_id"`
}

func (s *Server) handleReportBattle(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperrors.ValidationError("invalid session id")
	}

	var req reportBattleRequest
	if err := c.Bind(&req); err != nil {
		return httperrors.ValidationError("invalid request body")
	}
	if req.WinnerID == "" || req.LoserID == "" {
		return httperrors.ValidationError("winner_id and loser_id are required")
	}

	row, err := s.app.ReportBattle(c.Request().Context(), sessionID, domain.BattlePayload{
		WinnerID: req.WinnerID,
		LoserID:  req.LoserID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"winner_id":       row.CreatorID,
		"composite_score": row.CompositeScore,
		"win_streak":      row.BattleWinStreak,
	})
}

type watchTimeRequest struct {
	Points int64 `json:"points"`
}

func (s *Server) handleRecordWatchTime(c echo.Context) error {
	creatorID := c.Param("creator_id")

	var req watchTimeRequest
	if err := c.Bind(&req); err != nil {
		return httperrors.ValidationError("invalid request body")
	}
	if req.Points <= 0 {
		return httperrors.ValidationError("points must be positive")
	}

	row, err := s.app.RecordWatchTime(c.Request().Context(), creatorID, req.Points)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"creator_id":      row.CreatorID,
		"composite_score": row.CompositeScore,
	})
}
