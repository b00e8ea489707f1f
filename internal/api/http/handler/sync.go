package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/EternisAI/silo-runners/internal/reconcile"
	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	runner *reconcile.Runner
}

func NewSyncHandler(runner *reconcile.Runner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// Trigger runs a reconciliation cycle immediately and waits for it
// POST /api/v1/admin/sync/trigger
func (h *SyncHandler) Trigger(c *gin.Context) {
	res, err := h.runner.Trigger(c.Request.Context())
	switch {
	case errors.Is(err, reconcile.ErrCycleInProgress), errors.Is(err, reconcile.ErrLockHeld):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("Manual reconciliation failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "reconciliation failed",
			"result": dto.NewSyncResultResponse(res),
		})
		return
	}
	c.JSON(http.StatusOK, dto.NewSyncResultResponse(res))
}

// Status reports the reconciler state
// GET /api/v1/admin/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSyncStatusResponse(h.runner.Status(), h.runner.Healthy()))
}
