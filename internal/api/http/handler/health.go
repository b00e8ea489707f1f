package handler

import (
	"net/http"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a background component is healthy.
type HealthChecker interface {
	Healthy() bool
}

type HealthHandler struct {
	reconciler HealthChecker
}

func NewHealthHandler(reconciler HealthChecker) *HealthHandler {
	return &HealthHandler{reconciler: reconciler}
}

// Check stays 200 while the reconciler is failing so that a platform outage
// does not take the API out of rotation.
func (h *HealthHandler) Check(ctx *gin.Context) {
	resp := dto.HealthResponse{Status: "ok"}
	if h.reconciler != nil {
		resp.Reconciler = "ok"
		if !h.reconciler.Healthy() {
			resp.Reconciler = "degraded"
		}
	}
	ctx.JSON(http.StatusOK, resp)
}
