package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/EternisAI/silo-runners/internal/auth"
	"github.com/gin-gonic/gin"
)

type TokenHandler struct {
	authService *auth.Service
}

func NewTokenHandler(authService *auth.Service) *TokenHandler {
	return &TokenHandler{authService: authService}
}

// Issue mints a bearer token for a known identity
// POST /api/v1/admin/tokens
func (h *TokenHandler) Issue(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.IssueToken(c.Request.Context(), req.Subject, req.Admin)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownIdentity) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to issue token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	slog.Info("Token issued", "subject", req.Subject, "admin", req.Admin)
	c.JSON(http.StatusCreated, dto.IssueTokenResponse{Token: token})
}
