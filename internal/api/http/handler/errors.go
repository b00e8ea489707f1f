package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/EternisAI/silo-runners/internal/issuance"
	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/EternisAI/silo-runners/internal/store"
	"github.com/gin-gonic/gin"
)

// writeError maps domain errors to HTTP responses. Anything unrecognised is
// logged and reported as an internal error.
func writeError(c *gin.Context, err error) {
	var (
		pe  *policy.PolicyError
		nme *policy.NotAMemberError
		tre *policy.TeamRequiredError
		qe  *issuance.QuotaError
		nce *issuance.NameConflictError
		ple *issuance.PlatformError
	)

	switch {
	case errors.As(err, &pe):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "label": pe.Label})
	case errors.As(err, &nme):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "team_id": nme.TeamID})
	case errors.As(err, &tre):
		teams := make([]gin.H, len(tre.Teams))
		for i, t := range tre.Teams {
			teams[i] = gin.H{"id": t.ID, "name": t.Name}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "teams": teams})
	case errors.As(err, &qe):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "current": qe.Current, "limit": qe.Limit})
	case errors.As(err, &nce):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, issuance.ErrNotFound),
		errors.Is(err, policy.ErrPolicyNotFound),
		errors.Is(err, policy.ErrTeamNotFound),
		errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrTeamExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, issuance.ErrInvalidMode),
		errors.Is(err, issuance.ErrNameRequired),
		errors.Is(err, policy.ErrInvalidPolicy):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &ple):
		slog.Warn("Platform call failed", "op", ple.Op, "transient", ple.Transient(), "error", ple.Err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream platform call failed", "transient": ple.Transient()})
	default:
		slog.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
