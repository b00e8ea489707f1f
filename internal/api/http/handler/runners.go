package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/EternisAI/silo-runners/internal/api/http/middleware"
	"github.com/EternisAI/silo-runners/internal/issuance"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/gin-gonic/gin"
)

type RunnersHandler struct {
	engine *issuance.Engine
}

func NewRunnersHandler(engine *issuance.Engine) *RunnersHandler {
	return &RunnersHandler{engine: engine}
}

// Provision issues a credential for a new runner
// POST /api/v1/runners
func (h *RunnersHandler) Provision(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var req dto.ProvisionRunnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.engine.Provision(c.Request.Context(), caller, issuance.Request{
		Name:          req.Name,
		NamePrefix:    req.NamePrefix,
		Labels:        req.Labels,
		Ephemeral:     req.Ephemeral,
		Mode:          agents.IssuanceMode(req.Mode),
		TeamID:        req.TeamID,
		RunnerGroupID: req.RunnerGroupID,
		DisableUpdate: req.DisableUpdate,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Runner provisioned", "agent_id", d.ID, "name", d.Name, "owner", d.Owner)
	c.JSON(http.StatusCreated, dto.NewProvisionRunnerResponse(d))
}

// List returns the runners visible to the caller
// GET /api/v1/runners
func (h *RunnersHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	includeDeleted, _ := strconv.ParseBool(c.DefaultQuery("include_deleted", "false"))

	f := agents.Filter{
		Status:         agents.Status(c.Query("status")),
		IncludeDeleted: includeDeleted,
		Limit:          ledger.NormalizeLimit(limit),
		Offset:         offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(string(f.Status))})
		return
	}

	list, err := h.engine.ListAgents(c.Request.Context(), caller, f)
	if err != nil {
		writeError(c, err)
		return
	}

	runners := make([]dto.RunnerResponse, len(list))
	for i, d := range list {
		runners[i] = dto.NewRunnerResponse(d)
	}
	c.JSON(http.StatusOK, dto.ListRunnersResponse{
		Runners: runners,
		Count:   len(runners),
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
}

// Get returns a single runner
// GET /api/v1/runners/:id
func (h *RunnersHandler) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	d, err := h.engine.GetAgent(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewRunnerResponse(d))
}

// Deprovision removes a runner upstream and marks it deleted
// DELETE /api/v1/runners/:id
func (h *RunnersHandler) Deprovision(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	agentID := c.Param("id")
	if err := h.engine.Deprovision(c.Request.Context(), caller, agentID); err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Runner deprovisioned", "agent_id", agentID, "caller", caller.Identity)
	c.Status(http.StatusNoContent)
}

func callerFrom(c *gin.Context) (issuance.Caller, bool) {
	id, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity not found in context"})
		return issuance.Caller{}, false
	}
	return issuance.Caller{Identity: id.Subject, IsAdmin: id.IsAdmin}, true
}
