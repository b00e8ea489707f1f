package handler

import (
	"net/http"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/EternisAI/silo-runners/internal/api/http/middleware"
	"github.com/EternisAI/silo-runners/internal/policy"
	"github.com/EternisAI/silo-runners/internal/store"
	"github.com/gin-gonic/gin"
)

type PolicyHandler struct {
	store store.PolicyStore
}

func NewPolicyHandler(st store.PolicyStore) *PolicyHandler {
	return &PolicyHandler{store: st}
}

// PutUserPolicy creates or replaces a user policy
// PUT /api/v1/admin/policies/:identity
func (h *PolicyHandler) PutUserPolicy(c *gin.Context) {
	var req dto.UserPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := &policy.UserPolicy{
		Identity:             c.Param("identity"),
		AllowedLabels:        req.AllowedLabels,
		AllowedLabelPatterns: req.AllowedLabelPatterns,
		MaxConcurrentAgents:  req.MaxConcurrentAgents,
		Description:          req.Description,
	}
	if err := policy.ValidateUserPolicy(p); err != nil {
		writeError(c, err)
		return
	}

	saved, err := h.store.UpsertUserPolicy(c.Request.Context(), p, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserPolicyResponse(saved))
}

// GET /api/v1/admin/policies/:identity
func (h *PolicyHandler) GetUserPolicy(c *gin.Context) {
	p, err := h.store.GetUserPolicy(c.Request.Context(), c.Param("identity"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserPolicyResponse(p))
}

// GET /api/v1/admin/policies
func (h *PolicyHandler) ListUserPolicies(c *gin.Context) {
	list, err := h.store.ListUserPolicies(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.UserPolicyResponse, len(list))
	for i := range list {
		out[i] = dto.NewUserPolicyResponse(&list[i])
	}
	c.JSON(http.StatusOK, dto.ListUserPoliciesResponse{Policies: out, Count: len(out)})
}

// DELETE /api/v1/admin/policies/:identity
func (h *PolicyHandler) DeleteUserPolicy(c *gin.Context) {
	if err := h.store.DeleteUserPolicy(c.Request.Context(), c.Param("identity"), actor(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/admin/teams
func (h *PolicyHandler) CreateTeam(c *gin.Context) {
	var req dto.TeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := teamFromRequest(req)
	if err := policy.ValidateTeam(t); err != nil {
		writeError(c, err)
		return
	}

	saved, err := h.store.CreateTeam(c.Request.Context(), t, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewTeamResponse(saved))
}

// UpdateTeam replaces a team's policy
// PUT /api/v1/admin/teams/:id
func (h *PolicyHandler) UpdateTeam(c *gin.Context) {
	var req dto.TeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := teamFromRequest(req)
	t.ID = c.Param("id")
	if err := policy.ValidateTeam(t); err != nil {
		writeError(c, err)
		return
	}

	saved, err := h.store.UpdateTeam(c.Request.Context(), t, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTeamResponse(saved))
}

// GET /api/v1/admin/teams
func (h *PolicyHandler) ListTeams(c *gin.Context) {
	list, err := h.store.ListTeams(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.TeamResponse, len(list))
	for i := range list {
		out[i] = dto.NewTeamResponse(&list[i])
	}
	c.JSON(http.StatusOK, dto.ListTeamsResponse{Teams: out, Count: len(out)})
}

// POST /api/v1/admin/teams/:id/members
func (h *PolicyHandler) AddMember(c *gin.Context) {
	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := policy.RoleMember
	if req.Role != "" {
		role = policy.Role(req.Role)
	}
	m, err := h.store.UpsertMembership(c.Request.Context(), policy.Membership{
		TeamID: c.Param("id"),
		UserID: req.UserID,
		Role:   role,
	}, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMemberResponse(m))
}

// GET /api/v1/admin/teams/:id/members
func (h *PolicyHandler) ListMembers(c *gin.Context) {
	list, err := h.store.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.MemberResponse, len(list))
	for i := range list {
		out[i] = dto.NewMemberResponse(&list[i])
	}
	c.JSON(http.StatusOK, dto.ListMembersResponse{Members: out, Count: len(out)})
}

// DELETE /api/v1/admin/teams/:id/members/:user
func (h *PolicyHandler) RemoveMember(c *gin.Context) {
	if err := h.store.RemoveMembership(c.Request.Context(), c.Param("id"), c.Param("user"), actor(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func teamFromRequest(req dto.TeamRequest) *policy.Team {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &policy.Team{
		Name:                  req.Name,
		Description:           req.Description,
		RequiredLabels:        req.RequiredLabels,
		OptionalLabelPatterns: req.OptionalLabelPatterns,
		MaxConcurrentAgents:   req.MaxConcurrentAgents,
		IsActive:              active,
	}
}

func actor(c *gin.Context) string {
	if id, ok := middleware.Identity(c); ok {
		return id.Subject
	}
	return "unknown"
}
