package dto

import (
	"time"

	"github.com/EternisAI/silo-runners/internal/agents"
)

type ProvisionRunnerRequest struct {
	Name          string   `json:"name"`
	NamePrefix    string   `json:"name_prefix"`
	Labels        []string `json:"labels"`
	Ephemeral     bool     `json:"ephemeral"`
	Mode          string   `json:"mode" binding:"omitempty,oneof=registration_token jit"`
	TeamID        string   `json:"team_id"`
	RunnerGroupID int64    `json:"runner_group_id" binding:"omitempty,min=1"`
	DisableUpdate bool     `json:"disable_update"`
}

type RunnerResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Labels              []string   `json:"labels"`
	Status              string     `json:"status"`
	Ephemeral           bool       `json:"ephemeral"`
	Mode                string     `json:"mode"`
	Owner               string     `json:"owner"`
	TeamID              string     `json:"team_id,omitempty"`
	RunnerGroupID       int64      `json:"runner_group_id"`
	PlatformAgentID     *int64     `json:"platform_agent_id,omitempty"`
	CredentialExpiresAt time.Time  `json:"credential_expires_at"`
	ProvisionedAt       time.Time  `json:"provisioned_at"`
	RegisteredAt        *time.Time `json:"registered_at,omitempty"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// ProvisionRunnerResponse carries the one-time credential. It is never
// returned again after this response.
type ProvisionRunnerResponse struct {
	RunnerResponse
	RegistrationToken    string `json:"registration_token,omitempty"`
	JitConfig            string `json:"jit_config,omitempty"`
	ConfigurationCommand string `json:"configuration_command"`
}

type ListRunnersResponse struct {
	Runners []RunnerResponse `json:"runners"`
	Count   int              `json:"count"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func NewRunnerResponse(d *agents.Descriptor) RunnerResponse {
	return RunnerResponse{
		ID:                  d.ID,
		Name:                d.Name,
		Labels:              d.Labels,
		Status:              string(d.Status),
		Ephemeral:           d.Ephemeral,
		Mode:                string(d.IssuanceMode),
		Owner:               d.Owner,
		TeamID:              d.TeamID,
		RunnerGroupID:       d.RunnerGroupID,
		PlatformAgentID:     d.PlatformAgentID,
		CredentialExpiresAt: d.CredentialExpiresAt,
		ProvisionedAt:       d.ProvisionedAt,
		RegisteredAt:        d.RegisteredAt,
		DeletedAt:           d.DeletedAt,
	}
}

func NewProvisionRunnerResponse(d *agents.Descriptor) ProvisionRunnerResponse {
	return ProvisionRunnerResponse{
		RunnerResponse:       NewRunnerResponse(d),
		RegistrationToken:    d.RegistrationToken,
		JitConfig:            d.JitConfig,
		ConfigurationCommand: d.ConfigurationCommand,
	}
}
