package dto

import (
	"time"

	"github.com/EternisAI/silo-runners/internal/ledger"
)

type AuditEntryResponse struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	AgentID   string         `json:"agent_id,omitempty"`
	Kind      string         `json:"kind"`
	Outcome   string         `json:"outcome"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	Count   int                  `json:"count"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

type SecurityEventResponse struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Actor          string         `json:"actor"`
	AgentID        string         `json:"agent_id,omitempty"`
	Kind           string         `json:"kind"`
	Severity       string         `json:"severity"`
	OriginalLabels []string       `json:"original_labels,omitempty"`
	ObservedLabels []string       `json:"observed_labels,omitempty"`
	ActionTaken    string         `json:"action_taken,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

type ListSecurityEventsResponse struct {
	Events []SecurityEventResponse `json:"events"`
	Count  int                     `json:"count"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

func NewAuditEntryResponse(e ledger.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		AgentID:   e.AgentID,
		Kind:      string(e.Kind),
		Outcome:   string(e.Outcome),
		Payload:   e.Payload,
	}
}

func NewSecurityEventResponse(e ledger.SecurityEvent) SecurityEventResponse {
	return SecurityEventResponse{
		ID:             e.ID,
		Timestamp:      e.Timestamp,
		Actor:          e.Actor,
		AgentID:        e.AgentID,
		Kind:           string(e.Kind),
		Severity:       string(e.Severity),
		OriginalLabels: e.OriginalLabels,
		ObservedLabels: e.ObservedLabels,
		ActionTaken:    e.ActionTaken,
		Payload:        e.Payload,
	}
}
