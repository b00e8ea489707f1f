package ledger

import (
	"time"
)

type Kind string

const (
	KindProvision           Kind = "provision"
	KindDeprovision         Kind = "deprovision"
	KindReconcileTransition Kind = "reconcile_transition"
	KindPolicyChange        Kind = "policy_change"
)

type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

type SecurityKind string

const (
	SecurityLabelPolicyViolation    SecurityKind = "label_policy_violation"
	SecurityQuotaExceeded           SecurityKind = "quota_exceeded"
	SecurityOrphanedPlatformAgent   SecurityKind = "orphaned_platform_agent"
	SecurityUnexpectedDisappearance SecurityKind = "unexpected_disappearance"
	SecurityLabelDrift              SecurityKind = "label_drift"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Actor used for entries produced by the reconciler.
const SystemActor = "system:reconciler"

// AuditEntry is an immutable record of a decision or state change.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Actor     string
	AgentID   string
	Kind      Kind
	Outcome   Outcome
	Payload   map[string]any
}

// SecurityEvent is an AuditEntry with a severity and, where relevant, the
// label sets involved.
type SecurityEvent struct {
	ID             string
	Timestamp      time.Time
	Actor          string
	AgentID        string
	Kind           SecurityKind
	Severity       Severity
	OriginalLabels []string
	ObservedLabels []string
	ActionTaken    string
	Payload        map[string]any
}

// Entries groups everything one state change writes to the ledger.
type Entries struct {
	Audit    []AuditEntry
	Security []SecurityEvent
}

func (e *Entries) AddAudit(a AuditEntry) {
	e.Audit = append(e.Audit, a)
}

func (e *Entries) AddSecurity(s SecurityEvent) {
	e.Security = append(e.Security, s)
}

func (e *Entries) Empty() bool {
	return len(e.Audit) == 0 && len(e.Security) == 0
}
