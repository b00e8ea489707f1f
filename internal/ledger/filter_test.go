package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-5))
	assert.Equal(t, 42, NormalizeLimit(42))
	assert.Equal(t, MaxLimit, NormalizeLimit(5000))
}

func TestAuditFilterMatches(t *testing.T) {
	now := time.Now()
	e := &AuditEntry{Actor: "alice", AgentID: "a1", Kind: KindProvision, Outcome: OutcomeRejected, Timestamp: now}

	assert.True(t, AuditFilter{}.Matches(e))
	assert.True(t, AuditFilter{Actor: "alice", Kind: KindProvision}.Matches(e))
	assert.False(t, AuditFilter{Outcome: OutcomeSuccess}.Matches(e))
	assert.False(t, AuditFilter{AgentID: "a2"}.Matches(e))

	before := now.Add(-time.Minute)
	after := now.Add(time.Minute)
	assert.True(t, AuditFilter{Since: &before, Until: &after}.Matches(e))
	assert.False(t, AuditFilter{Since: &after}.Matches(e))
}

func TestSecurityFilterMatches(t *testing.T) {
	e := &SecurityEvent{Actor: SystemActor, Kind: SecurityLabelDrift, Severity: SeverityHigh, Timestamp: time.Now()}

	assert.True(t, SecurityFilter{Severity: SeverityHigh}.Matches(e))
	assert.False(t, SecurityFilter{Kind: SecurityQuotaExceeded}.Matches(e))
	assert.False(t, SecurityFilter{Actor: "alice"}.Matches(e))
}

func TestFilterNormalized(t *testing.T) {
	f := AuditFilter{Limit: 0, Offset: -1}.Normalized()
	assert.Equal(t, DefaultLimit, f.Limit)
	assert.Zero(t, f.Offset)

	s := SecurityFilter{Limit: 2000}.Normalized()
	assert.Equal(t, MaxLimit, s.Limit)
}

func TestEntries(t *testing.T) {
	var e Entries
	assert.True(t, e.Empty())
	e.AddAudit(AuditEntry{Kind: KindProvision})
	e.AddSecurity(SecurityEvent{Kind: SecurityQuotaExceeded, Severity: SeverityLow})
	assert.False(t, e.Empty())
	assert.True(t, SeverityLow.Valid())
	assert.False(t, Severity("urgent").Valid())
}
