package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/EternisAI/silo-runners/internal/api/http/dto"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	reader ledger.Reader
}

func NewLedgerHandler(reader ledger.Reader) *LedgerHandler {
	return &LedgerHandler{reader: reader}
}

// GET /api/v1/admin/audit?actor=&agent_id=&kind=&outcome=&since=&until=&limit=&offset=
func (h *LedgerHandler) ListAudit(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := ledger.AuditFilter{
		Actor:   c.Query("actor"),
		AgentID: c.Query("agent_id"),
		Kind:    ledger.Kind(c.Query("kind")),
		Outcome: ledger.Outcome(c.Query("outcome")),
		Since:   q.since,
		Until:   q.until,
		Limit:   q.limit,
		Offset:  q.offset,
	}.Normalized()

	entries, err := h.reader.ListAudit(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]dto.AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = dto.NewAuditEntryResponse(e)
	}
	c.JSON(http.StatusOK, dto.ListAuditResponse{Entries: out, Count: len(out), Limit: f.Limit, Offset: f.Offset})
}

// GET /api/v1/admin/security-events?actor=&agent_id=&kind=&severity=&since=&until=&limit=&offset=
func (h *LedgerHandler) ListSecurityEvents(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	severity := ledger.Severity(c.Query("severity"))
	if severity != "" && !severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown severity %q", severity)})
		return
	}

	f := ledger.SecurityFilter{
		Actor:    c.Query("actor"),
		AgentID:  c.Query("agent_id"),
		Kind:     ledger.SecurityKind(c.Query("kind")),
		Severity: severity,
		Since:    q.since,
		Until:    q.until,
		Limit:    q.limit,
		Offset:   q.offset,
	}.Normalized()

	events, err := h.reader.ListSecurityEvents(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]dto.SecurityEventResponse, len(events))
	for i, e := range events {
		out[i] = dto.NewSecurityEventResponse(e)
	}
	c.JSON(http.StatusOK, dto.ListSecurityEventsResponse{Events: out, Count: len(out), Limit: f.Limit, Offset: f.Offset})
}

type ledgerQuery struct {
	since, until  *time.Time
	limit, offset int
}

func parseQuery(c *gin.Context) (ledgerQuery, error) {
	var q ledgerQuery
	var err error

	if q.since, err = parseTime(c.Query("since")); err != nil {
		return q, fmt.Errorf("invalid since: %w", err)
	}
	if q.until, err = parseTime(c.Query("until")); err != nil {
		return q, fmt.Errorf("invalid until: %w", err)
	}
	if v := c.Query("limit"); v != "" {
		if q.limit, err = strconv.Atoi(v); err != nil {
			return q, fmt.Errorf("invalid limit: %w", err)
		}
	}
	if v := c.Query("offset"); v != "" {
		if q.offset, err = strconv.Atoi(v); err != nil {
			return q, fmt.Errorf("invalid offset: %w", err)
		}
	}
	return q, nil
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
