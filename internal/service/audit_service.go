package service

import (
	"context"

	"github.com/pesio-ai/be-procurement/internal/platform/logger"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/workflow"
)

// auditReaders may query the audit trail.
var auditReaders = []repository.Role{repository.RoleDirector, repository.RoleAudit}

// AuditService exposes the append-only audit trail.
type AuditService struct {
	store repository.Transactor
	log   *logger.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(store repository.Transactor, log *logger.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

// List returns audit entries newest first. Only directors and auditors may
// read the trail.
func (s *AuditService) List(ctx context.Context, actor repository.Actor, f repository.AuditFilter) ([]*repository.AuditEntry, int64, error) {
	if err := workflow.RequireRole(actor, auditReaders...); err != nil {
		return nil, 0, err
	}
	return s.store.Reads().Audit.List(ctx, f)
}

// ── helpers shared by the services ───────────────────────────────────────────

func newAuditEntry(
	actor repository.Actor,
	entityType, entityID string,
	action repository.AuditAction,
	before, after map[string]any,
) *repository.AuditEntry {
	role := string(actor.Role)
	// Client metadata comes straight from request headers; cut it to the
	// column widths so an oversized header cannot make the insert fail.
	return &repository.AuditEntry{
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        action,
		ActorID:       nilIfEmpty(truncate(actor.ID, repository.MaxActorIDLen)),
		ActorUsername: nilIfEmpty(truncate(actor.Username, repository.MaxActorIDLen)),
		ActorRole:     nilIfEmpty(role),
		Changes:       repository.Changes{Before: before, After: after},
		IPAddress:     nilIfEmpty(truncate(actor.IPAddress, repository.MaxIPAddressLen)),
		UserAgent:     nilIfEmpty(truncate(actor.UserAgent, repository.MaxUserAgentLen)),
	}
}

// appendAudit writes the entry and swallows failures after logging them; the
// business operation must not fail because its audit record could not be written.
func appendAudit(ctx context.Context, log *logger.Logger, audit repository.AuditStore, entry *repository.AuditEntry) {
	if err := audit.Append(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("entity_type", entry.EntityType).
			Str("entity_id", entry.EntityID).
			Str("action", string(entry.Action)).
			Msg("Failed to write audit log entry")
	}
}

// diff returns the before/after values of the keys whose values differ.
func diff(before, after map[string]any) (map[string]any, map[string]any) {
	b := make(map[string]any)
	a := make(map[string]any)
	for k, av := range after {
		if bv, ok := before[k]; !ok || bv != av {
			b[k] = before[k]
			a[k] = av
		}
	}
	return b, a
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
