package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/service"
)

// EventPublisher is the transport the notification publisher writes to.
// *messaging.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NotificationPublisher publishes procurement events to NATS JetStream for
// the notifications service, which fans them out to email and WhatsApp.
//
// Subject convention: <prefix>.<event kind>, e.g.
// notifications.procurement.request.approved
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt workflow operations.
type NotificationPublisher struct {
	nats   EventPublisher
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType      string         `json:"event_type"`
	ActorID        string         `json:"actor_id"`
	RecipientRoles []string       `json:"recipient_roles"`
	ResourceType   string         `json:"resource_type,omitempty"`
	ResourceID     string         `json:"resource_id,omitempty"`
	IsActionable   bool           `json:"is_actionable,omitempty"`
	Severity       string         `json:"severity,omitempty"`
	Category       string         `json:"category,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// recipients maps each event to the roles that hear about it, and whether
// the recipients are expected to act.
var recipients = map[service.EventKind]struct {
	roles      []repository.Role
	actionable bool
}{
	service.EventRequestCreated:  {[]repository.Role{repository.RoleDirector}, true},
	service.EventRequestApproved: {[]repository.Role{repository.RoleProcurement, repository.RoleFinance}, true},
	service.EventRequestRejected: {[]repository.Role{repository.RoleProcurement}, false},
	service.EventRequestPaid:     {[]repository.Role{repository.RoleProcurement, repository.RoleDirector}, false},
	service.EventPaymentRecorded: {[]repository.Role{repository.RoleDirector, repository.RoleFinance}, false},
	service.EventVendorApproved:  {[]repository.Role{repository.RoleProcurement}, false},
	service.EventVendorRejected:  {[]repository.Role{repository.RoleProcurement}, false},
}

// NewNotificationPublisher creates a publisher. A nil publisher turns every
// Notify call into a no-op, which is how the service runs without NATS.
func NewNotificationPublisher(nats EventPublisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, prefix: prefix, log: log, now: time.Now}
}

// Notify publishes a procurement event.
func (p *NotificationPublisher) Notify(ctx context.Context, e service.Event) {
	if p.nats == nil {
		return
	}

	route, ok := recipients[e.Kind]
	if !ok {
		p.log.Warn().Str("event_type", string(e.Kind)).Msg("notification: unknown event kind, dropped")
		return
	}
	roles := make([]string, 0, len(route.roles))
	for _, r := range route.roles {
		roles = append(roles, string(r))
	}

	event := &NotificationEvent{
		EventType:      string(e.Kind),
		ActorID:        e.ActorID,
		RecipientRoles: roles,
		ResourceType:   e.ResourceType,
		ResourceID:     e.ResourceID,
		IsActionable:   route.actionable,
		Severity:       "info",
		Category:       "procurement",
		OccurredAt:     p.now().UTC(),
		Payload:        e.Payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, e.Kind)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", e.ResourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", e.ResourceID).
		Int("recipient_roles", len(roles)).
		Msg("notification: event published")
}
