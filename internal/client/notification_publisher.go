package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
)

// EventApprovalEscalated is published when an overdue approval moves up the ladder.
const EventApprovalEscalated = "approval_escalated"

// publisher is the subset of jetstream.JetStream the publisher needs.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NotificationPublisher publishes approval workflow events to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>
type NotificationPublisher struct {
	js     publisher
	prefix string
	log    *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given JetStream context.
func NewNotificationPublisher(js publisher, prefix string, log *logger.Logger) *NotificationPublisher {
	return &NotificationPublisher{js: js, prefix: prefix, log: log}
}

// Connect dials NATS and returns a JetStream-backed publisher together with the
// connection, which the caller drains on shutdown.
func Connect(url, prefix, clientName string, log *logger.Logger) (*NotificationPublisher, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return NewNotificationPublisher(js, prefix, log), nc, nil
}

// PublishApprovalEscalated notifies the new approver that an overdue approval
// has been escalated to them. The approval id doubles as the JetStream message
// id so a retried publish is deduplicated by the stream.
func (p *NotificationPublisher) PublishApprovalEscalated(ctx context.Context, approvalID, requisitionID, originalApprover, newApprover, reason string, at time.Time) error {
	if p == nil || p.js == nil {
		return nil
	}

	event := &NotificationEvent{
		EventType:    EventApprovalEscalated,
		ActorID:      "system",
		Recipients:   []string{newApprover},
		ResourceType: "requisition",
		ResourceID:   requisitionID,
		IsActionable: true,
		Severity:     "warning",
		Category:     "procurement_approval",
		OccurredAt:   at.UTC(),
		Payload: map[string]interface{}{
			"approval_id":       approvalID,
			"original_approver": originalApprover,
			"new_approver":      newApprover,
			"reason":            reason,
		},
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", EventApprovalEscalated, err)
	}

	subject := p.prefix + "." + EventApprovalEscalated
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(approvalID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("requisition_id", requisitionID).
		Str("approval_id", approvalID).
		Msg("notification: event published")
	return nil
}
