package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ayodejiio/gatelink/pkg/logger"
)

// Alert is one operational event published to the alerts exchange.
type Alert struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher fans operational alerts out over AMQP. A nil Publisher is
// valid and silently discards, so call sites never need to branch on
// whether alerting is configured.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends one alert. Failures are logged, never propagated: alerting
// is best-effort and must not take anything else down with it.
func (p *Publisher) Publish(kind, message string, fields map[string]any) {
	if p == nil {
		return
	}

	body, err := json.Marshal(Alert{
		Kind:      kind,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to encode alert", map[string]any{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		logger.Error("Failed to publish alert", map[string]any{
			"kind":  kind,
			"error": err.Error(),
		})
	}
}

// AuditFailure satisfies the audit alerter contract.
func (p *Publisher) AuditFailure(streak int, err error) {
	p.Publish("audit_failure", "audit store keeps failing", map[string]any{
		"streak": streak,
		"error":  err.Error(),
	})
}

// Close tears down the channel and connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.ch.Close(); err != nil {
		logger.Warn("Failed to close AMQP channel", map[string]any{"error": err.Error()})
	}
	if err := p.conn.Close(); err != nil {
		logger.Warn("Failed to close AMQP connection", map[string]any{"error": err.Error()})
	}
}
