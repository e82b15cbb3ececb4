package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsEmitter публикует доменные события в NATS.
// Публикация не блокирует обработку запроса: клиент NATS буферизует
// сообщения, ошибки только логируются.
type NatsEmitter struct {
	conn   *nats.Conn
	logger *log.Logger
}

// NewNatsEmitter создаёт новый экземпляр NatsEmitter.
func NewNatsEmitter(conn *nats.Conn, logger *log.Logger) *NatsEmitter {
	return &NatsEmitter{conn: conn, logger: logger}
}

// Emit публикует событие в сабжект auction.events.<kind>.
func (e *NatsEmitter) Emit(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Printf("failed to marshal event %s: %v", event.Kind, err)
		return
	}
	subject := "auction.events." + string(event.Kind)
	if err := e.conn.Publish(subject, data); err != nil {
		e.logger.Printf("failed to publish event to %s: %v", subject, err)
	}
}

// LogEmitter пишет события в лог. Используется при локальном запуске без NATS.
type LogEmitter struct {
	Logger *log.Logger
}

// Emit логирует событие.
func (e *LogEmitter) Emit(_ context.Context, event Event) {
	e.Logger.Printf("event %s recipient=%s payload=%v", event.Kind, event.RecipientID, event.Payload)
}
