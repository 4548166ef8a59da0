package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Topics для Kafka
const (
	TopicSaleEvents      = "sales.events"
	TopicDeadLetterQueue = "sales.events.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderFailedAt      = "x-failed-at"
)

// SaleEvent — конверт события продажи в топике.
type SaleEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	SaleID     string          `json:"sale_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewSaleEvent оборачивает outbox-сообщение в конверт.
// Время события берётся из outbox, а при его отсутствии текущее.
func NewSaleEvent(msg domain.OutboxMessage) SaleEvent {
	occurred := msg.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	var payload json.RawMessage
	if len(msg.Payload) > 0 {
		payload = json.RawMessage(msg.Payload)
	}

	return SaleEvent{
		EventID:    msg.ID,
		EventType:  msg.EventType,
		SaleID:     msg.AggregateID,
		OccurredAt: occurred.UTC(),
		Payload:    payload,
	}
}
