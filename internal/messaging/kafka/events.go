package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События фулфилмента
	EventTypeFulfillmentStarted  EventType = "fulfillment.started"
	EventTypeFulfillmentDone     EventType = "fulfillment.fulfilled"
	EventTypeFulfillmentRetrying EventType = "fulfillment.retrying"
	EventTypeFulfillmentFailed   EventType = "fulfillment.failed"

	// События свипера
	EventTypeSweepStarted EventType = "sweep.started"
	EventTypeSweepDone    EventType = "sweep.done"

	// Оповещения оператору
	EventTypeAlert EventType = "alert.raised"
)

// Topics для Kafka
const (
	TopicFulfillmentEvents = "ofs.fulfillment.events"
	TopicAlerts            = "ofs.alerts"
)

// FulfillmentEvent представляет событие обработки заказа
type FulfillmentEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AlertEvent представляет оповещение оператору
type AlertEvent struct {
	EventType EventType `json:"event_type"`
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAlertEvent создает оповещение оператору
func NewAlertEvent(id, subject, body string) *AlertEvent {
	return &AlertEvent{
		EventType: EventTypeAlert,
		ID:        id,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}

// NewFulfillmentEvent создает новое событие фулфилмента
func NewFulfillmentEvent(eventType EventType, orderID string, metadata map[string]interface{}) *FulfillmentEvent {
	return &FulfillmentEvent{
		EventType: eventType,
		OrderID:   orderID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
