package kafka

import (
	"encoding/json"
	"testing"
)

func TestNewFulfillmentEvent(t *testing.T) {
	event := NewFulfillmentEvent(EventTypeFulfillmentRetrying, "order-1", map[string]interface{}{
		"attempt": 2,
	})

	if event.EventType != EventTypeFulfillmentRetrying {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.OrderID != "order-1" {
		t.Fatalf("unexpected order id: %s", event.OrderID)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("timestamp must be set")
	}
	if event.Metadata["attempt"] != 2 {
		t.Fatalf("unexpected metadata: %v", event.Metadata)
	}
}

func TestNewAlertEvent(t *testing.T) {
	event := NewAlertEvent("alert-1", "order failed", "details")

	if event.EventType != EventTypeAlert {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.ID != "alert-1" || event.Subject != "order failed" || event.Body != "details" {
		t.Fatalf("unexpected event fields: %+v", event)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("timestamp must be set")
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["event_type"] != "alert.raised" {
		t.Fatalf("unexpected event_type: %v", decoded["event_type"])
	}
}

func TestFulfillmentEvent_JSON(t *testing.T) {
	event := NewFulfillmentEvent(EventTypeFulfillmentDone, "order-1", nil)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["event_type"] != "fulfillment.fulfilled" {
		t.Fatalf("unexpected event_type: %v", decoded["event_type"])
	}
	if _, ok := decoded["metadata"]; ok {
		t.Fatal("empty metadata must be omitted")
	}
}
