package events

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"loyaltybot/internal/models"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestPublishJoinsHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	var calls int
	bus.Subscribe("event", func(_ *Event) error { calls++; return errors.New("first") })
	bus.Subscribe("event", func(_ *Event) error { calls++; return nil })
	bus.Subscribe("event", func(_ *Event) error { calls++; return errors.New("third") })

	err := bus.PublishJSON("event", map[string]int{"n": 1})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if calls != 3 {
		t.Errorf("every handler must run, got %d calls", calls)
	}
	if !strings.Contains(err.Error(), "first") || !strings.Contains(err.Error(), "third") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPublishJSONBadPayload(t *testing.T) {
	bus := NewEventBus()
	if err := bus.PublishJSON("event", make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("event", nil); err != nil {
		t.Fatalf("nil bus must drop events, got %v", err)
	}
}

func TestApplicationPayload(t *testing.T) {
	at := time.Date(2026, 3, 5, 12, 0, 0, 0, models.Moscow)
	app := &models.Application{
		ID:         7,
		SheetRow:   42,
		Submitter:  models.User{TelegramID: 100},
		CardNumber: "81234567890",
		CardType:   models.CardTypeBarter,
		Status:     models.StatusPending,
	}

	p := ApplicationPayload(app, at)
	if p.ApplicationID != 7 || p.SheetRow != 42 || p.ChatID != 100 {
		t.Errorf("unexpected ids: %+v", p)
	}
	if p.CardType != "Бартер" || p.Status != string(models.StatusPending) {
		t.Errorf("unexpected card fields: %+v", p)
	}
	if !p.At.Equal(at) {
		t.Errorf("expected At %v, got %v", at, p.At)
	}
}
