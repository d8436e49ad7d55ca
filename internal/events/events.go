// Package events is the in-process bus between the conversation engines and their side effects.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"loyaltybot/internal/models"
)

const (
	EventApplicationSubmitted   = "application_submitted"
	EventApplicationSyncedLater = "application_synced_later"
	EventApplicationApproved    = "application_approved"
	EventApplicationRejected    = "application_rejected"
	EventUserReminded           = "user_reminded"
)

// ApplicationEventPayload is the application snapshot handed to subscribers.
type ApplicationEventPayload struct {
	ApplicationID int64     `json:"application_id,omitempty"`
	SheetRow      int       `json:"sheet_row,omitempty"`
	ChatID        int64     `json:"chat_id"`
	CardNumber    string    `json:"card_number,omitempty"`
	CardType      string    `json:"card_type,omitempty"`
	Status        string    `json:"status,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ChangedByID   int64     `json:"changed_by_id,omitempty"`
	At            time.Time `json:"at"`
}

// ApplicationPayload snapshots app. The caller fills Reason and ChangedByID for verdicts.
func ApplicationPayload(app *models.Application, at time.Time) ApplicationEventPayload {
	return ApplicationEventPayload{
		ApplicationID: app.ID,
		SheetRow:      app.SheetRow,
		ChatID:        app.Submitter.TelegramID,
		CardNumber:    app.CardNumber,
		CardType:      string(app.CardType),
		Status:        string(app.Status),
		At:            at,
	}
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

type EventHandler func(event *Event) error

// EventBus fans an event out to its subscribers synchronously, in subscription order.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler even if one fails and returns the joined failures.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", event.Type, errors.Join(errs...))
	}
	return nil
}

// PublishJSON serializes the payload and publishes it. A nil bus drops the event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
