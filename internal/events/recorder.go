package events

import (
	"context"
	"encoding/json"
	"time"

	"loyaltybot/internal/metrics"
	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
)

// ActivityStore is where the recorder writes the activity log.
type ActivityStore interface {
	LogActivity(ctx context.Context, chatID int64, event string) error
}

var activityNames = map[string]string{
	EventApplicationSubmitted:   models.EventSubmitted,
	EventApplicationSyncedLater: models.EventSyncedLater,
	EventApplicationApproved:    models.EventApproved,
	EventApplicationRejected:    models.EventRejected,
	EventUserReminded:           models.EventReminded,
}

// RegisterActivityRecorder subscribes a handler that mirrors application events into the activity log and metrics.
func RegisterActivityRecorder(bus *EventBus, store ActivityStore, logger *zerolog.Logger) {
	for eventType, activity := range activityNames {
		eventType, activity := eventType, activity
		bus.Subscribe(eventType, func(e *Event) error {
			var p ApplicationEventPayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				logger.Error().Err(err).Str("event", eventType).Msg("bad event payload")
				return err
			}

			switch eventType {
			case EventApplicationSubmitted:
				metrics.IncApplication(p.CardType, "synced")
			case EventApplicationSyncedLater:
				metrics.IncApplication(p.CardType, "synced_later")
			case EventApplicationApproved:
				metrics.IncDecision("approved")
			case EventApplicationRejected:
				metrics.IncDecision("rejected")
			}

			if p.ChatID == 0 {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.LogActivity(ctx, p.ChatID, activity); err != nil {
				// best effort: the event itself already happened
				logger.Warn().Err(err).Int64("chat_id", p.ChatID).Str("event", activity).Msg("failed to log activity")
			}
			return nil
		})
	}
}
