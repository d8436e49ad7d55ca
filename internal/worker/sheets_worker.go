package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loyaltybot/internal/domain"
	"loyaltybot/internal/events"
	"loyaltybot/internal/metrics"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// syncTaskPayload is persisted in SyncTask.Payload as JSON.
type syncTaskPayload struct {
	ApplicationID int64 `json:"application_id"`
}

// Store is the part of the local database the worker uses.
type Store interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	MarkApplicationSynced(ctx context.Context, id int64, sheetRow int) error
	ListUnsynced(ctx context.Context, before time.Time) ([]*models.Application, error)
}

// SheetsClient appends applications to the remote sheet.
type SheetsClient interface {
	AppendRow(ctx context.Context, app *models.Application) (int, error)
	FindApplicationsByCard(ctx context.Context, number string) ([]*models.Application, error)
}

// SheetsWorker appends applications that were saved only locally.
// Tasks live in sync_queue; redis or an in-memory channel only speeds up pickup.
type SheetsWorker struct {
	db            Store
	sheets        SheetsClient
	messenger     domain.Messenger
	events        domain.EventPublisher
	bossID        int64
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	unsyncedGrace time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker with sane defaults. messenger and publisher may be nil.
func NewSheetsWorker(
	db Store,
	sheets SheetsClient,
	messenger domain.Messenger,
	publisher domain.EventPublisher,
	bossID int64,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *SheetsWorker {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		messenger:     messenger,
		events:        publisher,
		bossID:        bossID,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "sync:queue",
		deadLetterKey: "sync:deadletter",
		pollInterval:  5 * time.Second,
		unsyncedGrace: 2 * time.Minute,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueAppend persists an append task for a locally stored application.
func (w *SheetsWorker) EnqueueAppend(ctx context.Context, applicationID int64) error {
	if applicationID == 0 {
		return errors.New("application id is required")
	}

	payloadBytes, err := json.Marshal(syncTaskPayload{ApplicationID: applicationID})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:      models.SyncTaskAppend,
		ApplicationID: applicationID,
		Payload:       string(payloadBytes),
		Status:        models.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}
	metrics.IncSync("queued")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, using memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left to polling")
	}
	return nil
}

// Start runs the loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sync worker started")
	defer w.logger.Info().Msg("sync worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		w.SweepUnsynced(ctx)
		if n := w.ProcessPending(ctx); n == 0 {
			w.sleep(ctx, w.pollInterval)
		}
	}
}

// SweepUnsynced picks up locally saved applications that never got a sync task,
// e.g. when the queue insert failed right after the remote append did.
// Rows younger than unsyncedGrace are skipped: their submit may still be in flight.
// When a task cannot be stored either, the append is attempted inline.
func (w *SheetsWorker) SweepUnsynced(ctx context.Context) int {
	apps, err := w.db.ListUnsynced(ctx, time.Now().Add(-w.unsyncedGrace))
	if err != nil {
		w.logger.Error().Err(err).Msg("list unsynced applications")
		return 0
	}
	for _, app := range apps {
		err := w.EnqueueAppend(ctx, app.ID)
		if err == nil {
			w.logger.Info().Int64("application_id", app.ID).Msg("orphaned application queued")
			continue
		}
		w.logger.Warn().Err(err).Int64("application_id", app.ID).Msg("queue unavailable, appending inline")
		if err := w.appendApplication(ctx, app.ID); err != nil {
			w.logger.Error().Err(err).Int64("application_id", app.ID).Msg("inline append failed")
		}
	}
	return len(apps)
}

// ProcessPending handles due tasks from sync_queue and returns how many were attempted.
func (w *SheetsWorker) ProcessPending(ctx context.Context) int {
	tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending sync tasks")
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *SheetsWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task completed")
	}
	metrics.IncSync(models.SyncStatusCompleted)
}

func (w *SheetsWorker) handleTask(ctx context.Context, taskType string, payload syncTaskPayload) error {
	switch taskType {
	case models.SyncTaskAppend:
		if payload.ApplicationID == 0 {
			return errors.New("application id missing")
		}
		return w.appendApplication(ctx, payload.ApplicationID)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) appendApplication(ctx context.Context, id int64) error {
	app, err := w.db.GetApplication(ctx, id)
	if err != nil {
		return fmt.Errorf("load application %d: %w", id, err)
	}
	if app.Synced && app.SheetRow > 0 {
		return nil
	}

	row, err := w.findAppended(ctx, app)
	if err != nil {
		return err
	}
	if row == 0 {
		row, err = w.sheets.AppendRow(ctx, app)
		if err != nil {
			return err
		}
	}
	app.SheetRow = row

	if err := w.db.MarkApplicationSynced(ctx, app.ID, row); err != nil {
		w.logger.Error().Err(err).Int64("application_id", app.ID).Int("row", row).Msg("mark application synced")
	}
	w.logger.Info().Int64("application_id", app.ID).Int("row", row).Msg("queued application appended")

	w.notify(ctx, app)
	if w.events != nil {
		if err := w.events.PublishJSON(events.EventApplicationSyncedLater, events.ApplicationPayload(app, time.Now())); err != nil {
			w.logger.Warn().Err(err).Msg("publish synced event")
		}
	}
	return nil
}

// findAppended returns the row of an earlier append of the same application, 0 if there was none.
func (w *SheetsWorker) findAppended(ctx context.Context, app *models.Application) (int, error) {
	existing, err := w.sheets.FindApplicationsByCard(ctx, app.CardNumber)
	if err != nil {
		return 0, err
	}
	for _, e := range existing {
		if e.Submitter.TelegramID == app.Submitter.TelegramID && e.Timestamp() == app.Timestamp() {
			return e.SheetRow, nil
		}
	}
	return 0, nil
}

func (w *SheetsWorker) notify(ctx context.Context, app *models.Application) {
	if w.messenger == nil {
		return
	}
	if w.bossID != 0 {
		if _, err := w.messenger.Send(ctx, w.bossID, models.Reply{
			Text:   notifier.ReviewRequest(app),
			Inline: notifier.ReviewKeyboard(app.SheetRow),
		}); err != nil {
			w.logger.Error().Err(err).Int("row", app.SheetRow).Msg("reviewer notification failed")
		}
	}
	if app.Submitter.TelegramID != 0 {
		if _, err := w.messenger.Send(ctx, app.Submitter.TelegramID, models.Reply{
			Text: fmt.Sprintf("✅ Заявка на карту <code>%s</code> попала в таблицу и отправлена на согласование.",
				notifier.Esc(app.CardNumber)),
		}); err != nil {
			w.logger.Warn().Err(err).Int64("chat_id", app.Submitter.TelegramID).Msg("submitter sync notice failed")
		}
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task retry")
	}
	metrics.IncSync(models.SyncStatusRetry)
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next", nextTime).Msg("sync task will retry")
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task failed")
	}
	metrics.IncSync(models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("application_id", task.ApplicationID).Msg("sync task failed")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("deadletter push failed")
		}
	}
	if w.messenger != nil && w.bossID != 0 {
		_, _ = w.messenger.Send(ctx, w.bossID, models.Reply{
			Text: fmt.Sprintf("⚠️ Заявка #%d так и не попала в таблицу: %s", task.ApplicationID, notifier.Esc(cause.Error())),
		})
	}
}

func (w *SheetsWorker) decodePayload(raw string) (syncTaskPayload, error) {
	var payload syncTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
