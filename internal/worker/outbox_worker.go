package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"termin/internal/config"
	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/metrics"
	"termin/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// taskLease bounds how long a claimed task stays invisible to polling.
const taskLease = 5 * time.Minute

// BookingLoader fetches the current state of a booking before a task is applied.
type BookingLoader interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
}

// IntakeNotifications re-sends the submission e-mails.
type IntakeNotifications interface {
	SendReceived(ctx context.Context, b *models.Booking) error
	SendStaffNew(ctx context.Context, b *models.Booking) error
}

// ConfirmationSender re-sends the confirmation e-mail with its receipt.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, b *models.Booking) error
}

// OutboxWorker persists side effects of booking changes in the outbox table
// and applies them in the background, retrying failures with backoff.
type OutboxWorker struct {
	store         domain.OutboxRepository
	bookings      BookingLoader
	notifier      IntakeNotifications
	confirmations ConfirmationSender
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.OutboxTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	now           func() time.Time
	logger        *zerolog.Logger
}

func NewOutboxWorker(
	store domain.OutboxRepository,
	bookings BookingLoader,
	redisClient *redis.Client,
	cfg config.OutboxConfig,
	logger *zerolog.Logger,
) *OutboxWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &OutboxWorker{
		store:         store,
		bookings:      bookings,
		redis:         redisClient,
		retryPolicy:   PolicyFromConfig(cfg),
		queue:         make(chan models.OutboxTask, models.WorkerQueueSize),
		redisQueueKey: cfg.RedisQueueKey,
		deadLetterKey: cfg.DeadLetterKey,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		now:           time.Now,
		logger:        logger,
	}
	if w.redisQueueKey == "" {
		w.redisQueueKey = "termin:outbox"
	}
	if w.deadLetterKey == "" {
		w.deadLetterKey = "termin:outbox:deadletter"
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 2 * time.Second
	}
	if w.batchSize <= 0 {
		w.batchSize = 20
	}
	return w
}

func (w *OutboxWorker) WithNotifier(n IntakeNotifications) *OutboxWorker {
	w.notifier = n
	return w
}

func (w *OutboxWorker) WithConfirmations(c ConfirmationSender) *OutboxWorker {
	w.confirmations = c
	return w
}

// WithSheets enables sheets_upsert tasks. Without it they are not queued at all.
func (w *OutboxWorker) WithSheets(s domain.SheetsWriter) *OutboxWorker {
	w.sheets = s
	return w
}

// Handles reports whether the worker has a handler configured for kind.
func (w *OutboxWorker) Handles(kind string) bool {
	switch kind {
	case models.TaskNotifyReceived, models.TaskNotifyStaff:
		return w.notifier != nil
	case models.TaskNotifyConfirmed:
		return w.confirmations != nil
	case models.TaskSheetsUpsert:
		return w.sheets != nil
	default:
		return false
	}
}

// Enqueue persists the task and schedules it via redis or the in-memory queue.
// Kinds without a configured handler are dropped silently.
func (w *OutboxWorker) Enqueue(ctx context.Context, kind string, bookingID int64) error {
	if kind == "" {
		return errors.New("task kind is required")
	}
	if bookingID == 0 {
		return errors.New("booking id is required")
	}
	if !w.Handles(kind) {
		return nil
	}

	task := models.OutboxTask{
		Kind:      kind,
		BookingID: bookingID,
		Status:    models.TaskStatusPending,
	}
	if err := w.store.CreateOutboxTask(ctx, &task); err != nil {
		return fmt.Errorf("persist outbox task: %w", err)
	}
	metrics.IncOutboxTask(kind, "enqueued")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, &task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		// polling will pick it up
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

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

		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending outbox tasks")
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// RunOnce applies one batch of due tasks from the table and returns how many were processed.
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.store.GetPendingOutboxTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		w.processTask(ctx, t)
	}
	return len(tasks), nil
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.OutboxTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxTask, bool) {
	if w.redis == nil {
		return models.OutboxTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.OutboxTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.OutboxTask{}, false
	}
	if len(res) != 2 {
		return models.OutboxTask{}, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.OutboxTask{}, false
	}
	return task, true
}

// processTask claims the row first: the same task can arrive from a poll and from a queue copy.
func (w *OutboxWorker) processTask(ctx context.Context, queued *models.OutboxTask) {
	log := w.logger.With().Int64("task_id", queued.ID).Str("kind", queued.Kind).Int64("booking_id", queued.BookingID).Logger()

	task, err := w.store.ClaimOutboxTask(ctx, queued.ID, taskLease)
	if err != nil {
		log.Error().Err(err).Msg("claim outbox task")
		return
	}
	if task == nil {
		log.Debug().Msg("outbox task already taken")
		return
	}

	booking, err := w.bookings.GetBooking(ctx, task.BookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.apply(ctx, task.Kind, booking); err != nil {
		log.Warn().Err(err).Int("attempt", task.RetryCount+1).Msg("outbox task failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("mark completed")
	}
	metrics.IncOutboxTask(task.Kind, models.TaskStatusCompleted)
	log.Debug().Msg("outbox task completed")
}

func (w *OutboxWorker) apply(ctx context.Context, kind string, b *models.Booking) error {
	switch kind {
	case models.TaskNotifyReceived:
		return w.notifier.SendReceived(ctx, b)
	case models.TaskNotifyStaff:
		return w.notifier.SendStaffNew(ctx, b)
	case models.TaskNotifyConfirmed:
		if b.Status != models.StatusConfirmed {
			// cancelled after confirmation, the mail is moot
			return nil
		}
		return w.confirmations.SendConfirmation(ctx, b)
	case models.TaskSheetsUpsert:
		return w.sheets.UpsertBooking(ctx, b)
	default:
		return fmt.Errorf("unknown task kind: %s", kind)
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	metrics.IncOutboxTask(task.Kind, models.TaskStatusRetry)
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncOutboxTask(task.Kind, models.TaskStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("kind", task.Kind).
		Int64("booking_id", task.BookingID).Msg("outbox task moved to dead letter")

	msg := cause.Error()
	task.Status = models.TaskStatusFailed
	task.LastError = &msg
	w.pushDeadLetter(ctx, task)
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, task *models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.OutboxTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
