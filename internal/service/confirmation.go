package service

import (
	"context"
	"errors"
	"fmt"

	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/events"
	"termin/internal/metrics"
	"termin/internal/models"

	"github.com/rs/zerolog"
)

// ConfirmResult is the aggregate outcome of a batch confirmation.
// Failed counts bookings whose status was committed but whose receipt
// e-mail could not be sent; those are queued for another attempt.
type ConfirmResult struct {
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
}

func (r ConfirmResult) Message() string {
	return fmt.Sprintf("%d booking(s) confirmed.", r.Confirmed)
}

// ConfirmationNotifier is the mail step of the confirmation workflow.
type ConfirmationNotifier interface {
	SendConfirmed(ctx context.Context, b *models.Booking, receipt []byte) error
}

type ConfirmationService struct {
	repo      domain.BookingRepository
	documents domain.DocumentRenderer
	notifier  ConfirmationNotifier
	outbox    domain.OutboxEnqueuer
	eventBus  domain.EventPublisher
	logger    *zerolog.Logger
}

func NewConfirmationService(
	repo domain.BookingRepository,
	documents domain.DocumentRenderer,
	notifier ConfirmationNotifier,
	outbox domain.OutboxEnqueuer,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *ConfirmationService {
	return &ConfirmationService{
		repo:      repo,
		documents: documents,
		notifier:  notifier,
		outbox:    outbox,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// ConfirmBookings moves each pending booking to CONFIRMED, one at a time.
// Non-pending and unknown ids are skipped. A status write failure stops the
// batch; earlier bookings stay confirmed. A dispatch failure does not stop
// the batch: it is counted in Failed and re-queued through the outbox.
func (s *ConfirmationService) ConfirmBookings(ctx context.Context, ids []int64) (ConfirmResult, error) {
	var result ConfirmResult

	for _, id := range ids {
		booking, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				s.logger.Warn().Int64("booking_id", id).Msg("confirm: booking not found, skipped")
				continue
			}
			return result, fmt.Errorf("load booking %d: %w", id, err)
		}

		if booking.Status != models.StatusPending {
			continue
		}

		if err := s.repo.UpdateBookingStatus(ctx, id, models.StatusPending, models.StatusConfirmed); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) || errors.Is(err, database.ErrNotFound) {
				s.logger.Warn().Int64("booking_id", id).Msg("confirm: booking changed meanwhile, skipped")
				continue
			}
			return result, fmt.Errorf("confirm booking %d: %w", id, err)
		}
		booking.Status = models.StatusConfirmed

		s.publish(booking)
		s.enqueue(ctx, models.TaskSheetsUpsert, id)

		if err := s.SendConfirmation(ctx, booking); err != nil {
			result.Failed++
			metrics.IncConfirmation("dispatch_failed")
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("confirmation dispatch failed, queued for retry")
			s.enqueue(ctx, models.TaskNotifyConfirmed, id)
			continue
		}

		result.Confirmed++
		metrics.IncConfirmation("sent")
	}

	s.logger.Info().Int("confirmed", result.Confirmed).Int("failed", result.Failed).
		Int("selected", len(ids)).Msg("confirmation batch finished")
	return result, nil
}

// SendConfirmation renders the receipt and mails it. It does not touch the status.
func (s *ConfirmationService) SendConfirmation(ctx context.Context, booking *models.Booking) error {
	receipt, err := s.documents.Render(booking)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return s.notifier.SendConfirmed(ctx, booking, receipt)
}

// Receipt renders the PDF for a confirmed booking.
func (s *ConfirmationService) Receipt(ctx context.Context, id int64) (*models.Booking, []byte, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if booking.Status != models.StatusConfirmed {
		return nil, nil, ErrNotConfirmed
	}
	data, err := s.documents.Render(booking)
	if err != nil {
		return nil, nil, fmt.Errorf("render receipt: %w", err)
	}
	return booking, data, nil
}

func (s *ConfirmationService) publish(b *models.Booking) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(events.EventBookingConfirmed, events.NewBookingPayload(b, "staff")); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func (s *ConfirmationService) enqueue(ctx context.Context, kind string, bookingID int64) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, kind, bookingID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Str("task", kind).Msg("outbox enqueue error")
	}
}
