package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/events"
	"termin/internal/metrics"
	"termin/internal/models"

	"github.com/rs/zerolog"
)

// IntakeNotifier sends the two e-mails that follow a new submission.
type IntakeNotifier interface {
	SendReceived(ctx context.Context, b *models.Booking) error
	SendStaffNew(ctx context.Context, b *models.Booking) error
}

// SubmitRequest is a raw customer submission. ClientKey identifies the
// submitter for rate limiting (usually the remote IP) and may be empty.
type SubmitRequest struct {
	Name      string `json:"name" form:"name"`
	Email     string `json:"email" form:"email"`
	Phone     string `json:"phone" form:"phone"`
	Date      string `json:"date" form:"date"`
	Time      string `json:"time" form:"time"`
	ClientKey string `json:"-" form:"-"`
}

type BookingService struct {
	repo      domain.BookingRepository
	validator *SlotValidator
	notifier  IntakeNotifier
	outbox    domain.OutboxEnqueuer
	eventBus  domain.EventPublisher
	staff     domain.StaffNotifier
	limiter   domain.RateLimiter
	limit     int
	window    time.Duration
	logger    *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	validator *SlotValidator,
	notifier IntakeNotifier,
	outbox domain.OutboxEnqueuer,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:      repo,
		validator: validator,
		notifier:  notifier,
		outbox:    outbox,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// WithStaffNotifier mirrors new bookings to a staff channel (Telegram).
func (s *BookingService) WithStaffNotifier(n domain.StaffNotifier) *BookingService {
	s.staff = n
	return s
}

// WithRateLimit caps submissions per client key within window.
func (s *BookingService) WithRateLimit(limiter domain.RateLimiter, limit int, window time.Duration) *BookingService {
	s.limiter = limiter
	s.limit = limit
	s.window = window
	return s
}

// Submit validates and stores a new booking in PENDING, then notifies the
// customer and staff. A non-accepted SlotRejection means nothing was stored.
// Notification failures do not fail the submission; they are queued for retry.
func (s *BookingService) Submit(ctx context.Context, req SubmitRequest) (*models.Booking, SlotRejection, error) {
	if err := s.checkRateLimit(ctx, req.ClientKey); err != nil {
		metrics.IncSubmission("rate_limited")
		return nil, SlotRejection{}, err
	}

	booking, err := parseSubmission(req)
	if err != nil {
		metrics.IncSubmission("invalid")
		return nil, SlotRejection{}, err
	}

	rejection, err := s.validator.Check(ctx, booking.Date, booking.Time, 0)
	if err != nil {
		return nil, SlotRejection{}, err
	}
	if !rejection.Accepted() {
		metrics.IncSubmission(rejection.Rule)
		s.logger.Info().Str("rule", rejection.Rule).Str("date", booking.DateString()).
			Str("time", booking.Time.String()).Msg("submission rejected")
		return nil, rejection, nil
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		// lost the race against a concurrent submission for the same slot
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncSubmission(RuleTaken)
			return nil, DoubleBooked(), nil
		}
		return nil, SlotRejection{}, fmt.Errorf("create booking: %w", err)
	}
	metrics.IncSubmission("accepted")

	s.logger.Info().Int64("booking_id", booking.ID).Str("date", booking.DateString()).
		Str("time", booking.Time.String()).Msg("booking submitted")

	s.publishEvent(events.EventBookingCreated, booking, "customer")
	s.enqueue(ctx, models.TaskSheetsUpsert, booking.ID)

	if err := s.notifier.SendReceived(ctx, booking); err != nil {
		s.enqueue(ctx, models.TaskNotifyReceived, booking.ID)
	}
	if err := s.notifier.SendStaffNew(ctx, booking); err != nil {
		s.enqueue(ctx, models.TaskNotifyStaff, booking.ID)
	}
	if s.staff != nil {
		if err := s.staff.NotifyNewBooking(ctx, booking); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("staff chat notification failed")
		}
	}

	return booking, SlotRejection{}, nil
}

// CheckSlot runs the slot rules without storing anything.
func (s *BookingService) CheckSlot(ctx context.Context, rawDate, rawTime string) (SlotRejection, error) {
	return s.validator.CheckRaw(ctx, rawDate, rawTime, 0)
}

// Reschedule moves a booking to a new slot, re-running the slot rules with
// the booking itself excluded from the conflict check.
func (s *BookingService) Reschedule(ctx context.Context, id int64, rawDate, rawTime string) (*models.Booking, SlotRejection, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, SlotRejection{}, err
	}
	if booking.Status == models.StatusCancelled {
		return nil, SlotRejection{}, ErrInvalidTransition
	}

	fields := map[string]string{}
	date, err := models.ParseDate(rawDate)
	if err != nil {
		fields["date"] = err.Error()
	}
	tod, err := models.ParseTimeOfDay(rawTime)
	if err != nil {
		fields["time"] = err.Error()
	}
	if len(fields) > 0 {
		return nil, SlotRejection{}, &ValidationError{Fields: fields}
	}

	rejection, err := s.validator.Check(ctx, date, tod, id)
	if err != nil {
		return nil, SlotRejection{}, err
	}
	if !rejection.Accepted() {
		return nil, rejection, nil
	}

	if err := s.repo.UpdateBookingSlot(ctx, id, date, tod); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			return nil, DoubleBooked(), nil
		}
		return nil, SlotRejection{}, fmt.Errorf("reschedule booking %d: %w", id, err)
	}
	booking.Date = date
	booking.Time = tod

	s.publishEvent(events.EventBookingRescheduled, booking, "staff")
	s.enqueue(ctx, models.TaskSheetsUpsert, id)

	return booking, SlotRejection{}, nil
}

// Cancel sets PENDING bookings to CANCELLED and returns how many changed.
// Other statuses are left untouched.
func (s *BookingService) Cancel(ctx context.Context, ids []int64) (int, error) {
	count := 0
	for _, id := range ids {
		booking, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			return count, err
		}
		if booking.Status != models.StatusPending {
			continue
		}

		if err := s.repo.UpdateBookingStatus(ctx, id, models.StatusPending, models.StatusCancelled); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) || errors.Is(err, database.ErrNotFound) {
				continue
			}
			return count, fmt.Errorf("cancel booking %d: %w", id, err)
		}
		booking.Status = models.StatusCancelled
		count++

		s.publishEvent(events.EventBookingCancelled, booking, "staff")
		s.enqueue(ctx, models.TaskSheetsUpsert, id)
	}
	return count, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	if filter.Limit <= 0 {
		filter.Limit = models.DefaultListLimit
	}
	return s.repo.ListBookings(ctx, filter)
}

// BookingsBetween returns every booking in [from, to] ordered by date and time, for exports.
func (s *BookingService) BookingsBetween(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	list, err := s.repo.ListBookings(ctx, models.BookingFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartsAt(time.UTC).Before(list[j].StartsAt(time.UTC))
	})
	return list, nil
}

// Today is the current calendar date in the service time zone, at UTC midnight.
func (s *BookingService) Today() time.Time {
	now := s.validator.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Dashboard builds the staff overview for today in the service time zone.
func (s *BookingService) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	today := s.Today()
	weekEnd := today.AddDate(0, 0, models.DashboardDays-1)

	todays, err := s.repo.BookingsOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("today's bookings: %w", err)
	}

	pending, err := s.repo.CountByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending count: %w", err)
	}

	perDay, err := s.repo.CountPerDay(ctx, today, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("bookings per day: %w", err)
	}

	d := &models.Dashboard{
		Today:          today.Format(models.DateLayout),
		TodaysBookings: todays,
		PendingCount:   pending,
		ChartLabels:    make([]string, 0, len(perDay)),
		ChartValues:    make([]int, 0, len(perDay)),
	}
	for day := range perDay {
		d.ChartLabels = append(d.ChartLabels, day)
	}
	sort.Strings(d.ChartLabels)
	for _, day := range d.ChartLabels {
		d.ChartValues = append(d.ChartValues, perDay[day])
		d.ChartTotal += perDay[day]
	}
	if d.TodaysBookings == nil {
		d.TodaysBookings = []*models.Booking{}
	}

	return d, nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, key string) error {
	if s.limiter == nil || key == "" || s.limit <= 0 {
		return nil
	}
	allowed, err := s.limiter.CheckRateLimit(ctx, "submit:"+key, s.limit, s.window)
	if err != nil {
		// limiter outage must not block bookings
		s.logger.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func parseSubmission(req SubmitRequest) (*models.Booking, error) {
	fields := map[string]string{}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		fields["name"] = "This field is required."
	} else if msg := tooLong(name, models.MaxNameLength); msg != "" {
		fields["name"] = msg
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		fields["email"] = "This field is required."
	} else if msg := tooLong(email, models.MaxEmailLength); msg != "" {
		fields["email"] = msg
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "Enter a valid email address."
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		fields["phone"] = "This field is required."
	} else if msg := tooLong(phone, models.MaxPhoneLength); msg != "" {
		fields["phone"] = msg
	}

	var (
		date time.Time
		tod  models.TimeOfDay
		err  error
	)
	if strings.TrimSpace(req.Date) == "" {
		fields["date"] = "This field is required."
	} else if date, err = models.ParseDate(req.Date); err != nil {
		fields["date"] = "Enter a valid date."
	}
	if strings.TrimSpace(req.Time) == "" {
		fields["time"] = "This field is required."
	} else if tod, err = models.ParseTimeOfDay(req.Time); err != nil {
		fields["time"] = "Enter a valid time."
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	return &models.Booking{
		Name:   name,
		Email:  email,
		Phone:  phone,
		Date:   date,
		Time:   tod,
		Status: models.StatusPending,
	}, nil
}

func tooLong(value string, limit int) string {
	n := utf8.RuneCountInString(value)
	if n <= limit {
		return ""
	}
	return fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", limit, n)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewBookingPayload(booking, changedBy)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueue(ctx context.Context, kind string, bookingID int64) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, kind, bookingID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Str("task", kind).Msg("outbox enqueue error")
	}
}
