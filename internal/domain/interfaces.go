package domain

import (
	"context"
	"time"

	"termin/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, from, to string) error
	UpdateBookingSlot(ctx context.Context, id int64, date time.Time, tod models.TimeOfDay) error
	// SlotTaken reports whether a non-cancelled booking other than excludeID occupies date+time.
	// excludeID 0 excludes nothing.
	SlotTaken(ctx context.Context, date time.Time, tod models.TimeOfDay, excludeID int64) (bool, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	CountPerDay(ctx context.Context, from, to time.Time) (map[string]int, error)
	BookingsOn(ctx context.Context, date time.Time) ([]*models.Booking, error)
}

type TemplateRepository interface {
	// GetActiveTemplate returns (nil, nil) when no active template exists for key.
	GetActiveTemplate(ctx context.Context, key string) (*models.EmailTemplate, error)
	GetTemplate(ctx context.Context, key string) (*models.EmailTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.EmailTemplate, error)
	UpsertTemplate(ctx context.Context, tmpl *models.EmailTemplate) error
}

type OutboxRepository interface {
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]*models.OutboxTask, error)
	ClaimOutboxTask(ctx context.Context, id int64, lease time.Duration) (*models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Clock returns the current moment.
type Clock func() time.Time

type DocumentRenderer interface {
	Render(booking *models.Booking) ([]byte, error)
}

type Attachment struct {
	Filename    string
	Data        []byte
	ContentType string
}

type Message struct {
	From       string
	To         []string
	Subject    string
	Body       string
	Attachment *Attachment
}

type MailSender interface {
	Send(ctx context.Context, msg Message) error
}

type TemplateRenderer interface {
	Render(tmpl string, fields map[string]string) (string, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, kind string, bookingID int64) error
}

type StaffNotifier interface {
	NotifyNewBooking(ctx context.Context, booking *models.Booking) error
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TemplateResolver interface {
	// Resolve returns ok=false when no active template exists for key.
	Resolve(ctx context.Context, key string, fields map[string]string) (subject, body string, ok bool, err error)
}
