package service

import (
	"context"
	"io"
	"time"

	"termin/internal/domain"
	"termin/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

var nopLogger = zerolog.New(io.Discard)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) UpdateBookingStatus(ctx context.Context, id int64, from, to string) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *mockRepo) UpdateBookingSlot(ctx context.Context, id int64, d time.Time, tod models.TimeOfDay) error {
	return m.Called(ctx, id, d, tod).Error(0)
}

func (m *mockRepo) SlotTaken(ctx context.Context, d time.Time, tod models.TimeOfDay, exclude int64) (bool, error) {
	args := m.Called(ctx, d, tod, exclude)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockRepo) CountByStatus(ctx context.Context, s string) (int, error) {
	args := m.Called(ctx, s)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) CountPerDay(ctx context.Context, from, to time.Time) (map[string]int, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *mockRepo) BookingsOn(ctx context.Context, d time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockOutbox struct {
	mock.Mock
}

func (m *mockOutbox) Enqueue(ctx context.Context, kind string, bookingID int64) error {
	return m.Called(ctx, kind, bookingID).Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockMail struct {
	mock.Mock
}

func (m *mockMail) Send(ctx context.Context, msg domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, key string, fields map[string]string) (string, string, bool, error) {
	args := m.Called(ctx, key, fields)
	return args.String(0), args.String(1), args.Bool(2), args.Error(3)
}

type mockIntakeNotifier struct {
	mock.Mock
}

func (m *mockIntakeNotifier) SendReceived(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockIntakeNotifier) SendStaffNew(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

type mockConfirmNotifier struct {
	mock.Mock
}

func (m *mockConfirmNotifier) SendConfirmed(ctx context.Context, b *models.Booking, receipt []byte) error {
	return m.Called(ctx, b, receipt).Error(0)
}

type mockDocuments struct {
	mock.Mock
}

func (m *mockDocuments) Render(b *models.Booking) ([]byte, error) {
	args := m.Called(b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type mockStaff struct {
	mock.Mock
}

func (m *mockStaff) NotifyNewBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

// fixedClock returns 2025-03-01 12:00 UTC, a Saturday.
func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func date(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
