package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"termin/internal/config"
	"termin/internal/database"
	"termin/internal/document"
	"termin/internal/domain"
	"termin/internal/models"
	"termin/internal/repository"
	"termin/internal/service"
	"termin/internal/templates"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	staffUser     = "staff"
	staffPassword = "s3cret"
	readerKey     = "reader-key"
	opsKey        = "ops-key"
)

type recordingMail struct {
	mu   sync.Mutex
	sent []domain.Message
}

func (m *recordingMail) Send(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMail) messages() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.sent...)
}

type testEnv struct {
	db            *database.DB
	mail          *recordingMail
	bookings      *service.BookingService
	confirmations *service.ConfirmationService
	staff         *StaffAuth
	apiCfg        config.APIConfig
	srv           *HTTPServer
}

type envOption func(*testEnv, *Deps)

func withAPIRateLimit(rps float64, burst int) envOption {
	return func(e *testEnv, _ *Deps) {
		e.apiCfg.RateLimit = config.APIRateLimitConfig{RPS: rps, Burst: burst}
	}
}

func withSubmissionLimit(limit int) envOption {
	return func(e *testEnv, _ *Deps) {
		e.bookings.WithRateLimit(repository.NewMemoryRateLimiter(), limit, time.Minute)
	}
}

func withOperatorViews(backupDir string) envOption {
	return func(e *testEnv, d *Deps) {
		logger := zerolog.Nop()
		d.Outbox = e.db
		d.Backups = database.NewBackupService(e.db, config.BackupConfig{StoragePath: backupDir}, &logger)
	}
}

func withTrustedProxies(cidrs ...string) envOption {
	return func(e *testEnv, _ *Deps) {
		e.apiCfg.HTTP.TrustedProxies = cidrs
	}
}

func withExportDir(dir string) envOption {
	return func(_ *testEnv, d *Deps) {
		d.ExportDir = dir
	}
}

// newTestEnv wires the real services over in-memory SQLite; "now" is 2025-03-01 12:00 UTC.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	mail := &recordingMail{}
	notifier := service.NewNotifier(mail, templates.NewResolver(db, nil), service.NotifierConfig{
		From:         "noreply@example.com",
		StaffAddress: "staff@example.com",
		AppName:      "Termin",
	}, &logger)

	validator := service.NewSlotValidator(db, clock, time.UTC)
	bookings := service.NewBookingService(db, validator, notifier, nil, nil, &logger)
	confirmations := service.NewConfirmationService(db, document.NewReceiptRenderer("Termin"), notifier, nil, nil, &logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(staffPassword), bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		db:            db,
		mail:          mail,
		bookings:      bookings,
		confirmations: confirmations,
		staff: NewStaffAuth(config.StaffConfig{
			Username:     staffUser,
			PasswordHash: string(hash),
			JWTSecret:    "test-secret",
			TokenTTLMin:  60,
		}),
		apiCfg: config.APIConfig{
			Auth: config.APIAuthConfig{
				HeaderAPIKey: "x-api-key",
				APIKeys: []config.APIClientKey{
					{Key: readerKey, Name: "reporting", Permissions: []string{permReadBookings}},
					{Key: opsKey, Name: "ops"},
				},
			},
		},
	}

	deps := Deps{
		Bookings:      bookings,
		Confirmations: confirmations,
		Templates:     db,
		Staff:         env.staff,
		AppName:       "Termin",
	}
	for _, opt := range opts {
		opt(env, &deps)
	}

	env.srv = NewHTTPServer(env.apiCfg, deps, &logger)
	return env
}

func (e *testEnv) seed(t *testing.T, name, date string, hour int, status string) *models.Booking {
	t.Helper()
	d, err := models.ParseDate(date)
	require.NoError(t, err)
	b := &models.Booking{
		Name:   name,
		Email:  strings.ToLower(name) + "@example.com",
		Phone:  "+49 30 000",
		Date:   d,
		Time:   models.TimeOfDay{Hour: hour},
		Status: status,
	}
	require.NoError(t, e.db.CreateBooking(context.Background(), b))
	return b
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	tok, err := e.staff.Login(staffUser, staffPassword)
	require.NoError(t, err)
	return tok.Token
}

// do sends body as JSON unless contentType is given; header pairs follow.
func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) asStaff(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	return e.do(method, target, body, "Authorization", "Bearer "+e.token(t))
}

func (e *testEnv) postForm(target, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}
