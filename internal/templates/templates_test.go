package templates

import (
	"context"
	"errors"
	"testing"

	"termin/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTemplateRepo struct {
	mock.Mock
}

func (m *mockTemplateRepo) GetActiveTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailTemplate), args.Error(1)
}

func (m *mockTemplateRepo) GetTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailTemplate), args.Error(1)
}

func (m *mockTemplateRepo) ListTemplates(ctx context.Context) ([]*models.EmailTemplate, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.EmailTemplate), args.Error(1)
}

func (m *mockTemplateRepo) UpsertTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	return m.Called(ctx, tmpl).Error(0)
}

var fields = map[string]string{
	"name":   "Ana",
	"email":  "ana@example.com",
	"phone":  "+49 30 1234",
	"date":   "2025-03-10",
	"time":   "10:00",
	"status": "CONFIRMED",
}

func TestRenderer(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"Plain", "no placeholders", "no placeholders"},
		{"BookingPrefix", "Dear {{ booking.name }}", "Dear Ana"},
		{"NoSpaces", "{{booking.date}} {{booking.time}}", "2025-03-10 10:00"},
		{"BareName", "{{ email }}", "ana@example.com"},
		{"FilterIgnored", "{{ booking.date|date:'D d M' }}", "2025-03-10"},
		{"Unknown", "[{{ booking.missing }}]", "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.tmpl, fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Unclosed", func(t *testing.T) {
		_, err := r.Render("Dear {{ booking.name", fields)
		assert.Error(t, err)
	})
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		repo := new(mockTemplateRepo)
		repo.On("GetActiveTemplate", ctx, models.TemplateBookingConfirmed).Return(nil, nil)

		_, _, ok, err := NewResolver(repo, nil).Resolve(ctx, models.TemplateBookingConfirmed, fields)
		require.NoError(t, err)
		assert.False(t, ok)
		repo.AssertExpectations(t)
	})

	t.Run("InactiveRowIgnored", func(t *testing.T) {
		repo := new(mockTemplateRepo)
		repo.On("GetActiveTemplate", ctx, models.TemplateBookingConfirmed).
			Return(&models.EmailTemplate{Key: models.TemplateBookingConfirmed, Subject: "x", IsActive: false}, nil)

		_, _, ok, err := NewResolver(repo, nil).Resolve(ctx, models.TemplateBookingConfirmed, fields)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Found", func(t *testing.T) {
		repo := new(mockTemplateRepo)
		repo.On("GetActiveTemplate", ctx, models.TemplateBookingConfirmed).Return(&models.EmailTemplate{
			Key:      models.TemplateBookingConfirmed,
			Subject:  "  Booking on {{ booking.date }} confirmed \n",
			Body:     "Dear {{ booking.name }}, see you at {{ booking.time }}.\n",
			IsActive: true,
		}, nil)

		subject, body, ok, err := NewResolver(repo, nil).Resolve(ctx, models.TemplateBookingConfirmed, fields)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Booking on 2025-03-10 confirmed", subject)
		assert.Equal(t, "Dear Ana, see you at 10:00.\n", body)
	})

	t.Run("StorageError", func(t *testing.T) {
		repo := new(mockTemplateRepo)
		repo.On("GetActiveTemplate", ctx, models.TemplateBookingReceived).Return(nil, errors.New("db down"))

		_, _, ok, err := NewResolver(repo, nil).Resolve(ctx, models.TemplateBookingReceived, fields)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}
