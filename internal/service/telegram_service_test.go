package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"termin/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramService(t *testing.T) {
	mockSender := new(mockTelegramSender)
	svc := NewTelegramService(mockSender, 555)

	t.Run("SendMessage", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "hello" && msg.ChatID == 123
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendMessage(123, "hello")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("NotifyNewBooking", func(t *testing.T) {
		b := &models.Booking{
			ID: 9, Name: "Ana.B", Email: "ana@example.com",
			Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), Time: models.TimeOfDay{Hour: 10},
			Status: models.StatusPending,
		}
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChatID == 555 &&
				msg.ParseMode == tgbotapi.ModeMarkdownV2 &&
				strings.Contains(msg.Text, `Ana\.B`) &&
				strings.Contains(msg.Text, `2025\-03\-10`)
		})).Return(tgbotapi.Message{}, nil).Once()

		assert.NoError(t, svc.NotifyNewBooking(context.Background(), b))
		mockSender.AssertExpectations(t)
	})

	t.Run("WithActions", func(t *testing.T) {
		sender := new(mockTelegramSender)
		withButtons := NewTelegramService(sender, 555).WithActions()
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			if !ok {
				return false
			}
			kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
			return ok && len(kb.InlineKeyboard) == 1 &&
				*kb.InlineKeyboard[0][0].CallbackData == models.CallbackConfirm+"9" &&
				*kb.InlineKeyboard[0][1].CallbackData == models.CallbackCancel+"9"
		})).Return(tgbotapi.Message{}, nil).Once()

		assert.NoError(t, withButtons.NotifyNewBooking(context.Background(), &models.Booking{ID: 9, Status: models.StatusPending}))
		sender.AssertExpectations(t)
	})

	t.Run("SendError", func(t *testing.T) {
		mockSender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("forbidden")).Once()
		err := svc.NotifyNewBooking(context.Background(), &models.Booking{ID: 1})
		assert.Error(t, err)
	})

	t.Run("NoChatConfigured", func(t *testing.T) {
		quiet := NewTelegramService(new(mockTelegramSender), 0)
		assert.NoError(t, quiet.NotifyNewBooking(context.Background(), &models.Booking{ID: 1}))
	})
}
