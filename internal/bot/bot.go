package bot

import (
	"context"
	"time"

	"termin/internal/config"
	"termin/internal/metrics"
	"termin/internal/models"
	"termin/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type TelegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	StopReceivingUpdates()
	GetSelf() tgbotapi.User
}

type Bookings interface {
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	Cancel(ctx context.Context, ids []int64) (int, error)
	Dashboard(ctx context.Context) (*models.Dashboard, error)
}

type Confirmations interface {
	ConfirmBookings(ctx context.Context, ids []int64) (service.ConfirmResult, error)
}

// Bot answers staff commands in the staff chat: today's schedule, the
// pending queue, and confirm/cancel by id or by inline button.
type Bot struct {
	tg            TelegramAPI
	bookings      Bookings
	confirmations Confirmations
	staffChatID   int64
	managers      map[int64]bool
	logger        *zerolog.Logger
}

func NewBot(
	tg TelegramAPI,
	bookings Bookings,
	confirmations Confirmations,
	cfg config.TelegramConfig,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	managers := make(map[int64]bool, len(cfg.Managers))
	for _, id := range cfg.Managers {
		managers[id] = true
	}

	return &Bot{
		tg:            tg,
		bookings:      bookings,
		confirmations: confirmations,
		staffChatID:   cfg.StaffChatID,
		managers:      managers,
		logger:        logger,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		metrics.ObserveBotUpdate(time.Since(start).Seconds())
	}()

	// per-update context
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		switch {
		case update.CallbackQuery != nil:
			q := update.CallbackQuery
			if q.From == nil || !b.isStaff(chatOf(q.Message), q.From.ID) {
				return
			}
			b.handleCallback(updateCtx, q)
		case update.Message != nil:
			m := update.Message
			if m.From == nil || !b.isStaff(chatOf(m), m.From.ID) {
				l.Debug().Int64("chat_id", chatOf(m)).Msg("Ignoring message from outside the staff chat")
				return
			}
			b.handleMessage(updateCtx, m)
		}
	})
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncBotCommand("panic", errPanic)
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// isStaff: messages from the staff chat or from a manager in a private chat.
func (b *Bot) isStaff(chatID, userID int64) bool {
	if b.staffChatID != 0 && chatID == b.staffChatID {
		return true
	}
	return b.managers[userID]
}

func chatOf(m *tgbotapi.Message) int64 {
	if m == nil || m.Chat == nil {
		return 0
	}
	return m.Chat.ID
}
