package service

import (
	"context"
	"fmt"
	"strings"

	"termin/internal/domain"
	"termin/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramService mirrors new bookings into the staff chat.
type TelegramService struct {
	bot     domain.TelegramSender
	chatID  int64
	actions bool
}

func NewTelegramService(bot domain.TelegramSender, staffChatID int64) *TelegramService {
	return &TelegramService{
		bot:    bot,
		chatID: staffChatID,
	}
}

// WithActions attaches confirm and cancel buttons to new-booking messages.
// Only useful when the staff bot is polling for button presses.
func (s *TelegramService) WithActions() *TelegramService {
	s.actions = true
	return s
}

func (s *TelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	return s.bot.Send(msg)
}

func (s *TelegramService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return s.bot.Send(msg)
}

func (s *TelegramService) NotifyNewBooking(ctx context.Context, b *models.Booking) error {
	if s.chatID == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	esc := func(v string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, v) }

	var sb strings.Builder
	sb.WriteString("*New booking* \\#")
	sb.WriteString(esc(fmt.Sprintf("%d", b.ID)))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "📅 %s %s\n", esc(b.DateString()), esc(b.Time.String()))
	fmt.Fprintf(&sb, "👤 %s\n", esc(b.Name))
	fmt.Fprintf(&sb, "✉️ %s\n", esc(b.Email))
	if b.Phone != "" {
		fmt.Fprintf(&sb, "📞 %s\n", esc(b.Phone))
	}
	fmt.Fprintf(&sb, "Status: %s", esc(b.Status))

	msg := tgbotapi.NewMessage(s.chatID, sb.String())
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if s.actions && b.Status == models.StatusPending {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", fmt.Sprintf("%s%d", models.CallbackConfirm, b.ID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", fmt.Sprintf("%s%d", models.CallbackCancel, b.ID)),
		))
	}
	_, err := s.bot.Send(msg)
	return err
}
