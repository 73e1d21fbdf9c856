package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"termin/internal/metrics"
	"termin/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const pendingListLimit = 20

const helpText = "Commands:\n" +
	"/today - today's bookings\n" +
	"/pending - bookings waiting for confirmation\n" +
	"/stats - bookings for the next 7 days\n" +
	"/confirm <id> [id...] - confirm bookings and send receipts\n" +
	"/cancel <id> [id...] - cancel pending bookings"

var (
	errPanic     = errors.New("panic")
	errNoIDs     = errors.New("no booking ids given")
	errUnknownID = errors.New("booking ids must be positive numbers")
)

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := chatOf(m)
	if !m.IsCommand() {
		b.sendMessage(chatID, helpText)
		return
	}

	command := m.Command()
	var err error
	switch command {
	case "start", "help":
		b.sendMessage(chatID, helpText)
	case "today":
		err = b.showToday(ctx, chatID)
	case "pending":
		err = b.showPending(ctx, chatID)
	case "stats":
		err = b.showStats(ctx, chatID)
	case "confirm":
		err = b.confirm(ctx, chatID, m.CommandArguments())
	case "cancel":
		err = b.cancel(ctx, chatID, m.CommandArguments())
	default:
		command = "unknown"
		b.sendMessage(chatID, "Unknown command.\n\n"+helpText)
	}

	metrics.IncBotCommand(command, err)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("command", command).Msg("Bot command failed")
		b.sendMessage(chatID, "⚠️ "+userError(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	chatID := chatOf(q.Message)
	if chatID == 0 {
		chatID = q.From.ID
	}

	var (
		command string
		err     error
	)
	switch {
	case strings.HasPrefix(q.Data, models.CallbackConfirm):
		command = "confirm_button"
		err = b.confirm(ctx, chatID, strings.TrimPrefix(q.Data, models.CallbackConfirm))
	case strings.HasPrefix(q.Data, models.CallbackCancel):
		command = "cancel_button"
		err = b.cancel(ctx, chatID, strings.TrimPrefix(q.Data, models.CallbackCancel))
	default:
		command = "unknown_button"
	}

	// answer the callback so the client stops the spinner
	answer := "Done"
	if err != nil {
		answer = userError(err)
	}
	if _, reqErr := b.tg.Request(tgbotapi.NewCallback(q.ID, answer)); reqErr != nil {
		zerolog.Ctx(ctx).Warn().Err(reqErr).Msg("Answer callback failed")
	}

	metrics.IncBotCommand(command, err)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("callback", q.Data).Msg("Bot button failed")
	}
}

func (b *Bot) showToday(ctx context.Context, chatID int64) error {
	dash, err := b.bookings.Dashboard(ctx)
	if err != nil {
		return err
	}
	if len(dash.TodaysBookings) == 0 {
		b.sendMessage(chatID, fmt.Sprintf("No bookings for %s.", dash.Today))
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 %s: %d booking(s)\n\n", dash.Today, len(dash.TodaysBookings))
	for _, bk := range dash.TodaysBookings {
		sb.WriteString(bookingLine(bk))
		sb.WriteByte('\n')
	}
	b.sendMessage(chatID, sb.String())
	return nil
}

func (b *Bot) showPending(ctx context.Context, chatID int64) error {
	list, err := b.bookings.ListBookings(ctx, models.BookingFilter{
		Status: models.StatusPending,
		Limit:  pendingListLimit,
	})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		b.sendMessage(chatID, "No pending bookings.")
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⏳ Pending: %d\n\n", len(list))
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list))
	for _, bk := range list {
		sb.WriteString(bookingLine(bk))
		sb.WriteByte('\n')
		rows = append(rows, actionRow(bk.ID))
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
	return nil
}

func (b *Bot) showStats(ctx context.Context, chatID int64) error {
	dash, err := b.bookings.Dashboard(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Pending: %d\n\n", dash.PendingCount)
	for i, label := range dash.ChartLabels {
		if i < len(dash.ChartValues) {
			fmt.Fprintf(&sb, "%s: %d\n", label, dash.ChartValues[i])
		}
	}
	fmt.Fprintf(&sb, "\nTotal: %d", dash.ChartTotal)
	b.sendMessage(chatID, sb.String())
	return nil
}

func (b *Bot) confirm(ctx context.Context, chatID int64, args string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	res, err := b.confirmations.ConfirmBookings(ctx, ids)
	if err != nil {
		return err
	}

	text := res.Message()
	if res.Failed > 0 {
		text += fmt.Sprintf(" %d receipt e-mail(s) failed and will be retried.", res.Failed)
	}
	b.sendMessage(chatID, "✅ "+text)
	return nil
}

func (b *Bot) cancel(ctx context.Context, chatID int64, args string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	n, err := b.bookings.Cancel(ctx, ids)
	if err != nil {
		return err
	}
	b.sendMessage(chatID, fmt.Sprintf("❌ %d booking(s) cancelled.", n))
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send telegram message")
	}
}

// parseIDs accepts ids separated by spaces or commas.
func parseIDs(args string) ([]int64, error) {
	fields := strings.FieldsFunc(args, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, errNoIDs
	}

	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(strings.TrimPrefix(f, "#"), 10, 64)
		if err != nil || id <= 0 {
			return nil, errUnknownID
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func userError(err error) string {
	switch {
	case errors.Is(err, errNoIDs):
		return "Give at least one booking id."
	case errors.Is(err, errUnknownID):
		return "Booking ids must be positive numbers."
	default:
		return "Something went wrong, try again later."
	}
}

func bookingLine(bk *models.Booking) string {
	line := fmt.Sprintf("#%d %s %s %s <%s>", bk.ID, bk.DateString(), bk.Time, bk.Name, bk.Email)
	if bk.Status != models.StatusPending {
		line += " " + bk.Status
	}
	return line
}

func actionRow(id int64) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d", id), fmt.Sprintf("%s%d", models.CallbackConfirm, id)),
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("❌ #%d", id), fmt.Sprintf("%s%d", models.CallbackCancel, id)),
	)
}
