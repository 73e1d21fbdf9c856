package models

const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

// Ограничения длины полей заявки, в символах.
const (
	MaxNameLength  = 100
	MaxEmailLength = 254
	MaxPhoneLength = 30
)

const (
	TemplateBookingReceived  = "booking_received"
	TemplateNewBookingAdmin  = "new_booking_admin"
	TemplateBookingConfirmed = "booking_confirmed"
)

// TemplateKeys: все шаблоны уведомлений, которые ищет приложение
var TemplateKeys = []string{
	TemplateBookingReceived,
	TemplateNewBookingAdmin,
	TemplateBookingConfirmed,
}

// Префиксы callback data кнопок в чате персонала, дальше идёт ID заявки
const (
	CallbackConfirm = "confirm:"
	CallbackCancel  = "cancel:"
)

const (
	TaskNotifyReceived  = "notify_received"
	TaskNotifyStaff     = "notify_staff"
	TaskNotifyConfirmed = "notify_confirmed"
	TaskSheetsUpsert    = "sheets_upsert"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusRetry      = "retry"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DateTimeLayout = "2006-01-02 15:04:05"

	// OpenHour первый час приёма (включительно)
	OpenHour = 9
	// CloseHour конец рабочего дня (не включительно)
	CloseHour = 18

	// DashboardDays сколько дней (включая сегодня) показывает дашборд
	DashboardDays = 7

	// DefaultListLimit размер страницы списка заявок по умолчанию
	DefaultListLimit = 50

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// SubmissionRateLimit количество заявок с одного адреса в окне
	SubmissionRateLimit = 5

	// SubmissionRateWindow окно ограничения частоты заявок
	SubmissionRateWindow = 10 * 60 // 10 минут в секундах
)

func IsTemplateKey(key string) bool {
	for _, k := range TemplateKeys {
		if k == key {
			return true
		}
	}
	return false
}
