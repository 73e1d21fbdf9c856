package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "termin"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Booking submissions by outcome (accepted or the rejecting rule).",
		},
		[]string{"outcome"},
	)

	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_confirmations_total",
			Help:      "Confirmed bookings by dispatch result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outgoing notifications by template key and result.",
		},
		[]string{"kind", "result"},
	)

	outboxTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_tasks_total",
			Help:      "Processed outbox tasks by kind and final status.",
		},
		[]string{"kind", "status"},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Staff bot commands and button presses by result.",
		},
		[]string{"command", "result"},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_update_processing_seconds",
			Help:      "Time spent processing a Telegram update.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, submissions, confirmations, notifications, outboxTasks, botCommands, botUpdateDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func IncConfirmation(result string) {
	confirmations.WithLabelValues(result).Inc()
}

func IncNotification(kind string, err error) {
	notifications.WithLabelValues(kind, resultLabel(err)).Inc()
}

func IncOutboxTask(kind, status string) {
	outboxTasks.WithLabelValues(kind, status).Inc()
}

func IncBotCommand(command string, err error) {
	botCommands.WithLabelValues(command, resultLabel(err)).Inc()
}

func ObserveBotUpdate(seconds float64) {
	botUpdateDuration.Observe(seconds)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
