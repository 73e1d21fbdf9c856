package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(submissions.WithLabelValues("accepted"))
	IncSubmission("accepted")
	assert.Equal(t, before+1, testutil.ToFloat64(submissions.WithLabelValues("accepted")))

	IncNotification("booking_confirmed", nil)
	IncNotification("booking_confirmed", errors.New("smtp"))
	assert.GreaterOrEqual(t, testutil.ToFloat64(notifications.WithLabelValues("booking_confirmed", "ok")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(notifications.WithLabelValues("booking_confirmed", "error")), 1.0)

	IncConfirmation("sent")
	IncOutboxTask("sheets_upsert", "completed")
	assert.GreaterOrEqual(t, testutil.ToFloat64(outboxTasks.WithLabelValues("sheets_upsert", "completed")), 1.0)

	IncBotCommand("today", nil)
	assert.GreaterOrEqual(t, testutil.ToFloat64(botCommands.WithLabelValues("today", "ok")), 1.0)
	assert.NotPanics(t, func() { ObserveBotUpdate(0.01) })
}
