package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"termin/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSlotValidator_Rules(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		date     string
		time     string
		taken    bool
		wantRule string
	}{
		{"Accepted", "2025-03-10", "10:00", false, ""},
		{"PastDay", "2025-02-28", "10:00", false, RulePast},
		{"EarlierToday", "2025-03-01", "11:59", false, RulePast},
		{"Sunday", "2025-03-09", "10:00", false, RuleSunday},
		{"BeforeOpening", "2025-03-10", "08:30", false, RuleHours},
		{"ClosingHour", "2025-03-10", "18:00", false, RuleHours},
		{"LastSlot", "2025-03-10", "17:59", false, ""},
		{"FirstSlot", "2025-03-10", "09:00", false, ""},
		{"Taken", "2025-03-10", "10:00", true, RuleTaken},
		// only the first failure is reported
		{"PastSundayOutOfHours", "2025-02-23", "07:00", true, RulePast},
		{"SundayOutOfHoursTaken", "2025-03-09", "20:00", true, RuleSunday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			repo.On("SlotTaken", ctx, mock.Anything, mock.Anything, int64(0)).Return(tt.taken, nil).Maybe()

			v := NewSlotValidator(repo, fixedClock, time.UTC)
			rej, err := v.CheckRaw(ctx, tt.date, tt.time, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRule, rej.Rule)
			assert.Equal(t, tt.wantRule == "", rej.Accepted())
		})
	}
}

func TestSlotValidator_Reasons(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("SlotTaken", ctx, mock.Anything, mock.Anything, int64(0)).Return(true, nil)
	v := NewSlotValidator(repo, fixedClock, time.UTC)

	rej, _ := v.CheckRaw(ctx, "2025-02-01", "10:00", 0)
	assert.Equal(t, "You cannot book an appointment in the past.", rej.Reason)

	rej, _ = v.CheckRaw(ctx, "2025-03-09", "10:00", 0)
	assert.Equal(t, "Bookings are not available on Sundays.", rej.Reason)

	rej, _ = v.CheckRaw(ctx, "2025-03-10", "08:30", 0)
	assert.Equal(t, "Bookings are only possible between 09:00 and 18:00.", rej.Reason)

	rej, _ = v.CheckRaw(ctx, "2025-03-10", "10:00", 0)
	assert.Equal(t, "This time slot is already booked. Please choose another time.", rej.Reason)
}

func TestSlotValidator_PastUsesServiceZone(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("SlotTaken", ctx, mock.Anything, mock.Anything, int64(0)).Return(false, nil)

	// 12:00 UTC is 13:00 in a UTC+1 zone, so 12:30 local is already past
	loc := time.FixedZone("UTC+1", 3600)
	v := NewSlotValidator(repo, fixedClock, loc)

	rej, err := v.CheckRaw(ctx, "2025-03-01", "12:30", 0)
	require.NoError(t, err)
	assert.Equal(t, RulePast, rej.Rule)

	rej, err = v.CheckRaw(ctx, "2025-03-01", "13:30", 0)
	require.NoError(t, err)
	assert.True(t, rej.Accepted())
}

func TestSlotValidator_ExcludesEditedRecord(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("SlotTaken", ctx, date("2025-03-10"), models.TimeOfDay{Hour: 10}, int64(7)).Return(false, nil).Once()

	v := NewSlotValidator(repo, fixedClock, time.UTC)
	rej, err := v.Check(ctx, date("2025-03-10"), models.TimeOfDay{Hour: 10}, 7)
	require.NoError(t, err)
	assert.True(t, rej.Accepted())
	repo.AssertExpectations(t)
}

func TestSlotValidator_UnparseableInputSkipsChecks(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	v := NewSlotValidator(repo, fixedClock, time.UTC)

	for _, in := range [][2]string{{"", "10:00"}, {"2025-03-09", ""}, {"yesterday", "10:00"}, {"2025-03-09", "noon"}} {
		rej, err := v.CheckRaw(ctx, in[0], in[1], 0)
		require.NoError(t, err)
		assert.True(t, rej.Accepted(), "%v", in)
	}
	repo.AssertNotCalled(t, "SlotTaken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSlotValidator_LookupError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("SlotTaken", ctx, mock.Anything, mock.Anything, int64(0)).Return(false, errors.New("db locked"))

	v := NewSlotValidator(repo, fixedClock, time.UTC)
	_, err := v.CheckRaw(ctx, "2025-03-10", "10:00", 0)
	assert.Error(t, err)
}

func TestSlotValidator_EveryHour(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("SlotTaken", ctx, mock.Anything, mock.Anything, int64(0)).Return(false, nil)
	v := NewSlotValidator(repo, fixedClock, time.UTC)

	for hour := 0; hour < 24; hour++ {
		rej, err := v.Check(ctx, date("2025-03-10"), models.TimeOfDay{Hour: hour, Minute: 15}, 0)
		require.NoError(t, err)
		if hour >= 9 && hour < 18 {
			assert.True(t, rej.Accepted(), "hour %d", hour)
		} else {
			assert.Equal(t, RuleHours, rej.Rule, "hour %d", hour)
		}
	}
}
