package service

import (
	"context"
	"fmt"
	"time"

	"termin/internal/domain"
	"termin/internal/models"
)

// Rejection reasons shown verbatim to the customer.
const (
	ReasonPast         = "You cannot book an appointment in the past."
	ReasonSunday       = "Bookings are not available on Sundays."
	ReasonHours        = "Bookings are only possible between 09:00 and 18:00."
	ReasonDoubleBooked = "This time slot is already booked. Please choose another time."
)

// Rule identifiers, used as metric labels and in API responses.
const (
	RulePast   = "past"
	RuleSunday = "sunday"
	RuleHours  = "business_hours"
	RuleTaken  = "double_booking"
)

// SlotRejection is the first rule a candidate slot violated. The zero value means accepted.
type SlotRejection struct {
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (r SlotRejection) Accepted() bool {
	return r.Rule == ""
}

func (r SlotRejection) String() string {
	if r.Accepted() {
		return "accepted"
	}
	return r.Reason
}

// SlotChecker is the persistence query the validator needs.
type SlotChecker interface {
	SlotTaken(ctx context.Context, date time.Time, tod models.TimeOfDay, excludeID int64) (bool, error)
}

type SlotValidator struct {
	slots SlotChecker
	clock domain.Clock
	loc   *time.Location
}

func NewSlotValidator(slots SlotChecker, clock domain.Clock, loc *time.Location) *SlotValidator {
	if clock == nil {
		clock = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SlotValidator{slots: slots, clock: clock, loc: loc}
}

func (v *SlotValidator) Location() *time.Location {
	return v.loc
}

// Now returns the current moment in the service time zone.
func (v *SlotValidator) Now() time.Time {
	return v.clock().In(v.loc)
}

// Check applies the slot rules in order and reports only the first failure.
// excludeID skips the booking being edited in the double-booking check; 0 excludes nothing.
// A non-nil error means the availability lookup itself failed.
func (v *SlotValidator) Check(ctx context.Context, date time.Time, tod models.TimeOfDay, excludeID int64) (SlotRejection, error) {
	if tod.On(date, v.loc).Before(v.Now()) {
		return SlotRejection{Rule: RulePast, Reason: ReasonPast}, nil
	}

	if date.Weekday() == time.Sunday {
		return SlotRejection{Rule: RuleSunday, Reason: ReasonSunday}, nil
	}

	if tod.Hour < models.OpenHour || tod.Hour >= models.CloseHour {
		return SlotRejection{Rule: RuleHours, Reason: ReasonHours}, nil
	}

	taken, err := v.slots.SlotTaken(ctx, date, tod, excludeID)
	if err != nil {
		return SlotRejection{}, fmt.Errorf("check slot %s %s: %w", date.Format(models.DateLayout), tod, err)
	}
	if taken {
		return DoubleBooked(), nil
	}

	return SlotRejection{}, nil
}

// CheckRaw parses form values first. Missing or unparseable input is left
// to the required-field checks, so no rule is applied and the slot is reported accepted.
func (v *SlotValidator) CheckRaw(ctx context.Context, rawDate, rawTime string, excludeID int64) (SlotRejection, error) {
	date, err := models.ParseDate(rawDate)
	if err != nil {
		return SlotRejection{}, nil
	}
	tod, err := models.ParseTimeOfDay(rawTime)
	if err != nil {
		return SlotRejection{}, nil
	}
	return v.Check(ctx, date, tod, excludeID)
}

func DoubleBooked() SlotRejection {
	return SlotRejection{Rule: RuleTaken, Reason: ReasonDoubleBooked}
}
