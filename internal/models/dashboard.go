package models

import "time"

// BookingFilter narrows staff booking listings. Zero values mean "no filter".
type BookingFilter struct {
	Status string
	From   time.Time
	To     time.Time
	Search string
	Limit  int
	Offset int
}

type DayCount struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
}

// Dashboard is the staff overview: today's schedule, pending work and the week ahead.
type Dashboard struct {
	Today          string     `json:"today"`
	TodaysBookings []*Booking `json:"todays_bookings"`
	PendingCount   int        `json:"pending_count"`
	ChartLabels    []string   `json:"chart_labels"`
	ChartValues    []int      `json:"chart_values"`
	ChartTotal     int        `json:"chart_total"`
}
