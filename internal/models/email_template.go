package models

import "time"

// EmailTemplate is a staff-editable notification text stored in the DB.
// Subject and Body may reference booking fields, e.g. {{ booking.name }}.
type EmailTemplate struct {
	ID          int64     `json:"id" yaml:"-"`
	Key         string    `json:"key" yaml:"key"`
	Description string    `json:"description" yaml:"description"`
	Subject     string    `json:"subject" yaml:"subject"`
	Body        string    `json:"body" yaml:"body"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}
