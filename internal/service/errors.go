package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidTransition = errors.New("booking status does not allow this action")
	ErrNotConfirmed      = errors.New("booking is not confirmed")
	ErrRateLimited       = errors.New("too many submissions, try again later")
)

// ValidationError lists missing or malformed submission fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}
