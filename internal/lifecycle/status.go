// Package lifecycle holds the project status machine: the closed set of
// statuses, the events that move a project between them, and the pure guard
// functions the services evaluate before touching storage.
package lifecycle

import (
	"database/sql/driver"
	"fmt"
)

type Status string

const (
	StatusDraft                        Status = "draft"
	StatusAwaitingInstructions         Status = "awaiting_instructions"
	StatusEditInProgress               Status = "edit_in_progress"
	StatusVideoIsReady                 Status = "video_is_ready"
	StatusDelivered                    Status = "delivered" // legacy alias of video_is_ready
	StatusComplete                     Status = "complete"
	StatusAwaitingRevisionInstructions Status = "awaiting_revision_instructions"
	StatusRevisionInProgress           Status = "revision_in_progress"
)

var statusLabels = map[Status]string{
	StatusDraft:                        "Draft",
	StatusAwaitingInstructions:         "Awaiting Instructions",
	StatusEditInProgress:               "Edit in Progress",
	StatusVideoIsReady:                 "Video is Ready",
	StatusDelivered:                    "Delivered",
	StatusComplete:                     "Complete",
	StatusAwaitingRevisionInstructions: "Awaiting Revision Instructions",
	StatusRevisionInProgress:           "Revision in Progress",
}

// Statuses returns every defined status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusDraft,
		StatusAwaitingInstructions,
		StatusEditInProgress,
		StatusVideoIsReady,
		StatusDelivered,
		StatusComplete,
		StatusAwaitingRevisionInstructions,
		StatusRevisionInProgress,
	}
}

// ParseStatus converts a stored or user supplied value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// Label is the human readable form used in emails and kanban cards.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// InProgress reports whether an editor is currently working on a cut, i.e.
// whether a newly arrived video counts as a delivery.
func (s Status) InProgress() bool {
	return s == StatusEditInProgress || s == StatusRevisionInProgress
}

// Delivered reports whether the latest cut is waiting for the owner's decision.
func (s Status) Delivered() bool {
	return s == StatusVideoIsReady || s == StatusDelivered
}

// Scan implements sql.Scanner so an unknown value in the database fails at
// read time instead of leaking through as a typo.
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return fmt.Errorf("%w: NULL", ErrUnknownStatus)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrUnknownStatus, src)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
	return string(s), nil
}
