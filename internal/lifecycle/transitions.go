package lifecycle

import (
	"fmt"
	"slices"
)

// Event is something that happened to a project and may move its status.
type Event string

const (
	EventSubmissionRecorded Event = "submission_recorded"
	EventIntakeSubmitted    Event = "intake_submitted"
	EventVideoDelivered     Event = "video_delivered"
	EventAccepted           Event = "accepted"
	EventRevisionPaid       Event = "revision_paid"
	EventRevisionStarted    Event = "revision_started"
)

type rule struct {
	from []Status
	to   Status
}

func ruleFor(ev Event) (rule, error) {
	switch ev {
	case EventSubmissionRecorded:
		return rule{from: []Status{StatusDraft}, to: StatusAwaitingInstructions}, nil
	case EventIntakeSubmitted:
		return rule{from: []Status{StatusAwaitingInstructions}, to: StatusEditInProgress}, nil
	case EventVideoDelivered:
		return rule{from: []Status{StatusEditInProgress, StatusRevisionInProgress}, to: StatusVideoIsReady}, nil
	case EventAccepted:
		return rule{from: []Status{StatusVideoIsReady, StatusDelivered}, to: StatusComplete}, nil
	case EventRevisionPaid:
		return rule{from: []Status{StatusVideoIsReady, StatusDelivered, StatusComplete}, to: StatusAwaitingRevisionInstructions}, nil
	case EventRevisionStarted:
		return rule{from: []Status{StatusAwaitingRevisionInstructions}, to: StatusRevisionInProgress}, nil
	default:
		return rule{}, fmt.Errorf("%w: %q", ErrUnknownEvent, string(ev))
	}
}

// Next returns the status a project moves to when ev happens in from.
func Next(from Status, ev Event) (Status, error) {
	if !from.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, string(from))
	}
	r, err := ruleFor(ev)
	if err != nil {
		return "", err
	}
	if !slices.Contains(r.from, from) {
		return "", fmt.Errorf("%w: %s cannot happen in %s", ErrInvalidTransition, ev, from)
	}
	return r.to, nil
}

// Sources lists the statuses from which ev is accepted.
func Sources(ev Event) []Status {
	r, err := ruleFor(ev)
	if err != nil {
		return nil
	}
	return slices.Clone(r.from)
}

// Allowed reports whether ev may happen in from.
func Allowed(from Status, ev Event) bool {
	_, err := Next(from, ev)
	return err == nil
}

// MarksSubmission reports whether entering the target of ev starts a new
// editing round, which resets the delivery arrival cutoff.
func MarksSubmission(ev Event) bool {
	return ev == EventIntakeSubmitted || ev == EventRevisionStarted
}
