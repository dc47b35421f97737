package lifecycle

import "time"

// DefaultAccessWindow bounds owner-initiated changes to a project.
const DefaultAccessWindow = 31 * 24 * time.Hour

// WithinAccessWindow reports whether now is still inside the window that
// starts at createdAt. It applies regardless of status.
func WithinAccessWindow(createdAt, now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultAccessWindow
	}
	return now.Before(createdAt.Add(window))
}

// Delivery is a candidate deliverable found in the media folder.
type Delivery struct {
	AssetID   string
	CreatedAt time.Time
}

// EligibleDelivery reports whether an asset created at createdAt counts as a
// new deliverable for a round that started at lastSubmission. Assets created
// at or before the submission never count.
func EligibleDelivery(createdAt, lastSubmission time.Time) bool {
	return createdAt.After(lastSubmission)
}

// SelectDelivery picks the authoritative deliverable: the most recently
// created candidate among those eligible after lastSubmission.
func SelectDelivery(candidates []Delivery, lastSubmission time.Time) (Delivery, bool) {
	var (
		best  Delivery
		found bool
	)
	for _, c := range candidates {
		if !EligibleDelivery(c.CreatedAt, lastSubmission) {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) {
			best = c
			found = true
		}
	}
	return best, found
}

// ActivityInputs are the timestamps that count as project activity.
type ActivityInputs struct {
	CreatedAt       time.Time
	Uploads         []time.Time
	FormSubmissions []time.Time
	DetectedAssets  []time.Time
}

// LastActivity is the latest of the creation time, file uploads, form
// submissions and detected media assets. Unrelated row updates do not count.
func LastActivity(in ActivityInputs) time.Time {
	latest := in.CreatedAt
	for _, group := range [][]time.Time{in.Uploads, in.FormSubmissions, in.DetectedAssets} {
		for _, t := range group {
			if t.After(latest) {
				latest = t
			}
		}
	}
	return latest
}
