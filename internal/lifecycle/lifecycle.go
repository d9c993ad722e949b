// Package lifecycle owns the publication state machine. Transition is pure:
// it mutates the entity in memory and performs no I/O, persistence is the
// caller's job.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/postpulse/api/internal/models"
)

type Event string

const (
	EventEnqueue Event = "enqueue"
	EventClaim   Event = "claim"
	EventRequeue Event = "requeue"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	EventDead    Event = "dead-letter"
	EventCancel  Event = "cancel"
)

type InvalidTransitionError struct {
	From  string
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q from status %q", e.Event, e.From)
}

// SucceedResult carries the provider identifiers recorded on a successful publish.
type SucceedResult struct {
	ProviderPostID  string
	ProviderPostURL string
}

// FailInput carries the failure reason and, when the publication is still
// retry-eligible, the delay before the next attempt.
type FailInput struct {
	Reason     string
	RetryDelay time.Duration
}

// Transition applies ev to pub at time now. On an illegal event the entity is
// left unchanged and an *InvalidTransitionError is returned. arg is the
// event-specific payload: *SucceedResult for EventSucceed, *FailInput for
// EventFail, nil otherwise.
func Transition(pub *models.Publication, ev Event, now time.Time, arg any) error {
	switch ev {
	case EventEnqueue:
		if pub.Status != models.PublicationStatusDraft {
			return &InvalidTransitionError{From: pub.Status, Event: ev}
		}
		pub.Status = models.PublicationStatusQueued

	case EventClaim:
		if pub.Status != models.PublicationStatusQueued {
			return &InvalidTransitionError{From: pub.Status, Event: ev}
		}
		pub.Status = models.PublicationStatusProcessing

	case EventRequeue:
		if pub.Status != models.PublicationStatusFailed || pub.RetryCount >= pub.MaxRetries {
			return &InvalidTransitionError{From: pub.Status, Event: ev}
		}
		pub.Status = models.PublicationStatusQueued
		pub.NextRetryAt = nil

	case EventSucceed:
		if pub.Status != models.PublicationStatusProcessing {
			return &InvalidTransitionError{From: pub.Status, Event: ev}
		}
		res, _ := arg.(*SucceedResult)
		pub.Status = models.PublicationStatusPublished
		if res != nil {
			pub.ProviderPostID = res.ProviderPostID
			pub.ProviderPostURL = res.ProviderPostURL
		}
		publishedAt := now
		pub.PublishedAt = &publishedAt
		pub.NextRetryAt = nil
		pub.Error = ""

	case EventFail:
		if pub.Status != models.PublicationStatusProcessing {
			return &InvalidTransitionError{From: pub.Status, Event: ev}
		}
		in, _ := arg.(*FailInput)
		pub.Status = models.PublicationStatusFailed
		pub.RetryCount++
		if in != nil {
			pub.Error = in.Reason
		}
		if pub.RetryCount < pub.MaxRetries && in != nil && in.RetryDelay > 0 {
			next := now.Add(in.RetryDelay)
			pub.NextRetryAt = &next
		} else {
			pub.NextRetryAt = nil
		}

	case EventDead:
		// Permanent failure: terminal immediately, no retry bookkeeping.
		if pub.Status != models.PublicationStatusProcessing {
			return &InvalidTransitionError{From: pub.Status, Event: ev}
		}
		in, _ := arg.(*FailInput)
		pub.Status = models.PublicationStatusFailed
		if in != nil {
			pub.Error = in.Reason
		}
		pub.NextRetryAt = nil

	case EventCancel:
		if pub.Status != models.PublicationStatusDraft && pub.Status != models.PublicationStatusQueued {
			return &InvalidTransitionError{From: pub.Status, Event: ev}
		}
		pub.Status = models.PublicationStatusCancelled
		pub.NextRetryAt = nil

	default:
		return &InvalidTransitionError{From: pub.Status, Event: ev}
	}

	pub.UpdatedAt = now
	return nil
}
