package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/api/internal/models"
)

func newPub(status string) *models.Publication {
	return &models.Publication{
		ID:         "pub_1",
		Provider:   models.ProviderInstagram,
		Status:     status,
		MaxRetries: models.DefaultMaxRetries,
	}
}

func TestTransitionLegalPath(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pub := newPub(models.PublicationStatusDraft)

	require.NoError(t, Transition(pub, EventEnqueue, now, nil))
	assert.Equal(t, models.PublicationStatusQueued, pub.Status)

	require.NoError(t, Transition(pub, EventClaim, now, nil))
	assert.Equal(t, models.PublicationStatusProcessing, pub.Status)

	require.NoError(t, Transition(pub, EventSucceed, now, &SucceedResult{
		ProviderPostID:  "ig_123",
		ProviderPostURL: "https://instagram.com/p/ig_123",
	}))
	assert.Equal(t, models.PublicationStatusPublished, pub.Status)
	assert.Equal(t, "ig_123", pub.ProviderPostID)
	require.NotNil(t, pub.PublishedAt)
	assert.True(t, pub.PublishedAt.Equal(now))
	assert.Nil(t, pub.NextRetryAt)
	assert.True(t, pub.IsTerminal())
}

func TestTransitionIllegalEventLeavesEntityUnchanged(t *testing.T) {
	now := time.Now()
	pub := newPub(models.PublicationStatusPublished)
	before := *pub

	err := Transition(pub, EventClaim, now, nil)

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, models.PublicationStatusPublished, ite.From)
	assert.Equal(t, before, *pub)
}

func TestFailSetsRetryStateWhileEligible(t *testing.T) {
	now := time.Now()
	pub := newPub(models.PublicationStatusProcessing)

	require.NoError(t, Transition(pub, EventFail, now, &FailInput{
		Reason:     "rate limited",
		RetryDelay: 30 * time.Second,
	}))

	assert.Equal(t, models.PublicationStatusFailed, pub.Status)
	assert.Equal(t, 1, pub.RetryCount)
	assert.Equal(t, "rate limited", pub.Error)
	require.NotNil(t, pub.NextRetryAt)
	assert.True(t, pub.NextRetryAt.After(now))
	assert.False(t, pub.IsTerminal())

	require.NoError(t, Transition(pub, EventRequeue, now, nil))
	assert.Equal(t, models.PublicationStatusQueued, pub.Status)
	assert.Nil(t, pub.NextRetryAt)
}

func TestFailBecomesTerminalAtRetryCap(t *testing.T) {
	now := time.Now()
	pub := newPub(models.PublicationStatusProcessing)

	for i := 0; i < pub.MaxRetries; i++ {
		require.NoError(t, Transition(pub, EventFail, now, &FailInput{
			Reason:     "timeout",
			RetryDelay: time.Minute,
		}))
		assert.LessOrEqual(t, pub.RetryCount, pub.MaxRetries)
		if i < pub.MaxRetries-1 {
			require.NoError(t, Transition(pub, EventRequeue, now, nil))
			require.NoError(t, Transition(pub, EventClaim, now, nil))
		}
	}

	assert.Equal(t, pub.MaxRetries, pub.RetryCount)
	assert.Nil(t, pub.NextRetryAt)
	assert.True(t, pub.IsTerminal())

	err := Transition(pub, EventRequeue, now, nil)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
}

func TestDeadLetterSkipsRetryBookkeeping(t *testing.T) {
	now := time.Now()
	pub := newPub(models.PublicationStatusProcessing)

	require.NoError(t, Transition(pub, EventDead, now, &FailInput{Reason: "content policy violation"}))

	assert.Equal(t, models.PublicationStatusFailed, pub.Status)
	assert.Equal(t, 0, pub.RetryCount)
	assert.Nil(t, pub.NextRetryAt)
	assert.True(t, pub.IsTerminal())
}

func TestCancelFromDraftAndQueuedOnly(t *testing.T) {
	now := time.Now()

	for _, status := range []string{models.PublicationStatusDraft, models.PublicationStatusQueued} {
		pub := newPub(status)
		require.NoError(t, Transition(pub, EventCancel, now, nil))
		assert.Equal(t, models.PublicationStatusCancelled, pub.Status)
		assert.True(t, pub.IsTerminal())
	}

	for _, status := range []string{
		models.PublicationStatusProcessing,
		models.PublicationStatusPublished,
		models.PublicationStatusCancelled,
	} {
		pub := newPub(status)
		assert.Error(t, Transition(pub, EventCancel, now, nil), "cancel from %s", status)
	}
}
