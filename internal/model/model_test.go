package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestQueueStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestQueueItemDue(t *testing.T) {
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		item QueueItem
		want bool
	}{
		{name: "queued, no schedule", item: QueueItem{Status: StatusQueued}, want: true},
		{name: "queued, schedule in the past", item: QueueItem{Status: StatusQueued, ScheduledAt: &past}, want: true},
		{name: "queued, schedule exactly now", item: QueueItem{Status: StatusQueued, ScheduledAt: &now}, want: true},
		{name: "queued, schedule in the future", item: QueueItem{Status: StatusQueued, ScheduledAt: &future}, want: false},
		{name: "processing", item: QueueItem{Status: StatusProcessing}, want: false},
		{name: "sent", item: QueueItem{Status: StatusSent}, want: false},
		{name: "failed", item: QueueItem{Status: StatusFailed, ScheduledAt: &past}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.item.Due(now))
		})
	}
}

func TestParseMailboxProvider(t *testing.T) {
	for _, in := range []string{"gmail", "Gmail", " GMAIL "} {
		p, ok := ParseMailboxProvider(in)
		assert.True(t, ok, in)
		assert.Equal(t, ProviderGmail, p)
	}

	_, ok := ParseMailboxProvider("exchange")
	assert.False(t, ok)
	_, ok = ParseMailboxProvider("")
	assert.False(t, ok)
}

func TestMailboxProviderOAuth(t *testing.T) {
	assert.True(t, ProviderGmail.OAuth())
	assert.True(t, ProviderOutlook.OAuth())
	assert.False(t, ProviderSMTP.OAuth())
}

func TestTokenExpiringWithin(t *testing.T) {
	soon := now.Add(2 * time.Minute)
	later := now.Add(time.Hour)

	assert.False(t, Mailbox{}.TokenExpiringWithin(now, 5*time.Minute), "no expiry means not expiring")
	assert.True(t, Mailbox{TokenExpiry: &soon}.TokenExpiringWithin(now, 5*time.Minute))
	assert.False(t, Mailbox{TokenExpiry: &later}.TokenExpiringWithin(now, 5*time.Minute))
}

func TestRunSummaryAdd(t *testing.T) {
	var s RunSummary
	s.Add(ItemResult{Status: OutcomeSuccess})
	s.Add(ItemResult{Status: OutcomeFailed})
	s.Add(ItemResult{Status: OutcomeSkipped})
	s.Add(ItemResult{Status: OutcomeSkipped})

	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Skipped)
	assert.Len(t, s.Results, 4)
}

func TestRenewalSummaryAdd(t *testing.T) {
	var s RenewalSummary
	s.Add(RenewalResult{Status: RenewalRenewed})
	s.Add(RenewalResult{Status: RenewalFailed})
	s.Add(RenewalResult{Status: RenewalFailed})

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Renewed)
	assert.Equal(t, 2, s.Failed)
}
