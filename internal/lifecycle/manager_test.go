package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"github.com/crmkit/email-gateway/internal/provider"
	"github.com/crmkit/email-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeMailboxes struct {
	boxes map[string]*model.Mailbox

	listDeadline time.Time
	tokenUpdates []string
	watchErr     error
}

func newFakeMailboxes(boxes ...model.Mailbox) *fakeMailboxes {
	f := &fakeMailboxes{boxes: map[string]*model.Mailbox{}}
	for i := range boxes {
		mb := boxes[i]
		f.boxes[mb.ID] = &mb
	}
	return f
}

func (f *fakeMailboxes) GetForTenant(_ context.Context, id, tenantID string) (*model.Mailbox, error) {
	mb := f.boxes[id]
	if mb == nil || mb.TenantID != tenantID {
		return nil, nil
	}
	cp := *mb
	return &cp, nil
}

func (f *fakeMailboxes) ListWatchRenewalDue(_ context.Context, deadline time.Time) ([]model.Mailbox, error) {
	f.listDeadline = deadline
	var out []model.Mailbox
	for _, mb := range f.boxes {
		if !mb.Active || mb.Provider != model.ProviderGmail {
			continue
		}
		if mb.WatchExpiration == nil || !mb.WatchExpiration.After(deadline) {
			out = append(out, *mb)
		}
	}
	return out, nil
}

func (f *fakeMailboxes) UpdateToken(_ context.Context, id, accessToken string, expiry time.Time, _ time.Time) error {
	mb := f.boxes[id]
	if mb == nil {
		return repository.ErrNotFound
	}
	mb.AccessToken = accessToken
	mb.TokenExpiry = &expiry
	f.tokenUpdates = append(f.tokenUpdates, id)
	return nil
}

func (f *fakeMailboxes) UpdateWatch(_ context.Context, id string, expiration time.Time, historyID string, _ time.Time) error {
	if f.watchErr != nil {
		return f.watchErr
	}
	mb := f.boxes[id]
	if mb == nil {
		return repository.ErrNotFound
	}
	mb.WatchExpiration = &expiration
	mb.WatchHistoryID = &historyID
	return nil
}

type fakeRefresher struct {
	byRefresh map[string]*oauth2.Token // keyed by refresh token value
	err       error
	calls     int
}

func (r *fakeRefresher) Refresh(_ context.Context, mb model.Mailbox) (*oauth2.Token, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if mb.RefreshToken == nil {
		return nil, errors.New("no refresh token")
	}
	tok, ok := r.byRefresh[*mb.RefreshToken]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	return tok, nil
}

type fakeWatcher struct {
	result provider.WatchResult
	errFor map[string]error // keyed by access token
	tokens []string
	topics []string
}

func (w *fakeWatcher) RenewWatch(_ context.Context, accessToken, topicName string) (provider.WatchResult, error) {
	w.tokens = append(w.tokens, accessToken)
	w.topics = append(w.topics, topicName)
	if err := w.errFor[accessToken]; err != nil {
		return provider.WatchResult{}, err
	}
	return w.result, nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func gmailBox(id string) model.Mailbox {
	return model.Mailbox{
		ID:       id,
		TenantID: "t-1",
		Email:    id + "@corp.test",
		Provider: model.ProviderGmail,
		Active:   true,
	}
}

func TestRunRenewsMissingSubscriptionAfterTokenExchange(t *testing.T) {
	refresh := "refresh-1"
	mb := gmailBox("mbx-1")
	mb.RefreshToken = &refresh // no access token yet

	boxes := newFakeMailboxes(mb)
	tokens := &fakeRefresher{byRefresh: map[string]*oauth2.Token{
		"refresh-1": {AccessToken: "fresh-token", Expiry: testNow.Add(time.Hour)},
	}}
	wantExp := testNow.Add(7 * 24 * time.Hour)
	watcher := &fakeWatcher{result: provider.WatchResult{Expiration: wantExp, HistoryID: "42"}}

	mgr := New(boxes, tokens, watcher, "projects/p/topics/gmail-push")
	summary, err := mgr.Run(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Renewed)
	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	assert.Equal(t, model.RenewalRenewed, res.Status)
	require.NotNil(t, res.Expiration)
	assert.True(t, res.Expiration.Equal(wantExp))

	// token was exchanged and persisted before the watch call
	assert.Equal(t, []string{"mbx-1"}, boxes.tokenUpdates)
	assert.Equal(t, []string{"fresh-token"}, watcher.tokens)
	assert.Equal(t, []string{"projects/p/topics/gmail-push"}, watcher.topics)

	got := boxes.boxes["mbx-1"]
	require.NotNil(t, got.WatchExpiration)
	assert.True(t, got.WatchExpiration.Equal(wantExp))
	require.NotNil(t, got.WatchHistoryID)
	assert.Equal(t, "42", *got.WatchHistoryID)
}

func TestRunLookaheadWindow(t *testing.T) {
	soon := testNow.Add(23 * time.Hour)
	far := testNow.Add(48 * time.Hour)

	due := gmailBox("mbx-due")
	due.AccessToken = "tok-due"
	due.WatchExpiration = &soon

	notDue := gmailBox("mbx-later")
	notDue.AccessToken = "tok-later"
	notDue.WatchExpiration = &far

	boxes := newFakeMailboxes(due, notDue)
	watcher := &fakeWatcher{result: provider.WatchResult{Expiration: testNow.Add(7 * 24 * time.Hour), HistoryID: "1"}}

	mgr := New(boxes, &fakeRefresher{}, watcher, "topic")
	summary, err := mgr.Run(context.Background(), testNow)
	require.NoError(t, err)

	assert.True(t, boxes.listDeadline.Equal(testNow.Add(24*time.Hour)))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, []string{"tok-due"}, watcher.tokens)
}

func TestRunTokenExchangeFailure(t *testing.T) {
	refresh := "refresh-bad"
	mb := gmailBox("mbx-1")
	mb.RefreshToken = &refresh

	boxes := newFakeMailboxes(mb)
	watcher := &fakeWatcher{}
	mgr := New(boxes, &fakeRefresher{err: errors.New("invalid_grant")}, watcher, "topic")

	summary, err := mgr.Run(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)

	res := summary.Results[0]
	assert.Equal(t, model.RenewalFailed, res.Status)
	assert.Equal(t, "could not obtain access token", res.Error)
	assert.Empty(t, watcher.tokens, "watch must not be attempted without a token")
}

func TestRunProactiveRefreshFailure(t *testing.T) {
	refresh := "refresh-1"
	expiring := testNow.Add(time.Minute)
	mb := gmailBox("mbx-1")
	mb.AccessToken = "stale-token"
	mb.RefreshToken = &refresh
	mb.TokenExpiry = &expiring

	boxes := newFakeMailboxes(mb)
	mgr := New(boxes, &fakeRefresher{err: errors.New("invalid_grant")}, &fakeWatcher{}, "topic")

	summary, err := mgr.Run(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "could not refresh access token", summary.Results[0].Error)
}

func TestRunMissingToken(t *testing.T) {
	mb := gmailBox("mbx-1") // neither access nor refresh token

	boxes := newFakeMailboxes(mb)
	mgr := New(boxes, &fakeRefresher{}, &fakeWatcher{}, "topic")

	summary, err := mgr.Run(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, model.RenewalFailed, summary.Results[0].Status)
	assert.Equal(t, "missing token", summary.Results[0].Error)
}

func TestRunFailuresAreIndependent(t *testing.T) {
	bad := gmailBox("mbx-bad")
	bad.AccessToken = "tok-bad"
	good := gmailBox("mbx-good")
	good.AccessToken = "tok-good"

	boxes := newFakeMailboxes(bad, good)
	watcher := &fakeWatcher{
		result: provider.WatchResult{Expiration: testNow.Add(7 * 24 * time.Hour), HistoryID: "9"},
		errFor: map[string]error{"tok-bad": errors.New("gmail api: status=403 forbidden")},
	}
	mgr := New(boxes, &fakeRefresher{}, watcher, "topic")

	summary, err := mgr.Run(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Renewed)
	assert.Equal(t, 1, summary.Failed)

	byID := map[string]model.RenewalResult{}
	for _, r := range summary.Results {
		byID[r.MailboxID] = r
	}
	assert.Equal(t, model.RenewalFailed, byID["mbx-bad"].Status)
	assert.Equal(t, "gmail api: status=403 forbidden", byID["mbx-bad"].Error)
	assert.Equal(t, model.RenewalRenewed, byID["mbx-good"].Status)
}

func TestRunWatchPersistFailure(t *testing.T) {
	mb := gmailBox("mbx-1")
	mb.AccessToken = "tok"

	boxes := newFakeMailboxes(mb)
	boxes.watchErr = errors.New("deadlock")
	watcher := &fakeWatcher{result: provider.WatchResult{Expiration: testNow.Add(time.Hour), HistoryID: "7"}}
	mgr := New(boxes, &fakeRefresher{}, watcher, "topic")

	summary, err := mgr.Run(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "could not persist renewed subscription", summary.Results[0].Error)
}
