package audit_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/khanghh/koauth/internal/audit"
	"github.com/khanghh/koauth/internal/codec"
	"github.com/khanghh/koauth/internal/mail"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/render"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/internal/testutil"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	sent []*mail.Message
}

func (s *captureSender) Send(message *mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, message)
	return nil
}

func (s *captureSender) messages() []*mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// startDelivery runs the recorder's mail worker for the rest of the test.
func startDelivery(t *testing.T, recorder *audit.Recorder) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go recorder.Run(ctx)
}

func waitForMail(t *testing.T, sender *captureSender, n int) []*mail.Message {
	t.Helper()
	require.Eventually(t, func() bool { return len(sender.messages()) >= n }, 2*time.Second, 10*time.Millisecond)
	return sender.messages()
}

func setupRecorder(t *testing.T) (*audit.Recorder, *captureSender, *model.User, repo.Repository[model.AuditEvent]) {
	t.Helper()
	require.NoError(t, render.Initialize(map[string]interface{}{"siteName": "koauth"}, ""))
	db := testutil.SetupTestDB(t)
	user := testutil.MockUser(t, db, "alice")
	events := repo.New[model.AuditEvent](db)
	sender := &captureSender{}
	clock := func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return audit.NewRecorder(events, repo.New[model.User](db), sender, clock), sender, user, events
}

func TestRecorderPersistsEvent(t *testing.T) {
	recorder, sender, user, events := setupRecorder(t)
	ctx := audit.WithRequestInfo(context.Background(), audit.RequestInfo{IP: "203.0.113.7", UserAgent: "curl/8.0"})

	recorder.Record(ctx, oauth.AuditEvent{
		Type:      oauth.EventTokenIssued,
		UserID:    user.ID,
		ClientID:  "webapp",
		GrantType: "authorization_code",
		Scope:     []string{"openid", "email"},
	})

	stored, err := events.First(ctx, repo.Eq("user_id", user.ID))
	require.NoError(t, err)
	assert.Equal(t, oauth.EventTokenIssued, stored.EventType)
	assert.Equal(t, "alice", stored.Username)
	assert.Equal(t, "openid email", stored.Scope)
	assert.Equal(t, "203.0.113.7", stored.IP)
	assert.Equal(t, "curl/8.0", stored.UserAgent)
	assert.Empty(t, sender.messages(), "routine events are not mailed")
}

func TestRecorderMailsReplayAlert(t *testing.T) {
	recorder, sender, user, _ := setupRecorder(t)
	startDelivery(t, recorder)

	recorder.Record(context.Background(), oauth.AuditEvent{
		Type:     oauth.EventCodeReplay,
		UserID:   user.ID,
		ClientID: "webapp",
		Reason:   "authorization code already used",
	})

	sent := waitForMail(t, sender, 1)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{user.Email}, sent[0].To)
	assert.Contains(t, sent[0].Body, "presented more than once")
}

func TestRecorderMailsLogoutEverywhere(t *testing.T) {
	recorder, sender, user, _ := setupRecorder(t)
	startDelivery(t, recorder)

	recorder.Record(context.Background(), oauth.AuditEvent{Type: oauth.EventLogoutEverywhere, UserID: user.ID})

	sent := waitForMail(t, sender, 1)
	assert.Equal(t, "You were signed out of all applications", sent[0].Subject)
}

func TestRecorderClientOnlyEvent(t *testing.T) {
	recorder, sender, _, events := setupRecorder(t)
	ctx := context.Background()

	recorder.Record(ctx, oauth.AuditEvent{Type: oauth.EventTokenIssued, ClientID: "batch", GrantType: "client_credentials"})

	stored, err := events.First(ctx, repo.Eq("client_id", "batch"))
	require.NoError(t, err)
	assert.Zero(t, stored.UserID)
	assert.Empty(t, stored.Username)
	assert.Empty(t, sender.messages())
}

func TestRecorderRecent(t *testing.T) {
	recorder, _, user, _ := setupRecorder(t)
	ctx := context.Background()
	for _, typ := range []string{oauth.EventConsentGranted, oauth.EventTokenIssued, oauth.EventTokenRevoked} {
		recorder.Record(ctx, oauth.AuditEvent{Type: typ, UserID: user.ID, ClientID: "webapp"})
	}

	recent, err := recorder.Recent(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, oauth.EventTokenRevoked, recent[0].EventType)
	assert.Equal(t, oauth.EventTokenIssued, recent[1].EventType)
}

// blockingSender holds every delivery until release is closed.
type blockingSender struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (s *blockingSender) Send(*mail.Message) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return nil
}

func TestReplayResponseDoesNotWaitForMail(t *testing.T) {
	require.NoError(t, render.Initialize(map[string]interface{}{"siteName": "koauth"}, ""))
	db := testutil.SetupTestDB(t)
	user := testutil.MockUser(t, db, "alice")
	client := testutil.MockClient(t, db, "webapp")
	ctx := context.Background()

	sender := &blockingSender{release: make(chan struct{}), started: make(chan struct{})}
	t.Cleanup(func() { close(sender.release) })
	recorder := audit.NewRecorder(repo.New[model.AuditEvent](db), repo.New[model.User](db), sender, time.Now)
	startDelivery(t, recorder)

	repos := oauth.NewRepositories(db)
	tokens := oauth.NewTokenService(repos, codec.New("https://auth.example.com", "secret", time.Now), oauth.Options{Auditor: recorder})

	value, err := codec.GenerateOpaqueToken()
	require.NoError(t, err)
	require.NoError(t, repos.Codes.Create(ctx, &model.AuthorizationCode{
		ClientID:     client.ClientID,
		UserID:       user.ID,
		Sub:          user.Username,
		Scope:        []string{"openid"},
		Code:         value,
		RedirectURI:  client.RedirectURIs[0],
		ResponseType: oauth.ResponseTypeCode,
		Status:       model.StatusCreated,
		ExpiresAt:    time.Now().Add(params.AuthorizationCodeExpiration),
	}))
	req := oauth.TokenRequest{
		GrantType:   oauth.GrantTypeAuthorizationCode,
		Code:        value,
		RedirectURI: client.RedirectURIs[0],
	}
	_, err = tokens.HandleTokenRequest(ctx, req, client)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := tokens.HandleTokenRequest(ctx, req, client)
		done <- err
	}()
	select {
	case err := <-done:
		var oauthErr *oauth.OAuthError
		require.ErrorAs(t, err, &oauthErr)
		assert.Equal(t, oauth.ErrCodeInvalidGrant, oauthErr.Code)
	case <-time.After(time.Second):
		t.Fatal("replayed exchange is waiting on the mail server")
	}

	select {
	case <-sender.started:
	case <-time.After(2 * time.Second):
		t.Fatal("security alert was never handed to the sender")
	}
}
