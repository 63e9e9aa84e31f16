package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/khanghh/koauth/internal/mail"
	"github.com/khanghh/koauth/internal/oauth"
	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
)

type requestInfoKey struct{}

// RequestInfo identifies where a request came from.
type RequestInfo struct {
	IP        string
	UserAgent string
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

var alertSummaries = map[string]string{
	oauth.EventCodeReplay:    "An authorization code issued to your account was presented more than once.",
	oauth.EventRefreshReplay: "A refresh token issued to your account was presented more than once.",
}

type alertJob struct {
	eventType string
	userID    uint
	alert     mail.SecurityAlert
}

// Recorder persists engine audit events and mails the account owner when a
// credential replay is detected. Mails are queued and delivered by Run, so
// Record never waits on the mail server.
type Recorder struct {
	events repo.Repository[model.AuditEvent]
	users  repo.Repository[model.User]
	sender mail.MailSender
	clock  func() time.Time
	alerts chan alertJob
}

func (r *Recorder) Record(ctx context.Context, event oauth.AuditEvent) {
	info := RequestInfoFrom(ctx)
	var user *model.User
	if event.UserID != 0 {
		var err error
		user, err = r.users.First(ctx, repo.Eq("id", event.UserID))
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			slog.Warn("Could not load audit user", "user_id", event.UserID, "error", err)
		}
	}

	record := &model.AuditEvent{
		UserID:    event.UserID,
		EventType: event.Type,
		GrantType: event.GrantType,
		ClientID:  event.ClientID,
		Scope:     strings.Join(event.Scope, " "),
		Reason:    event.Reason,
		IP:        info.IP,
		UserAgent: info.UserAgent,
	}
	if user != nil {
		record.Username = user.Username
	}
	if err := r.events.Create(ctx, record); err != nil {
		slog.Error("Could not record audit event", "type", event.Type, "error", err)
	}

	if user != nil && user.Email != "" {
		r.enqueue(event, user, info)
	}
}

func (r *Recorder) enqueue(event oauth.AuditEvent, user *model.User, info RequestInfo) {
	switch event.Type {
	case oauth.EventCodeReplay, oauth.EventRefreshReplay, oauth.EventLogoutEverywhere:
	default:
		return
	}
	job := alertJob{
		eventType: event.Type,
		userID:    user.ID,
		alert: mail.SecurityAlert{
			Username:  user.Username,
			Email:     user.Email,
			ClientID:  event.ClientID,
			Summary:   alertSummaries[event.Type],
			IP:        info.IP,
			UserAgent: info.UserAgent,
			Time:      r.clock(),
		},
	}
	select {
	case r.alerts <- job:
	default:
		slog.Warn("Security alert queue is full, dropping alert", "type", event.Type, "user_id", user.ID)
	}
}

func (r *Recorder) deliver(job alertJob) {
	var err error
	if job.eventType == oauth.EventLogoutEverywhere {
		err = mail.SendLogoutEverywhereNotice(r.sender, job.alert)
	} else {
		err = mail.SendSecurityAlert(r.sender, job.alert)
	}
	if err != nil {
		slog.Warn("Could not send security alert", "type", job.eventType, "user_id", job.userID, "error", err)
	}
}

// Run delivers queued alerts until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.alerts:
			r.deliver(job)
		}
	}
}

// Recent lists the latest events of a user, newest first.
func (r *Recorder) Recent(ctx context.Context, userID uint, limit int) ([]*model.AuditEvent, error) {
	return r.events.FindOrdered(ctx, "created_at DESC, id DESC", limit, repo.Eq("user_id", userID))
}

func NewRecorder(events repo.Repository[model.AuditEvent], users repo.Repository[model.User], sender mail.MailSender, clock func() time.Time) *Recorder {
	if sender == nil {
		sender = mail.NopSender{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{
		events: events,
		users:  users,
		sender: sender,
		clock:  clock,
		alerts: make(chan alertJob, params.SecurityAlertQueueSize),
	}
}
