package mail

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/koauth/internal/render"
)

// SecurityAlert describes a suspicious event on a user's account.
type SecurityAlert struct {
	Username  string
	Email     string
	ClientID  string
	Summary   string
	IP        string
	UserAgent string
	Time      time.Time
}

func alertVars(alert SecurityAlert) fiber.Map {
	return fiber.Map{
		"username":  alert.Username,
		"clientID":  alert.ClientID,
		"summary":   alert.Summary,
		"ip":        alert.IP,
		"userAgent": alert.UserAgent,
		"time":      alert.Time.UTC().Format(time.RFC1123),
	}
}

func SendSecurityAlert(sender MailSender, alert SecurityAlert) error {
	body, err := render.RenderHTML("mail/security-alert", alertVars(alert))
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{alert.Email},
		Subject: "Security alert: suspicious sign-in activity",
		Body:    body,
		IsHTML:  true,
	})
}

func SendLogoutEverywhereNotice(sender MailSender, alert SecurityAlert) error {
	body, err := render.RenderHTML("mail/logout-everywhere", alertVars(alert))
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{alert.Email},
		Subject: "You were signed out of all applications",
		Body:    body,
		IsHTML:  true,
	})
}
