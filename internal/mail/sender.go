package mail

type Message struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	IsHTML      bool
	Embeds      map[string]string
	Attachments []string
}

type MailSender interface {
	Send(message *Message) error
}

// NopSender drops every message, used when no SMTP server is configured.
type NopSender struct{}

func (NopSender) Send(*Message) error { return nil }
