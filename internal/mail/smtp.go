package mail

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	"gopkg.in/gomail.v2"
)

type SMTPMailSender struct {
	*gomail.Dialer
	From string
}

func (s *SMTPMailSender) Send(message *Message) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.From)
	msg.SetHeader("To", message.To...)
	if len(message.Cc) > 0 {
		msg.SetHeader("Cc", message.Cc...)
	}
	if len(message.Bcc) > 0 {
		msg.SetHeader("Bcc", message.Bcc...)
	}
	msg.SetHeader("Subject", message.Subject)
	if message.IsHTML {
		msg.SetBody("text/html", message.Body)
	} else {
		msg.SetBody("text/plain", message.Body)
	}
	for cid, file := range message.Embeds {
		msg.Embed(file, gomail.SetHeader(map[string][]string{
			"Content-ID": {"<" + cid + ">"},
		}))
	}
	for _, file := range message.Attachments {
		msg.Attach(file)
	}
	return s.DialAndSend(msg)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	CertFile string
	KeyFile  string
	CAFile   string
}

var ErrInvalidCAFile = errors.New("no certificates found in CA file")

// tlsConfig verifies the server certificate against Host, using CAFile as the
// trust root when set and the system pool otherwise.
func tlsConfig(smtpCfg SMTPConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: smtpCfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	if smtpCfg.CAFile != "" {
		caCert, err := os.ReadFile(smtpCfg.CAFile)
		if err != nil {
			return nil, err
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, ErrInvalidCAFile
		}
		cfg.RootCAs = caPool
	}
	if smtpCfg.TLS && smtpCfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(smtpCfg.CertFile, smtpCfg.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func dialSMTP(smtpCfg SMTPConfig) (*gomail.Dialer, error) {
	dialer := gomail.NewDialer(smtpCfg.Host, smtpCfg.Port, smtpCfg.Username, smtpCfg.Password)
	cfg, err := tlsConfig(smtpCfg)
	if err != nil {
		return nil, err
	}
	dialer.TLSConfig = cfg
	return dialer, nil
}

func NewSMTPMailSender(smtpConfig SMTPConfig, from string) (*SMTPMailSender, error) {
	dialer, err := dialSMTP(smtpConfig)
	if err != nil {
		return nil, err
	}
	return &SMTPMailSender{
		Dialer: dialer,
		From:   from,
	}, nil
}
