package smtp

import (
	"time"

	"github.com/erinder/internal/config"
	"github.com/go-gomail/gomail"
)

// Message is one outbound email with a plain-text body and an optional HTML alternative.
type Message struct {
	To       string
	Subject  string
	BodyText string
	BodyHTML string
}

// Mailer sends emails.
type Mailer interface {
	Send(msg Message) error
}

const defaultTimeout = 10 * time.Second

// dialer opens a session and sends gomail messages over it.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type mailer struct {
	dialer dialer
	from   string
}

// NewMailer builds an SMTP mailer. Credentials are optional for local relays.
func NewMailer(cfg config.SMTPConfig) Mailer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &mailer{
		dialer: newDeadlineDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password, timeout),
		from:   cfg.From,
	}
}

func (m *mailer) Send(msg Message) error {
	return m.dialer.DialAndSend(m.build(msg))
}

func (m *mailer) build(msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.BodyText)
	if msg.BodyHTML != "" {
		gm.AddAlternative("text/html", msg.BodyHTML)
	}
	return gm
}
