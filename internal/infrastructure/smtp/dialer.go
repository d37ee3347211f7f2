package smtp

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	netsmtp "net/smtp"
	"strconv"
	"time"

	"github.com/go-gomail/gomail"
)

const implicitTLSPort = 465

// deadlineDialer opens one SMTP session per DialAndSend. The whole session,
// dial included, must finish within timeout, so a stalled server cannot hold
// the sending goroutine forever.
type deadlineDialer struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
	tls      *tls.Config
}

func newDeadlineDialer(host string, port int, username, password string, timeout time.Duration) *deadlineDialer {
	return &deadlineDialer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		timeout:  timeout,
		tls:      &tls.Config{ServerName: host},
	}
}

func (d *deadlineDialer) DialAndSend(msgs ...*gomail.Message) error {
	addr := net.JoinHostPort(d.host, strconv.Itoa(d.port))
	conn, err := (&net.Dialer{Timeout: d.timeout}).Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("set smtp deadline: %w", err)
	}
	if d.port == implicitTLSPort {
		conn = tls.Client(conn, d.tls)
	}

	c, err := netsmtp.NewClient(conn, d.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting from %s: %w", addr, err)
	}
	defer c.Close()

	if d.port != implicitTLSPort {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(d.tls); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if d.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(netsmtp.PlainAuth("", d.username, d.password, d.host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	// gomail flattens errors into strings; keep the protocol error so callers
	// can still tell a rejected mailbox from a broken relay.
	var deliverErr error
	err = gomail.Send(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		deliverErr = deliver(c, from, to, msg)
		return deliverErr
	}), msgs...)
	if deliverErr != nil {
		return deliverErr
	}
	if err != nil {
		return err
	}
	return c.Quit()
}

func deliver(c *netsmtp.Client, from string, to []string, msg io.WriterTo) error {
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
