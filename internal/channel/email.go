package channel

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/textproto"

	"github.com/erinder/internal/infrastructure/smtp"
)

// Email delivers through an SMTP mailer.
type Email struct {
	mailer smtp.Mailer
}

func NewEmail(mailer smtp.Mailer) *Email {
	return &Email{mailer: mailer}
}

func (e *Email) Send(ctx context.Context, destination, subject, bodyText, bodyHTML string) (Outcome, error) {
	addr, err := mail.ParseAddress(destination)
	if err != nil {
		return Outcome{}, fmt.Errorf("email %q: %w", destination, ErrInvalidDestination)
	}

	// The SMTP client has no context support, so the dial runs on its own
	// goroutine and the caller stops waiting once ctx is done. The mailer's
	// connection deadline bounds how long the goroutine outlives the caller.
	done := make(chan error, 1)
	go func() {
		done <- e.mailer.Send(smtp.Message{
			To:       addr.Address,
			Subject:  subject,
			BodyText: bodyText,
			BodyHTML: bodyHTML,
		})
	}()

	select {
	case <-ctx.Done():
		return Outcome{}, fmt.Errorf("email to %s: %w: %w", addr.Address, ErrChannelUnavailable, ctx.Err())
	case err := <-done:
		if err != nil {
			return Outcome{}, classifySMTP(addr.Address, err)
		}
		return Outcome{Success: true}, nil
	}
}

// classifySMTP treats permanent mailbox rejections as bad destinations and
// everything else as a transport problem.
func classifySMTP(to string, err error) error {
	var tpe *textproto.Error
	if errors.As(err, &tpe) {
		switch tpe.Code {
		case 550, 553:
			return fmt.Errorf("email to %s: %w: %w", to, ErrInvalidDestination, err)
		}
	}
	return fmt.Errorf("email to %s: %w: %w", to, ErrChannelUnavailable, err)
}
