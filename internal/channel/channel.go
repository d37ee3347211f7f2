// Package channel abstracts the external notification media (email, SMS)
// behind one send contract so dispatch and verification never talk to a
// transport directly.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erinder/internal/domain"
)

var (
	// ErrChannelUnavailable means the medium could not take the message right now
	// (not configured, transport down, timed out). Retrying later may succeed.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrInvalidDestination means the address itself was rejected.
	ErrInvalidDestination = errors.New("invalid destination")
)

// Outcome describes an accepted send.
type Outcome struct {
	Success   bool
	MessageID string
}

// Sender delivers one message to one destination.
type Sender interface {
	Send(ctx context.Context, destination, subject, bodyText, bodyHTML string) (Outcome, error)
}

// Registry maps each channel to its sender.
type Registry map[domain.Channel]Sender

// Lookup returns the sender for c, or ErrChannelUnavailable when none is registered.
func (r Registry) Lookup(c domain.Channel) (Sender, error) {
	s, ok := r[c]
	if !ok || s == nil {
		return nil, fmt.Errorf("no sender for channel %q: %w", c, ErrChannelUnavailable)
	}
	return s, nil
}

type timeoutSender struct {
	next    Sender
	timeout time.Duration
}

// WithTimeout bounds every send by d. A send that outlives d is reported as
// ErrChannelUnavailable.
func WithTimeout(next Sender, d time.Duration) Sender {
	return &timeoutSender{next: next, timeout: d}
}

func (s *timeoutSender) Send(ctx context.Context, destination, subject, bodyText, bodyHTML string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.next.Send(ctx, destination, subject, bodyText, bodyHTML)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrChannelUnavailable) {
		return Outcome{}, fmt.Errorf("send timed out after %s: %w: %w", s.timeout, ErrChannelUnavailable, err)
	}
	return out, err
}

type noop struct {
	name domain.Channel
}

// Noop stands in for a channel that is not configured; every send fails with
// ErrChannelUnavailable.
func Noop(name domain.Channel) Sender {
	return &noop{name: name}
}

func (n *noop) Send(context.Context, string, string, string, string) (Outcome, error) {
	return Outcome{}, fmt.Errorf("%s channel not configured: %w", n.name, ErrChannelUnavailable)
}
