package channel

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/erinder/internal/infrastructure/sns"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// SMS delivers the plain-text body as a text message. SMS has no subject line
// or HTML part; both are dropped.
type SMS struct {
	sender sns.SMSSender
}

func NewSMS(sender sns.SMSSender) *SMS {
	return &SMS{sender: sender}
}

func (s *SMS) Send(ctx context.Context, destination, _, bodyText, _ string) (Outcome, error) {
	if !e164.MatchString(destination) {
		return Outcome{}, fmt.Errorf("phone %q is not E.164: %w", destination, ErrInvalidDestination)
	}
	id, err := s.sender.SendSMS(ctx, destination, bodyText)
	if err != nil {
		var ipe *snstypes.InvalidParameterException
		if errors.As(err, &ipe) {
			return Outcome{}, fmt.Errorf("sms to %s: %w: %w", destination, ErrInvalidDestination, err)
		}
		return Outcome{}, fmt.Errorf("sms to %s: %w: %w", destination, ErrChannelUnavailable, err)
	}
	return Outcome{Success: true, MessageID: id}, nil
}
