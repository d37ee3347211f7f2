package mock_channel

import (
	"context"

	"github.com/erinder/internal/channel"
	"github.com/stretchr/testify/mock"
)

type Sender struct {
	mock.Mock
}

func (m *Sender) Send(ctx context.Context, destination, subject, bodyText, bodyHTML string) (channel.Outcome, error) {
	args := m.Called(ctx, destination, subject, bodyText, bodyHTML)

	out, _ := args.Get(0).(channel.Outcome)
	return out, args.Error(1)
}
