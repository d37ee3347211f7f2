package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	mock_channel "github.com/erinder/internal/channel/mock"

	"github.com/erinder/internal/channel"
	"github.com/erinder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindDue(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	args := m.Called(ctx, now)
	rems, _ := args.Get(0).([]domain.Reminder)
	return rems, args.Error(1)
}

func (m *mockStore) MarkDelivered(ctx context.Context, reminderID string, seenTriggerAt time.Time) error {
	return m.Called(ctx, reminderID, seenTriggerAt).Error(0)
}

var (
	t0      = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	testCfg = Config{Interval: time.Minute, Concurrency: 4, SendTimeout: time.Second}
)

func newTestScheduler(store Store, senders channel.Registry) *Scheduler {
	return New(store, senders, testCfg, zap.NewNop(), WithClock(func() time.Time { return t0 }))
}

func okSender() *mock_channel.Sender {
	s := new(mock_channel.Sender)
	s.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(channel.Outcome{Success: true}, nil)
	return s
}

func reminder(id, title string, at time.Time, addrs ...string) domain.Reminder {
	r := domain.Reminder{ReminderID: id, Title: title, TriggerAt: at}
	for _, a := range addrs {
		r.Destinations = append(r.Destinations, domain.Destination{Address: a})
	}
	r.SetDelivered(false)
	return r
}

func TestRunCycle_DeliversToEveryDestination(t *testing.T) {
	rent := reminder("r1", "Pay rent", t0.Add(-time.Minute), "a@x.com", "+15550001111")
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{rent}, nil)
	store.On("MarkDelivered", mock.Anything, "r1", mock.Anything).Return(nil)
	email, sms := okSender(), okSender()

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: email, domain.ChannelSMS: sms})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Due: 1, Delivered: 1, Sent: 2}, report)
	text := "You have a scheduled reminder: Pay rent on Sat, 01 Mar 2025 08:59:00 UTC"
	email.AssertCalled(t, "Send", mock.Anything, "a@x.com", "Scheduled Reminder", text, mock.Anything)
	sms.AssertCalled(t, "Send", mock.Anything, "+15550001111", "Scheduled Reminder", text, mock.Anything)
	store.AssertExpectations(t)
}

func TestRunCycle_FailingDestinationDoesNotBlockOthers(t *testing.T) {
	a := reminder("r1", "A", t0.Add(-time.Hour), "a@x.com", "+15550001111")
	b := reminder("r2", "B", t0, "b@x.com")
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{a, b}, nil)
	store.On("MarkDelivered", mock.Anything, "r1", mock.Anything).Return(nil)
	store.On("MarkDelivered", mock.Anything, "r2", mock.Anything).Return(nil)

	email := new(mock_channel.Sender)
	email.On("Send", mock.Anything, "a@x.com", mock.Anything, mock.Anything, mock.Anything).
		Return(channel.Outcome{}, channel.ErrInvalidDestination)
	email.On("Send", mock.Anything, "b@x.com", mock.Anything, mock.Anything, mock.Anything).
		Return(channel.Outcome{Success: true}, nil)
	sms := okSender()

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: email, domain.ChannelSMS: sms})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Due: 2, Delivered: 2, Sent: 2, Failed: 1}, report)
	store.AssertExpectations(t)
}

func TestRunCycle_UnconfiguredChannelCountsAsFailure(t *testing.T) {
	r := reminder("r1", "A", t0, "+15550001111")
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{r}, nil)
	store.On("MarkDelivered", mock.Anything, "r1", mock.Anything).Return(nil)

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: okSender()})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Due: 1, Delivered: 1, Failed: 1}, report)
}

func TestRunCycle_NoDestinationsStillMarked(t *testing.T) {
	r := reminder("r1", "Nobody", t0)
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{r}, nil)
	store.On("MarkDelivered", mock.Anything, "r1", mock.Anything).Return(nil)
	email := new(mock_channel.Sender)

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: email})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Due: 1, Delivered: 1}, report)
	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_FutureAndDeliveredLeftAlone(t *testing.T) {
	future := reminder("r1", "Later", t0.Add(time.Second), "a@x.com")
	done := reminder("r2", "Done", t0.Add(-time.Hour), "a@x.com")
	done.SetDelivered(true)
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{future, done}, nil)
	email := new(mock_channel.Sender)

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: email})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{}, report)
	store.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_DeletedMidCycleIsNotAnError(t *testing.T) {
	r := reminder("r1", "A", t0, "a@x.com")
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{r}, nil)
	store.On("MarkDelivered", mock.Anything, "r1", mock.Anything).Return(domain.ErrNotFound)

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: okSender()})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Due: 1, Sent: 1, Skipped: 1}, report)
}

func TestRunCycle_MarksWithTriggerSeenAtRead(t *testing.T) {
	seen := t0.Add(-time.Minute)
	r := reminder("r1", "A", seen, "a@x.com")
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{r}, nil)
	// the store rejects the mark because the reminder was re-armed mid-cycle
	store.On("MarkDelivered", mock.Anything, "r1", seen).Return(domain.ErrNotFound)

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: okSender()})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Due: 1, Sent: 1, Skipped: 1}, report)
	store.AssertExpectations(t)
}

func TestRunCycle_StoreFailureAbortsCycle(t *testing.T) {
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return(nil, errors.New("throttled"))

	s := newTestScheduler(store, channel.Registry{})
	_, err := s.RunCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	store.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_OverlappingCycleIsSkipped(t *testing.T) {
	r := reminder("r1", "Slow", t0, "a@x.com")
	store := new(mockStore)
	store.On("FindDue", mock.Anything, t0).Return([]domain.Reminder{r}, nil).Once()
	store.On("MarkDelivered", mock.Anything, "r1", mock.Anything).Return(nil)

	started, release := make(chan struct{}), make(chan struct{})
	email := new(mock_channel.Sender)
	email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(channel.Outcome{Success: true}, nil)

	s := newTestScheduler(store, channel.Registry{domain.ChannelEmail: email})
	done := make(chan Report)
	go func() {
		report, _ := s.RunCycle(context.Background())
		done <- report
	}()

	<-started
	_, err := s.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	assert.Equal(t, Report{Due: 1, Delivered: 1, Sent: 1}, <-done)
	store.AssertNumberOfCalls(t, "FindDue", 1)
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	var cycles atomic.Int32
	store := new(mockStore)
	store.On("FindDue", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cycles.Add(1) }).
		Return([]domain.Reminder{}, nil)

	cfg := testCfg
	cfg.Interval = 10 * time.Millisecond
	s := New(store, channel.Registry{}, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return cycles.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRenderReminder_EscapesHTML(t *testing.T) {
	r := reminder("r1", "<b>rent</b> & bills", t0)
	text, html := renderReminder(&r)
	assert.Contains(t, text, "<b>rent</b> & bills")
	assert.Contains(t, html, "&lt;b&gt;rent&lt;/b&gt; &amp; bills")
}
