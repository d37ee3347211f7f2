// Package verification issues and validates short-lived one-time codes that
// prove a subject controls an email address (or phone number).
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html"
	"math/big"
	"strings"
	"time"

	"github.com/erinder/internal/channel"
	"github.com/erinder/internal/domain"
	"go.uber.org/zap"
)

// expiryGrace keeps a code past its validity window before the store's TTL
// sweeper may drop it, so a late attempt is still reported as expired.
const expiryGrace = 24 * time.Hour

// Store is the record-store contract the manager needs.
type Store interface {
	// FindActiveCode returns the newest code for subjectKey created after since,
	// or domain.ErrNotFound.
	FindActiveCode(ctx context.Context, subjectKey string, since time.Time) (*domain.VerificationCode, error)
	FindCode(ctx context.Context, subjectKey, code string) (*domain.VerificationCode, error)
	DeleteCodesFor(ctx context.Context, subjectKey string) (int, error)
	InsertCode(ctx context.Context, v *domain.VerificationCode) error
	// ConsumeCode deletes the code and sets the subject's verified flag atomically.
	// Returns domain.ErrNotFound if the code no longer exists.
	ConsumeCode(ctx context.Context, subjectKey, code string, now time.Time) error
	GetUser(ctx context.Context, email string) (*domain.User, error)
}

type Config struct {
	Cooldown    time.Duration
	Validity    time.Duration
	CodeDigits  int
	SendTimeout time.Duration
}

type Manager struct {
	store  Store
	sender channel.Sender
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
	locks  *keyedMutex
}

type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, sender channel.Sender, cfg Config, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		sender: sender,
		cfg:    cfg,
		log:    log.Named("verification"),
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a fresh code for subjectKey and sends it.
//
// Requests inside the cooldown of the previous code fail with a
// *domain.RateLimitedError. Older codes are deleted before the new one is
// written, so at most one code is valid at any time. If delivery fails the
// code is kept and the error wraps domain.ErrNotificationDeliveryFailed.
func (m *Manager) Issue(ctx context.Context, subjectKey string) error {
	subject := normalizeSubject(subjectKey)
	if subject == "" {
		return fmt.Errorf("subject is required: %w", domain.ErrBadRequest)
	}

	unlock := m.locks.Lock(subject)
	defer unlock()

	now := m.now()
	active, err := m.store.FindActiveCode(ctx, subject, now.Add(-m.cfg.Cooldown))
	switch {
	case err == nil:
		return &domain.RateLimitedError{RetryAfter: m.cfg.Cooldown - active.Age(now)}
	case !errors.Is(err, domain.ErrNotFound):
		return storeErr("check cooldown", err)
	}

	superseded, err := m.store.DeleteCodesFor(ctx, subject)
	if err != nil {
		return storeErr("delete superseded codes", err)
	}

	code, err := generateCode(m.cfg.CodeDigits)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := m.store.InsertCode(ctx, &domain.VerificationCode{
		SubjectKey: subject,
		Code:       code,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.Validity + expiryGrace),
	}); err != nil {
		return storeErr("insert code", err)
	}
	m.log.Info("verification code issued", zap.String("subject", subject), zap.Int("superseded", superseded))

	sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()
	if _, err := m.sender.Send(sendCtx, subject,
		"Your Verification Code",
		"Your verification code is "+code,
		"<p>Your verification code is: <b>"+html.EscapeString(code)+"</b></p>",
	); err != nil {
		m.log.Warn("verification code delivery failed", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("deliver code to %s: %w: %w", subject, domain.ErrNotificationDeliveryFailed, err)
	}
	return nil
}

// Validate spends code for subjectKey and marks the subject verified.
// A code works exactly once; unknown or already-spent codes yield
// domain.ErrInvalidCode, stale ones domain.ErrCodeExpired.
func (m *Manager) Validate(ctx context.Context, subjectKey, submittedCode string) error {
	subject := normalizeSubject(subjectKey)
	code := strings.TrimSpace(submittedCode)
	if subject == "" || code == "" {
		return domain.ErrInvalidCode
	}

	now := m.now()
	rec, err := m.store.FindCode(ctx, subject, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidCode
		}
		return storeErr("find code", err)
	}
	if rec.Age(now) > m.cfg.Validity {
		return domain.ErrCodeExpired
	}

	if err := m.store.ConsumeCode(ctx, subject, code, now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// spent by a concurrent request
			return domain.ErrInvalidCode
		}
		return storeErr("consume code", err)
	}
	m.log.Info("subject verified", zap.String("subject", subject))
	return nil
}

// Status reports whether subjectKey has been verified. Unknown subjects are
// reported as unverified.
func (m *Manager) Status(ctx context.Context, subjectKey string) (*domain.User, error) {
	subject := normalizeSubject(subjectKey)
	if subject == "" {
		return nil, fmt.Errorf("subject is required: %w", domain.ErrBadRequest)
	}
	u, err := m.store.GetUser(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.User{Email: subject}, nil
		}
		return nil, storeErr("get user", err)
	}
	return u, nil
}

func normalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// generateCode draws uniformly from [10^(digits-1), 10^digits) so codes never
// have a leading zero.
func generateCode(digits int) (string, error) {
	lo := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Mul(lo, big.NewInt(9))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, lo).String(), nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
