package domain

import "time"

// VerificationCode is a short-lived one-time code bound to a subject (an email address).
// PK: subject_key, SK: code.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL so unconsumed codes get collected.
type VerificationCode struct {
	SubjectKey string    `json:"subject_key" dynamodbav:"subject_key"`
	Code       string    `json:"-" dynamodbav:"code"`
	CreatedAt  time.Time `json:"created_at" dynamodbav:"created_at,unixtime"`
	ExpiresAt  time.Time `json:"expires_at" dynamodbav:"expires_at,unixtime"`
}

// Age returns how long ago the code was issued.
func (v *VerificationCode) Age(now time.Time) time.Duration {
	return now.Sub(v.CreatedAt)
}

type SendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric"`
}
