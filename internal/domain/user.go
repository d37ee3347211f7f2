package domain

import "time"

// User is the subject profile owned by the surrounding account layer.
// PK: email. The verification workflow only ever sets Verified and VerifiedAt.
type User struct {
	Email         string     `json:"email" dynamodbav:"email"`
	Name          string     `json:"name,omitempty" dynamodbav:"name,omitempty"`
	FamilyMembers []string   `json:"family_members,omitempty" dynamodbav:"family_members,omitempty"`
	Verified      bool       `json:"verified" dynamodbav:"verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at,omitempty"`
}
