package domain

import (
	"strings"
	"time"
)

// Channel names an external notification medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Destination is one address a reminder is delivered to.
type Destination struct {
	Channel Channel `json:"channel,omitempty" dynamodbav:"channel,omitempty" validate:"omitempty,oneof=email sms"`
	Address string  `json:"address" dynamodbav:"address" validate:"required"`
}

// ResolveChannel returns the tagged channel, or infers one from the address
// when the destination is untagged.
func (d Destination) ResolveChannel() Channel {
	if d.Channel != "" {
		return d.Channel
	}
	if strings.Contains(d.Address, "@") {
		return ChannelEmail
	}
	return ChannelSMS
}

// PendingMarker is written to Reminder.Pending while the reminder is undelivered.
// The attribute backs a sparse GSI, so delivered reminders drop out of the due index.
const PendingMarker = "1"

// Reminder is a user reminder delivered once its trigger time has passed.
// PK: reminder_id. GSI pending-trigger_at-index (sparse) serves the due query.
type Reminder struct {
	ReminderID   string        `json:"id" dynamodbav:"reminder_id"`
	OwnerID      string        `json:"owner_id,omitempty" dynamodbav:"owner_id,omitempty"`
	Title        string        `json:"title" dynamodbav:"title"`
	TriggerAt    time.Time     `json:"trigger_at" dynamodbav:"trigger_at,unixtime"`
	Destinations []Destination `json:"destinations" dynamodbav:"destinations"`
	Delivered    bool          `json:"delivered" dynamodbav:"delivered"`
	Pending      string        `json:"-" dynamodbav:"pending,omitempty"`
	Recurrence   string        `json:"recurrence,omitempty" dynamodbav:"recurrence,omitempty"` // stored as-is, never expanded
	CreatedAt    time.Time     `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time     `json:"updated" dynamodbav:"updated_at"`
}

// IsDue reports whether the reminder should be dispatched at now.
func (r *Reminder) IsDue(now time.Time) bool {
	return !r.Delivered && !r.TriggerAt.After(now)
}

// SetDelivered keeps Delivered and the sparse Pending attribute in sync.
func (r *Reminder) SetDelivered(delivered bool) {
	r.Delivered = delivered
	if delivered {
		r.Pending = ""
	} else {
		r.Pending = PendingMarker
	}
}

type CreateReminderRequest struct {
	Title        string        `json:"title" validate:"required,max=200"`
	TriggerAt    time.Time     `json:"trigger_at" validate:"required"`
	Destinations []Destination `json:"destinations" validate:"dive"`
	Recurrence   string        `json:"recurrence" validate:"omitempty,oneof=daily weekly monthly"`
}

type UpdateReminderRequest struct {
	Title        *string        `json:"title" validate:"omitempty,max=200"`
	TriggerAt    *time.Time     `json:"trigger_at"`
	Destinations *[]Destination `json:"destinations" validate:"omitempty,dive"`
	Recurrence   *string        `json:"recurrence" validate:"omitempty,oneof=daily weekly monthly"`
}
