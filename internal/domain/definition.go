package domain

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindOneShot Kind = "one_shot"
	KindCron    Kind = "cron"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)

type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

type TriggerType string

const (
	TriggerFixed TriggerType = "fixed"
	TriggerCron  TriggerType = "cron"
)

// Trigger is a tagged variant: At is set for fixed triggers, Expressions for cron triggers.
type Trigger struct {
	Type        TriggerType `json:"type"`
	At          *time.Time  `json:"at,omitempty"`
	Expressions []string    `json:"expressions,omitempty"`
}

func FixedTrigger(at time.Time) Trigger {
	return Trigger{Type: TriggerFixed, At: &at}
}

func CronTrigger(exprs ...string) Trigger {
	return Trigger{Type: TriggerCron, Expressions: exprs}
}

type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelEmail   Channel = "email"
)

type NotificationPayload struct {
	Title     string  `json:"title,omitempty"`
	Message   string  `json:"message,omitempty"`
	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient,omitempty"` // email only; falls back to EMAIL_TO
}

type PromptPayload struct {
	Prompt   string   `json:"prompt"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Model    string   `json:"model,omitempty"`
}

type WeatherPayload struct {
	Location  string  `json:"location"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Payload holds exactly one of its fields.
type Payload struct {
	Notification *NotificationPayload `json:"notification,omitempty"`
	Prompt       *PromptPayload       `json:"prompt,omitempty"`
	Weather      *WeatherPayload      `json:"weather,omitempty"`
}

// Type names the populated variant, used as a metrics label.
func (p Payload) Type() string {
	switch {
	case p.Notification != nil:
		return "notification"
	case p.Prompt != nil:
		return "prompt"
	case p.Weather != nil:
		return "weather"
	default:
		return "unknown"
	}
}

type Recurrence struct {
	Interval          Interval   `json:"interval"`
	EndDate           *time.Time `json:"endDate,omitempty"`
	MaxOccurrences    *int       `json:"maxOccurrences,omitempty"`
	CurrentOccurrence int        `json:"currentOccurrence"`
	// DayOfMonth anchors monthly and yearly arithmetic so clamped months do not drift.
	DayOfMonth int `json:"dayOfMonth,omitempty"`
}

type Definition struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Trigger     Trigger     `json:"trigger"`
	Payload     Payload     `json:"payload"`
	Enabled     bool        `json:"enabled"`
	Status      Status      `json:"status,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	LastFiredAt *time.Time  `json:"lastFiredAt,omitempty"`
	LastError   *string     `json:"lastError,omitempty"`
	PreviousID  string      `json:"previousId,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Validate checks structural consistency. Cron syntax is checked by the scheduler package.
func (d *Definition) Validate() error {
	switch d.Kind {
	case KindOneShot:
		if d.Trigger.Type != TriggerFixed || d.Trigger.At == nil {
			return fmt.Errorf("%w: one_shot definitions need a fixed trigger", ErrValidation)
		}
		if d.Status != StatusPending && d.Status != StatusSent {
			return fmt.Errorf("%w: unknown status %q", ErrValidation, d.Status)
		}
		if r := d.Recurrence; r != nil {
			if !r.Interval.Valid() {
				return fmt.Errorf("%w: unknown recurrence interval %q", ErrValidation, r.Interval)
			}
			if r.MaxOccurrences != nil && *r.MaxOccurrences < 1 {
				return fmt.Errorf("%w: maxOccurrences must be at least 1", ErrValidation)
			}
			if r.MaxOccurrences != nil && r.CurrentOccurrence > *r.MaxOccurrences {
				return fmt.Errorf("%w: currentOccurrence exceeds maxOccurrences", ErrValidation)
			}
		}
	case KindCron:
		if d.Trigger.Type != TriggerCron || len(d.Trigger.Expressions) == 0 {
			return fmt.Errorf("%w: cron definitions need at least one cron expression", ErrValidation)
		}
		if d.Recurrence != nil {
			return fmt.Errorf("%w: recurrence only applies to one_shot definitions", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, d.Kind)
	}

	set := 0
	if p := d.Payload.Notification; p != nil {
		set++
		if p.Channel != ChannelWebhook && p.Channel != ChannelEmail {
			return fmt.Errorf("%w: unknown channel %q", ErrValidation, p.Channel)
		}
	}
	if p := d.Payload.Prompt; p != nil {
		set++
		if p.Prompt == "" {
			return fmt.Errorf("%w: prompt text is required", ErrValidation)
		}
	}
	if p := d.Payload.Weather; p != nil {
		set++
		if p.Location == "" {
			return fmt.Errorf("%w: weather location is required", ErrValidation)
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: payload must hold exactly one of notification, prompt, weather", ErrValidation)
	}
	return nil
}
