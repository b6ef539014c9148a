package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/robfig/cron/v3"
)

// Trigger computes when a definition should next fire. ok is false when nothing is due after from.
type Trigger interface {
	NextFireTime(from time.Time) (next time.Time, ok bool)
}

type FixedInstant time.Time

func (f FixedInstant) NextFireTime(from time.Time) (time.Time, bool) {
	t := time.Time(f)
	if !t.After(from) {
		return time.Time{}, false
	}
	return t, true
}

type CronExpression struct {
	Expr     string
	schedule cron.Schedule
}

// ParseCron accepts exactly five fields (minute hour dom month dow). Descriptors such as
// @daily and TZ= prefixes are rejected.
func ParseCron(expr string) (*CronExpression, error) {
	if n := len(strings.Fields(expr)); n != 5 {
		return nil, fmt.Errorf("%w: %w: %q has %d fields, want 5", domain.ErrValidation, domain.ErrInvalidCronExpr, expr, n)
	}
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %q: %v", domain.ErrValidation, domain.ErrInvalidCronExpr, expr, err)
	}
	return &CronExpression{Expr: expr, schedule: s}, nil
}

// In returns a copy of c evaluated in loc instead of time.Local.
func (c *CronExpression) In(loc *time.Location) *CronExpression {
	spec, ok := c.schedule.(*cron.SpecSchedule)
	if !ok || loc == nil {
		return c
	}
	cp := *spec
	cp.Location = loc
	return &CronExpression{Expr: c.Expr, schedule: &cp}
}

func (c *CronExpression) NextFireTime(from time.Time) (time.Time, bool) {
	next := c.schedule.Next(from)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// ValidateTrigger reports malformed cron syntax at create/update time so it never surfaces
// at fire time.
func ValidateTrigger(t domain.Trigger) error {
	if t.Type != domain.TriggerCron {
		return nil
	}
	for _, expr := range t.Expressions {
		if _, err := ParseCron(expr); err != nil {
			return err
		}
	}
	return nil
}

func cronTriggers(t domain.Trigger, loc *time.Location) ([]*CronExpression, error) {
	out := make([]*CronExpression, 0, len(t.Expressions))
	for _, expr := range t.Expressions {
		c, err := ParseCron(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, c.In(loc))
	}
	return out, nil
}
