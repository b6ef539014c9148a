package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/homebase/internal/clock"
	"github.com/ErlanBelekov/homebase/internal/completion"
	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/metrics"
	"github.com/ErlanBelekov/homebase/internal/notify"
	"github.com/ErlanBelekov/homebase/internal/repository"
	"github.com/ErlanBelekov/homebase/internal/weather"
)

const (
	promptTimeout  = 30 * time.Second
	weatherTimeout = 10 * time.Second
)

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Response, error)
}

type WeatherFetcher interface {
	Current(ctx context.Context, latitude, longitude float64) (*weather.Observation, error)
}

type DispatcherConfig struct {
	// Notifiers is keyed by channel. A channel with no entry fails with ErrTransportNotConfigured.
	Notifiers  map[domain.Channel]Notifier
	Completer  Completer
	Executions repository.ExecutionRepository
	Weather    WeatherFetcher
	Snapshots  repository.WeatherRepository
	Clock      clock.Clock
	Logger     *slog.Logger
}

// ActionDispatcher routes a fired definition to the transport its payload names. Every error
// it returns wraps domain.ErrDelivery.
type ActionDispatcher struct {
	notifiers  map[domain.Channel]Notifier
	completer  Completer
	executions repository.ExecutionRepository
	weather    WeatherFetcher
	snapshots  repository.WeatherRepository
	clock      clock.Clock
	logger     *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *ActionDispatcher {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &ActionDispatcher{
		notifiers:  cfg.Notifiers,
		completer:  cfg.Completer,
		executions: cfg.Executions,
		weather:    cfg.Weather,
		snapshots:  cfg.Snapshots,
		clock:      clk,
		logger:     cfg.Logger.With("component", "dispatcher"),
	}
}

func (a *ActionDispatcher) Dispatch(ctx context.Context, d *domain.Definition) error {
	payload := d.Payload.Type()
	start := a.clock.Now()

	var err error
	switch {
	case d.Payload.Notification != nil:
		err = a.notify(ctx, d)
	case d.Payload.Prompt != nil:
		err = a.prompt(ctx, d)
	case d.Payload.Weather != nil:
		err = a.pollWeather(ctx, d)
	default:
		err = fmt.Errorf("%w: empty payload", domain.ErrValidation)
	}

	metrics.DispatchDuration.WithLabelValues(payload).Observe(a.clock.Now().Sub(start).Seconds())
	if err != nil {
		metrics.DispatchTotal.WithLabelValues(payload, "failure").Inc()
		return fmt.Errorf("%w: %w", domain.ErrDelivery, err)
	}
	metrics.DispatchTotal.WithLabelValues(payload, "success").Inc()
	return nil
}

func (a *ActionDispatcher) notify(ctx context.Context, d *domain.Definition) error {
	p := d.Payload.Notification
	n, ok := a.notifiers[p.Channel]
	if !ok || n == nil {
		return fmt.Errorf("%w: channel %q", domain.ErrTransportNotConfigured, p.Channel)
	}

	err := n.Notify(ctx, notify.Message{
		DefinitionID: d.ID,
		Title:        p.Title,
		Message:      p.Message,
		Channel:      p.Channel,
		Recipient:    p.Recipient,
		FiredAt:      a.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("notify via %s: %w", p.Channel, err)
	}
	return nil
}

// prompt always leaves an execution record behind, carrying either the response or the error.
func (a *ActionDispatcher) prompt(ctx context.Context, d *domain.Definition) error {
	if a.completer == nil {
		return fmt.Errorf("%w: completion client", domain.ErrTransportNotConfigured)
	}
	p := d.Payload.Prompt

	ctx, cancel := context.WithTimeout(ctx, promptTimeout)
	defer cancel()

	start := a.clock.Now()
	resp, callErr := a.completer.Complete(ctx, completion.Request{Prompt: p.Prompt, Model: p.Model})

	result := &domain.ExecutionResult{
		DefinitionID: d.ID,
		Prompt:       p.Prompt,
		Category:     p.Category,
		Tags:         p.Tags,
		Model:        p.Model,
		DurationMS:   a.clock.Now().Sub(start).Milliseconds(),
		ExecutedAt:   start,
	}
	if callErr != nil {
		msg := callErr.Error()
		result.Error = &msg
	} else {
		text := resp.Text
		result.Response = &text
		if resp.Model != "" {
			result.Model = resp.Model
		}
		usage := resp.Usage
		result.Usage = &usage
	}

	if a.executions != nil {
		// the dispatch timeout may have fired; the record is still written
		if _, err := a.executions.Create(context.WithoutCancel(ctx), result); err != nil {
			a.logger.ErrorContext(ctx, "save execution result", "error", err)
		}
	}

	if callErr != nil {
		return fmt.Errorf("complete prompt: %w", callErr)
	}
	return nil
}

func (a *ActionDispatcher) pollWeather(ctx context.Context, d *domain.Definition) error {
	if a.weather == nil {
		return fmt.Errorf("%w: weather client", domain.ErrTransportNotConfigured)
	}
	p := d.Payload.Weather

	ctx, cancel := context.WithTimeout(ctx, weatherTimeout)
	defer cancel()

	obs, err := a.weather.Current(ctx, p.Latitude, p.Longitude)
	if err != nil {
		return fmt.Errorf("fetch weather for %s: %w", p.Location, err)
	}

	if a.snapshots == nil {
		return nil
	}
	snap := &domain.WeatherSnapshot{
		DefinitionID: d.ID,
		Location:     p.Location,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		TemperatureC: obs.TemperatureC,
		WindSpeedKmh: obs.WindSpeedKmh,
		WeatherCode:  obs.WeatherCode,
		ObservedAt:   obs.ObservedAt,
		FetchedAt:    a.clock.Now(),
	}
	if _, err := a.snapshots.Create(context.WithoutCancel(ctx), snap); err != nil {
		return fmt.Errorf("save weather snapshot: %w", err)
	}
	return nil
}
