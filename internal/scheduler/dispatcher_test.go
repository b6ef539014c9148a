package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/homebase/internal/clock"
	"github.com/ErlanBelekov/homebase/internal/completion"
	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/notify"
	"github.com/ErlanBelekov/homebase/internal/scheduler"
	"github.com/ErlanBelekov/homebase/internal/weather"
)

// ---- fakes ----

type fakeNotifier struct {
	notifyFn func(ctx context.Context, msg notify.Message) error
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notify.Message) error {
	return f.notifyFn(ctx, msg)
}

type fakeCompleter struct {
	completeFn func(ctx context.Context, req completion.Request) (*completion.Response, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	return f.completeFn(ctx, req)
}

type fakeWeather struct {
	currentFn func(ctx context.Context, lat, lon float64) (*weather.Observation, error)
}

func (f *fakeWeather) Current(ctx context.Context, lat, lon float64) (*weather.Observation, error) {
	return f.currentFn(ctx, lat, lon)
}

type memExecutions struct {
	mu      sync.Mutex
	results []*domain.ExecutionResult
}

func (m *memExecutions) Create(_ context.Context, r *domain.ExecutionResult) (*domain.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return r, nil
}

func (m *memExecutions) ListByDefinitionID(context.Context, string, int) ([]*domain.ExecutionResult, error) {
	return nil, nil
}

type memSnapshots struct {
	snaps []*domain.WeatherSnapshot
}

func (m *memSnapshots) Create(_ context.Context, s *domain.WeatherSnapshot) (*domain.WeatherSnapshot, error) {
	m.snaps = append(m.snaps, s)
	return s, nil
}

func (m *memSnapshots) Latest(context.Context, int) ([]*domain.WeatherSnapshot, error) {
	return m.snaps, nil
}

// ---- helpers ----

func newTestDispatcher(cfg scheduler.DispatcherConfig) *scheduler.ActionDispatcher {
	cfg.Clock = clock.NewFake(t0)
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return scheduler.NewDispatcher(cfg)
}

// ---- notification ----

func TestDispatch_NotificationRoutesByChannel(t *testing.T) {
	var got notify.Message
	d := newTestDispatcher(scheduler.DispatcherConfig{
		Notifiers: map[domain.Channel]scheduler.Notifier{
			domain.ChannelEmail: &fakeNotifier{notifyFn: func(_ context.Context, msg notify.Message) error {
				got = msg
				return nil
			}},
		},
	})

	def := reminder("r1", t0)
	def.Payload.Notification.Channel = domain.ChannelEmail
	def.Payload.Notification.Recipient = "me@example.com"

	if err := d.Dispatch(context.Background(), def); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.DefinitionID != "r1" || got.Title != "Stand up" || got.Recipient != "me@example.com" {
		t.Errorf("message = %+v", got)
	}
	if !got.FiredAt.Equal(t0) {
		t.Errorf("firedAt = %v, want %v", got.FiredAt, t0)
	}
}

func TestDispatch_MissingTransport(t *testing.T) {
	d := newTestDispatcher(scheduler.DispatcherConfig{})

	err := d.Dispatch(context.Background(), reminder("r1", t0))
	if !errors.Is(err, domain.ErrDelivery) || !errors.Is(err, domain.ErrTransportNotConfigured) {
		t.Fatalf("expected not-configured delivery error, got %v", err)
	}

	err = d.Dispatch(context.Background(), cronPrompt("p1", true, "0 9 * * *"))
	if !errors.Is(err, domain.ErrTransportNotConfigured) {
		t.Fatalf("prompt without completer: got %v", err)
	}
}

func TestDispatch_NotifierErrorIsDelivery(t *testing.T) {
	boom := errors.New("webhook responded 500")
	d := newTestDispatcher(scheduler.DispatcherConfig{
		Notifiers: map[domain.Channel]scheduler.Notifier{
			domain.ChannelWebhook: &fakeNotifier{notifyFn: func(context.Context, notify.Message) error { return boom }},
		},
	})

	err := d.Dispatch(context.Background(), reminder("r1", t0))
	if !errors.Is(err, domain.ErrDelivery) || !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

// ---- prompt ----

func TestDispatch_PromptWritesExecution(t *testing.T) {
	execs := &memExecutions{}
	d := newTestDispatcher(scheduler.DispatcherConfig{
		Completer: &fakeCompleter{completeFn: func(ctx context.Context, req completion.Request) (*completion.Response, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("completion call must be bounded")
			}
			if req.Prompt != "give me a health tip" {
				t.Errorf("prompt = %q", req.Prompt)
			}
			return &completion.Response{Text: "Walk more.", Model: "gpt-4o-mini", Usage: domain.Usage{TotalTokens: 12}}, nil
		}},
		Executions: execs,
	})

	if err := d.Dispatch(context.Background(), cronPrompt("p1", true, "0 9 * * *")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(execs.results) != 1 {
		t.Fatalf("execution results = %d, want 1", len(execs.results))
	}
	r := execs.results[0]
	if r.DefinitionID != "p1" || r.Category != "health" || r.Model != "gpt-4o-mini" {
		t.Errorf("result = %+v", r)
	}
	if r.Response == nil || *r.Response != "Walk more." || r.Error != nil {
		t.Errorf("response = %v, error = %v", r.Response, r.Error)
	}
	if r.Usage == nil || r.Usage.TotalTokens != 12 {
		t.Errorf("usage = %+v", r.Usage)
	}
}

func TestDispatch_PromptEmptyTextIsSuccess(t *testing.T) {
	execs := &memExecutions{}
	d := newTestDispatcher(scheduler.DispatcherConfig{
		Completer: &fakeCompleter{completeFn: func(context.Context, completion.Request) (*completion.Response, error) {
			return &completion.Response{}, nil
		}},
		Executions: execs,
	})

	if err := d.Dispatch(context.Background(), cronPrompt("p1", true, "0 9 * * *")); err != nil {
		t.Fatalf("empty completion should succeed: %v", err)
	}
	if len(execs.results) != 1 || execs.results[0].Response == nil || *execs.results[0].Response != "" {
		t.Errorf("results = %+v", execs.results)
	}
}

func TestDispatch_PromptFailureStillRecorded(t *testing.T) {
	execs := &memExecutions{}
	d := newTestDispatcher(scheduler.DispatcherConfig{
		Completer: &fakeCompleter{completeFn: func(context.Context, completion.Request) (*completion.Response, error) {
			return nil, context.DeadlineExceeded
		}},
		Executions: execs,
	})

	err := d.Dispatch(context.Background(), cronPrompt("p1", true, "0 9 * * *"))
	if !errors.Is(err, domain.ErrDelivery) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	if len(execs.results) != 1 {
		t.Fatalf("execution results = %d, want 1", len(execs.results))
	}
	r := execs.results[0]
	if r.Error == nil || r.Response != nil {
		t.Errorf("failed result: response=%v error=%v", r.Response, r.Error)
	}
}

// ---- weather ----

func TestDispatch_WeatherPersistsSnapshot(t *testing.T) {
	snaps := &memSnapshots{}
	observed := time.Date(2025, 1, 6, 7, 45, 0, 0, time.UTC)
	d := newTestDispatcher(scheduler.DispatcherConfig{
		Weather: &fakeWeather{currentFn: func(_ context.Context, lat, lon float64) (*weather.Observation, error) {
			if lat != 52.52 || lon != 13.41 {
				t.Errorf("coords = %v, %v", lat, lon)
			}
			return &weather.Observation{TemperatureC: 3.5, WindSpeedKmh: 10, WeatherCode: 3, ObservedAt: observed}, nil
		}},
		Snapshots: snaps,
	})

	def := &domain.Definition{
		ID:      "weather-poll",
		Kind:    domain.KindCron,
		Trigger: domain.CronTrigger("*/30 * * * *"),
		Payload: domain.Payload{Weather: &domain.WeatherPayload{Location: "Berlin", Latitude: 52.52, Longitude: 13.41}},
		Enabled: true,
	}
	if err := d.Dispatch(context.Background(), def); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(snaps.snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps.snaps))
	}
	s := snaps.snaps[0]
	if s.Location != "Berlin" || s.TemperatureC != 3.5 || !s.ObservedAt.Equal(observed) || !s.FetchedAt.Equal(t0) {
		t.Errorf("snapshot = %+v", s)
	}
}
