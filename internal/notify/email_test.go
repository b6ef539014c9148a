package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/homebase/internal/email"
	"github.com/ErlanBelekov/homebase/internal/notify"
)

type fakeSender struct {
	sendFn func(ctx context.Context, msg email.Message) error
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) error {
	return f.sendFn(ctx, msg)
}

func TestEmailNotifier_RendersAndSends(t *testing.T) {
	var sent email.Message
	n := notify.NewEmailNotifier(&fakeSender{sendFn: func(_ context.Context, msg email.Message) error {
		sent = msg
		return nil
	}}, "default@example.com")

	err := n.Notify(context.Background(), notify.Message{
		DefinitionID: "def-1",
		Title:        "Dentist",
		Message:      "Bring <insurance> card",
		Recipient:    "me@example.com",
		FiredAt:      time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if sent.To != "me@example.com" {
		t.Errorf("to = %q, want payload recipient", sent.To)
	}
	if sent.Subject != "Dentist" {
		t.Errorf("subject = %q", sent.Subject)
	}
	if !strings.Contains(sent.Text, "Bring <insurance> card") {
		t.Errorf("text body = %q", sent.Text)
	}
	if !strings.Contains(sent.HTML, "<h2>Dentist</h2>") || !strings.Contains(sent.HTML, "Bring &lt;insurance&gt; card") {
		t.Errorf("html body = %q", sent.HTML)
	}
}

func TestEmailNotifier_DefaultsAndOmissions(t *testing.T) {
	var sent email.Message
	n := notify.NewEmailNotifier(&fakeSender{sendFn: func(_ context.Context, msg email.Message) error {
		sent = msg
		return nil
	}}, "default@example.com")

	if err := n.Notify(context.Background(), notify.Message{DefinitionID: "def-1", Message: "ping"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if sent.To != "default@example.com" {
		t.Errorf("to = %q, want fallback recipient", sent.To)
	}
	if sent.Subject != "Reminder" {
		t.Errorf("subject = %q, want Reminder", sent.Subject)
	}
	if strings.Contains(sent.HTML, "<h2>") {
		t.Error("empty title must not render a heading")
	}
}

func TestEmailNotifier_NoRecipient(t *testing.T) {
	n := notify.NewEmailNotifier(&fakeSender{sendFn: func(context.Context, email.Message) error {
		t.Fatal("sender should not be called")
		return nil
	}}, "")

	if err := n.Notify(context.Background(), notify.Message{Title: "x"}); err == nil {
		t.Fatal("expected error without recipient")
	}
}

func TestEmailNotifier_SenderError(t *testing.T) {
	boom := errors.New("smtp down")
	n := notify.NewEmailNotifier(&fakeSender{sendFn: func(context.Context, email.Message) error {
		return boom
	}}, "me@example.com")

	if err := n.Notify(context.Background(), notify.Message{Title: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped sender error, got %v", err)
	}
}
