// seed inserts a handful of demo definitions into the configured store.
// Run: go run ./cmd/seed, then start the server so it recovers them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/homebase/config"
	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/infrastructure/jsonfile"
	"github.com/ErlanBelekov/homebase/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/homebase/internal/repository"
)

func intPtr(n int) *int { return &n }

func seedDefinitions(now time.Time) []*domain.Definition {
	soon := now.Add(2 * time.Minute).Truncate(time.Minute)
	tomorrow := now.Add(24 * time.Hour).Truncate(time.Hour)

	return []*domain.Definition{
		// Fires once, two minutes from now
		{
			ID:      "seed-tea",
			Kind:    domain.KindOneShot,
			Trigger: domain.FixedTrigger(soon),
			Payload: domain.Payload{Notification: &domain.NotificationPayload{
				Title:   "Tea",
				Message: "Kettle is ready",
				Channel: domain.ChannelWebhook,
			}},
			Enabled: true,
			Status:  domain.StatusPending,
		},
		// Daily for five days, then stops
		{
			ID:      "seed-vitamins",
			Kind:    domain.KindOneShot,
			Trigger: domain.FixedTrigger(tomorrow),
			Payload: domain.Payload{Notification: &domain.NotificationPayload{
				Title:   "Vitamins",
				Channel: domain.ChannelEmail,
			}},
			Enabled: true,
			Status:  domain.StatusPending,
			Recurrence: &domain.Recurrence{
				Interval:          domain.IntervalDaily,
				MaxOccurrences:    intPtr(5),
				CurrentOccurrence: 1,
				DayOfMonth:        tomorrow.Day(),
			},
		},
		// Weekday mornings and Friday evening
		{
			ID:      "seed-standup",
			Kind:    domain.KindCron,
			Trigger: domain.CronTrigger("0 9 * * 1-5", "0 17 * * 5"),
			Payload: domain.Payload{Prompt: &domain.PromptPayload{
				Prompt:   "Summarise three things worth focusing on today.",
				Category: "planning",
				Tags:     []string{"daily"},
			}},
			Enabled: true,
		},
		// Disabled: stored but never installed
		{
			ID:      "seed-paused",
			Kind:    domain.KindCron,
			Trigger: domain.CronTrigger("*/5 * * * *"),
			Payload: domain.Payload{Notification: &domain.NotificationPayload{
				Message: "This should not fire",
				Channel: domain.ChannelWebhook,
			}},
			Enabled: false,
		},
	}
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var repo repository.DefinitionRepository
	closeStore := func() {}
	switch cfg.StorageDriver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			log.Fatalf("migrate: %v", err)
		}
		repo = postgres.NewDefinitionRepository(pool, logger)
		closeStore = pool.Close
	default:
		fs, err := jsonfile.Open(cfg.DataDir)
		if err != nil {
			log.Fatalf("open data dir: %v", err)
		}
		repo = jsonfile.NewDefinitionRepository(fs, logger)
	}
	defer closeStore()

	// Existing ids are skipped so re-runs are idempotent
	var inserted, skipped int
	for _, d := range seedDefinitions(time.Now().In(cfg.Location())) {
		if err := d.Validate(); err != nil {
			log.Fatalf("seed %s: %v", d.ID, err)
		}
		if _, err := repo.Create(ctx, d); err != nil {
			if errors.Is(err, domain.ErrDefinitionExists) {
				skipped++
				continue
			}
			log.Fatalf("insert %s: %v", d.ID, err)
		}
		inserted++
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Storage:     %s\n", cfg.StorageDriver)
	fmt.Printf("  Definitions: %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: start the server; recovery installs the seeded timers:")
	fmt.Println()
	fmt.Println("    go run ./cmd/server")
	fmt.Println()
	fmt.Println("  Step 2: inspect what is live:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:" + cfg.Port + "/schedules/active")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    seed-tea       →  fires once in ~2 minutes, then status=sent")
	fmt.Println("    seed-vitamins  →  daily, spawns the next occurrence until 5 have fired")
	fmt.Println("    seed-standup   →  two cron timers, results under /schedules/seed-standup/executions")
	fmt.Println("    seed-paused    →  stored, not active")
}
