package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/homebase/config"
	"github.com/ErlanBelekov/homebase/internal/clock"
	"github.com/ErlanBelekov/homebase/internal/completion"
	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/email"
	"github.com/ErlanBelekov/homebase/internal/health"
	"github.com/ErlanBelekov/homebase/internal/infrastructure/jsonfile"
	"github.com/ErlanBelekov/homebase/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/homebase/internal/log"
	"github.com/ErlanBelekov/homebase/internal/metrics"
	"github.com/ErlanBelekov/homebase/internal/notify"
	"github.com/ErlanBelekov/homebase/internal/repository"
	"github.com/ErlanBelekov/homebase/internal/scheduler"
	httptransport "github.com/ErlanBelekov/homebase/internal/transport/http"
	"github.com/ErlanBelekov/homebase/internal/transport/http/handler"
	"github.com/ErlanBelekov/homebase/internal/usecase"
	"github.com/ErlanBelekov/homebase/internal/weather"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

const weatherPollID = "weather-poll"

type stores struct {
	dependency  string
	pinger      health.Pinger
	definitions repository.DefinitionRepository
	executions  repository.ExecutionRepository
	weather     repository.WeatherRepository
	close       func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer st.close()

	loc := cfg.Location()

	// Transports
	notifiers := map[domain.Channel]scheduler.Notifier{}
	if cfg.WebhookURL != "" {
		notifiers[domain.ChannelWebhook] = notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookRatePerSec)
	}
	sender := email.NewSender(email.Config{
		Transport:    cfg.EmailTransport,
		From:         cfg.EmailFrom,
		ResendAPIKey: cfg.ResendAPIKey,
		SMTP: email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		},
	}, logger)
	if sender != nil {
		notifiers[domain.ChannelEmail] = notify.NewEmailNotifier(sender, cfg.EmailTo)
	}

	var completer scheduler.Completer
	if cfg.OpenAIAPIKey != "" {
		completer = completion.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, prompt definitions will fail to dispatch")
	}

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Notifiers:  notifiers,
		Completer:  completer,
		Executions: st.executions,
		Weather:    weather.NewClient(cfg.WeatherBaseURL),
		Snapshots:  st.weather,
		Clock:      clock.Real{},
		Logger:     logger,
	})

	// Scheduler
	runner := cron.New(cron.WithLocation(loc))
	sched := scheduler.NewScheduler(st.definitions, dispatcher, runner, clock.Real{}, loc, logger)

	scheduleUsecase := usecase.NewScheduleUsecase(st.definitions, sched, logger)
	executionUsecase := usecase.NewExecutionUsecase(st.definitions, st.executions, st.weather)

	if _, err := scheduleUsecase.Recover(ctx); err != nil {
		logger.Error("recover definitions", "error", err)
	}
	if cfg.WeatherPollEnabled() {
		if _, err := scheduleUsecase.EnsureDefinition(ctx, weatherPollDefinition(cfg)); err != nil {
			logger.Error("ensure weather poll", "error", err)
		}
	}
	runner.Start()

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer).
		Add(st.dependency, st.pinger).
		Add("scheduler", sched)

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger,
			handler.NewScheduleHandler(scheduleUsecase, logger),
			handler.NewExecutionHandler(executionUsecase, logger),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "storage", st.dependency, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	<-runner.Stop().Done()
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown", "error", err)
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.StorageDriver == "postgres" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			dependency:  "postgres",
			pinger:      pool,
			definitions: postgres.NewDefinitionRepository(pool, logger),
			executions:  postgres.NewExecutionRepository(pool),
			weather:     postgres.NewWeatherRepository(pool),
			close:       pool.Close,
		}, nil
	}

	fs, err := jsonfile.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &stores{
		dependency:  "jsonfile",
		pinger:      fs,
		definitions: jsonfile.NewDefinitionRepository(fs, logger),
		executions:  jsonfile.NewExecutionRepository(fs),
		weather:     jsonfile.NewWeatherRepository(fs),
		close:       func() {},
	}, nil
}

func weatherPollDefinition(cfg *config.Config) *domain.Definition {
	return &domain.Definition{
		ID:      weatherPollID,
		Kind:    domain.KindCron,
		Trigger: domain.CronTrigger(cfg.WeatherCron),
		Payload: domain.Payload{Weather: &domain.WeatherPayload{
			Location:  cfg.WeatherLocation,
			Latitude:  cfg.WeatherLatitude,
			Longitude: cfg.WeatherLongitude,
		}},
		Enabled: true,
	}
}
