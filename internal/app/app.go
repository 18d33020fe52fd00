package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"vitals/internal/alerts"
	"vitals/internal/collector"
	"vitals/internal/config"
	"vitals/internal/db"
	"vitals/internal/models"
	"vitals/internal/notifier"
	"vitals/internal/retention"
	"vitals/internal/sampler"
	"vitals/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db        *db.Repository
	sampler   *sampler.Sampler
	alerts    *alerts.Engine
	retention *retention.Service
	notify    *notifier.Telegram
	web       *web.Server

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	rules, err := repo.ListEnabledRules(context.Background())
	if err != nil {
		return nil, err
	}

	samplesPersisted := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "pipeline",
		Name:      "samples_persisted_total",
		Help:      "Samples written to the store.",
	}, nil)
	alertsFired := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "vitals",
		Subsystem: "pipeline",
		Name:      "alerts_fired_total",
		Help:      "Alerts generated by rule evaluation.",
	}, []string{"severity"})

	n := notifier.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	alertLog := logger.With("module", "alerts")
	engine := alerts.NewEngine(rules, n, func(ctx context.Context, a *models.Alert) {
		id, err := repo.InsertAlert(ctx, *a)
		if err != nil {
			// best-effort relative to the sample insert, but never silent
			alertLog.Error("insert alert", "metric", a.MetricKey, "err", err)
			return
		}
		a.ID = id
		alertsFired.With("severity", string(a.Severity)).Add(1)
	}, alertLog)

	source := collector.NewSystemSource(cfg.DiskPath, cfg.TopProcessLimit)
	samplerLog := logger.With("module", "sampler")
	smp := sampler.New(source, cfg.SampleInterval, cfg.ShutdownTimeout, func(ctx context.Context, s *models.Sample) {
		id, err := repo.InsertSample(ctx, *s)
		if err != nil {
			samplerLog.Error("insert sample", "err", err)
		} else {
			s.ID = id
			samplesPersisted.Add(1)
		}
		engine.Evaluate(ctx, s)
	}, samplerLog)

	ret, err := retention.NewService(repo, cfg.RetentionDays, cfg.RetentionSchedule, logger.With("module", "retention"))
	if err != nil {
		return nil, err
	}

	counter, latency := web.APIMetrics()
	w := web.NewServer(repo, smp, counter, latency, cfg.CORSOrigins, logger.With("module", "web"))

	app := &App{
		cfg:       cfg,
		log:       logger,
		db:        repo,
		sampler:   smp,
		alerts:    engine,
		retention: ret,
		notify:    n,
		web:       w,
	}
	app.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      w.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	if a.cfg.SampleOnStart {
		a.sampler.Start()
	}
	a.retention.Prune(ctx)
	a.log.Info("retention scheduled", "next_run", a.retention.NextRun(time.Now().UTC()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.retention.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return a.httpSrv.Shutdown(shCtx)
	})

	err := g.Wait()
	a.sampler.Stop()
	if cerr := a.db.DB().Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
