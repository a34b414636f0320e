package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	httpadapter "cybersentinel/internal/adapters/http"
	"cybersentinel/internal/adapters/memory"
	pg "cybersentinel/internal/adapters/postgres"
	"cybersentinel/internal/adapters/rabbitmq"
	"cybersentinel/internal/config"
	"cybersentinel/internal/domain"
	"cybersentinel/internal/logging"
	"cybersentinel/internal/ports"
	"cybersentinel/internal/progress"
	"cybersentinel/internal/seed"
	"cybersentinel/internal/services/discovery"
	"cybersentinel/internal/services/summary"
	"cybersentinel/internal/subdomain"
	scanworker "cybersentinel/internal/workers/scanrunner"
)

type repositories interface {
	ports.SubdomainRepository
	ports.ScanRepository
	ports.JobRepository
}

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repos repositories
	seedInto := false
	if cfg.InMemory() {
		log.Warn("DATABASE_URL not set, using in-memory store")
		repos = memory.New()
		seedInto = true
	} else {
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("db connect error")
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
		repos = db
		seedInto = cfg.SeedFile != ""
	}

	var publisher ports.RescanPublisher = ports.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQQueue)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable, rescan notifications disabled")
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	disc, err := discovery.New(repos, repos, publisher, cfg.ViewCacheSize, log)
	if err != nil {
		log.WithError(err).Fatal("discovery service")
	}
	if seedInto {
		err := importSeed(ctx, disc, cfg.SeedFile)
		switch {
		case errors.Is(err, domain.ErrDuplicate):
			log.WithError(err).Info("seed already present, skipping")
		case err != nil:
			log.WithError(err).Fatal("seed import failed")
		}
	}

	hub := progress.NewHub()
	runner := scanworker.Runner{
		Repo: repos,
		Processor: scanworker.SimulatedProcessor{
			Jobs:       repos,
			Scans:      repos,
			Subdomains: repos,
			Hub:        hub,
			Step:       cfg.ScanStepInterval,
		},
		Hub: hub,
		Log: log.WithField("component", "scanrunner"),
	}
	if cfg.ScanWorkers > 0 {
		runner.Run(ctx, cfg.ScanWorkers, cfg.ScanPollInterval)
		log.WithField("workers", cfg.ScanWorkers).Info("scan workers started")
	}

	srv := httpadapter.New(disc, summary.New(repos, repos), runner, hub, log.WithField("component", "http"))
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "env": cfg.Env}).Info("listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}
}

// importSeed loads the configured seed file, or the embedded snapshot when
// none is set.
func importSeed(ctx context.Context, disc *discovery.Service, path string) error {
	var (
		t   *subdomain.Tree
		err error
	)
	if path == "" {
		t = seed.Default()
	} else if t, err = seed.LoadFile(path); err != nil {
		return err
	}
	return disc.Import(ctx, t)
}
