package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/config"
	"github.com/camden-git/faceenhancer/database"
	"github.com/camden-git/faceenhancer/detection"
	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/handlers"
	"github.com/camden-git/faceenhancer/media"
	"github.com/camden-git/faceenhancer/realtime"
	"github.com/camden-git/faceenhancer/repository"
	"github.com/camden-git/faceenhancer/workers"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	defaults, err := defaultParams(cfg, log)
	if err != nil {
		return err
	}

	var repo *repository.EnhancementRepository
	var historyRepo repository.EnhancementRepositoryInterface
	if cfg.DatabasePath != "" {
		db, err := database.InitGormDB(cfg.DatabasePath, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		repo = repository.NewEnhancementRepository(db)
		historyRepo = repo
	} else {
		log.Info("DATABASE_PATH is empty, enhancement history disabled")
	}

	store, err := newOutputStore(cfg, log)
	if err != nil {
		return err
	}
	processor := media.NewProcessor(store, log)

	locator := detection.LoadLocator(cfg.Detection(), log)
	defer locator.Close()
	enhancer := enhance.NewEnhancer(locator, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	var recorder workers.Recorder
	if repo != nil {
		recorder = repo
	}
	runner := workers.NewBatchRunner(enhancer, processor, recorder, hub, log)
	queue := workers.NewBatchQueue(runner, hub, cfg.BatchQueueSize, cfg.BatchWorkers, log)
	defer queue.Stop()

	router := handlers.NewRouter(handlers.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Log:            log,
		Status: &handlers.StatusHandler{
			Version:   version,
			StartedAt: time.Now(),
			Backends:  locator.Backends(),
			History:   repo != nil,
			Store:     cfg.OutputStore,
			Clients:   hub.Clients,
		},
		Enhance: &handlers.EnhanceHandler{
			Enhancer:       enhancer,
			Processor:      processor,
			Repo:           historyRepo,
			Defaults:       defaults,
			Encode:         cfg.EncodeOptions(),
			StoreOutputs:   cfg.StoreOutputs,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Log:            log,
		},
		Faces:   &handlers.FaceHandler{Locator: locator, MaxUploadBytes: cfg.MaxUploadBytes, Log: log},
		History: &handlers.HistoryHandler{Repo: historyRepo, Log: log},
		Batches: &handlers.BatchHandler{
			Queue:    queue,
			Root:     cfg.BatchRoot,
			Defaults: defaults,
			Encode:   cfg.EncodeOptions(),
			Log:      log,
		},
		Outputs: store,
		WS:      hub.ServeWS,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":      cfg.Addr(),
			"detectors": locator.Backends(),
			"store":     cfg.OutputStore,
		}).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	bootstrap := config.NewLogger("info", "text")
	cfg, err := config.Load(bootstrap)
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

// defaultParams applies PARAMS_FILE, if set, over the built-in defaults.
func defaultParams(cfg *config.Config, log logrus.FieldLogger) (enhance.Params, error) {
	params := enhance.DefaultParams()
	if cfg.ParamsFile == "" {
		return params, nil
	}
	pf, err := config.LoadParamsFile(cfg.ParamsFile, params, log)
	if err != nil {
		return params, err
	}
	return pf.Params.Normalized(), nil
}

func newOutputStore(cfg *config.Config, log logrus.FieldLogger) (media.Store, error) {
	switch cfg.OutputStore {
	case config.OutputStoreAzure:
		store, err := media.NewAzureStore(cfg.AzureConnectionString, cfg.AzureContainer, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize azure output store: %w", err)
		}
		return store, nil
	default:
		store, err := media.NewLocalStorage(cfg.MediaStoragePath, nil, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize media store: %w", err)
		}
		return store, nil
	}
}
