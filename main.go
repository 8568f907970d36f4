package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nls08/NLS-Portal-sub001/clients"
	"github.com/nls08/NLS-Portal-sub001/config"
	"github.com/nls08/NLS-Portal-sub001/handlers"
	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/realtime"
	"github.com/nls08/NLS-Portal-sub001/services"
	"github.com/nls08/NLS-Portal-sub001/storage"
	"github.com/nls08/NLS-Portal-sub001/storage/memstore"
	"github.com/nls08/NLS-Portal-sub001/storage/mongostore"
)

func openStorage(ctx context.Context, cfg *config.Config) (storage.Database, error) {
	if cfg.StorageDriver == config.DriverMemory {
		logging.Logger.Warn("Event ID: STORAGE_MEMORY, Description: Using the in-memory store, data is lost on restart")
		return memstore.New(), nil
	}
	db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	return db, nil
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	logging.InitLogger(logging.Options{SystemName: "nls-portal", File: cfg.LogFile, Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStorage(ctx, cfg)
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: %v", err)
	}

	hub := realtime.NewHub(cfg.WSOutboxSize, cfg.WriteTimeout)

	var mailer services.Mailer = clients.LogMailer{}
	if cfg.SendgridAPIKey != "" {
		mailer = clients.NewSendgridMailer(cfg.SendgridAPIKey, cfg.MailFrom, cfg.MailFromName)
	}
	var objects services.ObjectStore = clients.NopObjectStore{}
	if cfg.ObjectStorageURL != "" {
		objects = clients.NewObjectStoreClient(cfg.ObjectStorageURL, cfg.ObjectStorageToken, &http.Client{Timeout: 10 * time.Second})
	}

	tx := services.NewTxRunner(db, cfg.TxTimeout, cfg.TxMaxAttempts)
	router := handlers.NewRouter(handlers.Deps{
		DB:            db,
		JWTSecret:     []byte(cfg.JWTSecret),
		WebhookSecret: cfg.WebhookSecret,
		CORSOrigin:    cfg.CORSOrigin,
		Users:         services.NewUserService(db),
		Projects:      services.NewProjectService(db, tx, hub),
		Milestones:    services.NewMilestoneService(db, tx, hub),
		Tasks:         services.NewTaskService(db, hub, mailer, objects),
		Dashboard:     services.NewDashboardService(db),
		Delivery:      services.NewDeliveryService(db),
		Finance:       services.NewFinanceService(db),
		Records:       services.NewRecords(db, hub),
		Hub:           hub,
	})

	// WriteTimeout stays zero: it would cut long-lived websocket connections.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       2 * cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Infof("Event ID: SERVER_STARTED, Description: NLS portal listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logging.Logger.Info("Event ID: SERVER_STOPPING, Description: Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logging.Logger.Errorf("Event ID: SERVER_FAILED, Description: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Warnf("Event ID: SERVER_SHUTDOWN_FAILED, Description: %v", err)
	}
	hub.Close()
	if err := db.Close(shutdownCtx); err != nil {
		logging.Logger.Warnf("Event ID: DB_CLOSE_FAILED, Description: %v", err)
	}
	logging.Logger.Info("Event ID: SERVER_STOPPED, Description: NLS portal stopped")
}
