package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parish-tools/rosterbot/internal/assistant"
	"github.com/parish-tools/rosterbot/internal/audit"
	"github.com/parish-tools/rosterbot/internal/bot"
	"github.com/parish-tools/rosterbot/internal/handler"
	"github.com/parish-tools/rosterbot/internal/repository"
	"github.com/parish-tools/rosterbot/internal/service"
	"github.com/parish-tools/rosterbot/internal/session"
	"github.com/parish-tools/rosterbot/pkg/config"
	"github.com/parish-tools/rosterbot/pkg/logger"
	"github.com/parish-tools/rosterbot/pkg/storage"
	"github.com/parish-tools/rosterbot/pkg/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("rosterbot failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := sqlx.Connect("postgres", databaseDSN(cfg.Database))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	store := repository.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	metrics := service.NewMetricsService()
	cache := repository.NewTableCache(store, logr, metrics)
	if err := ensureTables(ctx, cache, cfg.Roster); err != nil {
		return fmt.Errorf("ensure tables: %w", err)
	}

	sessions, err := session.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	defer sessions.Close() //nolint:errcheck

	auditWriter := audit.NewWriter(cache, audit.WriterConfig{
		Workers:    2,
		BufferSize: 256,
		Logger:     logr,
	})
	auditWriter.Start(ctx)
	defer auditWriter.Stop()

	authSvc := service.NewAuthService(cache, auditWriter, cfg.Roster, cfg.Telegram.MainAdminID, logr)
	rosterSvc := service.NewRosterService(cache, cfg.Roster, logr)

	generator := assistant.NewGeminiClient(cfg.Assistant.APIKey, cfg.Assistant.Model, cfg.Assistant.Timeout)
	assistantSvc := service.NewAssistantService(generator, cache, cfg.Roster, cfg.Assistant.MaxAnswerRunes, logr)

	photos, err := storage.NewPhotoStorage(cfg.Photos.StorageDir)
	if err != nil {
		return fmt.Errorf("init photo storage: %w", err)
	}

	miniApp := handler.NewMiniAppHandler(rosterSvc, assistantSvc, photos, cache, authSvc, cfg, logr)
	router := handler.NewRouter(miniApp, metrics, cfg, logr)

	tgClient := telegram.NewClient(cfg.Telegram.Token)
	chatBot := bot.New(tgClient, sessions, authSvc, rosterSvc, assistantSvc, cfg, metrics, logr)
	poller := telegram.NewPoller(tgClient, chatBot, cfg.Telegram.PollTimeout, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logr.Sugar().Infow("http server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if cfg.Telegram.Token == "" {
			logr.Warn("telegram token empty, poller disabled")
			<-ctx.Done()
			return nil
		}
		logr.Info("telegram poller starting")
		return poller.Run(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Session.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				removed, err := sessions.SweepExpired(ctx)
				if err != nil {
					logr.Warn("session_sweep_failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					logr.Debug("sessions_swept", zap.Int("removed", removed))
				}
			}
		}
	})

	return g.Wait()
}

// ensureTables creates the backing tables the bot depends on. The main
// roster table is created empty of columns on first run and grows as
// columns are added.
func ensureTables(ctx context.Context, cache *repository.TableCache, cfg config.RosterConfig) error {
	tables := map[string][]string{
		cfg.MainTable:      {cfg.LastNameColumn, cfg.FirstNameColumn, cfg.BirthDateColumn},
		cfg.UsersTable:     {"ID", "Имя", "Username", "Роль", "Дата добавления"},
		cfg.AccessLogTable: {"Дата", "ID", "Имя", "Решение", "Детали"},
		cfg.ActionLogTable: {"Дата", "ID", "Имя", "Действие", "Детали"},
	}
	for name, headers := range tables {
		if err := cache.EnsureTable(ctx, name, headers); err != nil {
			return err
		}
	}
	return nil
}

func databaseDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}
