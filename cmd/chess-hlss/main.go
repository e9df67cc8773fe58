package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/eink-labs/chess-hlss/internal/accounts"
	"github.com/eink-labs/chess-hlss/internal/board"
	appcfg "github.com/eink-labs/chess-hlss/internal/config"
	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/frame"
	"github.com/eink-labs/chess-hlss/internal/gateway"
	"github.com/eink-labs/chess-hlss/internal/obslog"
	"github.com/eink-labs/chess-hlss/internal/remote"
	"github.com/eink-labs/chess-hlss/internal/screen"
	"github.com/eink-labs/chess-hlss/internal/store"
	"github.com/eink-labs/chess-hlss/internal/uicat"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	ctx := context.Background()

	kv, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	defer kv.Close()

	dir, db, err := buildDirectory(cfg)
	if err != nil {
		log.Fatalf("accounts init error: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	tokens := remote.NewEnvTokenSource(func(ctx context.Context, accountID string) (string, error) {
		acct, err := dir.Account(ctx, accountID)
		if err != nil {
			return "", err
		}
		if acct == nil {
			return "", fmt.Errorf("account %s not found", accountID)
		}
		return acct.TokenRef, nil
	})

	client := remote.NewHTTPClient(cfg.LichessBaseURL, tokens,
		remote.WithTimeout(cfg.SubmitTimeout),
	)

	cat, err := uicat.New(cfg.UICatalogDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	registry := board.NewRegistry()
	router := screen.NewRouter(dir, client, registry, kv, cat, screen.Config{
		ConfigureURL:  cfg.ConfigureURL,
		SubmitTimeout: cfg.SubmitTimeout,
		CreateTimeout: cfg.CreateTimeout,
		SessionTTL:    cfg.SessionTTL,
	})

	composer := frame.NewPNGComposer(cfg.DisplayWidth, cfg.DisplayHeight)
	var display gateway.Display = gateway.NopDisplay{}
	if cfg.LLSSBaseURL != "" {
		display = gateway.NewHTTPDisplay(cfg.LLSSBaseURL, cfg.LLSSAPIToken)
	}
	renderer := gateway.NewRenderer(router, composer, display, 30*time.Second)
	router.SetRenderHook(renderer.Notify)

	// Restore persisted sessions before events start flowing so inbound moves
	// find their boards.
	if err := router.Restore(ctx); err != nil {
		obslog.L().Warn("session restore incomplete", zap.Error(err))
	}

	reconciler := remote.NewReconciler(registry, client, router.GameChanged)
	reconciler.SetInFlightBudget(cfg.SubmitTimeout + 5*time.Second)

	var stream *remote.EventStream
	if cfg.LichessWSURL != "" {
		stream = remote.NewEventStream(cfg.LichessWSURL, tokens, reconciler.HandleEvent, reconciler.Resync)
		streamCtx, streamCancel := context.WithCancel(ctx)
		defer streamCancel()

		accts, err := dir.EnabledAccounts(ctx)
		if err != nil {
			log.Fatalf("list accounts error: %v", err)
		}
		for _, acct := range accts {
			stream.Watch(streamCtx, acct.ID)
			obslog.L().Info("watching account events",
				zap.String("account_id", acct.ID),
				zap.String("username", acct.Username),
			)
		}
	} else {
		obslog.L().Warn("LICHESS_WS_URL not set; opponent moves will only arrive via resync")
	}

	server := gateway.NewServer(router, renderer, cfg.InputAPIToken)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		obslog.L().Error("input server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		obslog.L().Warn("input server shutdown failed", zap.Error(err))
	}
	if stream != nil {
		if err := stream.Close(shutdownCtx); err != nil {
			obslog.L().Warn("event stream shutdown failed", zap.Error(err))
		}
	}
	renderer.Close()
	obslog.L().Info("stopped")
}

// buildDirectory wires the account directory: Postgres when DATABASE_URL is
// set, otherwise a single account from the environment for local setups.
func buildDirectory(cfg *appcfg.AppConfig) (accounts.Directory, *sql.DB, error) {
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
		return accounts.NewPostgresDirectory(db), db, nil
	}

	username := os.Getenv("HLSS_ACCOUNT_USERNAME")
	tokenRef := os.Getenv("HLSS_ACCOUNT_TOKEN_REF")
	if username == "" || tokenRef == "" {
		return nil, nil, fmt.Errorf("set DATABASE_URL, or HLSS_ACCOUNT_USERNAME and HLSS_ACCOUNT_TOKEN_REF")
	}
	dir := accounts.NewMemoryDirectory([]domain.Account{{
		ID:       "default",
		Username: username,
		TokenRef: tokenRef,
		Enabled:  true,
		Default:  true,
	}}, nil)
	return dir, nil, nil
}
