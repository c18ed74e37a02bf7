package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"library_desk/internal/config"
	"library_desk/internal/db"
	"library_desk/internal/home"
	"library_desk/internal/httpapi"
	"library_desk/internal/logger"
	"library_desk/internal/network"
	"library_desk/internal/service"
	"library_desk/internal/telegram"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "library-desk",
		Short:        "Mini Library Management System: web UI and Telegram bot over the catalog API",
		SilenceUsage: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "web",
			Short: "Serve the web UI",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), true, false)
			},
		},
		&cobra.Command{
			Use:   "bot",
			Short: "Run the Telegram bot",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), false, true)
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web UI and, when TELEGRAM_TOKEN is set, the Telegram bot",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), true, true)
			},
		},
	)
	return root
}

func run(parent context.Context, web, bot bool) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.Get(cfg.Debug)
	log.Info().
		Str("api", cfg.APIBaseURL).
		Str("http", cfg.HTTPAddr).
		Str("sqlite", cfg.SQLitePath).
		Bool("proxy", cfg.CatalogProxy != "").
		Msg("library desk starting")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := network.NewClient(cfg.CatalogProxy, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}
	catalog := service.NewCatalogClient(client, cfg.APIBaseURL)

	store, err := db.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer store.Close()

	opts := home.Options{Debounce: cfg.SearchDebounce}

	group, gCtx := errgroup.WithContext(ctx)
	if web {
		srv, err := httpapi.New(catalog, store, opts, log)
		if err != nil {
			return fmt.Errorf("web ui: %w", err)
		}
		group.Go(func() error {
			return srv.Run(gCtx, cfg.HTTPAddr)
		})
	}

	if bot {
		if err := startBot(gCtx, group, cfg, catalog, store, opts, log, !web); err != nil {
			return err
		}
	}

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("stopped with error")
		return err
	}
	log.Info().Msg("library desk stopped")
	return nil
}

// startBot adds the bot to group. A missing token is an error only when the
// bot is the only thing asked for.
func startBot(ctx context.Context, group *errgroup.Group, cfg *config.Config, catalog home.Catalog,
	store home.PreferenceStore, opts home.Options, log zerolog.Logger, required bool) error {
	if cfg.TelegramToken == "" {
		if required {
			return errors.New("TELEGRAM_TOKEN is not set")
		}
		log.Warn().Msg("TELEGRAM_TOKEN is not set, telegram bot disabled")
		return nil
	}

	b, err := telegram.NewBot(cfg.TelegramToken, catalog, store, opts, log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	group.Go(func() error {
		return b.Run(ctx)
	})
	return nil
}
