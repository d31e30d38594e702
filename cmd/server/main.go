package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	api "github.com/barotovamirbek/elowy-chat/internal/api/http"
	ws "github.com/barotovamirbek/elowy-chat/internal/api/ws"
	"github.com/barotovamirbek/elowy-chat/internal/assistant"
	"github.com/barotovamirbek/elowy-chat/internal/auth"
	"github.com/barotovamirbek/elowy-chat/internal/config"
	"github.com/barotovamirbek/elowy-chat/internal/logging"
	"github.com/barotovamirbek/elowy-chat/internal/metrics"
	"github.com/barotovamirbek/elowy-chat/internal/pkg/database"
	"github.com/barotovamirbek/elowy-chat/internal/repository"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "elowy-server",
		Short:        "Elowy chat backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and realtime hub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(configFile)
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(db, log); err != nil {
				return err
			}
			return reserveResponder(cmd.Context(), &repository.UserRepository{DB: db}, cfg.AI.ResponderID)
		},
	}

	root.AddCommand(serveCmd, migrateCmd)
	return root
}

func setup(configFile string) (*config.ServerConfig, *logrus.Logger, error) {
	cfg, err := config.LoadServer(configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// reserveResponder keeps the AI responder id bound to a system account.
func reserveResponder(ctx context.Context, users *repository.UserRepository, id int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return errors.Wrapf(users.EnsureSystemUser(ctx, id, "AI Assistant"), "reserve AI responder id %d", id)
}

func serve(ctx context.Context, cfg *config.ServerConfig, log *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, log); err != nil {
		return err
	}

	users := &repository.UserRepository{DB: db}
	if err := reserveResponder(ctx, users, cfg.AI.ResponderID); err != nil {
		return err
	}
	messages := &repository.MessageRepository{DB: db}
	groups := &repository.GroupRepository{DB: db}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	m := metrics.New()

	var responder assistant.Responder
	if cfg.AI.Enabled() {
		responder = assistant.NewOpenAI(cfg.AI)
		log.WithField("model", cfg.AI.Model).Info("AI responder enabled")
	} else {
		log.Warn("AI responder disabled: no API key configured")
	}

	hub := ws.NewHub(ws.Config{
		AuthTimeout: cfg.Auth.AuthTimeout,
		AI: assistant.Router{
			ResponderID:   cfg.AI.ResponderID,
			MentionPrefix: cfg.AI.MentionPrefix,
		},
	}, messages, groups, tokens, responder, m, log)

	handler := api.NewHandler(users, messages, groups, tokens, hub, log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(handler, hub.ServeWS, m.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.Addr).Info("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		hub.Shutdown()
		return errors.Wrap(err, "shutdown")
	})
	return g.Wait()
}
