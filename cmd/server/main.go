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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/Campus/internal/adapters/http"
	"github.com/dkeye/Campus/internal/adapters/rtc"
	sig "github.com/dkeye/Campus/internal/adapters/signal"
	"github.com/dkeye/Campus/internal/app/orch"
	"github.com/dkeye/Campus/internal/app/voice"
	"github.com/dkeye/Campus/internal/auth"
	"github.com/dkeye/Campus/internal/config"
	"github.com/dkeye/Campus/internal/store"
	"github.com/dkeye/Campus/internal/store/sqlite"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "campus",
		Short:         "Realtime core of the virtual campus: presence, chat and voice over one socket",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogger(logLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.AddCommand(tokenCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("campus exited with error")
		cancel()
		os.Exit(1)
	}
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	applyLevel(level)
}

func applyLevel(level string) {
	if level == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

func loadConfig() (*config.Config, error) {
	cfg, path, err := config.Load(&log.Logger, configPath)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		applyLevel(cfg.LogLevel)
	}
	log.Info().Str("path", path).Str("mode", cfg.Mode).Msg("config loaded")
	return cfg, nil
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gateway, err := auth.NewJWTGateway(auth.JWTConfig{
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		return fmt.Errorf("auth gateway: %w", err)
	}

	var st store.PersistenceGateway
	if cfg.Database.Path != "" {
		db, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		st = db
	} else {
		log.Warn().Msg("database path empty, chat history disabled")
	}

	engine, err := rtc.NewEngine(rtc.Config{
		MinPort:        cfg.Media.RTCMinPort,
		MaxPort:        cfg.Media.RTCMaxPort,
		ListenIP:       cfg.Media.ListenIP,
		AnnouncedIP:    cfg.Media.AnnouncedIP,
		InitialBitrate: cfg.Media.InitialOutgoingBitrate,
		MinimumBitrate: cfg.Media.MinimumOutgoingBitrate,
	})
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return fmt.Errorf("media engine: %w", err)
	}
	defer engine.Close()

	o := orch.New(orch.Options{
		SpawnX:              cfg.Presence.SpawnX,
		SpawnY:              cfg.Presence.SpawnY,
		TypingTTL:           cfg.Chat.TypingTTL,
		MeshMaxParticipants: cfg.Voice.MeshMaxParticipants,
		DefaultBackend:      voice.Kind(cfg.Voice.DefaultBackend),
		BusCapacity:         cfg.Signal.EventBusCapacity,
		KickSlow:            cfg.Signal.KickSlowClients,
		FatalGrace:          cfg.Media.FatalGrace,
	}, engine, st)
	o.Start(ctx)
	defer o.Shutdown()

	dispatcher := sig.NewDispatcher(o.Registry, o.Bus, o.OnBackpressure)
	go dispatcher.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o, gateway),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("voice_default", cfg.Voice.DefaultBackend).Msg("campus server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
	return nil
}
