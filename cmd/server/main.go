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
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Conclave/internal/adapters/http"
	"github.com/dkeye/Conclave/internal/adapters/rtc"
	sig "github.com/dkeye/Conclave/internal/adapters/signal"
	"github.com/dkeye/Conclave/internal/app"
	"github.com/dkeye/Conclave/internal/app/orch"
	"github.com/dkeye/Conclave/internal/config"
	"github.com/dkeye/Conclave/internal/domain"
)

func main() {
	v := config.New()
	var env, file string

	root := &cobra.Command{
		Use:   "conclave",
		Short: "Signaling and session coordinator for multi-party WebRTC rooms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, env, file)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.Flags().StringVar(&env, "env", "", "config environment, selects config/config.<env>.yaml")
	root.Flags().StringVar(&file, "config", "", "explicit config file path")
	root.Flags().Int("port", 8080, "http listen port")
	root.Flags().String("log-level", "info", "log level")
	_ = v.BindPFlag("port", root.Flags().Lookup("port"))
	_ = v.BindPFlag("log_level", root.Flags().Lookup("log-level"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("conclave exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, v *viper.Viper, env, file string) error {
	cfg, err := config.Load(v, env, file)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	engine, err := rtc.NewEngine(rtc.Config{
		ICEServers:    cfg.RTC.ICEServers,
		MinPort:       cfg.RTC.MinPort,
		MaxPort:       cfg.RTC.MaxPort,
		NATIPs:        cfg.RTC.NATIPs,
		GatherTimeout: cfg.RTC.GatherTimeout,
	})
	if err != nil {
		return fmt.Errorf("start media engine: %w", err)
	}
	defer engine.Close()

	reg := app.NewRegistry()
	rooms := app.NewRoomManager(reg, engine, cfg.RequestTimeout)
	o := orch.New(reg, rooms, app.SimplePolicy{ReclaimEmptyRooms: cfg.ReclaimEmptyRooms}, cfg.RequestTimeout)

	sigCfg := sig.DefaultConfig()
	sigCfg.ReadLimit = cfg.ReadLimit
	sigCfg.PingPeriod = cfg.PingPeriod
	sigCfg.PongWait = cfg.PongWait
	sigCfg.WriteWait = cfg.WriteWait
	sigCfg.RequestTimeout = cfg.RequestTimeout
	ctrl := sig.NewSignalWSController(o, sig.NewRateLimiter(cfg.RateLimit, cfg.RateInterval), sigCfg)

	g, gctx := errgroup.WithContext(ctx)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(gctx, cfg, o, ctrl),
	}

	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", addr).Msg("conclave server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-engine.Done():
		}
		if gctx.Err() != nil {
			return nil
		}
		cause := engine.Err()
		o.HandleEngineFault(cause)
		// Give writers a moment to flush the engineFault push.
		select {
		case <-time.After(cfg.FatalGrace):
		case <-gctx.Done():
		}
		return fmt.Errorf("%v: %w", cause, domain.ErrEngineFault)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
		}
		o.Shutdown()
		return nil
	})

	err = g.Wait()
	if err == nil {
		log.Info().Str("module", "main").Msg("server exited gracefully")
	}
	return err
}

func setupLogging(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
