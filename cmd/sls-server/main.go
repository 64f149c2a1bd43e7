package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sls/sls/internal/config"
	"github.com/sls/sls/internal/domain/labeling"
	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/db"
	"github.com/sls/sls/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sls-server",
		Short: "Security labeling service for FHIR clinical records",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sourcesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the labeling server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect stored topic sources",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored topic sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo, err := rules.NewRepoPG(ctx, pool)
			if err != nil {
				return err
			}
			sources, total, err := repo.List(ctx, 100, 0)
			if err != nil {
				return err
			}
			fmt.Printf("%d topic source(s)\n", total)
			for _, s := range sources {
				date := "-"
				if s.EffectiveDate != nil {
					date = s.EffectiveDate.Format("2006-01-02")
				}
				fmt.Printf("  %-50s topics=%d codes=%d date=%s\n",
					s.SourceID, s.TopicCount, s.CodeCount, date)
			}
			return nil
		},
	})
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	repo, err := rules.NewRepoPG(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize topic source storage")
	}

	// Rules engine
	var expander rules.Expander
	if cfg.TerminologyBaseURL != "" {
		expander = rules.NewHTTPExpander(cfg.TerminologyBaseURL, logger)
		logger.Info().Str("url", cfg.TerminologyBaseURL).Msg("expansion service configured")
	}
	store := rules.NewStore()
	rulesSvc := rules.NewService(store, repo, expander, logger)
	if n, err := rulesSvc.LoadPersisted(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore rule table from storage")
	} else if n > 0 {
		logger.Info().Int("sources", n).Msg("rule table restored")
	}

	// Labeling engine
	labelingSvc := labeling.NewService(
		store,
		labeling.NewScanner(cfg.MaxScanDepth),
		labeling.NewApplier(),
		labeling.NewAssembler(labeling.UnsupportedPolicy(cfg.UnsupportedPolicy)),
		cfg.WorkerCount,
		logger,
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	// Routes
	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")

	rules.NewHandler(rulesSvc).RegisterRoutes(apiV1, fhirGroup)
	labeling.NewHandler(labelingSvc).RegisterRoutes(fhirGroup)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
