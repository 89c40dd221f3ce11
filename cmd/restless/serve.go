package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/restlessgo/restless/server"
	"github.com/restlessgo/restless/storage"
)

var (
	serveConfig string
	serveAddr   string
	serveDebug  bool
)

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "restless.yaml", "Path to the configuration file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overriding the configuration")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Use human-readable debug logging")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured models as JSON:API endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		v.SetConfigFile(serveConfig)
		v.SetEnvPrefix("RESTLESS")
		v.AutomaticEnv()
		v.SetDefault("addr", ":8080")
		v.SetDefault("database.driver", "postgres")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		if serveAddr != "" {
			v.Set("addr", serveAddr)
		}

		logger, err := newLogger(serveDebug)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		registry, err := registryFromViper(v)
		if err != nil {
			return err
		}

		db, err := openDatabase(v.GetString("database.driver"), v.GetString("database.url"))
		if err != nil {
			return err
		}
		defer db.Close()

		repo := storage.NewRepository(db, registry, logger)
		options := append(server.FromViper(v), server.WithLogger(logger))
		api := server.New(repo, options...)

		srv := &http.Server{
			Addr:              v.GetString("addr"),
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errs := make(chan error, 1)
		go func() {
			logger.Info("listening",
				zap.String("addr", srv.Addr),
				zap.Strings("types", registry.Types()))
			errs <- srv.ListenAndServe()
		}()

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openDatabase maps the configured driver name onto a registered
// database/sql driver and verifies connectivity.
func openDatabase(driver, url string) (*sql.DB, error) {
	if url == "" {
		return nil, errors.New("database.url is not configured")
	}

	var driverName string
	switch driver {
	case "postgres", "pgx":
		driverName = "pgx"
	case "sqlite", "sqlite3":
		driverName = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driverName, url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}
