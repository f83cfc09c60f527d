// Package server parses server flags and launches the process.
package server

import (
	"context"
	"flag"
	"fmt"

	"github.com/xbiplob/WeFriend/internal/app"
	"github.com/xbiplob/WeFriend/internal/platform/config"
	"github.com/xbiplob/WeFriend/internal/platform/otel"
)

// Config holds server command configuration.
type Config struct {
	Port        int    `env:"WEFRIEND_PORT" envDefault:"8080"`
	DBPath      string `env:"WEFRIEND_DB_PATH" envDefault:"wefriend.db"`
	TokenSecret string `env:"WEFRIEND_TOKEN_SECRET"`
	BlobBaseURL string `env:"WEFRIEND_BLOB_BASE_URL" envDefault:"http://localhost:8080/blobs"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The gateway HTTP port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("WEFRIEND_TOKEN_SECRET is required")
	}
	return cfg, nil
}

// Run starts the gateway process with tracing configured.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "wefriend")
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	server, err := app.New(app.Options{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		DBPath:      cfg.DBPath,
		TokenSecret: []byte(cfg.TokenSecret),
		BlobBaseURL: cfg.BlobBaseURL,
	})
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
