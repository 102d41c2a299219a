package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/engine"
	"taskboard/internal/logging"
	"taskboard/internal/migrate"
)

// Runtime is everything a hosting command needs: config, logger, journal
// connection and the page engine built on top of them.
type Runtime struct {
	Config *config.Config
	Logger *log.Logger
	DB     *sql.DB
	Engine *engine.Engine
}

// LoadEnv reads KEY=value pairs from the given files into the process
// environment. Missing files are skipped and existing variables win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Open builds a runtime from cfg. Logs go to logOut.
func Open(ctx context.Context, cfg *config.Config, logOut io.Writer) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	logger, err := logging.New(logOut, cfg.Log)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{DSN: cfg.Journal.DSN})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	logger.Debug("journal ready", "dsn", cfg.Journal.DSN)
	return &Runtime{
		Config: cfg,
		Logger: logger,
		DB:     conn,
		Engine: engine.New(conn, cfg, logger),
	}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
