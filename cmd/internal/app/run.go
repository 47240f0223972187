package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Run is the CLI entrypoint used by cmd/axionx. It returns an error instead of
// calling os.Exit so deferred cleanup runs.
func Run() error {
	if err := loadEnvFile(EnvString("AXIONX_ENV_FILE", ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "axionx: %v\n", err)
		return err
	}
	cfg := LoadConfig()
	log := NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("app.init.fail", "err", err)
		return err
	}
	return a.Run(ctx)
}

// loadEnvFile fills unset variables from a dotenv file. A missing file is fine;
// variables already present in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
