package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/vango-dev/docroot/internal/config"
	"github.com/vango-dev/docroot/internal/errors"
)

// loadConfig reads docroot.json from the --config path, or searches upward
// from the working directory. A missing file is not an error unless the
// path was given explicitly.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg, err := config.LoadFromWorkingDir()
		if errors.HasCode(err, "E121") {
			return config.New(), nil
		}
		return cfg, err
	}

	if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		return config.Load(configPath)
	}
	return config.LoadFile(configPath)
}

// applyLogFlags copies the persistent log flags over the file values.
func applyLogFlags(cfg *config.Config) {
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}

// newLogger builds the process logger from cfg.Log and installs it as the
// slog default.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.New("E120").WithDetail(err.Error())
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}
