package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/config"
	gap "github.com/muesli/go-app-paths"
)

type logEnv struct {
	Format string `env:"CIVICHERO_LOG_FORMAT" envDefault:"text"`
}

// logFile is set while the player owns the terminal.
var logFile io.Closer

func setupLog() (func() error, error) {
	e, err := env.ParseAs[logEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	switch e.Format {
	case "json":
		log.SetFormatter(log.JSONFormatter)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
	case "text":
		log.SetFormatter(log.TextFormatter)
	default:
		return nil, fmt.Errorf("unknown log format %q: use text, json or logfmt", e.Format)
	}

	return func() error {
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	}, nil
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, config.AppName).CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

// logToFile redirects logging to path, or to the user cache directory
// when path is empty.
func logToFile(path string) error {
	if path == "" {
		p, err := getLogFilePath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return err
	}
	log.SetOutput(f)
	logFile = f
	return nil
}
