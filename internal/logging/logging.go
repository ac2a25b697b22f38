// Package logging builds the daemon's zap logger. Log lines are written to
// stdout and to a dated file in the configured log directory so a day's run
// can be inspected after the fact; old files are swept by Cleanup.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const filePrefix = "stay-lock-sync-"

// New creates a logger that tees to stdout and to a file named
// stay-lock-sync-YYYY-MM-DD.log under dir. Timestamps use the given zone.
// The returned path is the logfile in use.
func New(dir string, zone *time.Location) (*zap.Logger, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating log directory %q: %w", dir, err)
	}

	path := filepath.Join(dir, filePrefix+time.Now().In(zone).Format("2006-01-02")+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("opening logfile %q: %w", path, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(zone).Format("02.01.2006 15:04:05"))
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapcore.InfoLevel),
		zapcore.NewCore(encoder, zapcore.Lock(file), zapcore.InfoLevel),
	)

	return zap.New(core), path, nil
}

// Cleanup removes logfiles in dir older than retentionDays. Errors are
// ignored: log rotation must never interfere with a run.
func Cleanup(dir string, retentionDays int, zone *time.Location) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().In(zone).AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
