package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"perp_bot/internal/models"
)

// FileConfig: файл журнала с ротацией.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// File пишет одну строку на событие:
// ts,event,symbol,side,entry,exit,size,pnl_pct,pnl_quote,reason
type File struct {
	mu sync.Mutex
	w  *lumberjack.Logger
}

func NewFile(cfg FileConfig) *File {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	return &File{w: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}}
}

func (f *File) Append(_ context.Context, ev models.TradeEvent) error {
	line := FormatLine(ev)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.w.Write([]byte(line)); err != nil {
		return errors.Wrap(err, "journal write")
	}
	return nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Close()
}

// FormatLine: строка журнала с переводом строки в конце.
func FormatLine(ev models.TradeEvent) string {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	reason := strings.NewReplacer(",", ";", "\n", " ").Replace(ev.Reason)
	fields := []string{
		ts.UTC().Format(time.RFC3339),
		string(ev.Kind),
		ev.Symbol,
		ev.Side.String(),
		ev.EntryPrice.String(),
		ev.ExitPrice.String(),
		ev.Size.String(),
		ev.PnLPct.StringFixed(4),
		ev.PnLQuote.StringFixed(8),
		reason,
	}
	return strings.Join(fields, ",") + "\n"
}
