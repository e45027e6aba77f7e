package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/unicode/norm"

	"multikey/config"
	"multikey/equal"
	"multikey/shell"
	"multikey/storage"
	"multikey/version"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("put"),
	readline.PcItem("set"),
	readline.PcItem("get"),
	readline.PcItem("del"),

	readline.PcItem("match"),
	readline.PcItem("values"),
	readline.PcItem("count"),
	readline.PcItem("explain"),

	readline.PcItem("clear"),
	readline.PcItem("rebuild"),
	readline.PcItem("save"),
	readline.PcItem("load"),
	readline.PcItem("mem"),
	readline.PcItem("stats"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func main() {
	cfg := config.Parse()
	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func run(cfg *config.Config, log *slog.Logger) error {
	variant, err := storage.ParseVariant(cfg.Variant)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	mcfg := storage.Config{
		Variant:   variant,
		CostRatio: cfg.CostRatio,
		Logger:    log,
		Metrics:   storage.NewMetrics(reg),
	}
	sub := equal.Strings()
	if cfg.Normalize {
		sub = equal.NormalizedStrings(norm.NFC)
	}
	m, err := storage.NewWithComparers[string, string](mcfg, sub, nil)
	if err != nil {
		return err
	}

	if cfg.SnapshotPath != "" {
		err := storage.LoadSnapshotFile(cfg.SnapshotPath, m)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info("no snapshot yet", "path", cfg.SnapshotPath)
		case err != nil:
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mk> ",
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	rl.CaptureExitSignal()

	sh := shell.New(m, os.Stdout, shell.Options{
		SnapshotPath: cfg.SnapshotPath,
		Logger:       log,
	})
	fmt.Fprintf(os.Stdout, "%s, %s index, %d entries. Type help for commands.\n",
		version.String(), variant, m.Len())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		err = sh.Exec(line)
		if errors.Is(err, shell.ErrExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
		}
	}
}
