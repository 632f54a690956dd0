// cmd/importbars loads daily close CSVs into the SQLite bars table.
//
// Usage:
//
//	go run ./cmd/importbars data/AAPL.csv data/MSFT.csv
//	go run ./cmd/importbars -symbol TCS.NS downloads/tcs.csv
//
// Without -symbol each file's base name (minus extension) is the symbol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"market-analyzer/config"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/marketdata/csvfeed"
	sqlitestore "market-analyzer/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[importbars] %v", err)
	}
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	symbol := flag.String("symbol", "", "Symbol for every file (default: file name)")
	flag.Parse()
	logger.Init("importbars", cfg.SlogLevel())

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: importbars [-db path] [-symbol SYM] file.csv...")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Fatalf("[importbars] %v", err)
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[importbars] sqlite init failed: %v", err)
	}
	defer w.Close()

	var commits int
	var commitTime time.Duration
	w.OnCommit = func(rows int, d time.Duration) {
		commits++
		commitTime += d
	}

	barCh := make(chan sqlitestore.SymbolBar, 1000)
	g, gctx := errgroup.WithContext(ctx)

	var written int
	g.Go(func() error {
		n, err := w.Run(gctx, barCh)
		written = n
		return err
	})
	g.Go(func() error {
		defer close(barCh)
		for _, path := range files {
			sym := *symbol
			if sym == "" {
				sym = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			n, err := csvfeed.Feed(gctx, f, sym, barCh)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Printf("[importbars] %s: %d bars from %s", sym, n, path)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("[importbars] %v", err)
	}

	log.Printf("[importbars] committed %d bars in %d batches (%s)", written, commits, commitTime.Round(time.Millisecond))

	syms, err := sqlitestore.NewReader(w.DB()).Symbols(ctx)
	if err != nil {
		log.Fatalf("[importbars] %v", err)
	}
	for _, s := range syms {
		fmt.Printf("%-14s %6d bars  %s .. %s\n", s.Symbol, s.Bars,
			s.First.Format("2006-01-02"), s.Last.Format("2006-01-02"))
	}
}
