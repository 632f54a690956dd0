// cmd/backtest runs the SMA crossover backtest from the command line, over
// bars stored in SQLite or read straight from a CSV file, and prints the
// trade history and a summary.
//
// Usage:
//
//	go run ./cmd/backtest -symbol AAPL -from 2022-01-01 -to 2024-01-01
//	go run ./cmd/backtest -symbol AAPL -csv data/AAPL.csv -sl 0.03 -tp 0.08
//	go run ./cmd/backtest -plan plans/nifty.yaml
//	go run ./cmd/backtest -list
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"market-analyzer/config"
	"market-analyzer/internal/backtest"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/marketdata/csvfeed"
	sqlitestore "market-analyzer/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	// Flags default to the environment configuration.
	symbol := flag.String("symbol", "AAPL", "Symbol to backtest")
	from := flag.String("from", config.DefaultFrom.Format("2006-01-02"), "Start date (inclusive, YYYY-MM-DD)")
	to := flag.String("to", config.DefaultTo.Format("2006-01-02"), "End date (exclusive, YYYY-MM-DD)")
	csvPath := flag.String("csv", "", "Read bars from this CSV instead of SQLite")
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	planPath := flag.String("plan", "", "Run every entry of a YAML batch plan")
	workers := flag.Int("workers", cfg.PlanWorkers, "Concurrent runs for -plan")
	list := flag.Bool("list", false, "Print the default ticker list and exit")
	asJSON := flag.Bool("json", false, "Print the full report as JSON")
	tradesOut := flag.String("trades-csv", "", "Write the trade log to this CSV file")
	noJournal := flag.Bool("no-journal", false, "Do not record runs in the SQLite journal")

	fast := flag.Int("fast", cfg.FastWindow, "Fast SMA/EMA window")
	slow := flag.Int("slow", cfg.SlowWindow, "Slow SMA window")
	trend := flag.Int("trend", cfg.TrendWindow, "Trend SMA window")
	rsi := flag.Int("rsi", cfg.RSIWindow, "RSI window")
	cash := flag.Float64("cash", cfg.InitialCash, "Initial cash")
	sl := flag.Float64("sl", cfg.StopLossPct, "Stop-loss fraction (0.05 = 5%)")
	tp := flag.Float64("tp", cfg.TakeProfitPct, "Take-profit fraction (0.10 = 10%)")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *list {
		for _, t := range config.DefaultTickers {
			fmt.Println(t)
		}
		return
	}

	level := cfg.SlogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	logger.Init("backtest", level)

	cfg.FastWindow, cfg.SlowWindow, cfg.TrendWindow, cfg.RSIWindow = *fast, *slow, *trend, *rsi
	cfg.InitialCash, cfg.StopLossPct, cfg.TakeProfitPct = *cash, *sl, *tp
	ind, risk, err := cfg.BacktestDefaults()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// CSV mode never touches the database.
	if *csvPath != "" {
		bars, err := csvfeed.ParseFile(*csvPath)
		if err != nil {
			log.Fatalf("[backtest] %s: %v", *csvPath, err)
		}
		rep, err := backtest.NewRunner().Run(ctx, backtest.Request{
			Symbol: *symbol, Bars: bars, Indicators: ind, Risk: risk,
		})
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		emit(rep, *asJSON, *tradesOut)
		return
	}

	db, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer db.Close()
	reader := sqlitestore.NewReader(db)

	var opts []backtest.Option
	if !*noJournal {
		opts = append(opts, backtest.WithSinks(sqlitestore.NewJournal(db)))
	}
	runner := backtest.NewRunner(opts...)

	if *planPath != "" {
		plan, err := backtest.LoadPlan(*planPath)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		results, err := plan.Execute(ctx, runner, reader, ind, risk, *workers)
		if err != nil {
			log.Fatalf("[backtest] plan aborted: %v", err)
		}
		printPlan(results)
		return
	}

	run := backtest.PlanRun{Symbol: *symbol, From: *from, To: *to}
	start, end, err := run.Range()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	bars, err := reader.ReadBars(ctx, *symbol, start, end)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("[backtest] %s: %v (import some with cmd/importbars)", *symbol, backtest.ErrNoBars)
	}
	rep, err := runner.Run(ctx, backtest.Request{Symbol: *symbol, Bars: bars, Indicators: ind, Risk: risk})
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	emit(rep, *asJSON, *tradesOut)
}

func emit(rep *backtest.Report, asJSON bool, tradesOut string) {
	if tradesOut != "" {
		f, err := os.Create(tradesOut)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		if err := csvfeed.WriteTrades(f, rep.Symbol, rep.Result.Trades); err != nil {
			log.Fatalf("[backtest] write trades: %v", err)
		}
		f.Close()
	}
	if asJSON {
		os.Stdout.Write(rep.JSON())
		fmt.Println()
		return
	}
	printReport(rep)
}

func printReport(rep *backtest.Report) {
	res := rep.Result

	fmt.Printf("Trade history for %s (%s):\n", rep.Symbol, rep.Strategy)
	if len(res.Trades) == 0 {
		fmt.Println("  no trades")
	}
	for _, t := range res.Trades {
		fmt.Printf("  %s\n", t)
	}

	open := "no"
	if res.OpenPosition {
		open = "yes"
	}
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", rep.Symbol)
	fmt.Printf("║  Bars:              %-16d ║\n", rep.Bars)
	fmt.Printf("║  ROI:               %-16s ║\n", fmt.Sprintf("%.2f%%", res.ROIPercent))
	fmt.Printf("║  Win rate:          %-16s ║\n", fmt.Sprintf("%.2f%%", res.WinRatePercent))
	fmt.Printf("║  Closed trades:     %-16d ║\n", res.TradeCount)
	fmt.Printf("║  Final value:       %-16.2f ║\n", res.FinalValue)
	fmt.Printf("║  Max drawdown:      %-16s ║\n", fmt.Sprintf("%.2f%%", res.MaxDrawdownPercent))
	fmt.Printf("║  Position open:     %-16s ║\n", open)
	fmt.Println("╚══════════════════════════════════════╝")
}

func printPlan(results []backtest.PlanResult) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tFROM\tTO\tBARS\tROI%\tWIN%\tTRADES\tERROR")
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t-\t%v\n", r.Run.Symbol, r.Run.From, r.Run.To, r.Err)
			continue
		}
		res := r.Report.Result
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%d\t\n", r.Run.Symbol, r.Run.From, r.Run.To,
			r.Report.Bars, res.ROIPercent, res.WinRatePercent, res.TradeCount)
	}
	tw.Flush()
	fmt.Printf("\n%d runs, %d failed\n", len(results), failed)
}
