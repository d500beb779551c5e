package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intraday/internal/config"
	"intraday/internal/gather/intraday"
	"intraday/internal/session"
	"intraday/internal/store"
	"intraday/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/intraday.yaml", "path to the YAML configuration file")
	date := flag.String("date", "", "trading date YYYY-MM-DD (default: today)")
	resume := flag.Int("resume", -1, "batch index to resume from, overriding the checkpoint")
	format := flag.String("format", "", "output format: binary or tabular (overrides config)")
	out := flag.String("out", "", "output base path without extension (overrides config)")
	flag.Parse()

	if p := os.Getenv("INTRADAY_CONFIG"); p != "" && !isFlagSet("config") {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *date != "" {
		cfg.Collect.Date = *date
	}
	if *resume >= 0 {
		cfg.Collect.ResumeFrom = *resume
	}
	if *format != "" {
		cfg.Storage.Format = *format
	}
	if *out != "" {
		cfg.Storage.OutBase = *out
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Fatalf("loading exchange timezone: %v", err)
	}
	runDate := time.Now().In(et)
	if cfg.Collect.Date != "" {
		runDate, err = time.ParseInLocation("2006-01-02", cfg.Collect.Date, et)
		if err != nil {
			log.Fatalf("invalid date: %v", err)
		}
	}
	runDateStr := runDate.Format("2006-01-02")

	// Connect before touching any files: a refused connection must abort
	// with nothing on disk.
	sess, err := session.NewAlpacaSession(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL)
	if err != nil {
		log.Fatalf("not connected to market data: %v", err)
	}
	defer sess.Close()

	if ok, err := sess.IsTradingDay(runDate); err != nil {
		log.Fatalf("checking trading calendar: %v", err)
	} else if !ok {
		log.Fatalf("%s is not a trading day", runDateStr)
	}

	// Dual logger: stdout + per-day log file, so a resumed run's starting
	// point stays auditable after the fact.
	logFileName := fmt.Sprintf("intraday-%s.log", runDateStr)
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	parts, err := store.NewParquetStore(cfg.Storage.WorkDir)
	if err != nil {
		log.Fatalf("preparing work dir: %v", err)
	}
	sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening checkpoint db: %v", err)
	}
	defer sqlite.Close()

	planner := &intraday.Planner{
		Date:           runDate,
		Increment:      cfg.Collect.StrikeIncrement,
		NumStrikes:     cfg.Collect.NumStrikes,
		StartStrike:    cfg.Collect.StartStrike,
		EndStrike:      cfg.Collect.EndStrike,
		IntervalLength: cfg.Collect.Interval(),
		BatchStrikes:   cfg.Collect.BatchStrikes,
	}
	if planner.SessionStart, err = parseSessionTime(cfg.Collect.SessionStart, runDate); err != nil {
		log.Fatalf("invalid session start: %v", err)
	}
	if planner.SessionEnd, err = parseSessionTime(cfg.Collect.SessionEnd, runDate); err != nil {
		log.Fatalf("invalid session end: %v", err)
	}

	fetcher := intraday.NewFetcher(sess, cfg.Collect.OptionRoot, runDate, cfg.Collect.Resolution(), logger)
	limiter := util.NewFixedWindowLimiter(cfg.Collect.RateQuota, cfg.Collect.RateWindow())

	collector := intraday.NewCollector(sess, planner, fetcher, parts, sqlite, sqlite, limiter, intraday.Options{
		RunDate:    runDateStr,
		Underlying: cfg.Collect.Underlying,
		OutBase:    cfg.Storage.OutBase,
		Format:     cfg.Storage.Format,
		ResumeFrom: cfg.Collect.ResumeFrom,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting intraday-collect", "date", runDateStr, "logFile", logFileName)
	if err := collector.Run(ctx); err != nil {
		log.Fatalf("collector error: %v", err)
	}
}

// parseSessionTime converts an "HH:MM" override into a timestamp on the run
// date. Empty input yields the zero time, meaning the session default.
func parseSessionTime(hhmm string, date time.Time) (time.Time, error) {
	if hhmm == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
