package main

import (
	"flag"
	"log"
	"os"

	"intraday/internal/config"
	"intraday/internal/store"
	"intraday/internal/util"
)

// intraday-merge consolidates an existing work directory of per-strike
// partitions into a single artifact, without collecting anything. Useful when
// a collect run finished its quotes but died before the merge step.
func main() {
	cfgPath := flag.String("config", "config/intraday.yaml", "path to the YAML configuration file")
	workDir := flag.String("work", "", "work directory holding per-strike partitions (overrides config)")
	out := flag.String("out", "", "output base path without extension (overrides config)")
	format := flag.String("format", "", "output format: binary or tabular (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *workDir != "" {
		cfg.Storage.WorkDir = *workDir
	}
	if *out != "" {
		cfg.Storage.OutBase = *out
	}
	if *format != "" {
		cfg.Storage.Format = *format
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if _, err := os.Stat(cfg.Storage.WorkDir); err != nil {
		log.Fatalf("work dir: %v", err)
	}

	parts := &store.ParquetStore{WorkDir: cfg.Storage.WorkDir}
	strikes, err := parts.Strikes()
	if err != nil {
		log.Fatalf("scanning partitions: %v", err)
	}
	if len(strikes) == 0 {
		log.Fatalf("no partitions found in %s", cfg.Storage.WorkDir)
	}

	res, err := store.NewMerger(parts, logger).Merge(cfg.Storage.OutBase, cfg.Storage.Format)
	if err != nil {
		log.Fatalf("merge failed: %v", err)
	}
	logger.Info("merge complete", "path", res.Path, "partitions", res.Partitions, "rows", res.Rows)
}
