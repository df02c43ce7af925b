package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ovolkov/expenseflow/internal/backend"
	"github.com/ovolkov/expenseflow/internal/config"
	"github.com/ovolkov/expenseflow/internal/logger"
	"github.com/ovolkov/expenseflow/internal/normalizer"
	"github.com/ovolkov/expenseflow/internal/pipeline"
)

func main() {
	log := logger.New("expenseflow-import")

	var (
		filePath = flag.String("file", "", "Path to the spreadsheet to import (.xlsx or .xlsm)")
		year     = flag.String("year", "", "Four-digit year partition to import into")
		envFile  = flag.String("env", ".env", "Path to environment file")
		preview  = flag.Bool("preview", false, "Show how the first rows would be normalized without writing")
	)
	flag.Parse()

	if *filePath == "" || *year == "" {
		log.Fatal().Msg("Error: --file and --year are required")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	expenseStore, err := backend.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("Failed to initialize storage backend")
	}
	defer expenseStore.Close()

	var oracle normalizer.Oracle
	if cfg.GeminiAPIKey != "" {
		oracle = normalizer.NewGeminiOracle(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.OracleTimeout)
	}

	importer := pipeline.New(normalizer.New(oracle, log), expenseStore, nil, log)
	filename := filepath.Base(*filePath)

	if *preview {
		result, err := importer.PreviewFile(ctx, *year, filename, data)
		if err != nil {
			log.Fatal().Err(err).Msg("Preview failed")
		}

		fmt.Printf("%s: %d rows, showing first %d\n", result.Filename, result.TotalRows, result.PreviewRows)
		for _, e := range result.Data {
			fmt.Printf("  %s  %-20s  %10.2f  %s\n", e.Date, e.Category, e.Amount, e.Description)
		}
		return
	}

	result, err := importer.ImportFile(ctx, *year, filename, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d expenses into %s (%d rows skipped).\n", result.Imported, *year, result.Skipped)
}
