package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/samspacey/bsa-data/internal/config"
	"github.com/samspacey/bsa-data/internal/database"
	"github.com/samspacey/bsa-data/internal/metrics"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/repository"
	"github.com/samspacey/bsa-data/pkg/utils"
	"github.com/sirupsen/logrus"
)

var (
	granularityFlag = flag.String("granularity", "monthly", "Bucket granularity: monthly, quarterly or yearly")
	startFlag       = flag.String("start", "", "Range start as YYYY-MM-DD (default: earliest review)")
	endFlag         = flag.String("end", "", "Range end as YYYY-MM-DD (default: latest review)")
	versionFlag     = flag.String("version", "", "Metric version tag (default: v<today>)")
	dryRun          = flag.Bool("dry-run", false, "Compute metrics without persisting them")
	verbose         = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	utils.InitLogger()
	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	granularity := models.Granularity(*granularityFlag)
	switch granularity {
	case models.GranularityMonthly, models.GranularityQuarterly, models.GranularityYearly:
	default:
		logger.WithField("granularity", *granularityFlag).Fatal("Unknown granularity")
	}

	start, err := parseDateFlag(*startFlag)
	if err != nil {
		logger.WithError(err).Fatal("Invalid -start date")
	}
	end, err := parseDateFlag(*endFlag)
	if err != nil {
		logger.WithError(err).Fatal("Invalid -end date")
	}

	version := *versionFlag
	if version == "" {
		version = "v" + time.Now().UTC().Format("2006-01-02")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := dbManager.Migrate(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	engine := metrics.NewEngine(repoManager.Organization, repoManager.Review, logger)

	computed, err := engine.ComputeAll(context.Background(), granularity, start, end, version)
	if err != nil {
		logger.WithError(err).Fatal("Aggregation failed")
	}

	if *dryRun {
		fmt.Printf("Would write %d metrics for version %s\n", len(computed), version)
		for i, metric := range computed {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(computed)-10)
				break
			}
			fmt.Printf("  %s %s %s count=%d avg_sentiment=%.3f\n",
				metric.OrganizationID,
				metric.TimeBucketStart.Format("2006-01-02"),
				metric.Aspect,
				metric.ReviewCount,
				metric.AvgSentiment,
			)
		}
		return
	}

	if err := repoManager.Metric.ReplaceVersion(version, computed); err != nil {
		logger.WithError(err).Fatal("Failed to persist metrics")
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"metrics": len(computed),
	}).Info("Metrics aggregation completed")
}

func parseDateFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
