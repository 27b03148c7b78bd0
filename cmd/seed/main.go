package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/samspacey/bsa-data/internal/config"
	"github.com/samspacey/bsa-data/internal/database"
	"github.com/samspacey/bsa-data/internal/inference"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/repository"
	"github.com/samspacey/bsa-data/internal/vectorindex"
	"github.com/samspacey/bsa-data/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Canonical catalogue of tracked UK building societies. IDs are stable; the
// enrichment pipeline references them when loading reviews.
var organizationCatalogue = []models.Organization{
	{ID: "nationwide", CanonicalName: "Nationwide Building Society", Aliases: models.StringArray{"Nationwide", "NBS"}, SizeBucket: "large", WebsiteDomain: "nationwide.co.uk"},
	{ID: "coventry", CanonicalName: "Coventry Building Society", Aliases: models.StringArray{"Coventry", "Coventry BS", "CBS"}, SizeBucket: "large", WebsiteDomain: "coventrybuildingsociety.co.uk"},
	{ID: "yorkshire", CanonicalName: "Yorkshire Building Society", Aliases: models.StringArray{"Yorkshire", "Yorkshire BS", "YBS"}, SizeBucket: "large", WebsiteDomain: "ybs.co.uk"},
	{ID: "skipton", CanonicalName: "Skipton Building Society", Aliases: models.StringArray{"Skipton", "Skipton BS"}, SizeBucket: "large", WebsiteDomain: "skipton.co.uk"},
	{ID: "leeds", CanonicalName: "Leeds Building Society", Aliases: models.StringArray{"Leeds", "Leeds BS", "LBS"}, SizeBucket: "large", WebsiteDomain: "leedsbuildingsociety.co.uk"},
	{ID: "principality", CanonicalName: "Principality Building Society", Aliases: models.StringArray{"Principality"}, SizeBucket: "medium", WebsiteDomain: "principality.co.uk"},
	{ID: "west-brom", CanonicalName: "West Bromwich Building Society", Aliases: models.StringArray{"West Brom", "The West Brom"}, SizeBucket: "medium", WebsiteDomain: "westbrom.co.uk"},
	{ID: "newcastle", CanonicalName: "Newcastle Building Society", Aliases: models.StringArray{"Newcastle", "Newcastle BS"}, SizeBucket: "medium", WebsiteDomain: "newcastle.co.uk"},
	{ID: "nottingham", CanonicalName: "Nottingham Building Society", Aliases: models.StringArray{"The Nottingham", "Nottingham BS"}, SizeBucket: "medium", WebsiteDomain: "thenottingham.com"},
	{ID: "cumberland", CanonicalName: "Cumberland Building Society", Aliases: models.StringArray{"The Cumberland", "Cumberland BS"}, SizeBucket: "small", WebsiteDomain: "cumberland.co.uk"},
	{ID: "monmouthshire", CanonicalName: "Monmouthshire Building Society", Aliases: models.StringArray{"Monmouthshire", "Monmouthshire BS"}, SizeBucket: "small", WebsiteDomain: "monbs.com"},
	{ID: "saffron", CanonicalName: "Saffron Building Society", Aliases: models.StringArray{"Saffron", "Saffron BS"}, SizeBucket: "small", WebsiteDomain: "saffronbs.co.uk"},
}

var dataSourceCatalogue = []models.DataSource{
	{ID: "trustpilot", Name: "Trustpilot", SourceType: "review_site"},
	{ID: "appstore", Name: "Apple App Store", SourceType: "app_store"},
	{ID: "playstore", Name: "Google Play Store", SourceType: "app_store"},
	{ID: "feefo", Name: "Feefo", SourceType: "review_site"},
	{ID: "smartmoneypeople", Name: "Smart Money People", SourceType: "review_site"},
}

var (
	dryRun  = flag.Bool("dry-run", false, "Print what would be seeded without writing anything")
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	reindex = flag.Bool("reindex", false, "Rebuild the vector index from stored reviews")
	batch   = flag.Int("batch", 64, "Review batch size for index rebuilds")
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

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if *dryRun {
		fmt.Printf("Would seed %d organizations:\n", len(organizationCatalogue))
		for _, org := range organizationCatalogue {
			fmt.Printf("  %-14s %s (aliases: %s)\n", org.ID, org.CanonicalName, strings.Join(org.Aliases, ", "))
		}
		fmt.Printf("Would seed %d data sources:\n", len(dataSourceCatalogue))
		for _, source := range dataSourceCatalogue {
			fmt.Printf("  %-18s %s\n", source.ID, source.Name)
		}
		return
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

	for _, org := range organizationCatalogue {
		if err := repoManager.Organization.Upsert(&org); err != nil {
			logger.WithError(err).WithField("organization", org.ID).Fatal("Failed to seed organization")
		}
		logger.WithField("organization", org.ID).Debug("Seeded organization")
	}
	for _, source := range dataSourceCatalogue {
		if err := repoManager.DataSource.Upsert(&source); err != nil {
			logger.WithError(err).WithField("source", source.ID).Fatal("Failed to seed data source")
		}
		logger.WithField("source", source.ID).Debug("Seeded data source")
	}
	logger.WithFields(logrus.Fields{
		"organizations": len(organizationCatalogue),
		"data_sources":  len(dataSourceCatalogue),
	}).Info("Reference data seeded")

	if !*reindex {
		return
	}

	if err := cfg.ValidateInference(); err != nil {
		logger.WithError(err).Fatal("Inference configuration validation failed")
	}

	inferenceClient := inference.NewClient(
		cfg.Inference.BaseURL,
		cfg.Inference.APIKey,
		cfg.Inference.Model,
		cfg.Inference.EmbedModel,
		logger,
	)

	index, err := vectorindex.NewQdrantIndex(
		cfg.Qdrant.Host,
		cfg.Qdrant.Port,
		cfg.Qdrant.Collection,
		cfg.Qdrant.VectorDim,
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize vector index")
	}

	ctx := context.Background()
	if err := index.EnsureCollection(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure vector collection")
	}

	if err := rebuildIndex(ctx, repoManager.Review, inferenceClient, index, *batch, logger); err != nil {
		logger.WithError(err).Fatal("Index rebuild failed")
	}
	logger.Info("Vector index rebuilt")
}

func rebuildIndex(ctx context.Context, reviews models.ReviewRepository, client *inference.Client, index vectorindex.Index, batchSize int, logger *logrus.Logger) error {
	total := 0
	return reviews.GetEnriched(batchSize, func(batch []models.Review) error {
		texts := make([]string, len(batch))
		for i, review := range batch {
			texts[i] = embeddingText(review)
		}

		vectors, err := client.EmbedTextsWithRetry(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch: %w", err)
		}

		docs := make([]vectorindex.Document, len(batch))
		for i, review := range batch {
			docs[i] = vectorindex.Document{
				ID:             uint64(review.ID),
				OrganizationID: review.OrganizationID,
				SourceID:       review.SourceID,
				ReviewDate:     review.ReviewDate,
				Rating:         review.RatingRaw,
				SentimentLabel: string(review.OverallSentimentLabel),
				Aspects:        aspectNames(review.Aspects),
				Topics:         review.Topics,
				Text:           review.BodyTextClean,
				Vector:         vectors[i],
			}
		}

		if err := index.Add(ctx, docs); err != nil {
			return fmt.Errorf("failed to index batch: %w", err)
		}

		total += len(batch)
		logger.WithField("indexed", total).Info("Indexed review batch")
		return nil
	})
}

func embeddingText(review models.Review) string {
	if review.TitleText == "" {
		return review.BodyTextClean
	}
	return review.TitleText + "\n\n" + review.BodyTextClean
}

func aspectNames(aspects []models.ReviewAspect) []string {
	names := make([]string, 0, len(aspects))
	for _, aspect := range aspects {
		names = append(names, aspect.Aspect)
	}
	return names
}
