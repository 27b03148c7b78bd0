package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/registry"
	"github.com/samspacey/bsa-data/internal/vectorindex"
	"github.com/sirupsen/logrus"
)

const (
	// snippetMaxChars caps evidence snippet length in the API response.
	snippetMaxChars = 300
	// overFetchFactor compensates for client-side aspect filtering on
	// vector search results.
	overFetchFactor = 2
)

// Embedder produces query vectors for similarity search.
type Embedder interface {
	EmbedTextsWithRetry(ctx context.Context, texts []string) ([][]float32, error)
}

// Service assembles the three retrieval legs of a turn: materialized
// metrics, vector evidence and coverage transparency.
type Service struct {
	metrics  models.MetricRepository
	reviews  models.ReviewRepository
	sources  models.DataSourceRepository
	index    vectorindex.Index
	embedder Embedder
	registry *registry.Registry
	logger   *logrus.Logger
}

func NewService(
	metrics models.MetricRepository,
	reviews models.ReviewRepository,
	sources models.DataSourceRepository,
	index vectorindex.Index,
	embedder Embedder,
	reg *registry.Registry,
	logger *logrus.Logger,
) *Service {
	return &Service{
		metrics:  metrics,
		reviews:  reviews,
		sources:  sources,
		index:    index,
		embedder: embedder,
		registry: reg,
		logger:   logger,
	}
}

// GetMetrics fetches the materialized aggregates matching the intent. An
// intent without organizations queries every organization. The intent's
// inclusive end date is widened by one day so buckets with exclusive ends
// landing on the following midnight still qualify.
func (s *Service) GetMetrics(ctx context.Context, intent models.QueryIntent) ([]models.SummaryMetric, error) {
	orgIDs := intent.OrganizationIDs()
	aspects := intent.EffectiveAspects()

	start := intent.TimeframeStart
	end := intent.TimeframeEnd
	if end != nil {
		widened := end.AddDate(0, 0, 1)
		end = &widened
	}

	results, err := s.metrics.Query(orgIDs, aspects, start, end)
	if err != nil {
		return nil, fmt.Errorf("metric query failed: %w", err)
	}
	return results, nil
}

// GetEvidence retrieves supporting review snippets by embedding a search
// query derived from the question and intent, then filtering the vector
// index. Over-fetches to keep the result count stable under aspect
// filtering.
func (s *Service) GetEvidence(ctx context.Context, question string, intent models.QueryIntent, limit int) ([]models.EvidenceSnippet, error) {
	queryText := s.buildQueryText(question, intent)

	vectors, err := s.embedder.EmbedTextsWithRetry(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("query embedding returned no vector")
	}

	filters := vectorindex.Filters{
		OrganizationIDs: intent.OrganizationIDs(),
		SentimentLabels: intent.EvidenceSentimentLabels(),
		Aspects:         nonOverallAspects(intent.FocusAreas),
		DateStart:       intent.TimeframeStart,
		DateEnd:         intent.TimeframeEnd,
	}

	results, err := s.index.Search(ctx, vectors[0], filters, limit*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("evidence search failed: %w", err)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	snippets := make([]models.EvidenceSnippet, len(results))
	for i, result := range results {
		snippets[i] = models.EvidenceSnippet{
			SnippetID:        fmt.Sprintf("rev-%d", result.ID),
			OrganizationID:   result.OrganizationID,
			OrganizationName: s.registry.DisplayName(result.OrganizationID),
			Source:           result.SourceID,
			ReviewDate:       result.ReviewDate,
			Rating:           result.Rating,
			SentimentLabel:   models.SentimentLabel(result.SentimentLabel),
			Aspects:          result.Aspects,
			Topics:           result.Topics,
			SnippetText:      truncateSnippet(result.Text),
		}
	}
	return snippets, nil
}

// GetCoverage builds the transparency record for an answer. The snapshot
// date is a global corpus property; the review counts are scoped to the
// intent's organizations.
func (s *Service) GetCoverage(ctx context.Context, intent models.QueryIntent) (models.DataCoverage, error) {
	coverage := models.DataCoverage{
		Sources:               []string{},
		PerOrganizationCounts: []models.OrganizationCount{},
	}

	_, max, err := s.reviews.DateRange()
	if err != nil {
		return coverage, fmt.Errorf("failed to resolve corpus date range: %w", err)
	}
	if max != nil {
		coverage.SnapshotEndDate = *max
	}

	sources, err := s.sources.GetAllNames()
	if err != nil {
		return coverage, fmt.Errorf("failed to list data sources: %w", err)
	}
	coverage.Sources = sources

	orgIDs := intent.OrganizationIDs()
	if len(orgIDs) == 0 {
		orgIDs = s.registry.AllIDs()
	}

	for _, orgID := range orgIDs {
		count, err := s.reviews.CountByOrganization(orgID)
		if err != nil {
			return coverage, fmt.Errorf("failed to count reviews for %s: %w", orgID, err)
		}
		coverage.PerOrganizationCounts = append(coverage.PerOrganizationCounts, models.OrganizationCount{
			OrganizationID:   orgID,
			OrganizationName: s.registry.DisplayName(orgID),
			ReviewCount:      count,
		})
		coverage.TotalReviewsConsidered += count
	}
	return coverage, nil
}

// buildQueryText enriches the raw question with organization names, focus
// areas and sentiment steering terms so the embedding lands near the right
// reviews.
func (s *Service) buildQueryText(question string, intent models.QueryIntent) string {
	parts := []string{question}

	for _, orgID := range intent.OrganizationIDs() {
		parts = append(parts, s.registry.DisplayName(orgID))
	}
	for _, aspect := range nonOverallAspects(intent.FocusAreas) {
		parts = append(parts, strings.ReplaceAll(aspect, "_", " "))
	}

	switch intent.SentimentFocus {
	case models.SentimentFocusNegative:
		parts = append(parts, "complaints problems issues negative")
	case models.SentimentFocusPositive:
		parts = append(parts, "excellent satisfied happy positive")
	}

	return strings.Join(parts, " ")
}

func nonOverallAspects(aspects []string) []string {
	var out []string
	for _, aspect := range aspects {
		if aspect != models.AspectOverall {
			out = append(out, aspect)
		}
	}
	return out
}

// truncateSnippet counts runes, not bytes, so multibyte review text is
// never cut mid-character.
func truncateSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxChars {
		return text
	}
	return string(runes[:snippetMaxChars-3]) + "..."
}
