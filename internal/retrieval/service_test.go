package retrieval

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/registry"
	"github.com/samspacey/bsa-data/internal/vectorindex"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fakes

type fakeMetricRepo struct {
	results []models.SummaryMetric

	lastOrgIDs  []string
	lastAspects []string
	lastStart   *time.Time
	lastEnd     *time.Time
}

func (f *fakeMetricRepo) ReplaceVersion(string, []models.SummaryMetric) error { return nil }

func (f *fakeMetricRepo) Query(orgIDs, aspects []string, start, end *time.Time) ([]models.SummaryMetric, error) {
	f.lastOrgIDs = orgIDs
	f.lastAspects = aspects
	f.lastStart = start
	f.lastEnd = end
	return f.results, nil
}

type fakeReviewRepo struct {
	min, max *time.Time
	counts   map[string]int64
}

func (f *fakeReviewRepo) Create(*models.Review) error { return nil }
func (f *fakeReviewRepo) DateRange() (*time.Time, *time.Time, error) {
	return f.min, f.max, nil
}
func (f *fakeReviewRepo) CountByOrganization(orgID string) (int64, error) {
	return f.counts[orgID], nil
}
func (f *fakeReviewRepo) BucketStats(string, time.Time, time.Time) (*models.ReviewStats, error) {
	return &models.ReviewStats{}, nil
}
func (f *fakeReviewRepo) AspectSentimentStats(string, string, time.Time, time.Time) (*models.SentimentStats, error) {
	return nil, nil
}
func (f *fakeReviewRepo) AspectLabelCount(string, string, time.Time, time.Time, []models.SentimentLabel) (int64, error) {
	return 0, nil
}
func (f *fakeReviewRepo) PeerSentimentStats(string, string, time.Time, time.Time) (*models.SentimentStats, error) {
	return nil, nil
}
func (f *fakeReviewRepo) GetEnriched(int, func([]models.Review) error) error { return nil }

type fakeSourceRepo struct {
	names []string
}

func (f *fakeSourceRepo) GetAllNames() ([]string, error)   { return f.names, nil }
func (f *fakeSourceRepo) Upsert(*models.DataSource) error  { return nil }

type fakeIndex struct {
	results []vectorindex.Result

	lastVector  []float32
	lastFilters vectorindex.Filters
	lastLimit   int
}

func (f *fakeIndex) EnsureCollection(context.Context) error { return nil }
func (f *fakeIndex) Add(context.Context, []vectorindex.Document) error {
	return nil
}
func (f *fakeIndex) Search(_ context.Context, vector []float32, filters vectorindex.Filters, limit int) ([]vectorindex.Result, error) {
	f.lastVector = vector
	f.lastFilters = filters
	f.lastLimit = limit
	return f.results, nil
}
func (f *fakeIndex) Count(context.Context) (uint64, error) { return 0, nil }

type fakeEmbedder struct {
	lastTexts []string
}

func (f *fakeEmbedder) EmbedTextsWithRetry(_ context.Context, texts []string) ([][]float32, error) {
	f.lastTexts = texts
	return [][]float32{{0.1, 0.2}}, nil
}

func testRegistry() *registry.Registry {
	return registry.New([]models.Organization{
		{ID: "skipton", CanonicalName: "Skipton Building Society"},
		{ID: "yorkshire", CanonicalName: "Yorkshire Building Society"},
	})
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type serviceFixture struct {
	service  *Service
	metrics  *fakeMetricRepo
	reviews  *fakeReviewRepo
	sources  *fakeSourceRepo
	index    *fakeIndex
	embedder *fakeEmbedder
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		metrics:  &fakeMetricRepo{},
		reviews:  &fakeReviewRepo{counts: map[string]int64{}},
		sources:  &fakeSourceRepo{names: []string{"trustpilot"}},
		index:    &fakeIndex{},
		embedder: &fakeEmbedder{},
	}
	f.service = NewService(f.metrics, f.reviews, f.sources, f.index, f.embedder, testRegistry(), testLogger())
	return f
}

func TestGetMetrics_WidensInclusiveEndDate(t *testing.T) {
	f := newFixture()
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	intent := models.DefaultIntent()
	intent.PrimaryOrganizations = []string{"skipton"}
	intent.TimeframeStart = &start
	intent.TimeframeEnd = &end

	_, err := f.service.GetMetrics(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, []string{"skipton"}, f.metrics.lastOrgIDs)
	assert.Equal(t, []string{"overall"}, f.metrics.lastAspects)
	assert.Equal(t, start, *f.metrics.lastStart)
	// December buckets end at the following midnight
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *f.metrics.lastEnd)
}

func TestGetMetrics_NoOrganizationsQueriesAll(t *testing.T) {
	f := newFixture()

	_, err := f.service.GetMetrics(context.Background(), models.DefaultIntent())
	require.NoError(t, err)

	assert.Empty(t, f.metrics.lastOrgIDs)
	assert.Nil(t, f.metrics.lastStart)
	assert.Nil(t, f.metrics.lastEnd)
}

func TestGetEvidence_OverFetchesAndTruncates(t *testing.T) {
	f := newFixture()
	longText := strings.Repeat("a", 500)
	f.index.results = []vectorindex.Result{
		{Document: vectorindex.Document{ID: 1, OrganizationID: "skipton", SourceID: "trustpilot", Text: longText}, Score: 0.9},
		{Document: vectorindex.Document{ID: 2, OrganizationID: "skipton", Text: "short review"}, Score: 0.8},
		{Document: vectorindex.Document{ID: 3, OrganizationID: "skipton", Text: "another"}, Score: 0.7},
	}

	intent := models.DefaultIntent()
	intent.PrimaryOrganizations = []string{"skipton"}

	snippets, err := f.service.GetEvidence(context.Background(), "any complaints?", intent, 2)
	require.NoError(t, err)

	assert.Equal(t, 4, f.index.lastLimit)
	require.Len(t, snippets, 2)

	assert.Equal(t, "rev-1", snippets[0].SnippetID)
	assert.Equal(t, "Skipton Building Society", snippets[0].OrganizationName)
	assert.Len(t, snippets[0].SnippetText, 300)
	assert.True(t, strings.HasSuffix(snippets[0].SnippetText, "..."))
	assert.Equal(t, "short review", snippets[1].SnippetText)
}

func TestTruncateSnippet_MultibyteText(t *testing.T) {
	truncated := truncateSnippet(strings.Repeat("£", 500))

	assert.True(t, utf8.ValidString(truncated))
	assert.Equal(t, 300, utf8.RuneCountInString(truncated))
	assert.True(t, strings.HasSuffix(truncated, "..."))
	assert.Equal(t, strings.Repeat("£", 297)+"...", truncated)

	// Short multibyte text passes through untouched
	assert.Equal(t, "très bien", truncateSnippet("très bien"))
}

func TestGetEvidence_QueryTextAndFilters(t *testing.T) {
	f := newFixture()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	intent := models.DefaultIntent()
	intent.PrimaryOrganizations = []string{"yorkshire"}
	intent.FocusAreas = []string{"mobile_app"}
	intent.SentimentFocus = models.SentimentFocusNegative
	intent.TimeframeStart = &start

	_, err := f.service.GetEvidence(context.Background(), "what do people complain about?", intent, 5)
	require.NoError(t, err)

	require.Len(t, f.embedder.lastTexts, 1)
	queryText := f.embedder.lastTexts[0]
	assert.Contains(t, queryText, "Yorkshire Building Society")
	assert.Contains(t, queryText, "mobile app")
	assert.Contains(t, queryText, "complaints problems issues negative")

	assert.Equal(t, []string{"yorkshire"}, f.index.lastFilters.OrganizationIDs)
	assert.Equal(t, []string{"very_negative", "negative"}, f.index.lastFilters.SentimentLabels)
	assert.Equal(t, []string{"mobile_app"}, f.index.lastFilters.Aspects)
	require.NotNil(t, f.index.lastFilters.DateStart)
	assert.Equal(t, start, *f.index.lastFilters.DateStart)
}

func TestGetEvidence_OverallAspectIsNotAFilter(t *testing.T) {
	f := newFixture()

	intent := models.DefaultIntent()
	intent.FocusAreas = []string{"overall"}

	_, err := f.service.GetEvidence(context.Background(), "how are things?", intent, 5)
	require.NoError(t, err)

	assert.Empty(t, f.index.lastFilters.Aspects)
}

func TestGetCoverage_ScopedCountsGlobalSnapshot(t *testing.T) {
	f := newFixture()
	snapshot := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	f.reviews.max = &snapshot
	f.reviews.counts = map[string]int64{"skipton": 120, "yorkshire": 340}

	intent := models.DefaultIntent()
	intent.PrimaryOrganizations = []string{"skipton"}

	coverage, err := f.service.GetCoverage(context.Background(), intent)
	require.NoError(t, err)

	// Snapshot stays global even when counts are intent-scoped
	assert.Equal(t, snapshot, coverage.SnapshotEndDate)
	assert.Equal(t, []string{"trustpilot"}, coverage.Sources)
	require.Len(t, coverage.PerOrganizationCounts, 1)
	assert.Equal(t, "skipton", coverage.PerOrganizationCounts[0].OrganizationID)
	assert.Equal(t, int64(120), coverage.PerOrganizationCounts[0].ReviewCount)
	assert.Equal(t, int64(120), coverage.TotalReviewsConsidered)
}

func TestGetCoverage_NoOrganizationsCoversAll(t *testing.T) {
	f := newFixture()
	f.reviews.counts = map[string]int64{"skipton": 10, "yorkshire": 20}

	coverage, err := f.service.GetCoverage(context.Background(), models.DefaultIntent())
	require.NoError(t, err)

	require.Len(t, coverage.PerOrganizationCounts, 2)
	assert.Equal(t, int64(30), coverage.TotalReviewsConsidered)
}

func TestGetCoverage_EmptyCorpus(t *testing.T) {
	f := newFixture()

	coverage, err := f.service.GetCoverage(context.Background(), models.DefaultIntent())
	require.NoError(t, err)

	assert.True(t, coverage.SnapshotEndDate.IsZero())
	assert.Equal(t, int64(0), coverage.TotalReviewsConsidered)
}
