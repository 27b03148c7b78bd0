package services

import (
	"context"
	"errors"
	"testing"

	"github.com/samspacey/bsa-data/internal/inference"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fakes

type fakeResolver struct {
	intent      models.QueryIntent
	assumptions []string

	lastPrior *models.QueryIntent
}

func (f *fakeResolver) Resolve(_ context.Context, _ string, prior *models.QueryIntent) (models.QueryIntent, []string) {
	f.lastPrior = prior
	return f.intent, f.assumptions
}

type fakeRetriever struct {
	metrics  []models.SummaryMetric
	evidence []models.EvidenceSnippet
	coverage models.DataCoverage

	metricsErr  error
	evidenceErr error
}

func (f *fakeRetriever) GetMetrics(context.Context, models.QueryIntent) ([]models.SummaryMetric, error) {
	return f.metrics, f.metricsErr
}

func (f *fakeRetriever) GetEvidence(context.Context, string, models.QueryIntent, int) ([]models.EvidenceSnippet, error) {
	return f.evidence, f.evidenceErr
}

func (f *fakeRetriever) GetCoverage(context.Context, models.QueryIntent) (models.DataCoverage, error) {
	return f.coverage, nil
}

type fakeComposer struct {
	answer string
	err    error

	lastRequest *inference.ComposeRequest
}

func (f *fakeComposer) ComposeAnswerWithRetry(_ context.Context, req inference.ComposeRequest) (string, error) {
	f.lastRequest = &req
	return f.answer, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type chatFixture struct {
	service   *ChatService
	resolver  *fakeResolver
	retriever *fakeRetriever
	composer  *fakeComposer
	sessions  *session.MemoryStore
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		resolver:  &fakeResolver{intent: models.DefaultIntent()},
		retriever: &fakeRetriever{coverage: models.DataCoverage{TotalReviewsConsidered: 500}},
		composer:  &fakeComposer{answer: "Sentiment is broadly positive."},
		sessions:  session.NewMemoryStore(0),
	}
	f.service = NewChatService(f.resolver, f.retriever, f.composer, f.sessions, testLogger())
	return f
}

func someMetrics(n int) []models.SummaryMetric {
	metrics := make([]models.SummaryMetric, n)
	for i := range metrics {
		metrics[i] = models.SummaryMetric{OrganizationID: "skipton", Aspect: "overall", ReviewCount: i + 1}
	}
	return metrics
}

func TestHandleTurn_SuccessCommitsSession(t *testing.T) {
	f := newChatFixture()
	f.retriever.metrics = someMetrics(2)
	intent := models.DefaultIntent()
	intent.PrimaryOrganizations = []string{"skipton"}
	f.resolver.intent = intent

	response, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "how is skipton?"})
	require.NoError(t, err)

	assert.Equal(t, "Sentiment is broadly positive.", response.Answer)
	assert.False(t, response.InsufficientData)
	assert.NotEmpty(t, response.SessionID)

	state, err := f.sessions.GetOrCreate(context.Background(), response.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TurnCount)
	require.NotNil(t, state.LastIntent)
	assert.Equal(t, []string{"skipton"}, state.LastIntent.PrimaryOrganizations)
}

func TestHandleTurn_PriorIntentFlowsToResolver(t *testing.T) {
	f := newChatFixture()
	f.retriever.metrics = someMetrics(1)

	first, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "how is skipton?"})
	require.NoError(t, err)
	assert.Nil(t, f.resolver.lastPrior)

	_, err = f.service.HandleTurn(context.Background(), models.ChatRequest{
		Message:   "what about mortgages?",
		SessionID: first.SessionID,
	})
	require.NoError(t, err)
	assert.NotNil(t, f.resolver.lastPrior)
}

func TestHandleTurn_RetrievalFailureLeavesSessionUntouched(t *testing.T) {
	f := newChatFixture()
	f.retriever.evidenceErr = errors.New("vector index down")

	first, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "how is skipton?"})
	require.NoError(t, err)

	f.retriever.metrics = someMetrics(1)
	_, err = f.service.HandleTurn(context.Background(), models.ChatRequest{
		Message:   "and leeds?",
		SessionID: first.SessionID,
	})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "retrieval", upstream.Stage)

	state, storeErr := f.sessions.GetOrCreate(context.Background(), first.SessionID)
	require.NoError(t, storeErr)
	assert.Equal(t, 1, state.TurnCount)
}

func TestHandleTurn_CompositionFailureLeavesSessionUntouched(t *testing.T) {
	f := newChatFixture()
	f.retriever.metrics = someMetrics(1)
	f.composer.err = errors.New("model overloaded")

	_, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "how is skipton?"})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "answer composition", upstream.Stage)
}

func TestHandleTurn_NoDataAnswersLocally(t *testing.T) {
	f := newChatFixture()
	f.composer.err = errors.New("composer must not be called")

	response, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "how is skipton?"})
	require.NoError(t, err)

	assert.True(t, response.InsufficientData)
	assert.Contains(t, response.Answer, "No review data matches")
	assert.Nil(t, f.composer.lastRequest)

	// The turn still counts: the resolved intent is conversation context
	state, err := f.sessions.GetOrCreate(context.Background(), response.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TurnCount)
}

func TestHandleTurn_CapsComposerMetrics(t *testing.T) {
	f := newChatFixture()
	f.retriever.metrics = someMetrics(25)

	response, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "everything please"})
	require.NoError(t, err)

	require.NotNil(t, f.composer.lastRequest)
	assert.Len(t, f.composer.lastRequest.Metrics, maxMetricsInContext)
	// The response itself keeps the full set
	assert.Len(t, response.Metrics, 25)
}

func TestHandleTurn_ThinCoverageAddsLimitation(t *testing.T) {
	f := newChatFixture()
	f.retriever.metrics = someMetrics(1)
	f.retriever.coverage = models.DataCoverage{TotalReviewsConsidered: 42}

	response, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "how is skipton?"})
	require.NoError(t, err)

	require.Len(t, response.Limitations, 1)
	assert.Contains(t, response.Limitations[0], "42 reviews")
}

func TestHandleTurn_SurfacesResolverAssumptions(t *testing.T) {
	f := newChatFixture()
	f.retriever.metrics = someMetrics(1)
	f.resolver.assumptions = []string{`Interpreted "Yorkshre" as Yorkshire Building Society`}

	response, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "yorkshre?"})
	require.NoError(t, err)

	assert.Equal(t, f.resolver.assumptions, response.Assumptions)
}

func TestReset(t *testing.T) {
	f := newChatFixture()
	f.retriever.metrics = someMetrics(1)

	response, err := f.service.HandleTurn(context.Background(), models.ChatRequest{Message: "how is skipton?"})
	require.NoError(t, err)

	require.NoError(t, f.service.Reset(context.Background(), response.SessionID))

	state, err := f.sessions.GetOrCreate(context.Background(), response.SessionID)
	require.NoError(t, err)
	assert.Zero(t, state.TurnCount)
}
