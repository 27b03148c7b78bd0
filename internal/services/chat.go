package services

import (
	"context"
	"fmt"

	"github.com/samspacey/bsa-data/internal/inference"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// evidenceLimit is how many snippets a turn surfaces.
	evidenceLimit = 8
	// maxMetricsInContext caps the aggregates forwarded to the composer.
	maxMetricsInContext = 10
	// lowCoverageThreshold marks answers built on thin data.
	lowCoverageThreshold = 100
)

// UpstreamError marks a turn failure caused by a dependency rather than the
// request itself. Handlers translate it into a retryable status.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IntentResolver turns a question plus prior context into a resolved intent.
type IntentResolver interface {
	Resolve(ctx context.Context, question string, prior *models.QueryIntent) (models.QueryIntent, []string)
}

// Retriever assembles the data legs of a turn.
type Retriever interface {
	GetMetrics(ctx context.Context, intent models.QueryIntent) ([]models.SummaryMetric, error)
	GetEvidence(ctx context.Context, question string, intent models.QueryIntent, limit int) ([]models.EvidenceSnippet, error)
	GetCoverage(ctx context.Context, intent models.QueryIntent) (models.DataCoverage, error)
}

// AnswerComposer produces the final answer text from assembled context.
type AnswerComposer interface {
	ComposeAnswerWithRetry(ctx context.Context, req inference.ComposeRequest) (string, error)
}

// ChatService orchestrates one conversational turn end to end.
type ChatService struct {
	resolver  IntentResolver
	retriever Retriever
	composer  AnswerComposer
	sessions  session.Store
	logger    *logrus.Logger
}

func NewChatService(resolver IntentResolver, retriever Retriever, composer AnswerComposer, sessions session.Store, logger *logrus.Logger) *ChatService {
	return &ChatService{
		resolver:  resolver,
		retriever: retriever,
		composer:  composer,
		sessions:  sessions,
		logger:    logger,
	}
}

// HandleTurn resolves the question, fetches metrics and evidence in
// parallel, composes an answer and only then commits the turn to the
// session. A failed turn leaves the session untouched, so a retry of the
// same question resolves against the same prior context.
func (s *ChatService) HandleTurn(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	state, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, &UpstreamError{Stage: "session load", Err: err}
	}

	intent, assumptions := s.resolver.Resolve(ctx, req.Message, state.LastIntent)

	var (
		metrics  []models.SummaryMetric
		evidence []models.EvidenceSnippet
		coverage models.DataCoverage
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		metrics, err = s.retriever.GetMetrics(groupCtx, intent)
		return err
	})
	group.Go(func() error {
		var err error
		evidence, err = s.retriever.GetEvidence(groupCtx, req.Message, intent, evidenceLimit)
		return err
	})
	group.Go(func() error {
		var err error
		coverage, err = s.retriever.GetCoverage(groupCtx, intent)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, &UpstreamError{Stage: "retrieval", Err: err}
	}

	response := &models.ChatResponse{
		SessionID:        state.SessionID,
		Intent:           intent,
		Metrics:          metrics,
		EvidenceSnippets: evidence,
		DataCoverage:     coverage,
		Assumptions:      assumptions,
		Limitations:      []string{},
	}
	if response.Assumptions == nil {
		response.Assumptions = []string{}
	}
	if coverage.TotalReviewsConsidered > 0 && coverage.TotalReviewsConsidered < lowCoverageThreshold {
		response.Limitations = append(response.Limitations,
			fmt.Sprintf("Based on only %d reviews, treat these findings as indicative", coverage.TotalReviewsConsidered))
	}

	if len(metrics) == 0 && len(evidence) == 0 {
		response.InsufficientData = true
		response.Answer = s.noDataAnswer(intent)
	} else {
		answer, err := s.composer.ComposeAnswerWithRetry(ctx, inference.ComposeRequest{
			Question: req.Message,
			Intent:   intent,
			Metrics:  capMetrics(metrics),
			Evidence: evidence,
			Coverage: coverage,
		})
		if err != nil {
			return nil, &UpstreamError{Stage: "answer composition", Err: err}
		}
		response.Answer = answer
	}

	if err := s.sessions.SetIntent(ctx, state.SessionID, intent); err != nil {
		s.logger.WithError(err).WithField("session_id", state.SessionID).Warn("Failed to commit session turn")
	}

	return response, nil
}

// Reset clears conversation state for one session, or all of them.
func (s *ChatService) Reset(ctx context.Context, sessionID string) error {
	return s.sessions.Reset(ctx, sessionID)
}

func (s *ChatService) noDataAnswer(intent models.QueryIntent) string {
	if len(intent.OrganizationIDs()) == 0 {
		return "No review data matches this question. Try naming a specific building society or widening the timeframe."
	}
	return "No review data matches this question for the requested organizations and timeframe. Try widening the timeframe or asking about a different aspect."
}

func capMetrics(metrics []models.SummaryMetric) []models.SummaryMetric {
	if len(metrics) > maxMetricsInContext {
		return metrics[:maxMetricsInContext]
	}
	return metrics
}
