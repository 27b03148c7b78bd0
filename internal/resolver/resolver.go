package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samspacey/bsa-data/internal/inference"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/registry"
	"github.com/sirupsen/logrus"
)

// covidStart anchors the since_covid timeframe.
var covidStart = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

// IntentParser is the external structured-parsing collaborator.
type IntentParser interface {
	ParseIntentWithRetry(ctx context.Context, req inference.ParseRequest) (*inference.ParsedIntent, error)
}

// Resolver turns a raw question plus optional prior intent into a fully
// resolved QueryIntent. Resolution never fails: parser errors and unusable
// output degrade to the default intent.
type Resolver struct {
	parser   IntentParser
	registry *registry.Registry
	logger   *logrus.Logger
	now      func() time.Time
}

func NewResolver(parser IntentParser, reg *registry.Registry, logger *logrus.Logger) *Resolver {
	return &Resolver{
		parser:   parser,
		registry: reg,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve builds the intent for one turn. The returned assumptions record
// interpretive leaps (fuzzy name matches) that the caller surfaces to the
// user.
func (r *Resolver) Resolve(ctx context.Context, question string, prior *models.QueryIntent) (models.QueryIntent, []string) {
	req := inference.ParseRequest{
		Question:        question,
		AliasVocabulary: r.registry.AliasVocabulary(),
	}
	if prior != nil {
		if priorJSON, err := json.Marshal(prior); err == nil {
			req.PriorIntentJSON = string(priorJSON)
		}
	}

	parsed, err := r.parser.ParseIntentWithRetry(ctx, req)
	if err != nil {
		r.logger.WithError(err).Warn("Intent parsing failed, falling back to default intent")
		return models.DefaultIntent(), nil
	}

	intent := models.DefaultIntent()
	intent.IsFollowUp = parsed.IsFollowUp

	if tf := models.TimeframeType(parsed.TimeframeType); tf.Valid() {
		intent.TimeframeType = tf
	}
	if qt := models.QuestionType(parsed.QuestionType); qt.Valid() {
		intent.QuestionType = qt
	}
	if sf := models.SentimentFocus(parsed.SentimentFocus); sf.Valid() {
		intent.SentimentFocus = sf
	}
	if dl := models.DetailLevel(parsed.DetailLevel); dl.Valid() {
		intent.DetailLevel = dl
	}

	for _, area := range parsed.FocusAreas {
		if models.ValidFocusArea(area) {
			intent.FocusAreas = append(intent.FocusAreas, area)
		} else {
			r.logger.WithField("focus_area", area).Debug("Dropping unknown focus area")
		}
	}

	var assumptions []string
	intent.PrimaryOrganizations, assumptions = r.resolveNames(parsed.PrimaryOrganizations, nil, assumptions)
	intent.ComparisonOrganizations, assumptions = r.resolveNames(parsed.ComparisonOrganizations, intent.PrimaryOrganizations, assumptions)

	if intent.IsFollowUp && prior != nil {
		r.inheritFromPrior(&intent, prior)
	}

	if intent.TimeframeStart == nil && intent.TimeframeEnd == nil {
		r.materializeTimeframe(&intent, parsed.CalendarYear)
	}

	return intent, assumptions
}

// resolveNames maps free-text names to canonical IDs, silently dropping
// anything the registry cannot place and deduplicating against exclude.
func (r *Resolver) resolveNames(names []string, exclude []string, assumptions []string) ([]string, []string) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	ids := []string{}
	for _, name := range names {
		id, confidence := r.registry.Resolve(name)
		if id == "" {
			r.logger.WithField("name", name).Debug("Dropping unresolvable organization name")
			continue
		}
		if excluded[id] {
			continue
		}
		excluded[id] = true
		ids = append(ids, id)

		if confidence < 1.0 {
			assumptions = append(assumptions, fmt.Sprintf("Interpreted %q as %s", name, r.registry.DisplayName(id)))
		}
	}
	return ids, assumptions
}

// inheritFromPrior carries organizations and timeframe over from the previous
// turn when the follow-up question leaves them unspecified.
func (r *Resolver) inheritFromPrior(intent *models.QueryIntent, prior *models.QueryIntent) {
	if len(intent.PrimaryOrganizations) == 0 {
		intent.PrimaryOrganizations = append([]string{}, prior.PrimaryOrganizations...)
	}
	if len(intent.ComparisonOrganizations) == 0 {
		intent.ComparisonOrganizations = append([]string{}, prior.ComparisonOrganizations...)
	}
	if intent.TimeframeType == models.TimeframeAllAvailable && prior.TimeframeType != models.TimeframeAllAvailable {
		intent.TimeframeType = prior.TimeframeType
		intent.TimeframeStart = copyTime(prior.TimeframeStart)
		intent.TimeframeEnd = copyTime(prior.TimeframeEnd)
	}
}

// materializeTimeframe converts the symbolic timeframe into concrete dates.
// Open-ended timeframes leave the end nil, meaning "up to the latest data".
func (r *Resolver) materializeTimeframe(intent *models.QueryIntent, calendarYear int) {
	now := r.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	switch intent.TimeframeType {
	case models.TimeframeLast12Months:
		intent.TimeframeStart = timePtr(monthStart.AddDate(-1, 0, 0))
	case models.TimeframeLast24Months:
		intent.TimeframeStart = timePtr(monthStart.AddDate(-2, 0, 0))
	case models.TimeframeCalendarYear:
		year := calendarYear
		if year == 0 {
			year = now.Year()
		}
		intent.TimeframeStart = timePtr(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
		intent.TimeframeEnd = timePtr(time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC))
	case models.TimeframeSinceCovid:
		intent.TimeframeStart = timePtr(covidStart)
	case models.TimeframeRecent:
		intent.TimeframeStart = timePtr(monthStart.AddDate(0, -6, 0))
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
