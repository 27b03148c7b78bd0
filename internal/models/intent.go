package models

import (
	"time"
)

// Closed vocabularies for query intents. The external parser is seeded with
// these and must not invent values outside them; anything unknown is
// normalized away at the resolver boundary.

type TimeframeType string

const (
	TimeframeAllAvailable TimeframeType = "all_available"
	TimeframeLast12Months TimeframeType = "last_12_months"
	TimeframeLast24Months TimeframeType = "last_24_months"
	TimeframeCalendarYear TimeframeType = "calendar_year"
	TimeframeSinceCovid   TimeframeType = "since_covid"
	TimeframeRecent       TimeframeType = "recent_generic"
)

type QuestionType string

const (
	QuestionOverallSentiment QuestionType = "overall_sentiment"
	QuestionComparison       QuestionType = "comparison"
	QuestionTrendOverTime    QuestionType = "trend_over_time"
	QuestionDrivers          QuestionType = "drivers_of_sentiment"
	QuestionExamplesOnly     QuestionType = "examples_only"
	QuestionVolumeAndMix     QuestionType = "volume_and_mix"
)

type SentimentFocus string

const (
	SentimentFocusAll      SentimentFocus = "all"
	SentimentFocusNegative SentimentFocus = "mostly_negative"
	SentimentFocusPositive SentimentFocus = "mostly_positive"
)

type DetailLevel string

const (
	DetailBrief        DetailLevel = "brief"
	DetailStandard     DetailLevel = "standard"
	DetailBoardSummary DetailLevel = "board_level_summary"
)

type SentimentLabel string

const (
	SentimentVeryNegative SentimentLabel = "very_negative"
	SentimentNegative     SentimentLabel = "negative"
	SentimentNeutral      SentimentLabel = "neutral"
	SentimentPositive     SentimentLabel = "positive"
	SentimentVeryPositive SentimentLabel = "very_positive"
)

type Granularity string

const (
	GranularityMonthly   Granularity = "monthly"
	GranularityQuarterly Granularity = "quarterly"
	GranularityYearly    Granularity = "yearly"
)

// AspectOverall is the catch-all focus area used when a question names none.
const AspectOverall = "overall"

// FocusAreas is the fixed aspect enumeration shared by the parser schema, the
// aggregation engine and the retrieval filters.
var FocusAreas = []string{
	AspectOverall,
	"digital_banking",
	"mobile_app",
	"branches",
	"mortgages",
	"savings",
	"current_accounts",
	"customer_service",
	"complaints_handling",
	"fees_and_rates",
}

var (
	timeframeTypes = map[TimeframeType]bool{
		TimeframeAllAvailable: true,
		TimeframeLast12Months: true,
		TimeframeLast24Months: true,
		TimeframeCalendarYear: true,
		TimeframeSinceCovid:   true,
		TimeframeRecent:       true,
	}
	questionTypes = map[QuestionType]bool{
		QuestionOverallSentiment: true,
		QuestionComparison:       true,
		QuestionTrendOverTime:    true,
		QuestionDrivers:          true,
		QuestionExamplesOnly:     true,
		QuestionVolumeAndMix:     true,
	}
	sentimentFocuses = map[SentimentFocus]bool{
		SentimentFocusAll:      true,
		SentimentFocusNegative: true,
		SentimentFocusPositive: true,
	}
	detailLevels = map[DetailLevel]bool{
		DetailBrief:        true,
		DetailStandard:     true,
		DetailBoardSummary: true,
	}
	focusAreaSet = func() map[string]bool {
		m := make(map[string]bool, len(FocusAreas))
		for _, a := range FocusAreas {
			m[a] = true
		}
		return m
	}()
)

func (t TimeframeType) Valid() bool  { return timeframeTypes[t] }
func (q QuestionType) Valid() bool   { return questionTypes[q] }
func (s SentimentFocus) Valid() bool { return sentimentFocuses[s] }
func (d DetailLevel) Valid() bool    { return detailLevels[d] }

// ValidFocusArea reports whether an aspect belongs to the closed vocabulary.
func ValidFocusArea(a string) bool { return focusAreaSet[a] }

// QueryIntent is the fully resolved representation of one question. It is
// built once per turn by the resolver and never mutated afterwards.
type QueryIntent struct {
	IsFollowUp              bool           `json:"is_follow_up"`
	PrimaryOrganizations    []string       `json:"primary_organizations"`
	ComparisonOrganizations []string       `json:"comparison_organizations"`
	TimeframeType           TimeframeType  `json:"timeframe_type"`
	TimeframeStart          *time.Time     `json:"timeframe_start,omitempty"`
	TimeframeEnd            *time.Time     `json:"timeframe_end,omitempty"`
	FocusAreas              []string       `json:"focus_areas"`
	QuestionType            QuestionType   `json:"question_type"`
	SentimentFocus          SentimentFocus `json:"sentiment_focus"`
	DetailLevel             DetailLevel    `json:"detail_level"`
}

// DefaultIntent is the "no usable signal" intent: empty organization lists
// and no timeframe filter. It is a valid retrieval input, not an error.
func DefaultIntent() QueryIntent {
	return QueryIntent{
		PrimaryOrganizations:    []string{},
		ComparisonOrganizations: []string{},
		TimeframeType:           TimeframeAllAvailable,
		FocusAreas:              []string{},
		QuestionType:            QuestionOverallSentiment,
		SentimentFocus:          SentimentFocusAll,
		DetailLevel:             DetailStandard,
	}
}

// OrganizationIDs returns primary followed by comparison organizations with
// duplicates removed, preserving order.
func (qi QueryIntent) OrganizationIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range append(append([]string{}, qi.PrimaryOrganizations...), qi.ComparisonOrganizations...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// EffectiveAspects returns the focus areas to query, defaulting to overall.
func (qi QueryIntent) EffectiveAspects() []string {
	if len(qi.FocusAreas) == 0 {
		return []string{AspectOverall}
	}
	return qi.FocusAreas
}

// EvidenceSentimentLabels maps the sentiment focus to the label filter used
// for evidence retrieval. Nil means no label filter.
func (qi QueryIntent) EvidenceSentimentLabels() []string {
	switch qi.SentimentFocus {
	case SentimentFocusNegative:
		return []string{string(SentimentVeryNegative), string(SentimentNegative)}
	case SentimentFocusPositive:
		return []string{string(SentimentPositive), string(SentimentVeryPositive)}
	default:
		return nil
	}
}
