package inference

import (
	"encoding/json"

	"github.com/samspacey/bsa-data/internal/models"
)

// ParseRequest is the input for one structured-parsing call.
type ParseRequest struct {
	Question        string
	PriorIntentJSON string
	AliasVocabulary []string
}

// ParsedIntent is the parser collaborator's structured output. Organization
// references are free text here; the resolver maps them to canonical IDs.
type ParsedIntent struct {
	IsFollowUp              bool     `json:"is_follow_up"`
	PrimaryOrganizations    []string `json:"primary_organizations"`
	ComparisonOrganizations []string `json:"comparison_organizations"`
	TimeframeType           string   `json:"timeframe_type"`
	CalendarYear            int      `json:"calendar_year,omitempty"`
	FocusAreas              []string `json:"focus_areas"`
	QuestionType            string   `json:"question_type"`
	SentimentFocus          string   `json:"sentiment_focus"`
	DetailLevel             string   `json:"detail_level"`
}

// ComposeRequest is the fully assembled context handed to the answer
// composition collaborator.
type ComposeRequest struct {
	Question string                   `json:"question"`
	Intent   models.QueryIntent       `json:"intent"`
	Metrics  []models.SummaryMetric   `json:"metrics"`
	Evidence []models.EvidenceSnippet `json:"evidence"`
	Coverage models.DataCoverage      `json:"coverage"`
}

// OpenAI-compatible wire types.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  *toolChoice   `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// parseQuerySchema is the closed-vocabulary function schema handed to the
// parser; it must never invent enum values outside these lists.
const parseQuerySchema = `{
  "type": "object",
  "properties": {
    "is_follow_up": {
      "type": "boolean",
      "description": "True if referring to the previous answer"
    },
    "primary_organizations": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Main organizations the question is about, as written"
    },
    "comparison_organizations": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Organizations used for comparison"
    },
    "timeframe_type": {
      "type": "string",
      "enum": ["all_available", "last_12_months", "last_24_months", "calendar_year", "since_covid", "recent_generic"]
    },
    "calendar_year": {
      "type": "integer",
      "description": "Specific year if timeframe_type is calendar_year"
    },
    "focus_areas": {
      "type": "array",
      "items": {
        "type": "string",
        "enum": ["overall", "digital_banking", "mobile_app", "branches", "mortgages", "savings", "current_accounts", "customer_service", "complaints_handling", "fees_and_rates"]
      }
    },
    "question_type": {
      "type": "string",
      "enum": ["overall_sentiment", "comparison", "trend_over_time", "drivers_of_sentiment", "examples_only", "volume_and_mix"]
    },
    "sentiment_focus": {
      "type": "string",
      "enum": ["all", "mostly_negative", "mostly_positive"]
    },
    "detail_level": {
      "type": "string",
      "enum": ["brief", "standard", "board_level_summary"]
    }
  },
  "required": ["is_follow_up", "primary_organizations", "comparison_organizations", "timeframe_type", "focus_areas", "question_type", "sentiment_focus", "detail_level"]
}`
