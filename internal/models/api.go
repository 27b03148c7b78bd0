package models

import (
	"time"
)

type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

type ChatResponse struct {
	SessionID        string            `json:"session_id"`
	Answer           string            `json:"answer"`
	Intent           QueryIntent       `json:"intent"`
	Metrics          []SummaryMetric   `json:"metrics"`
	EvidenceSnippets []EvidenceSnippet `json:"evidence_snippets"`
	DataCoverage     DataCoverage      `json:"data_coverage"`
	InsufficientData bool              `json:"insufficient_data"`
	Assumptions      []string          `json:"assumptions"`
	Limitations      []string          `json:"limitations"`
}

type ResetRequest struct {
	SessionID string `json:"session_id"`
}

// EvidenceSnippet is a truncated review excerpt supporting an answer.
type EvidenceSnippet struct {
	SnippetID        string         `json:"snippet_id"`
	OrganizationID   string         `json:"organization_id"`
	OrganizationName string         `json:"organization_name"`
	Source           string         `json:"source"`
	ReviewDate       time.Time      `json:"review_date"`
	Rating           int            `json:"rating"`
	SentimentLabel   SentimentLabel `json:"sentiment_label"`
	Aspects          []string       `json:"aspects"`
	Topics           []string       `json:"topics"`
	SnippetText      string         `json:"snippet_text"`
}

// OrganizationCount is one entry of the per-organization coverage breakdown.
type OrganizationCount struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	ReviewCount      int64  `json:"review_count"`
}

// DataCoverage is the per-query transparency record. The snapshot date is a
// global staleness indicator; the counts are scoped to the intent.
type DataCoverage struct {
	SnapshotEndDate         time.Time           `json:"snapshot_end_date"`
	Sources                 []string            `json:"sources"`
	TotalReviewsConsidered  int64               `json:"total_reviews_considered"`
	PerOrganizationCounts   []OrganizationCount `json:"per_organization_counts"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
