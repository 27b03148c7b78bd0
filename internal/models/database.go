package models

// GORM models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// StringArray for PostgreSQL array support
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	return fmt.Sprintf("{%s}", strings.Join(s, ",")), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		v = strings.Trim(v, "{}")
		if v == "" {
			*s = StringArray{}
			return nil
		}
		*s = StringArray(strings.Split(v, ","))
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return nil
}

// Organization is canonical reference data for one tracked institution.
// Loaded at startup, never mutated by the query engine.
type Organization struct {
	ID            string      `json:"id" gorm:"primaryKey"`
	CanonicalName string      `json:"canonical_name" gorm:"unique;not null"`
	Aliases       StringArray `json:"aliases" gorm:"type:text[]"`
	SizeBucket    string      `json:"size_bucket"`
	WebsiteDomain string      `json:"website_domain"`
	CreatedAt     time.Time   `json:"created_at"`
}

// DataSource identifies a review platform the corpus was collected from.
type DataSource struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"unique;not null"`
	SourceType string    `json:"source_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Review is one cleaned, enriched customer review. Written by the external
// collection/enrichment pipeline; the engine only reads them.
type Review struct {
	ID                    uint           `json:"id" gorm:"primaryKey"`
	OrganizationID        string         `json:"organization_id" gorm:"index;not null"`
	SourceID              string         `json:"source_id" gorm:"index;not null"`
	SourceReviewID        string         `json:"source_review_id"`
	ReviewDate            time.Time      `json:"review_date" gorm:"index;not null"`
	RatingRaw             int            `json:"rating_raw" gorm:"check:rating_raw BETWEEN 1 AND 5"`
	TitleText             string         `json:"title_text"`
	BodyTextClean         string         `json:"body_text_clean" gorm:"not null"`
	Channel               string         `json:"channel"`
	Product               string         `json:"product"`
	OverallSentimentLabel SentimentLabel `json:"overall_sentiment_label"`
	OverallSentimentScore float64        `json:"overall_sentiment_score"`
	Topics                StringArray    `json:"topics" gorm:"type:text[]"`
	IsFlaggedForExclusion bool           `json:"is_flagged_for_exclusion" gorm:"default:false;index"`
	CreatedAt             time.Time      `json:"created_at"`

	// Associations
	Aspects []ReviewAspect `json:"aspects" gorm:"foreignKey:ReviewID"`
}

// ReviewAspect is one aspect-level sentiment annotation on a review.
type ReviewAspect struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	ReviewID       uint           `json:"review_id" gorm:"index;not null"`
	Aspect         string         `json:"aspect" gorm:"index;not null"`
	SentimentLabel SentimentLabel `json:"sentiment_label" gorm:"not null"`
	SentimentScore float64        `json:"sentiment_score" gorm:"check:sentiment_score BETWEEN -1 AND 1"`
}

// SummaryMetric is one materialized aggregate for an (organization, bucket,
// aspect) triple. Immutable once written; superseded by a new version.
type SummaryMetric struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	OrganizationID   string     `json:"organization_id" gorm:"index;not null"`
	TimeBucketStart  time.Time  `json:"time_bucket_start" gorm:"index;not null"`
	TimeBucketEnd    time.Time  `json:"time_bucket_end" gorm:"not null"`
	Aspect           string     `json:"aspect" gorm:"index;not null"`
	ReviewCount      int        `json:"review_count" gorm:"not null"`
	AvgRating        float64    `json:"avg_rating"`
	AvgSentiment     float64    `json:"avg_sentiment_score"`
	PctPositive      float64    `json:"pct_positive"`
	PctNegative      float64    `json:"pct_negative"`
	NetSentiment     float64    `json:"net_sentiment"`
	PeerAvgSentiment *float64   `json:"peer_avg_sentiment,omitempty"`
	PeerReviewCount  *int       `json:"peer_review_count,omitempty"`
	MetricVersion    string     `json:"metric_version" gorm:"index;not null"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SystemHealth represents service health monitoring
type SystemHealth struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ServiceName    string    `json:"service_name" gorm:"not null"`
	Status         string    `json:"status" gorm:"not null;check:status IN ('healthy','degraded','unhealthy')"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at" gorm:"default:NOW()"`
}

// Repository interfaces

type OrganizationRepository interface {
	GetAll() ([]Organization, error)
	GetByID(id string) (*Organization, error)
	Upsert(org *Organization) error
}

type DataSourceRepository interface {
	GetAllNames() ([]string, error)
	Upsert(source *DataSource) error
}

// ReviewStats carries the rating aggregate for one bucket.
type ReviewStats struct {
	ReviewCount int64
	AvgRating   float64
}

// SentimentStats carries the aspect-sentiment aggregate for one bucket.
type SentimentStats struct {
	AvgSentiment float64
	Count        int64
}

type ReviewRepository interface {
	Create(review *Review) error
	DateRange() (min *time.Time, max *time.Time, err error)
	CountByOrganization(orgID string) (int64, error)
	// BucketStats aggregates non-excluded reviews for one organization
	// within [start, end).
	BucketStats(orgID string, start, end time.Time) (*ReviewStats, error)
	// AspectSentimentStats aggregates aspect sentiment rows for one
	// organization within [start, end).
	AspectSentimentStats(orgID, aspect string, start, end time.Time) (*SentimentStats, error)
	// AspectLabelCount counts aspect rows carrying any of the given labels.
	AspectLabelCount(orgID, aspect string, start, end time.Time, labels []SentimentLabel) (int64, error)
	// PeerSentimentStats aggregates aspect sentiment over every organization
	// except the excluded one. Returns nil when no peer rows exist.
	PeerSentimentStats(excludeOrgID, aspect string, start, end time.Time) (*SentimentStats, error)
	// GetEnriched streams non-excluded reviews with aspect annotations, for
	// index rebuilds.
	GetEnriched(batchSize int, fn func([]Review) error) error
}

type MetricRepository interface {
	// ReplaceVersion atomically swaps in a recomputed metric set for a
	// version: existing rows of that version are deleted and the new rows
	// written in one transaction.
	ReplaceVersion(version string, metrics []SummaryMetric) error
	Query(orgIDs []string, aspects []string, start, end *time.Time) ([]SummaryMetric, error)
}

type SystemHealthRepository interface {
	UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error
	GetAllServicesHealth() ([]SystemHealth, error)
}

// TableName methods for custom table names
func (Organization) TableName() string  { return "organizations" }
func (DataSource) TableName() string    { return "data_sources" }
func (Review) TableName() string        { return "reviews" }
func (ReviewAspect) TableName() string  { return "review_aspects" }
func (SummaryMetric) TableName() string { return "summary_metrics" }
func (SystemHealth) TableName() string  { return "system_health" }

// Model validation methods
func (r *Review) Validate() error {
	if r.OrganizationID == "" {
		return fmt.Errorf("organization ID is required")
	}
	if r.RatingRaw < 1 || r.RatingRaw > 5 {
		return fmt.Errorf("invalid rating: %d", r.RatingRaw)
	}
	if r.BodyTextClean == "" {
		return fmt.Errorf("review body is required")
	}
	return nil
}

func (m *SummaryMetric) Validate() error {
	if m.OrganizationID == "" {
		return fmt.Errorf("organization ID is required")
	}
	if m.ReviewCount <= 0 {
		return fmt.Errorf("zero-count metric buckets must not be materialized")
	}
	if !m.TimeBucketStart.Before(m.TimeBucketEnd) {
		return fmt.Errorf("bucket start must precede bucket end")
	}
	if m.MetricVersion == "" {
		return fmt.Errorf("metric version is required")
	}
	return nil
}

// GORM hooks
func (r *Review) BeforeCreate(tx *gorm.DB) error {
	return r.Validate()
}

func (m *SummaryMetric) BeforeCreate(tx *gorm.DB) error {
	return m.Validate()
}
