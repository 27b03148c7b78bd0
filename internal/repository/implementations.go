package repository

import (
	"time"

	"github.com/samspacey/bsa-data/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrganizationRepositoryImpl implements OrganizationRepository
type OrganizationRepositoryImpl struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) models.OrganizationRepository {
	return &OrganizationRepositoryImpl{db: db}
}

func (r *OrganizationRepositoryImpl) GetAll() ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.Order("id").Find(&orgs).Error
	return orgs, err
}

func (r *OrganizationRepositoryImpl) GetByID(id string) (*models.Organization, error) {
	var org models.Organization
	err := r.db.First(&org, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepositoryImpl) Upsert(org *models.Organization) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(org).Error
}

// DataSourceRepositoryImpl implements DataSourceRepository
type DataSourceRepositoryImpl struct {
	db *gorm.DB
}

func NewDataSourceRepository(db *gorm.DB) models.DataSourceRepository {
	return &DataSourceRepositoryImpl{db: db}
}

func (r *DataSourceRepositoryImpl) GetAllNames() ([]string, error) {
	var names []string
	err := r.db.Model(&models.DataSource{}).
		Distinct("name").
		Order("name").
		Pluck("name", &names).Error
	return names, err
}

func (r *DataSourceRepositoryImpl) Upsert(source *models.DataSource) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(source).Error
}

// ReviewRepositoryImpl implements ReviewRepository
type ReviewRepositoryImpl struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) models.ReviewRepository {
	return &ReviewRepositoryImpl{db: db}
}

func (r *ReviewRepositoryImpl) Create(review *models.Review) error {
	return r.db.Create(review).Error
}

func (r *ReviewRepositoryImpl) DateRange() (*time.Time, *time.Time, error) {
	var result struct {
		Min *time.Time
		Max *time.Time
	}
	err := r.db.Model(&models.Review{}).
		Select("MIN(review_date) AS min, MAX(review_date) AS max").
		Where("is_flagged_for_exclusion = ?", false).
		Scan(&result).Error
	if err != nil {
		return nil, nil, err
	}
	return result.Min, result.Max, nil
}

func (r *ReviewRepositoryImpl) CountByOrganization(orgID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Review{}).
		Where("organization_id = ? AND is_flagged_for_exclusion = ?", orgID, false).
		Count(&count).Error
	return count, err
}

func (r *ReviewRepositoryImpl) BucketStats(orgID string, start, end time.Time) (*models.ReviewStats, error) {
	var result struct {
		ReviewCount int64
		AvgRating   *float64
	}
	err := r.db.Model(&models.Review{}).
		Select("COUNT(*) AS review_count, AVG(rating_raw) AS avg_rating").
		Where("organization_id = ?", orgID).
		Where("review_date >= ? AND review_date < ?", start, end).
		Where("is_flagged_for_exclusion = ?", false).
		Scan(&result).Error
	if err != nil {
		return nil, err
	}
	stats := &models.ReviewStats{ReviewCount: result.ReviewCount}
	if result.AvgRating != nil {
		stats.AvgRating = *result.AvgRating
	}
	return stats, nil
}

func (r *ReviewRepositoryImpl) AspectSentimentStats(orgID, aspect string, start, end time.Time) (*models.SentimentStats, error) {
	var result struct {
		AvgSentiment *float64
		Count        int64
	}
	err := r.db.Model(&models.ReviewAspect{}).
		Select("AVG(review_aspects.sentiment_score) AS avg_sentiment, COUNT(review_aspects.id) AS count").
		Joins("JOIN reviews ON reviews.id = review_aspects.review_id").
		Where("reviews.organization_id = ?", orgID).
		Where("reviews.review_date >= ? AND reviews.review_date < ?", start, end).
		Where("reviews.is_flagged_for_exclusion = ?", false).
		Where("review_aspects.aspect = ?", aspect).
		Scan(&result).Error
	if err != nil {
		return nil, err
	}
	stats := &models.SentimentStats{Count: result.Count}
	if result.AvgSentiment != nil {
		stats.AvgSentiment = *result.AvgSentiment
	}
	return stats, nil
}

func (r *ReviewRepositoryImpl) AspectLabelCount(orgID, aspect string, start, end time.Time, labels []models.SentimentLabel) (int64, error) {
	var count int64
	err := r.db.Model(&models.ReviewAspect{}).
		Joins("JOIN reviews ON reviews.id = review_aspects.review_id").
		Where("reviews.organization_id = ?", orgID).
		Where("reviews.review_date >= ? AND reviews.review_date < ?", start, end).
		Where("reviews.is_flagged_for_exclusion = ?", false).
		Where("review_aspects.aspect = ?", aspect).
		Where("review_aspects.sentiment_label IN ?", labels).
		Count(&count).Error
	return count, err
}

func (r *ReviewRepositoryImpl) PeerSentimentStats(excludeOrgID, aspect string, start, end time.Time) (*models.SentimentStats, error) {
	var result struct {
		AvgSentiment *float64
		Count        int64
	}
	err := r.db.Model(&models.ReviewAspect{}).
		Select("AVG(review_aspects.sentiment_score) AS avg_sentiment, COUNT(review_aspects.id) AS count").
		Joins("JOIN reviews ON reviews.id = review_aspects.review_id").
		Where("reviews.organization_id <> ?", excludeOrgID).
		Where("reviews.review_date >= ? AND reviews.review_date < ?", start, end).
		Where("reviews.is_flagged_for_exclusion = ?", false).
		Where("review_aspects.aspect = ?", aspect).
		Scan(&result).Error
	if err != nil {
		return nil, err
	}
	if result.AvgSentiment == nil {
		return nil, nil
	}
	return &models.SentimentStats{AvgSentiment: *result.AvgSentiment, Count: result.Count}, nil
}

func (r *ReviewRepositoryImpl) GetEnriched(batchSize int, fn func([]models.Review) error) error {
	var batch []models.Review
	result := r.db.Preload("Aspects").
		Where("is_flagged_for_exclusion = ?", false).
		Order("id").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return result.Error
}

// MetricRepositoryImpl implements MetricRepository
type MetricRepositoryImpl struct {
	db *gorm.DB
}

func NewMetricRepository(db *gorm.DB) models.MetricRepository {
	return &MetricRepositoryImpl{db: db}
}

func (r *MetricRepositoryImpl) ReplaceVersion(version string, metrics []models.SummaryMetric) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("metric_version = ?", version).
			Delete(&models.SummaryMetric{}).Error; err != nil {
			return err
		}
		if len(metrics) == 0 {
			return nil
		}
		return tx.CreateInBatches(metrics, 500).Error
	})
}

func (r *MetricRepositoryImpl) Query(orgIDs []string, aspects []string, start, end *time.Time) ([]models.SummaryMetric, error) {
	query := r.db.Model(&models.SummaryMetric{})

	// An empty organization list means "every organization"
	if len(orgIDs) > 0 {
		query = query.Where("organization_id IN ?", orgIDs)
	}
	if len(aspects) > 0 {
		query = query.Where("aspect IN ?", aspects)
	}
	if start != nil {
		query = query.Where("time_bucket_start >= ?", *start)
	}
	if end != nil {
		query = query.Where("time_bucket_end <= ?", *end)
	}

	var metrics []models.SummaryMetric
	err := query.
		Order("organization_id, aspect, time_bucket_start").
		Find(&metrics).Error
	return metrics, err
}

// SystemHealthRepositoryImpl implements SystemHealthRepository
type SystemHealthRepositoryImpl struct {
	db *gorm.DB
}

func NewSystemHealthRepository(db *gorm.DB) models.SystemHealthRepository {
	return &SystemHealthRepositoryImpl{db: db}
}

func (r *SystemHealthRepositoryImpl) UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error {
	return r.db.Exec(`
		INSERT INTO system_health (service_name, status, response_time_ms, error_message, checked_at)
		VALUES (?, ?, ?, ?, NOW())
	`, serviceName, status, responseTime, errorMsg).Error
}

func (r *SystemHealthRepositoryImpl) GetAllServicesHealth() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Raw(`
		SELECT DISTINCT ON (service_name) *
		FROM system_health
		ORDER BY service_name, checked_at DESC
	`).Scan(&health).Error
	return health, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Organization models.OrganizationRepository
	DataSource   models.DataSourceRepository
	Review       models.ReviewRepository
	Metric       models.MetricRepository
	SystemHealth models.SystemHealthRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Organization: NewOrganizationRepository(db),
		DataSource:   NewDataSourceRepository(db),
		Review:       NewReviewRepository(db),
		Metric:       NewMetricRepository(db),
		SystemHealth: NewSystemHealthRepository(db),
	}
}
