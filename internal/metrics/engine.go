package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samspacey/bsa-data/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds how many organizations are aggregated at once.
const defaultConcurrency = 4

// Bucket is one calendar-aligned, end-exclusive time window.
type Bucket struct {
	Start time.Time
	End   time.Time
}

// GenerateBuckets partitions [start, end] into calendar-aligned buckets. The
// first bucket starts at the calendar boundary containing start; the last
// bucket is the one containing end, even when its exclusive end date runs
// past it.
func GenerateBuckets(granularity models.Granularity, start, end time.Time) []Bucket {
	if end.Before(start) {
		return nil
	}

	cursor := alignToBucketStart(granularity, start)
	var buckets []Bucket
	for !cursor.After(end) {
		next := advance(granularity, cursor)
		buckets = append(buckets, Bucket{Start: cursor, End: next})
		cursor = next
	}
	return buckets
}

func alignToBucketStart(granularity models.Granularity, t time.Time) time.Time {
	switch granularity {
	case models.GranularityQuarterly:
		quarterMonth := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	case models.GranularityYearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func advance(granularity models.Granularity, t time.Time) time.Time {
	switch granularity {
	case models.GranularityQuarterly:
		return t.AddDate(0, 3, 0)
	case models.GranularityYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

var positiveLabels = []models.SentimentLabel{models.SentimentPositive, models.SentimentVeryPositive}
var negativeLabels = []models.SentimentLabel{models.SentimentVeryNegative, models.SentimentNegative}

// Engine recomputes summary metrics from the review corpus. Aggregation is
// read-only over reviews; persisting the output is the caller's concern.
type Engine struct {
	orgs        models.OrganizationRepository
	reviews     models.ReviewRepository
	logger      *logrus.Logger
	concurrency int
}

func NewEngine(orgs models.OrganizationRepository, reviews models.ReviewRepository, logger *logrus.Logger) *Engine {
	return &Engine{
		orgs:        orgs,
		reviews:     reviews,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
}

// ComputeAll aggregates every (organization, bucket, aspect) triple over the
// given range. A nil start or end falls back to the corpus date range.
// Triples with no annotated reviews are never materialized. Results are
// sorted by organization, bucket start and aspect, so recomputation over
// unchanged data is deterministic.
func (e *Engine) ComputeAll(ctx context.Context, granularity models.Granularity, start, end *time.Time, version string) ([]models.SummaryMetric, error) {
	rangeStart, rangeEnd, err := e.resolveRange(start, end)
	if err != nil {
		return nil, err
	}
	if rangeStart == nil {
		e.logger.Warn("No reviews in corpus, nothing to aggregate")
		return nil, nil
	}

	buckets := GenerateBuckets(granularity, *rangeStart, *rangeEnd)
	orgs, err := e.orgs.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load organizations: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"granularity":   granularity,
		"buckets":       len(buckets),
		"organizations": len(orgs),
		"version":       version,
	}).Info("Starting metric aggregation")

	perOrg := make([][]models.SummaryMetric, len(orgs))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)

	for i, org := range orgs {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			computed, err := e.computeOrganization(org.ID, buckets, version)
			if err != nil {
				return fmt.Errorf("aggregation failed for %s: %w", org.ID, err)
			}
			perOrg[i] = computed
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var all []models.SummaryMetric
	for _, computed := range perOrg {
		all = append(all, computed...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].OrganizationID != all[j].OrganizationID {
			return all[i].OrganizationID < all[j].OrganizationID
		}
		if !all[i].TimeBucketStart.Equal(all[j].TimeBucketStart) {
			return all[i].TimeBucketStart.Before(all[j].TimeBucketStart)
		}
		return all[i].Aspect < all[j].Aspect
	})
	return all, nil
}

func (e *Engine) resolveRange(start, end *time.Time) (*time.Time, *time.Time, error) {
	if start != nil && end != nil {
		return start, end, nil
	}
	min, max, err := e.reviews.DateRange()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve corpus date range: %w", err)
	}
	if start == nil {
		start = min
	}
	if end == nil {
		end = max
	}
	if start == nil || end == nil {
		return nil, nil, nil
	}
	return start, end, nil
}

func (e *Engine) computeOrganization(orgID string, buckets []Bucket, version string) ([]models.SummaryMetric, error) {
	var out []models.SummaryMetric

	for _, bucket := range buckets {
		stats, err := e.reviews.BucketStats(orgID, bucket.Start, bucket.End)
		if err != nil {
			return nil, err
		}
		if stats.ReviewCount == 0 {
			continue
		}

		for _, aspect := range models.FocusAreas {
			metric, err := e.computeTriple(orgID, aspect, bucket, stats, version)
			if err != nil {
				return nil, err
			}
			if metric != nil {
				out = append(out, *metric)
			}
		}
	}
	return out, nil
}

func (e *Engine) computeTriple(orgID, aspect string, bucket Bucket, stats *models.ReviewStats, version string) (*models.SummaryMetric, error) {
	sentiment, err := e.reviews.AspectSentimentStats(orgID, aspect, bucket.Start, bucket.End)
	if err != nil {
		return nil, err
	}
	if sentiment == nil || sentiment.Count == 0 {
		return nil, nil
	}

	positive, err := e.reviews.AspectLabelCount(orgID, aspect, bucket.Start, bucket.End, positiveLabels)
	if err != nil {
		return nil, err
	}
	negative, err := e.reviews.AspectLabelCount(orgID, aspect, bucket.Start, bucket.End, negativeLabels)
	if err != nil {
		return nil, err
	}

	// Fractions in [0,1], over the bucket's review count so the
	// denominator matches ReviewCount and AvgRating.
	pctPositive := float64(positive) / float64(stats.ReviewCount)
	pctNegative := float64(negative) / float64(stats.ReviewCount)

	metric := &models.SummaryMetric{
		OrganizationID:  orgID,
		TimeBucketStart: bucket.Start,
		TimeBucketEnd:   bucket.End,
		Aspect:          aspect,
		ReviewCount:     int(stats.ReviewCount),
		AvgRating:       stats.AvgRating,
		AvgSentiment:    sentiment.AvgSentiment,
		PctPositive:     pctPositive,
		PctNegative:     pctNegative,
		NetSentiment:    pctPositive - pctNegative,
		MetricVersion:   version,
	}

	peers, err := e.reviews.PeerSentimentStats(orgID, aspect, bucket.Start, bucket.End)
	if err != nil {
		return nil, err
	}
	if peers != nil && peers.Count > 0 {
		peerCount := int(peers.Count)
		metric.PeerAvgSentiment = &peers.AvgSentiment
		metric.PeerReviewCount = &peerCount
	}

	return metric, nil
}
