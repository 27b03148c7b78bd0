package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// Document is one review as stored in the vector index.
type Document struct {
	ID             uint64
	OrganizationID string
	SourceID       string
	ReviewDate     time.Time
	Rating         int
	SentimentLabel string
	Aspects        []string
	Topics         []string
	Text           string
	Vector         []float32
}

// Filters narrows a similarity search. Zero values mean "no filter".
type Filters struct {
	OrganizationIDs []string
	SentimentLabels []string
	Aspects         []string
	DateStart       *time.Time
	DateEnd         *time.Time
}

// Result is one scored search hit.
type Result struct {
	Document
	Score float32
}

// Index is the similarity-search surface over the review corpus.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, vector []float32, filters Filters, limit int) ([]Result, error)
	Count(ctx context.Context) (uint64, error)
}

// QdrantIndex implements Index against a qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	vectorDim  uint64
	logger     *logrus.Logger
}

func NewQdrantIndex(host string, port int, collection string, vectorDim int, logger *logrus.Logger) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &QdrantIndex{
		client:     client,
		collection: collection,
		vectorDim:  uint64(vectorDim),
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if it does not exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	q.logger.WithField("collection", q.collection).Info("Creating vector collection")
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorDim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Add upserts documents, keyed by review ID so re-indexing is idempotent.
func (q *QdrantIndex) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(doc.ID),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"organization_id": doc.OrganizationID,
				"source_id":       doc.SourceID,
				"review_date":     doc.ReviewDate.Format("2006-01-02"),
				"review_ts":       doc.ReviewDate.Unix(),
				"rating":          int64(doc.Rating),
				"sentiment_label": doc.SentimentLabel,
				"aspects":         anyList(doc.Aspects),
				"topics":          anyList(doc.Topics),
				"text":            doc.Text,
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search runs a filtered similarity query. Aspect filtering happens
// client-side because aspects are stored as a list payload.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, filters Filters, limit int) ([]Result, error) {
	var conditions []*qdrant.Condition
	if len(filters.OrganizationIDs) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("organization_id", filters.OrganizationIDs...))
	}
	if len(filters.SentimentLabels) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("sentiment_label", filters.SentimentLabels...))
	}
	if filters.DateStart != nil || filters.DateEnd != nil {
		dateRange := &qdrant.Range{}
		if filters.DateStart != nil {
			dateRange.Gte = qdrant.PtrOf(float64(filters.DateStart.Unix()))
		}
		if filters.DateEnd != nil {
			dateRange.Lte = qdrant.PtrOf(float64(filters.DateEnd.Unix()))
		}
		conditions = append(conditions, qdrant.NewRange("review_ts", dateRange))
	}

	query := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(conditions) > 0 {
		query.Filter = &qdrant.Filter{Must: conditions}
	}

	points, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	var results []Result
	for _, point := range points {
		doc := documentFromPayload(point.GetId().GetNum(), point.GetPayload())
		if len(filters.Aspects) > 0 && !containsAny(doc.Aspects, filters.Aspects) {
			continue
		}
		results = append(results, Result{Document: doc, Score: point.GetScore()})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (q *QdrantIndex) Count(ctx context.Context) (uint64, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}

func documentFromPayload(id uint64, payload map[string]*qdrant.Value) Document {
	doc := Document{
		ID:             id,
		OrganizationID: payload["organization_id"].GetStringValue(),
		SourceID:       payload["source_id"].GetStringValue(),
		Rating:         int(payload["rating"].GetIntegerValue()),
		SentimentLabel: payload["sentiment_label"].GetStringValue(),
		Aspects:        stringList(payload["aspects"]),
		Topics:         stringList(payload["topics"]),
		Text:           payload["text"].GetStringValue(),
	}
	if parsed, err := time.Parse("2006-01-02", payload["review_date"].GetStringValue()); err == nil {
		doc.ReviewDate = parsed
	}
	return doc
}

func stringList(value *qdrant.Value) []string {
	var out []string
	for _, item := range value.GetListValue().GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}

func anyList(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}
