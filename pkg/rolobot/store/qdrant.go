// Package store – qdrant.go implements VectorIndex on a Qdrant collection.
// Each point is one contact embedding with user/org payload fields so
// searches can be filtered server-side to the requesting scope.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds the connection settings for the vector index.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	UseTLS     bool   `yaml:"use_tls"`

	// VectorSize must match the embedding model's output dimension.
	VectorSize uint64 `yaml:"vector_size"`
}

// QdrantIndex implements VectorIndex over a Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists.
func NewQdrantIndex(cfg QdrantConfig, logger *slog.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}

	host := strings.TrimPrefix(strings.TrimPrefix(cfg.Host, "http://"), "https://")
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	port := cfg.Port
	if port == 0 {
		port = 6334 // gRPC port
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	q := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		logger:     logger.With("component", "vector_index"),
	}
	if q.collection == "" {
		q.collection = "contacts"
	}

	size := cfg.VectorSize
	if size == 0 {
		size = 1536 // text-embedding-3-small
	}
	if err := q.ensureCollection(context.Background(), size); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return q, nil
}

// ensureCollection creates the collection and payload indexes if missing.
func (q *QdrantIndex) ensureCollection(ctx context.Context, size uint64) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for _, field := range []string{"user_id", "org_id"} {
		fieldType := qdrant.FieldType_FieldTypeKeyword
		_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &fieldType,
		})
		if err != nil {
			return fmt.Errorf("create index for %s: %w", field, err)
		}
	}

	q.logger.Info("qdrant collection created", "collection", q.collection, "size", size)
	return nil
}

// Upsert writes the embedding for a contact.
func (q *QdrantIndex) Upsert(ctx context.Context, c *Contact, vector []float32) error {
	payload := map[string]*qdrant.Value{
		"user_id": qdrant.NewValueString(fmt.Sprintf("%d", c.UserID)),
		"org_id":  qdrant.NewValueString(c.OrgID),
		"name":    qdrant.NewValueString(c.Name),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

// Delete removes a contact's embedding.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return fmt.Errorf("delete point: %w", err)
	}
	return nil
}

// Query returns hits in scope with similarity >= threshold.
func (q *QdrantIndex) Query(ctx context.Context, scope Scope, vector []float32, threshold float32, limit int) ([]VectorHit, error) {
	var must []*qdrant.Condition
	if scope.OrgID != "" {
		must = append(must, qdrant.NewMatch("org_id", scope.OrgID))
	} else {
		must = append(must,
			qdrant.NewMatch("user_id", fmt.Sprintf("%d", scope.UserID)),
			qdrant.NewMatch("org_id", ""),
		)
	}

	lim := uint64(limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]VectorHit, 0, len(points))
	for _, p := range points {
		if p.Score < threshold {
			continue
		}
		hits = append(hits, VectorHit{ID: p.Id.GetUuid(), Score: p.Score})
	}

	q.logger.Debug("vector query done",
		"scope_org", scope.OrgID, "raw", len(points), "kept", len(hits))
	return hits, nil
}
