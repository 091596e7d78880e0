package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"workspacememory/internal/apperrors"
	"workspacememory/internal/logging"
)

// QdrantConfig connects the remote mode: host/port/api-key/tls/collection.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	VectorSize     uint64
}

// QdrantStore implements Store against a remote Qdrant collection.
type QdrantStore struct {
	client         *qdrant.Client
	collectionName string
	log            logging.Logger
}

// NewQdrantStore dials Qdrant and ensures the collection exists, creating
// it with cosine distance and the configured vector size if missing.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, log logging.Logger) (*QdrantStore, error) {
	if log == nil {
		log = logging.Noop()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, apperrors.VectorStore("failed to create qdrant client", err)
	}

	collections, err := client.ListCollections(ctx)
	if err != nil {
		return nil, apperrors.VectorStore("failed to list collections", err)
	}
	exists := false
	for _, c := range collections {
		if c == cfg.CollectionName {
			exists = true
			break
		}
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, apperrors.VectorStore(fmt.Sprintf("failed to create collection %s", cfg.CollectionName), err)
		}
		log.Info("created qdrant collection", "collection", cfg.CollectionName)
	}

	return &QdrantStore{client: client, collectionName: cfg.CollectionName, log: log}, nil
}

func (q *QdrantStore) Upsert(ctx context.Context, id string, vec []float32, md Metadata) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vec...),
		Payload: qdrant.NewValueMap(map[string]any{
			"workspace_id": md.WorkspaceID,
			"type":         md.Type,
			"created_at":   md.CreatedAt.Unix(),
		}),
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return apperrors.VectorStore("failed to upsert point", err)
	}
	return nil
}

func (q *QdrantStore) Search(ctx context.Context, vec []float32, topK int, filter Filter) ([]Match, error) {
	qFilter := buildFilter(filter)
	limit := uint64(topK)
	result, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         qFilter,
	})
	if err != nil {
		return nil, apperrors.VectorStore("failed to search", err)
	}

	matches := make([]Match, 0, len(result))
	for _, p := range result {
		matches = append(matches, Match{
			ID:    p.GetId().GetUuid(),
			Score: float64(p.GetScore()),
			Metadata: Metadata{
				WorkspaceID: p.GetPayload()["workspace_id"].GetStringValue(),
				Type:        p.GetPayload()["type"].GetStringValue(),
			},
		})
	}
	return matches, nil
}

func (q *QdrantStore) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return apperrors.VectorStore("failed to delete point", err)
	}
	return nil
}

// buildFilter translates our workspace/type/date Filter into Qdrant's
// conditional-Filter DSL, matching internal/vector/vector.go's Filter.Match
// semantics field for field.
func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.WorkspaceID != "" {
		must = append(must, qdrant.NewMatch("workspace_id", f.WorkspaceID))
	}
	if len(f.Types) > 0 {
		must = append(must, qdrant.NewMatchKeywords("type", f.Types...))
	}
	if !f.CreatedFrom.IsZero() || !f.CreatedTo.IsZero() {
		r := &qdrant.Range{}
		if !f.CreatedFrom.IsZero() {
			r.Gte = qdrant.PtrOf(float64(f.CreatedFrom.Unix()))
		}
		if !f.CreatedTo.IsZero() {
			r.Lte = qdrant.PtrOf(float64(f.CreatedTo.Unix()))
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "created_at",
					Range: r,
				},
			},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
