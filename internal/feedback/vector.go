package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const collectionName = "lia_feedback"

// EmbedFunc produces an embedding vector for one text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// VectorIndex is the persistent embedding index behind semantic feedback
// recall.
type VectorIndex struct {
	collection *chromem.Collection
	logger     *slog.Logger
}

func NewVectorIndex(path string, embed EmbedFunc, logger *slog.Logger) (*VectorIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create vector directory %s: %w", path, err)
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector store: %w", err)
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("cannot open collection %s: %w", collectionName, err)
	}
	logger.Info("vector index ready", "path", path, "documents", collection.Count())
	return &VectorIndex{collection: collection, logger: logger}, nil
}

// Add indexes one text with its metadata.
func (v *VectorIndex) Add(ctx context.Context, content string, metadata map[string]string) error {
	doc := chromem.Document{
		ID:       uuid.NewString(),
		Content:  content,
		Metadata: metadata,
	}
	return v.collection.AddDocuments(ctx, []chromem.Document{doc}, 1)
}

// Search returns the k nearest documents. k is capped at the collection
// size; an empty collection returns no results and no error.
func (v *VectorIndex) Search(ctx context.Context, query string, k int) ([]chromem.Result, error) {
	count := v.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	return v.collection.Query(ctx, query, k, nil, nil)
}

// Count reports the number of indexed documents.
func (v *VectorIndex) Count() int {
	return v.collection.Count()
}
