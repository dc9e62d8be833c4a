package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

// pageDocument is the MongoDB shape of one scraped page.
type pageDocument struct {
	URL       string          `bson:"url"`
	Comments  []types.Comment `bson:"comments"`
	Count     int             `bson:"count"`
	ScrapedAt time.Time       `bson:"scraped_at"`
}

// MongoStorage writes one document per page to a MongoDB collection.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	now        func() time.Time
	logger     *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	if uri == "" {
		return nil, &types.StorageError{Backend: FormatMongoDB, Err: fmt.Errorf("storage.mongo_uri is required")}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StorageError{Backend: FormatMongoDB, Err: fmt.Errorf("connect: %w", err)}
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: FormatMongoDB, Err: fmt.Errorf("ping: %w", err)}
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
		now:        time.Now,
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return FormatMongoDB }

func (s *MongoStorage) Store(results []types.PageResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := pageDocuments(results, s.now())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("insert: %w", err)}
	}

	s.count += len(docs)
	s.logger.Debug("pages stored in mongodb", "count", len(docs), "total", s.count)
	return nil
}

func pageDocuments(results []types.PageResult, now time.Time) []any {
	docs := make([]any, len(results))
	for i, r := range results {
		comments := r.Comments
		if comments == nil {
			comments = []types.Comment{}
		}
		docs[i] = pageDocument{
			URL:       r.URL,
			Comments:  comments,
			Count:     len(comments),
			ScrapedAt: now.UTC(),
		}
	}
	return docs
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_pages", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes results to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Store(results []types.PageResult) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(results); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			s.logger.Error("backend close failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
