package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/celerix-dev/schemes/internal/config"
	"github.com/celerix-dev/schemes/internal/pkg/logger"
	"github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
)

// MongoStore keeps schemes as documents in a MongoDB collection.
// The underlying client is a connection pool shared by all requests.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// NewMongoStore connects to MongoDB, verifies the connection and makes
// sure the listing indexes exist.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetConnectTimeout(cfg.Timeout).SetServerSelectionTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		now:    schema.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("MongoDB connection established",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create scheme indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, in schema.SchemeInput) (*schema.Scheme, error) {
	doc, err := schema.Prepare(nil, in)
	if err != nil {
		return nil, err
	}
	doc.ID = schema.NewID()
	doc.CreatedAt = s.now()
	doc.UpdatedAt = doc.CreatedAt

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert scheme: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*schema.Scheme, error) {
	oid, err := engine.ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, oid)
}

func (s *MongoStore) FindMany(ctx context.Context, f schema.Filter) ([]*schema.Scheme, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "createdAt", Value: -1},
		{Key: "_id", Value: -1},
	})

	cur, err := s.coll.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find schemes: %w", err)
	}
	defer cur.Close(ctx)

	out := []*schema.Scheme{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode schemes: %w", err)
	}
	for _, doc := range out {
		normalize(doc)
	}
	return out, nil
}

func (s *MongoStore) UpdateByID(ctx context.Context, id string, in schema.SchemeInput) (*schema.Scheme, error) {
	oid, err := engine.ParseID(id)
	if err != nil {
		return nil, err
	}

	current, err := s.findOne(ctx, oid)
	if err != nil {
		return nil, err
	}
	doc, err := schema.Prepare(current, in)
	if err != nil {
		return nil, err
	}
	doc.UpdatedAt = s.now()

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return nil, fmt.Errorf("replace scheme: %w", err)
	}
	// Deleted between the read and the write.
	if res.MatchedCount == 0 {
		return nil, engine.ErrNotFound
	}
	return doc, nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, id string) error {
	oid, err := engine.ParseID(id)
	if err != nil {
		return err
	}

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete scheme: %w", err)
	}
	if res.DeletedCount == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client pool.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOne(ctx context.Context, oid primitive.ObjectID) (*schema.Scheme, error) {
	var doc schema.Scheme
	err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, engine.ErrNotFound
		}
		return nil, fmt.Errorf("find scheme: %w", err)
	}
	normalize(&doc)
	return &doc, nil
}

// mongoFilter translates a listing filter into a query document.
// Search is matched literally: user input is quoted before it becomes a regex.
func mongoFilter(f schema.Filter) bson.M {
	q := bson.M{}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"description": re},
		}
	}
	return q
}

// normalize fixes up fields a document may lack when written by other tools.
func normalize(s *schema.Scheme) {
	if s.Benefits == nil {
		s.Benefits = []string{}
	}
	s.StartDate = s.StartDate.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if s.EndDate != nil {
		end := s.EndDate.UTC()
		s.EndDate = &end
	}
}
