package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/latamwire/news-crawler/pkg/log"
	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/utils"
)

// MongoConfig locates the article collection
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration // Per-operation timeout
}

// articleDocument is the stored form of an article
type articleDocument struct {
	models.ExtractedArticle `bson:",inline"`
	RunID                   string    `bson:"run_id,omitempty"`
	CrawledAt               time.Time `bson:"crawled_at"`
}

// Mongo upserts articles into a MongoDB collection keyed by URL, so
// re-crawling an article refreshes it instead of duplicating it.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	runID      string
	log        *logrus.Entry
}

// NewMongo connects, verifies the connection and ensures the unique URL index
func NewMongo(ctx context.Context, cfg MongoConfig, runID string, logger *logrus.Entry) (*Mongo, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	loggerOpts := options.Logger().
		SetSink(log.NewMongoLogSink(logger.WithField("component", "mongo"))).
		SetComponentLevel(options.LogComponentConnection, options.LogLevelInfo)
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetLoggerOptions(loggerOpts))
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to MongoDB: %w", utils.ErrDatabase, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: pinging MongoDB: %w", utils.ErrDatabase, err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = collection.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: creating url index: %w", utils.ErrDatabase, err)
	}

	logger.WithFields(logrus.Fields{"database": cfg.Database, "collection": cfg.Collection}).Info("MongoDB sink connected")
	return &Mongo{client: client, collection: collection, timeout: cfg.Timeout, runID: runID, log: logger}, nil
}

// Emit implements Sink
func (m *Mongo) Emit(ctx context.Context, article models.ExtractedArticle) error {
	opCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	doc := articleDocument{ExtractedArticle: article, RunID: m.runID, CrawledAt: time.Now().UTC()}
	_, err := m.collection.UpdateOne(opCtx,
		bson.M{"url": article.URL},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting article '%s': %w", utils.ErrDatabase, article.URL, err)
	}
	return nil
}

// Close implements Sink
func (m *Mongo) Close(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.client.Disconnect(closeCtx); err != nil {
		return fmt.Errorf("%w: disconnecting MongoDB: %w", utils.ErrDatabase, err)
	}
	return nil
}
