package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/sms"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const smsHistoryCollection = "sms_history"

var _ sms.HistoryStore = (*MongoSMSHistory)(nil)

// MongoSMSHistory keeps SMS batches in a MongoDB collection.
type MongoSMSHistory struct {
	col *mongo.Collection
}

// ConnectMongo opens a client and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrMongoConnect, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: %w", config.ErrMongoConnect, err)
	}
	return client, nil
}

func NewMongoSMSHistory(db *mongo.Database) *MongoSMSHistory {
	return &MongoSMSHistory{col: db.Collection(smsHistoryCollection)}
}

func (s *MongoSMSHistory) Append(ctx context.Context, b sms.Batch) error {
	if _, err := s.col.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

func (s *MongoSMSHistory) Recent(ctx context.Context, limit int) ([]sms.Batch, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	batches := []sms.Batch{}
	if err := cur.All(ctx, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *MongoSMSHistory) Totals(ctx context.Context, since time.Time) (sms.Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "sent", Value: bson.D{{Key: "$sum", Value: "$sent"}}},
			{Key: "recipients", Value: bson.D{{Key: "$sum", Value: "$recipients"}}},
			{Key: "today", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{"$createdAt", since}}}, "$sent", 0,
			}}}}}},
		}}},
	}
	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return sms.Stats{}, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Sent       int64 `bson:"sent"`
		Recipients int64 `bson:"recipients"`
		Today      int64 `bson:"today"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return sms.Stats{}, err
	}
	if len(rows) == 0 {
		return sms.Stats{}, nil
	}
	return sms.Stats{
		TotalMessagesSent: rows[0].Sent,
		TotalRecipients:   rows[0].Recipients,
		SentToday:         rows[0].Today,
	}, nil
}
