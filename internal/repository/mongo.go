package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"slide-master/internal/domain"
)

// anomalyCollection is the collection written by MongoAnomalies.
const anomalyCollection = "reconciliation_anomalies"

type insertOner interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

type anomalyDocument struct {
	JobID       string    `bson:"job_id"`
	RequesterID string    `bson:"requester_id"`
	Balance     int       `bson:"balance"`
	Reason      string    `bson:"reason"`
	At          time.Time `bson:"at"`
	Resolved    bool      `bson:"resolved"`
}

// MongoAnomalies is an append-only ledger of settlements that failed after delivery.
type MongoAnomalies struct {
	col insertOner
}

func NewMongoAnomalies(db *mongo.Database) *MongoAnomalies {
	return &MongoAnomalies{col: db.Collection(anomalyCollection)}
}

func newMongoAnomalies(col insertOner) (*MongoAnomalies, error) {
	if col == nil {
		return nil, errors.New("repository: collection must not be nil")
	}
	return &MongoAnomalies{col: col}, nil
}

func (s *MongoAnomalies) Record(ctx context.Context, a domain.ReconciliationAnomaly) error {
	doc := anomalyDocument{
		JobID:       a.JobID,
		RequesterID: a.RequesterID,
		Balance:     a.Balance,
		Reason:      a.Reason,
		At:          a.At.UTC(),
	}
	if doc.At.IsZero() {
		doc.At = time.Now().UTC()
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("repository: record anomaly: %w", err)
	}
	return nil
}
