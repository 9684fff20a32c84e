package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JBD-GER/maklernull-sub000/internal/db"
	"github.com/JBD-GER/maklernull-sub000/internal/models"
)

type mongoSessionStore struct {
	coll *mongo.Collection
}

// NewCheckoutSessionStore returns the MongoDB-backed checkout session store.
func NewCheckoutSessionStore(database *mongo.Database) ICheckoutSessionStore {
	return &mongoSessionStore{coll: database.Collection(CheckoutSessionsCollection)}
}

func (s *mongoSessionStore) InsertOpen(ctx context.Context, session *models.CheckoutSession) error {
	session.Status = models.SessionOpen
	err := db.Try(func() error {
		_, err := s.coll.InsertOne(ctx, session)
		return err
	})
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return ErrOpenSessionExists
		}
		return fmt.Errorf("failed to insert checkout session for listing %s: %w", session.ListingID, err)
	}
	return nil
}

func (s *mongoSessionStore) FindByID(ctx context.Context, id string) (*models.CheckoutSession, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *mongoSessionStore) FindByProcessorRef(ctx context.Context, ref string) (*models.CheckoutSession, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"processor_ref": ref})
}

func (s *mongoSessionStore) FindOpenByListing(ctx context.Context, listingID string) (*models.CheckoutSession, error) {
	return s.findOne(ctx, bson.M{"listing_id": listingID, "status": models.SessionOpen})
}

func (s *mongoSessionStore) AttachProcessorRef(ctx context.Context, id, ref, redirectURL string) error {
	filter := bson.M{"_id": id, "status": models.SessionOpen}
	update := bson.M{"$set": bson.M{"processor_ref": ref, "redirect_url": redirectURL}}
	result, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to attach processor reference to session %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

func (s *mongoSessionStore) Consume(ctx context.Context, id string, outcome models.PaymentOutcome, at time.Time) (*models.CheckoutSession, error) {
	filter := bson.M{"_id": id, "status": models.SessionOpen}
	update := bson.M{"$set": bson.M{
		"status":      models.SessionConsumed,
		"outcome":     outcome,
		"consumed_at": at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session models.CheckoutSession
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to consume session %s: %w", id, err)
	}
	return nil, s.explainMiss(ctx, id)
}

func (s *mongoSessionStore) MarkApplied(ctx context.Context, id string, at time.Time) error {
	filter := bson.M{"_id": id, "status": models.SessionConsumed}
	update := bson.M{"$set": bson.M{"applied_at": at}}
	result, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark session %s applied: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoSessionStore) FindExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSession, error) {
	filter := bson.M{"status": models.SessionOpen, "expires_at": bson.M{"$lte": now}}
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}).SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []models.CheckoutSession{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode expired sessions: %w", err)
	}
	return sessions, nil
}

func (s *mongoSessionStore) findOne(ctx context.Context, filter bson.M) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := s.coll.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding checkout session: %w", err)
	}
	return &session, nil
}

// explainMiss tells a missing session from one that is no longer open.
func (s *mongoSessionStore) explainMiss(ctx context.Context, id string) error {
	count, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to re-check session %s: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrSessionConsumed
}
