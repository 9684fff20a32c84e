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

type mongoListingStore struct {
	coll *mongo.Collection
}

// NewListingStore returns the MongoDB-backed listing store.
func NewListingStore(database *mongo.Database) IListingStore {
	return &mongoListingStore{coll: database.Collection(ListingsCollection)}
}

func (s *mongoListingStore) Insert(ctx context.Context, listing *models.Listing) error {
	err := db.Try(func() error {
		_, err := s.coll.InsertOne(ctx, listing)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert listing %s: %w", listing.ID, err)
	}
	return nil
}

func (s *mongoListingStore) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding listing %s: %w", id, err)
	}
	return &listing, nil
}

func (s *mongoListingStore) FindByOwner(ctx context.Context, ownerID string, status models.ListingStatus, limit int) ([]models.Listing, error) {
	filter := bson.M{"owner_id": ownerID}
	if status != "" {
		filter["status"] = status
	} else {
		filter["status"] = bson.M{"$ne": models.StatusDeleted}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	return s.findMany(ctx, filter, opts)
}

func (s *mongoListingStore) ReplaceContent(ctx context.Context, id string, allowed []models.ListingStatus, content models.ListingContent, at time.Time) (*models.Listing, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": allowed}}
	update := bson.M{"$set": bson.M{
		"basis":        content.Basis,
		"address":      content.Address,
		"details":      content.Details,
		"energy":       content.Energy,
		"pricing":      content.Pricing,
		"availability": content.Availability,
		"contact":      content.Contact,
		"consent":      content.Consent,
		"updated_at":   at,
	}}
	return s.conditionalUpdate(ctx, id, filter, update)
}

func (s *mongoListingStore) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.ListingStatus, change StatusChange) (*models.Listing, error) {
	set := bson.M{
		"status":            next,
		"status_changed_at": change.At,
		"status_trigger":    change.Trigger,
		"updated_at":        change.At,
	}
	if change.Selection != nil {
		set["package_selection"] = change.Selection
	}
	if change.MarkPaymentHistory {
		set["payment_history"] = true
	}
	if change.MarketedAt != nil {
		set["marketed_at"] = change.MarketedAt
	}
	filter := bson.M{"_id": id, "status": expected}
	return s.conditionalUpdate(ctx, id, filter, bson.M{"$set": set})
}

// conditionalUpdate applies update when filter matches. A miss is explained by re-reading
// the document: missing → ErrNotFound, present → ErrStatusConflict.
func (s *mongoListingStore) conditionalUpdate(ctx context.Context, id string, filter, update bson.M) (*models.Listing, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Listing
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update listing %s: %w", id, err)
	}
	count, errCheck := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if errCheck != nil {
		return nil, fmt.Errorf("failed to re-check listing %s: %w", id, errCheck)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStatusConflict
}

func (s *mongoListingStore) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Listing, error) {
	filter := bson.M{
		"status":                       models.StatusActive,
		"package_selection.period_end": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "package_selection.period_end", Value: 1}}).SetLimit(int64(limit))
	return s.findMany(ctx, filter, opts)
}

func (s *mongoListingStore) FindStalePending(ctx context.Context, changedBefore time.Time, limit int) ([]models.Listing, error) {
	filter := bson.M{
		"status":            models.StatusPendingPayment,
		"status_changed_at": bson.M{"$lte": changedBefore},
	}
	opts := options.Find().SetSort(bson.D{{Key: "status_changed_at", Value: 1}}).SetLimit(int64(limit))
	return s.findMany(ctx, filter, opts)
}

func (s *mongoListingStore) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Listing, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}
