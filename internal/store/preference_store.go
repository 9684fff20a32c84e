package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/JBD-GER/maklernull-sub000/internal/models"
)

type mongoPreferenceStore struct {
	coll *mongo.Collection
}

// NewPreferenceStore returns a reader for the owner_preferences collection.
func NewPreferenceStore(database *mongo.Database) IPreferenceStore {
	return &mongoPreferenceStore{coll: database.Collection(OwnerPreferencesCollection)}
}

// AutoRenew is false for owners that never saved a preference.
func (s *mongoPreferenceStore) AutoRenew(ctx context.Context, ownerID string) (bool, error) {
	var pref models.OwnerPreference
	err := s.coll.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&pref)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read preferences of owner %s: %w", ownerID, err)
	}
	return pref.AutoRenew, nil
}
