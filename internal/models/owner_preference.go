package models

import "time"

// OwnerPreference is maintained by the account settings service; we only read it.
type OwnerPreference struct {
	OwnerID   string    `bson:"_id" json:"ownerId"`
	AutoRenew bool      `bson:"auto_renew" json:"autoRenew"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
