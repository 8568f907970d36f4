package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Base holds the fields every stored document carries.
type Base struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}

func (b *Base) GetID() primitive.ObjectID { return b.ID }
func (b *Base) SetID(id primitive.ObjectID) { b.ID = id }

// ResetMeta clears the id and timestamps supplied by a client.
func (b *Base) ResetMeta() { *b = Base{} }

// Stamp sets UpdatedAt, and CreatedAt when it is still zero.
func (b *Base) Stamp(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Record is implemented by every document managed through the generic CRUD service.
type Record interface {
	GetID() primitive.ObjectID
	SetID(id primitive.ObjectID)
	ResetMeta()
	Stamp(now time.Time)
}

// Owned records belong to a single user, stored in the collection's owner field.
type Owned interface {
	Record
	OwnerID() primitive.ObjectID
	SetOwner(id primitive.ObjectID)
}

// Reviewed records remember which administrator wrote them.
type Reviewed interface {
	SetReviewer(id primitive.ObjectID)
}
