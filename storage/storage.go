// Package storage describes the document store the services talk to.
//
// Filters and updates are plain bson.M values written the way the MongoDB driver
// expects them, so the same service code runs against MongoDB (mongostore) and the
// in-memory store (memstore).
package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names.
const (
	Users         = "users"
	Projects      = "projects"
	Milestones    = "milestones"
	Tasks         = "tasks"
	Attendance    = "attendance"
	RedZones      = "redzones"
	Performance   = "performance"
	Kpis          = "kpis"
	Feedback      = "feedback"
	PersonalTasks = "personal_tasks"
	Reminders     = "reminders"
	Donations     = "donations"
	Expenses      = "expenses"
	Earnings      = "earnings"
	Advances      = "advances"
)

var (
	// ErrNoDocuments is returned by FindOne when nothing matches.
	ErrNoDocuments = mongo.ErrNoDocuments
	// ErrTransient marks a transaction that was aborted by a concurrent writer.
	ErrTransient = errors.New("transaction aborted by a concurrent write")
	// ErrDuplicateKey is returned when a unique index is violated.
	ErrDuplicateKey = errors.New("duplicate key")
)

// FindOptions narrows a Find call. Sort follows the driver's bson.D{{field, 1|-1}} form.
type FindOptions struct {
	Sort       bson.D
	Skip       int64
	Limit      int64
	Projection bson.M
}

type Collection interface {
	Name() string
	InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error)
	// FindOne decodes the first match into out or returns ErrNoDocuments.
	FindOne(ctx context.Context, filter bson.M, out interface{}) error
	// Find decodes every match into out, which must be a pointer to a slice.
	Find(ctx context.Context, filter bson.M, opts FindOptions, out interface{}) error
	UpdateOne(ctx context.Context, filter bson.M, update bson.M) (matched int64, err error)
	UpdateMany(ctx context.Context, filter bson.M, update bson.M) (matched int64, err error)
	DeleteOne(ctx context.Context, filter bson.M) (deleted int64, err error)
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)
}

type Database interface {
	Collection(name string) Collection
	// WithTransaction runs fn as one unit of work. Collection calls made with the
	// context handed to fn join the transaction; any error from fn aborts it.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// IsTransient reports whether err is a transaction abort that is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(112) // WriteConflict
	}
	return false
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || mongo.IsDuplicateKeyError(err)
}
