package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

// Scope restricts a collection to the records a user owns.
type Scope struct {
	// Field is the bson field holding the owner id. Empty means the collection is shared.
	Field string
	// AdminBypass lets administrators read and write every record.
	AdminBypass bool
}

type CrudConfig struct {
	Name       string
	Collection string
	Sort       bson.D
	Scope      Scope
	// CreatedEvent, when set, is sent to the record's owner after a create.
	CreatedEvent string
}

// Notifier delivers an event to the live connections of one user.
type Notifier interface {
	Notify(userID string, event models.Event)
}

// CrudService stores plain records that need no cross-document bookkeeping.
type CrudService[T any, PT interface {
	*T
	models.Record
}] struct {
	cfg      CrudConfig
	coll     storage.Collection
	notifier Notifier
	now      func() time.Time
}

func NewCrudService[T any, PT interface {
	*T
	models.Record
}](db storage.Database, notifier Notifier, cfg CrudConfig) *CrudService[T, PT] {
	if len(cfg.Sort) == 0 {
		cfg.Sort = bson.D{{Key: "createdAt", Value: -1}}
	}
	return &CrudService[T, PT]{
		cfg:      cfg,
		coll:     db.Collection(cfg.Collection),
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *CrudService[T, PT]) scoped(actor *models.User) bool {
	if s.cfg.Scope.Field == "" {
		return false
	}
	return !(s.cfg.Scope.AdminBypass && models.CanAdminister(actor.Role))
}

func (s *CrudService[T, PT]) withScope(actor *models.User, filter bson.M) bson.M {
	if s.scoped(actor) {
		filter[s.cfg.Scope.Field] = actor.ID
	}
	return filter
}

// List returns the records visible to actor. filter holds exact-match conditions
// built by the caller from query parameters.
func (s *CrudService[T, PT]) List(ctx context.Context, actor *models.User, filter bson.M, page Page) ([]T, error) {
	if filter == nil {
		filter = bson.M{}
	}
	var out []T
	opts := page.apply(storage.FindOptions{Sort: s.cfg.Sort})
	if err := s.coll.Find(ctx, s.withScope(actor, filter), opts, &out); err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.cfg.Name, err)
	}
	return out, nil
}

func (s *CrudService[T, PT]) Get(ctx context.Context, actor *models.User, id primitive.ObjectID) (PT, error) {
	rec := PT(new(T))
	if err := s.coll.FindOne(ctx, s.withScope(actor, bson.M{"_id": id}), rec); err != nil {
		return nil, lookupErr(err, s.cfg.Name)
	}
	return rec, nil
}

// assignOwner makes the actor the owner unless an administrator named someone else.
func (s *CrudService[T, PT]) assignOwner(actor *models.User, rec PT) {
	owned, ok := any(rec).(models.Owned)
	if !ok || s.cfg.Scope.Field == "" {
		return
	}
	if s.scoped(actor) || owned.OwnerID().IsZero() {
		owned.SetOwner(actor.ID)
	}
}

func (s *CrudService[T, PT]) Create(ctx context.Context, actor *models.User, rec PT) (PT, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}
	rec.ResetMeta()
	s.assignOwner(actor, rec)
	if r, ok := any(rec).(models.Reviewed); ok {
		r.SetReviewer(actor.ID)
	}
	rec.Stamp(s.now())

	id, err := s.coll.InsertOne(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", s.cfg.Name, err)
	}
	rec.SetID(id)
	logging.Logger.Infof("Event ID: RECORD_CREATED, Description: %s %s created by %s", s.cfg.Name, id.Hex(), actor.ID.Hex())

	if s.cfg.CreatedEvent != "" && s.notifier != nil {
		owner := actor.ID
		if owned, ok := any(rec).(models.Owned); ok {
			owner = owned.OwnerID()
		}
		s.notifier.Notify(owner.Hex(), models.NewEvent(s.cfg.CreatedEvent, s.cfg.Name, rec))
	}
	return rec, nil
}

// Update replaces the editable fields of the record with rec.
func (s *CrudService[T, PT]) Update(ctx context.Context, actor *models.User, id primitive.ObjectID, rec PT) (PT, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if owned, ok := any(rec).(models.Owned); ok && s.cfg.Scope.Field != "" {
		if s.scoped(actor) || owned.OwnerID().IsZero() {
			owned.SetOwner(any(existing).(models.Owned).OwnerID())
		}
	}

	set, err := toSet(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", s.cfg.Name, err)
	}
	if _, ok := any(rec).(models.Reviewed); ok {
		set["reviewedBy"] = actor.ID
	}
	set["updatedAt"] = s.now()

	matched, err := s.coll.UpdateOne(ctx, s.withScope(actor, bson.M{"_id": id}), bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", s.cfg.Name, err)
	}
	if matched == 0 {
		return nil, fmt.Errorf("%s: %w", s.cfg.Name, ErrNotFound)
	}
	return s.Get(ctx, actor, id)
}

func (s *CrudService[T, PT]) Delete(ctx context.Context, actor *models.User, id primitive.ObjectID) error {
	deleted, err := s.coll.DeleteOne(ctx, s.withScope(actor, bson.M{"_id": id}))
	if err != nil {
		return fmt.Errorf("deleting %s: %w", s.cfg.Name, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%s: %w", s.cfg.Name, ErrNotFound)
	}
	logging.Logger.Infof("Event ID: RECORD_DELETED, Description: %s %s deleted by %s", s.cfg.Name, id.Hex(), actor.ID.Hex())
	return nil
}

// toSet encodes rec into a $set document without its id and creation time.
func toSet(rec interface{}) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var set bson.M
	if err := bson.Unmarshal(raw, &set); err != nil {
		return nil, err
	}
	delete(set, "_id")
	delete(set, "createdAt")
	return set, nil
}
