package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
	"github.com/nls08/NLS-Portal-sub001/utils"
)

// UserService is the local mirror of the identity provider's directory.
type UserService struct {
	users storage.Collection
	now   func() time.Time
}

func NewUserService(db storage.Database) *UserService {
	return &UserService{
		users: db.Collection(storage.Users),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"externalId": externalID}, &u); err != nil {
		return nil, lookupErr(err, "user")
	}
	return &u, nil
}

func (s *UserService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}, &u); err != nil {
		return nil, lookupErr(err, "user")
	}
	return &u, nil
}

// Resolve returns the directory record for the token's subject, creating it from the
// claims on first sight. The stored role wins over the token's role afterwards.
func (s *UserService) Resolve(ctx context.Context, claims *utils.Claims) (*models.User, error) {
	u, err := s.GetByExternalID(ctx, claims.Subject)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	role := models.Role(claims.Role)
	if !role.Valid() {
		role = models.RoleUser
	}
	nu := models.User{
		ExternalID: claims.Subject,
		Name:       claims.Name,
		Email:      strings.ToLower(claims.Email),
		Role:       role,
	}
	nu.Stamp(s.now())

	id, err := s.users.InsertOne(ctx, nu)
	if err != nil {
		if storage.IsDuplicateKey(err) {
			return s.GetByExternalID(ctx, claims.Subject)
		}
		return nil, fmt.Errorf("provisioning user: %w", err)
	}
	nu.ID = id
	logging.Logger.Infof("Event ID: USER_PROVISIONED, Description: Provisioned user %s for subject %s with role %s", id.Hex(), claims.Subject, role)
	return &nu, nil
}

// Sync applies a directory webhook event.
func (s *UserService) Sync(ctx context.Context, ev models.IdentityEvent) error {
	if err := validate(ev); err != nil {
		return err
	}
	ext := ev.Data.ExternalID

	if ev.Type == "user.deleted" {
		deleted, err := s.users.DeleteOne(ctx, bson.M{"externalId": ext})
		if err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		logging.Logger.Infof("Event ID: USER_SYNC_DELETED, Description: Directory delete for %s removed %d record(s)", ext, deleted)
		return nil
	}

	now := s.now()
	matched, err := s.users.UpdateOne(ctx, bson.M{"externalId": ext}, bson.M{"$set": bson.M{
		"name":        ev.Data.Name,
		"email":       strings.ToLower(ev.Data.Email),
		"imageUrl":    ev.Data.ImageURL,
		"designation": ev.Data.Designation,
		"updatedAt":   now,
	}})
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if matched > 0 {
		logging.Logger.Infof("Event ID: USER_SYNC_UPDATED, Description: Directory record %s updated", ext)
		return nil
	}

	u := models.User{
		ExternalID:  ext,
		Name:        ev.Data.Name,
		Email:       strings.ToLower(ev.Data.Email),
		ImageURL:    ev.Data.ImageURL,
		Designation: ev.Data.Designation,
		Role:        models.RoleUser,
	}
	u.Stamp(now)
	if _, err := s.users.InsertOne(ctx, u); err != nil && !storage.IsDuplicateKey(err) {
		return fmt.Errorf("creating user: %w", err)
	}
	logging.Logger.Infof("Event ID: USER_SYNC_CREATED, Description: Directory record %s created", ext)
	return nil
}

func (s *UserService) List(ctx context.Context, page Page) ([]models.User, error) {
	var users []models.User
	opts := page.apply(storage.FindOptions{Sort: bson.D{{Key: "name", Value: 1}}})
	if err := s.users.Find(ctx, bson.M{}, opts, &users); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// SetRole changes a user's role. Only a super-admin may grant or revoke super-admin.
func (s *UserService) SetRole(ctx context.Context, actor *models.User, id primitive.ObjectID, change models.RoleChange) (*models.User, error) {
	if err := validate(change); err != nil {
		return nil, err
	}
	if !models.CanAdminister(actor.Role) {
		return nil, ErrForbidden
	}
	target, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	touchesSuper := change.Role == models.RoleSuperAdmin || target.Role == models.RoleSuperAdmin
	if touchesSuper && actor.Role != models.RoleSuperAdmin {
		return nil, fmt.Errorf("only a super-admin can change super-admin roles: %w", ErrForbidden)
	}

	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"role": change.Role, "updatedAt": s.now()}}); err != nil {
		return nil, fmt.Errorf("updating role: %w", err)
	}
	logging.Logger.Infof("Event ID: USER_ROLE_CHANGED, Description: User %s role changed from %s to %s by %s", id.Hex(), target.Role, change.Role, actor.ID.Hex())
	return s.GetByID(ctx, id)
}

// UpdateProfile edits the caller's own display fields.
func (s *UserService) UpdateProfile(ctx context.Context, id primitive.ObjectID, patch models.UserPatch) (*models.User, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": s.now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.ImageURL != nil {
		set["imageUrl"] = *patch.ImageURL
	}
	if patch.Designation != nil {
		set["designation"] = *patch.Designation
	}
	matched, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	if matched == 0 {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	return s.GetByID(ctx, id)
}

// EmailsOf returns the addresses of the given users, skipping those without one.
func (s *UserService) EmailsOf(ctx context.Context, ids []primitive.ObjectID) ([]models.UserRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var refs []models.UserRef
	if err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}, "email": bson.M{"$ne": ""}}, storage.FindOptions{Projection: userRefProjection}, &refs); err != nil {
		return nil, fmt.Errorf("loading recipients: %w", err)
	}
	return refs, nil
}
