package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// CanAdminister reports whether the role may perform administrative writes.
func CanAdminister(r Role) bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User mirrors a record of the external identity provider.
type User struct {
	Base        `bson:",inline"`
	ExternalID  string `json:"externalId" bson:"externalId"`
	Name        string `json:"name" bson:"name"`
	Email       string `json:"email" bson:"email"`
	ImageURL    string `json:"imageUrl" bson:"imageUrl"`
	Designation string `json:"designation" bson:"designation"`
	Role        Role   `json:"role" bson:"role"`
}

// UserRef is the projection of a user embedded in populated responses.
type UserRef struct {
	ID       primitive.ObjectID `json:"id" bson:"_id"`
	Name     string             `json:"name" bson:"name"`
	Email    string             `json:"email" bson:"email"`
	ImageURL string             `json:"imageUrl" bson:"imageUrl"`
}

// IdentityEvent is the payload of the identity provider's directory webhook.
type IdentityEvent struct {
	Type string `json:"type" validate:"required,oneof=user.created user.updated user.deleted"`
	Data struct {
		ExternalID  string `json:"id" validate:"required"`
		Name        string `json:"name"`
		Email       string `json:"email"`
		ImageURL    string `json:"imageUrl"`
		Designation string `json:"designation"`
	} `json:"data"`
}

type RoleChange struct {
	Role Role `json:"role" validate:"required,oneof=user admin super-admin"`
}

type UserPatch struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	Designation *string `json:"designation,omitempty"`
}

func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, ImageURL: u.ImageURL}
}

