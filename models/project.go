package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProjectStatus string

const (
	ProjectNotStarted ProjectStatus = "not-started"
	ProjectInProgress ProjectStatus = "in-progress"
	ProjectOnHold     ProjectStatus = "on-hold"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectDelivered  ProjectStatus = "delivered"
)

type Project struct {
	Base             `bson:",inline"`
	Name             string               `json:"name" bson:"name"`
	Description      string               `json:"description" bson:"description"`
	Client           string               `json:"client" bson:"client"`
	Status           ProjectStatus        `json:"status" bson:"status"`
	Milestones       []primitive.ObjectID `json:"milestones" bson:"milestones"`
	ClientMilestones []primitive.ObjectID `json:"clientMilestones" bson:"clientMilestones"`
	Members          []primitive.ObjectID `json:"members" bson:"members"`
	Progress         int                  `json:"progress" bson:"progress"`
	ClientProgress   int                  `json:"clientProgress" bson:"clientProgress"`
	StartDate        *time.Time           `json:"startDate,omitempty" bson:"startDate,omitempty"`
	DueDate          *time.Time           `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	CreatedBy        primitive.ObjectID   `json:"createdBy" bson:"createdBy"`
}

// ProjectRef is the projection of a project embedded in populated responses.
type ProjectRef struct {
	ID     primitive.ObjectID `json:"id" bson:"_id"`
	Name   string             `json:"name" bson:"name"`
	Status ProjectStatus      `json:"status" bson:"status"`
}

// ProjectView is a project with its members resolved.
type ProjectView struct {
	Project
	Members []UserRef `json:"members"`
}

type ProjectInput struct {
	Name           string     `json:"name" validate:"required,max=200"`
	Description    string     `json:"description" validate:"max=5000"`
	Client         string     `json:"client" validate:"max=200"`
	Status         string     `json:"status" validate:"omitempty,oneof=not-started in-progress on-hold completed delivered"`
	Members        []string   `json:"members" validate:"dive,required"`
	Progress       int        `json:"progress" validate:"min=0,max=100"`
	ClientProgress int        `json:"clientProgress" validate:"min=0,max=100"`
	StartDate      *time.Time `json:"startDate"`
	DueDate        *time.Time `json:"dueDate"`
}

type ProjectPatch struct {
	Name           *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	Client         *string    `json:"client,omitempty" validate:"omitempty,max=200"`
	Status         *string    `json:"status,omitempty" validate:"omitempty,oneof=not-started in-progress on-hold completed delivered"`
	Members        *[]string  `json:"members,omitempty" validate:"omitempty,dive,required"`
	Progress       *int       `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	ClientProgress *int       `json:"clientProgress,omitempty" validate:"omitempty,min=0,max=100"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
}
