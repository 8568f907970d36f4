package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MilestoneType string

const (
	MilestoneDev    MilestoneType = "dev"
	MilestoneClient MilestoneType = "client"
)

// ProjectField names the Project array that lists milestones of this type.
func (t MilestoneType) ProjectField() string {
	if t == MilestoneClient {
		return "clientMilestones"
	}
	return "milestones"
}

type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "not-started"
	MilestoneInProgress MilestoneStatus = "in-progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneApproved   MilestoneStatus = "approved"
)

// Done reports whether the milestone no longer counts as open work.
func (s MilestoneStatus) Done() bool {
	return s == MilestoneCompleted || s == MilestoneApproved
}

type Milestone struct {
	Base           `bson:",inline"`
	Name           string               `json:"name" bson:"name"`
	Description    string               `json:"description" bson:"description"`
	Project        primitive.ObjectID   `json:"project" bson:"project"`
	Type           MilestoneType        `json:"type" bson:"type"`
	Status         MilestoneStatus      `json:"status" bson:"status"`
	Assignee       []primitive.ObjectID `json:"assignee" bson:"assignee"`
	DueDate        *time.Time           `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Progress       int                  `json:"progress" bson:"progress"`
	IdempotencyKey *string              `json:"-" bson:"idempotencyKey,omitempty"`
}

// MilestoneView is a milestone with assignee and project resolved.
type MilestoneView struct {
	ID          primitive.ObjectID `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Project     *ProjectRef        `json:"project"`
	Type        MilestoneType      `json:"type"`
	Status      MilestoneStatus    `json:"status"`
	Assignee    []UserRef          `json:"assignee"`
	DueDate     *time.Time         `json:"dueDate,omitempty"`
	Progress    int                `json:"progress"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type MilestoneInput struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Project     string     `json:"project" validate:"required"`
	Type        string     `json:"type" validate:"omitempty,oneof=dev client"`
	Status      string     `json:"status" validate:"omitempty,oneof=not-started in-progress completed approved"`
	Assignee    []string   `json:"assignee" validate:"dive,required"`
	DueDate     *time.Time `json:"dueDate"`
	Progress    int        `json:"progress" validate:"min=0,max=100"`
}

type MilestonePatch struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	Project     *string    `json:"project,omitempty" validate:"omitempty,min=1"`
	Type        *string    `json:"type,omitempty" validate:"omitempty,oneof=dev client"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=not-started in-progress completed approved"`
	Assignee    *[]string  `json:"assignee,omitempty" validate:"omitempty,dive,required"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Progress    *int       `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
}

type MilestoneFilter struct {
	Project string
	Type    string
	Status  string
}
