package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PersonalTask struct {
	Base    `bson:",inline"`
	Owner   primitive.ObjectID `json:"owner" bson:"owner"`
	Title   string             `json:"title" bson:"title" validate:"required,max=300"`
	Notes   string             `json:"notes" bson:"notes" validate:"max=5000"`
	Done    bool               `json:"done" bson:"done"`
	DueDate *time.Time         `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
}

func (p *PersonalTask) OwnerID() primitive.ObjectID { return p.Owner }
func (p *PersonalTask) SetOwner(id primitive.ObjectID) { p.Owner = id }

type Reminder struct {
	Base     `bson:",inline"`
	Owner    primitive.ObjectID `json:"owner" bson:"owner"`
	Title    string             `json:"title" bson:"title" validate:"required,max=300"`
	Note     string             `json:"note" bson:"note" validate:"max=5000"`
	RemindAt time.Time          `json:"remindAt" bson:"remindAt" validate:"required"`
	Done     bool               `json:"done" bson:"done"`
}

func (r *Reminder) OwnerID() primitive.ObjectID { return r.Owner }
func (r *Reminder) SetOwner(id primitive.ObjectID) { r.Owner = id }
