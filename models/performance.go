package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type RedZone struct {
	Base     `bson:",inline"`
	Project  primitive.ObjectID `json:"project" bson:"project" validate:"required"`
	User     primitive.ObjectID `json:"user" bson:"user"`
	Reason   string             `json:"reason" bson:"reason" validate:"required,max=2000"`
	Severity Severity           `json:"severity" bson:"severity" validate:"required,oneof=low medium high"`
	Resolved bool               `json:"resolved" bson:"resolved"`
}

type Performance struct {
	Base       `bson:",inline"`
	User       primitive.ObjectID `json:"user" bson:"user" validate:"required"`
	Period     string             `json:"period" bson:"period" validate:"required,datetime=2006-01"`
	Score      int                `json:"score" bson:"score" validate:"min=0,max=100"`
	Remarks    string             `json:"remarks" bson:"remarks" validate:"max=5000"`
	ReviewedBy primitive.ObjectID `json:"reviewedBy" bson:"reviewedBy"`
}

func (p *Performance) SetReviewer(id primitive.ObjectID) { p.ReviewedBy = id }

type Kpi struct {
	Base     `bson:",inline"`
	User     primitive.ObjectID `json:"user" bson:"user" validate:"required"`
	Name     string             `json:"name" bson:"name" validate:"required,max=200"`
	Target   float64            `json:"target" bson:"target" validate:"gte=0"`
	Achieved float64            `json:"achieved" bson:"achieved" validate:"gte=0"`
	Period   string             `json:"period" bson:"period" validate:"required,datetime=2006-01"`
}

type Feedback struct {
	Base     `bson:",inline"`
	Project  *primitive.ObjectID `json:"project,omitempty" bson:"project,omitempty"`
	User     primitive.ObjectID  `json:"user" bson:"user"`
	Message  string              `json:"message" bson:"message" validate:"required,max=5000"`
	Rating   int                 `json:"rating" bson:"rating" validate:"required,min=1,max=5"`
	Category string              `json:"category" bson:"category" validate:"max=100"`
}

func (f *Feedback) OwnerID() primitive.ObjectID { return f.User }
func (f *Feedback) SetOwner(id primitive.ObjectID) { f.User = id }
